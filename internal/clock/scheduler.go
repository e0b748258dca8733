package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer is the cancellable handle returned by Scheduler.AfterFunc. Stop
// reports whether the timer was cancelled before firing.
type Timer interface {
	Stop() bool
}

// Scheduler is the single seam between timer-owning components (poll
// sessions, debounce entries, reconnect backoff) and real time.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type RealScheduler struct{}

func (RealScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return realTimer{t: time.AfterFunc(d, fn)}
}

type realTimer struct {
	t *time.Timer
}

func (rt realTimer) Stop() bool {
	return rt.t.Stop()
}

// FakeScheduler drives timers manually for deterministic tests.
type FakeScheduler struct {
	mu      sync.Mutex
	now     time.Duration
	nextID  int
	pending map[int]*fakeTimer
}

type fakeTimer struct {
	sched   *FakeScheduler
	id      int
	dueAt   time.Duration
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func NewFakeScheduler() *FakeScheduler {
	return &FakeScheduler{pending: map[int]*fakeTimer{}}
}

func (s *FakeScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	ft := &fakeTimer{sched: s, id: s.nextID, dueAt: s.now + d, delay: d, fn: fn}
	s.pending[ft.id] = ft
	return ft
}

func (ft *fakeTimer) Stop() bool {
	ft.sched.mu.Lock()
	defer ft.sched.mu.Unlock()
	if ft.fired || ft.stopped {
		return false
	}
	ft.stopped = true
	delete(ft.sched.pending, ft.id)
	return true
}

// PendingCount reports how many timers are armed. Tests use it to assert
// the at-most-one-timer invariant.
func (s *FakeScheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// PendingDelays returns the original delays of armed timers in schedule
// order, for backoff assertions.
func (s *FakeScheduler) PendingDelays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]time.Duration, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.pending[id].delay)
	}
	return out
}

// Advance moves fake time forward, firing due timers in due order. Timers
// armed by fired callbacks fire too if they fall within the window.
func (s *FakeScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	deadline := s.now + d
	for {
		ft := s.earliestDueLocked(deadline)
		if ft == nil {
			break
		}
		s.now = ft.dueAt
		ft.fired = true
		delete(s.pending, ft.id)
		fn := ft.fn
		s.mu.Unlock()
		fn()
		s.mu.Lock()
	}
	s.now = deadline
	s.mu.Unlock()
}

func (s *FakeScheduler) earliestDueLocked(deadline time.Duration) *fakeTimer {
	var earliest *fakeTimer
	for _, ft := range s.pending {
		if ft.dueAt > deadline {
			continue
		}
		if earliest == nil || ft.dueAt < earliest.dueAt || (ft.dueAt == earliest.dueAt && ft.id < earliest.id) {
			earliest = ft
		}
	}
	return earliest
}
