package debounce

import (
	"strings"
	"sync"
	"time"

	"pixsync/internal/clock"
)

// Registry collapses bursts of triggers into one delayed callback per key.
// It is an injectable instance rather than package-level state so tests and
// independent subsystems can hold isolated registries.
type Registry struct {
	sched clock.Scheduler

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	fn    func()
	delay time.Duration
	timer clock.Timer
}

func NewRegistry(sched clock.Scheduler) *Registry {
	if sched == nil {
		sched = clock.RealScheduler{}
	}
	return &Registry{sched: sched, entries: map[string]*entry{}}
}

// Register creates or replaces the callback under key. A pending timer is
// left untouched; the new callback takes effect on the next Trigger.
func (r *Registry) Register(key string, fn func(), delay time.Duration) {
	key = strings.TrimSpace(key)
	if r == nil || key == "" || fn == nil {
		return
	}
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.entries[key]; ok {
		prev.fn = fn
		prev.delay = delay
		return
	}
	r.entries[key] = &entry{fn: fn, delay: delay}
}

// Trigger re-arms the key's single timer to fire one delay after the latest
// call, capturing the callback registered at that moment. Unknown keys are
// ignored: callers treat the registry as best-effort.
func (r *Registry) Trigger(key string) {
	key = strings.TrimSpace(key)
	if r == nil || key == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ent, ok := r.entries[key]
	if !ok {
		return
	}
	if ent.timer != nil {
		ent.timer.Stop()
	}
	fn := ent.fn
	ent.timer = r.sched.AfterFunc(ent.delay, fn)
}

// Clear removes the registration. An already-armed timer still fires with
// the callback captured at schedule time; consumers treat the late fire as
// a harmless extra run.
func (r *Registry) Clear(key string) {
	key = strings.TrimSpace(key)
	if r == nil || key == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
}

func (r *Registry) registered(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[key]
	return ok
}
