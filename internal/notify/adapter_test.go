package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pixsync/internal/clock"
	"pixsync/internal/eventbus"
	"pixsync/internal/protocol"
)

type fakeDialer struct {
	mu       sync.Mutex
	failures int
	dials    int
	socks    []*FakeSocket
}

func (d *fakeDialer) Dial(_ context.Context, _ string) (Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.dials <= d.failures {
		return nil, errors.New("connection refused")
	}
	sock := NewFakeSocket()
	d.socks = append(d.socks, sock)
	return sock, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) lastSock() *FakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.socks) == 0 {
		return nil
	}
	return d.socks[len(d.socks)-1]
}

func waitForPending(t *testing.T, sched *clock.FakeScheduler, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sched.PendingCount() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("pending timers = %d, want %d", sched.PendingCount(), want)
}

func TestBackoffDelay(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{20, 30 * time.Second},
	}
	for _, tc := range cases {
		if got := backoffDelay(tc.attempt); got != tc.want {
			t.Fatalf("backoffDelay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestAdapter_ReconnectDelaysGrowExponentially(t *testing.T) {
	sched := clock.NewFakeScheduler()
	dialer := &fakeDialer{failures: 1000}
	a := NewAdapter(AdapterConfig{URL: "ws://test/stream", Dialer: dialer, Bus: eventbus.NewBus(nil), Scheduler: sched})
	defer a.Close()

	a.Start(context.Background())
	wantDelays := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	for _, want := range wantDelays {
		delays := sched.PendingDelays()
		if len(delays) != 1 || delays[0] != want {
			t.Fatalf("scheduled delays = %v, want [%v]", delays, want)
		}
		sched.Advance(want)
	}
	if got := dialer.dialCount(); got != 4 {
		t.Fatalf("dial attempts = %d, want 4", got)
	}
}

func TestAdapter_OpenResetsBackoff(t *testing.T) {
	sched := clock.NewFakeScheduler()
	dialer := &fakeDialer{failures: 2}
	a := NewAdapter(AdapterConfig{URL: "ws://test/stream", Dialer: dialer, Bus: eventbus.NewBus(nil), Scheduler: sched})
	defer a.Close()

	a.Start(context.Background())
	sched.Advance(time.Second)
	sched.Advance(2 * time.Second) // third dial succeeds

	sock := dialer.lastSock()
	if sock == nil {
		t.Fatal("no socket opened")
	}
	_ = sock.Close()

	waitForPending(t, sched, 1)
	if delays := sched.PendingDelays(); delays[0] != time.Second {
		t.Fatalf("post-open reconnect delay = %v, want 1s", delays[0])
	}
}

func TestAdapter_TranslatesKnownOpsAndDropsJunk(t *testing.T) {
	sched := clock.NewFakeScheduler()
	dialer := &fakeDialer{}
	bus := eventbus.NewBus(nil)
	a := NewAdapter(AdapterConfig{URL: "ws://test/stream", Dialer: dialer, Bus: bus, Scheduler: sched})
	defer a.Close()

	statusCh, cancelStatus := bus.Subscribe(protocol.OpTaskStatus)
	defer cancelStatus()
	pointsCh, cancelPoints := bus.Subscribe(protocol.OpWalletPoints)
	defer cancelPoints()

	a.Start(context.Background())
	sock := dialer.lastSock()
	if sock == nil {
		t.Fatal("no socket opened")
	}

	sock.EmitText(`{malformed`)
	sock.EmitText(`{"id":"evt_x","type":"event","op":"weather.report","payload":{}}`)
	sock.EmitText(`{"id":"evt_1","type":"event","op":"task.status","payload":{"task_id":"t1","status":"completed"}}`)
	sock.EmitText(`{"id":"evt_2","type":"event","op":"wallet.points","payload":{"user_id":"u1","balance":120}}`)

	select {
	case msg := <-statusCh:
		if msg.ID != "evt_1" {
			t.Fatalf("unexpected status event %q", msg.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("task.status never delivered")
	}
	select {
	case msg := <-pointsCh:
		if msg.ID != "evt_2" {
			t.Fatalf("unexpected points event %q", msg.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("wallet.points never delivered")
	}
	if len(statusCh) != 0 {
		t.Fatal("junk frames leaked onto the bus")
	}
}

func TestAdapter_CloseSchedulesNothing(t *testing.T) {
	sched := clock.NewFakeScheduler()
	dialer := &fakeDialer{}
	a := NewAdapter(AdapterConfig{URL: "ws://test/stream", Dialer: dialer, Bus: eventbus.NewBus(nil), Scheduler: sched})

	a.Start(context.Background())
	sock := dialer.lastSock()
	if sock == nil {
		t.Fatal("no socket opened")
	}

	a.Close()
	// The read loop observes the closed socket after teardown; the late
	// close event must not resurrect the channel.
	time.Sleep(20 * time.Millisecond)
	if sched.PendingCount() != 0 {
		t.Fatalf("timers after close = %d", sched.PendingCount())
	}

	sched.Advance(time.Minute)
	if got := dialer.dialCount(); got != 1 {
		t.Fatalf("dials after close = %d", got)
	}
}

func TestAdapter_StartWhileActiveIsNoop(t *testing.T) {
	sched := clock.NewFakeScheduler()
	dialer := &fakeDialer{}
	a := NewAdapter(AdapterConfig{URL: "ws://test/stream", Dialer: dialer, Bus: eventbus.NewBus(nil), Scheduler: sched})
	defer a.Close()

	a.Start(context.Background())
	a.Start(context.Background())
	if got := dialer.dialCount(); got != 1 {
		t.Fatalf("dials = %d, want 1", got)
	}
}
