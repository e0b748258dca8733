package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"pixsync/internal/clock"
	"pixsync/internal/eventbus"
	"pixsync/internal/logging"
	"pixsync/internal/protocol"
)

const (
	backoffBase = time.Second
	backoffCap  = 30 * time.Second
)

// Adapter keeps one push channel per process alive against the backend's
// notify stream and translates inbound frames into local bus events. Push
// is a redundancy layer over polling, not a replacement: both publish the
// same ops, so consumers never care which side delivered an update.
type Adapter struct {
	url    string
	dialer Dialer
	bus    *eventbus.Bus
	sched  clock.Scheduler
	logger *slog.Logger

	mu      sync.Mutex
	active  bool
	attempt int
	sock    Socket
	timer   clock.Timer
	ctx     context.Context
	cancel  context.CancelFunc
}

type AdapterConfig struct {
	URL       string
	Dialer    Dialer
	Bus       *eventbus.Bus
	Scheduler clock.Scheduler
	Logger    *slog.Logger
}

func NewAdapter(cfg AdapterConfig) *Adapter {
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = RealDialer{}
	}
	sched := cfg.Scheduler
	if sched == nil {
		sched = clock.RealScheduler{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Adapter{
		url:    cfg.URL,
		dialer: dialer,
		bus:    cfg.Bus,
		sched:  sched,
		logger: logger,
	}
}

// Start marks the adapter active and begins the first connect attempt.
// Calling Start on an active adapter is a no-op: one socket per process.
func (a *Adapter) Start(ctx context.Context) {
	if a == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	a.mu.Lock()
	if a.active {
		a.mu.Unlock()
		return
	}
	a.active = true
	a.attempt = 0
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.mu.Unlock()
	a.connect()
}

// Close marks the adapter inactive first, so a close event arriving after
// teardown cannot schedule another reconnect, then tears down the timer and
// socket. No timers survive Close.
func (a *Adapter) Close() {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.active = false
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	sock := a.sock
	a.sock = nil
	cancel := a.cancel
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sock != nil {
		_ = sock.Close()
	}
}

func (a *Adapter) connect() {
	a.mu.Lock()
	if !a.active {
		a.mu.Unlock()
		return
	}
	a.timer = nil
	ctx := a.ctx
	a.mu.Unlock()

	sock, err := a.dialer.Dial(ctx, a.url)
	if err != nil {
		a.logger.Warn("notify channel dial failed", "url", a.url, "err", err)
		a.scheduleReconnect()
		return
	}

	a.mu.Lock()
	if !a.active {
		a.mu.Unlock()
		_ = sock.Close()
		return
	}
	// Never more than one live socket: drop any previous reference first.
	if a.sock != nil {
		_ = a.sock.Close()
	}
	a.sock = sock
	a.attempt = 0
	a.mu.Unlock()
	a.logger.Info("notify channel open", "url", a.url)

	go a.readLoop(ctx, sock)
}

func (a *Adapter) readLoop(ctx context.Context, sock Socket) {
	for {
		text, err := sock.ReadText(ctx)
		if err != nil {
			a.mu.Lock()
			if a.sock == sock {
				a.sock = nil
			}
			a.mu.Unlock()
			_ = sock.Close()
			a.logger.Warn("notify channel closed", "err", err)
			a.scheduleReconnect()
			return
		}
		a.dispatch([]byte(text))
	}
}

// dispatch translates one inbound frame into a bus event. Malformed or
// unknown frames are dropped with a warning; the channel stays open.
func (a *Adapter) dispatch(raw []byte) {
	msg, err := protocol.ParseMessage(raw)
	if err != nil {
		a.logger.Warn("dropping malformed notify frame", "err", err)
		return
	}
	switch msg.Op {
	case protocol.OpTaskStatus, protocol.OpWalletPoints:
		a.bus.Publish(msg)
	default:
		a.logger.Warn("dropping notify frame with unknown op", "op", msg.Op)
	}
}

func (a *Adapter) scheduleReconnect() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active || a.timer != nil {
		return
	}
	delay := backoffDelay(a.attempt)
	a.attempt++
	a.timer = a.sched.AfterFunc(delay, a.connect)
	a.logger.Info("notify reconnect scheduled", "delay_ms", delay.Milliseconds(), "attempt", a.attempt)
}

func backoffDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := backoffBase
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= backoffCap {
			return backoffCap
		}
	}
	return delay
}
