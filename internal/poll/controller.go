package poll

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"pixsync/internal/clock"
	"pixsync/internal/logging"
	"pixsync/internal/tasks"
)

const (
	// MaxRetries bounds consecutive fetch failures before the session gives
	// up. The give-up is logged, never surfaced: polling is best-effort.
	MaxRetries = 5

	DefaultInterval = time.Second
)

// FetchFunc loads the current state of one task. isPolling lets the backend
// client apply lighter-weight fetch semantics on timer-driven reads.
type FetchFunc func(ctx context.Context, taskID string, isPolling bool) (tasks.Task, error)

type Config struct {
	TaskID    string
	Interval  time.Duration
	Disabled  bool
	Fetch     FetchFunc
	OnStatus  func(tasks.Task)
	Scheduler clock.Scheduler
	Logger    *slog.Logger
}

// Controller is a per-task polling session: Idle until Start, then one
// serialized tick chain until a terminal status, retry exhaustion, or Stop.
// At most one timer is armed at any instant; a new timer is armed only
// after the previous fetch settles.
type Controller struct {
	sched    clock.Scheduler
	fetch    FetchFunc
	onStatus func(tasks.Task)
	logger   *slog.Logger
	interval time.Duration
	disabled bool

	mu         sync.Mutex
	taskID     string
	ctx        context.Context
	polling    bool
	midFlight  bool
	retryCount int
	gen        int
	timer      clock.Timer
}

func NewController(cfg Config) *Controller {
	sched := cfg.Scheduler
	if sched == nil {
		sched = clock.RealScheduler{}
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Controller{
		sched:    sched,
		fetch:    cfg.Fetch,
		onStatus: cfg.OnStatus,
		logger:   logger,
		interval: interval,
		disabled: cfg.Disabled,
		taskID:   strings.TrimSpace(cfg.TaskID),
	}
}

// Start transitions Idle -> Polling and performs the first fetch right
// away. Calls while already polling, without a task id, or while disabled
// are no-ops. Reports whether a session actually started.
func (c *Controller) Start(ctx context.Context) bool {
	if c == nil || c.fetch == nil || c.disabled {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.polling || c.taskID == "" {
		return false
	}
	c.polling = true
	c.midFlight = true
	c.retryCount = 0
	c.ctx = ctx
	c.gen++
	c.armLocked(c.gen, 0)
	return true
}

// Stop cancels any pending timer and returns to Idle. Idempotent; an
// in-flight fetch settles without effect.
func (c *Controller) Stop() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked()
	c.midFlight = false
}

// Suspend force-stops polling without counting against retries, remembering
// whether a session was mid-flight so Resume can pick it back up. The
// daemon calls this when the host goes to sleep or loses connectivity.
func (c *Controller) Suspend() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	wasPolling := c.polling
	c.cancelLocked()
	c.midFlight = wasPolling
}

// Resume restarts a suspended session from a fresh tick with a reset retry
// counter. Sessions that were idle at suspend time stay idle.
func (c *Controller) Resume(ctx context.Context) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	if !c.midFlight || c.polling {
		c.mu.Unlock()
		return false
	}
	c.midFlight = false
	c.mu.Unlock()
	return c.Start(ctx)
}

// Rebind stops the current session and points the controller at a new task
// id. The old timer is always cancelled before a new session may start, so
// two timers never race on the same slot.
func (c *Controller) Rebind(taskID string) {
	if c == nil {
		return
	}
	taskID = strings.TrimSpace(taskID)
	c.mu.Lock()
	defer c.mu.Unlock()
	if taskID == c.taskID {
		return
	}
	c.cancelLocked()
	c.midFlight = false
	c.taskID = taskID
}

func (c *Controller) Polling() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.polling
}

func (c *Controller) TaskID() string {
	if c == nil {
		return ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.taskID
}

func (c *Controller) cancelLocked() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.polling = false
	c.retryCount = 0
}

func (c *Controller) armLocked(gen int, delay time.Duration) {
	c.timer = c.sched.AfterFunc(delay, func() { c.tick(gen) })
}

func (c *Controller) tick(gen int) {
	c.mu.Lock()
	if !c.polling || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	taskID := c.taskID
	ctx := c.ctx
	c.mu.Unlock()

	task, err := c.fetch(ctx, taskID, true)

	c.mu.Lock()
	if !c.polling || gen != c.gen {
		c.mu.Unlock()
		return
	}
	if err != nil {
		if c.retryCount < MaxRetries {
			c.retryCount++
			retry := c.retryCount
			c.armLocked(gen, c.interval)
			c.mu.Unlock()
			c.logger.Warn("task status fetch failed, retrying", "task_id", taskID, "retry", retry, "err", err)
			return
		}
		c.polling = false
		c.midFlight = false
		c.retryCount = 0
		c.mu.Unlock()
		c.logger.Warn("task status polling abandoned after retries", "task_id", taskID, "max_retries", MaxRetries, "err", err)
		return
	}

	c.retryCount = 0
	status := tasks.NormalizeStatus(task.Status)
	if status.Active() {
		c.armLocked(gen, c.interval)
	} else {
		c.polling = false
		c.midFlight = false
	}
	c.mu.Unlock()

	if c.onStatus != nil {
		c.onStatus(task)
	}
	if status.Terminal() {
		c.logger.Info("task reached terminal status", "task_id", taskID, "status", string(status))
	}
}
