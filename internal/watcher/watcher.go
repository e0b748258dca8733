package watcher

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"pixsync/internal/clock"
	"pixsync/internal/eventbus"
	"pixsync/internal/logging"
	"pixsync/internal/poll"
	"pixsync/internal/protocol"
	"pixsync/internal/tasks"
)

// TaskFetcher is the backend read the poll sessions run on.
type TaskFetcher interface {
	GetTaskDetail(ctx context.Context, taskID string, isPolling bool) (tasks.Task, error)
}

// SnapshotStore receives observed task and wallet state.
type SnapshotStore interface {
	UpsertTask(task tasks.Task) error
	UpsertBalance(userID string, balance int64) error
}

type Config struct {
	UserID     string
	Fetcher    TaskFetcher
	Store      SnapshotStore
	Bus        *eventbus.Bus
	Refresh    *eventbus.RefreshCoalescer
	Scheduler  clock.Scheduler
	Interval   time.Duration
	MaxTracked int
	Logger     *slog.Logger
}

// Watcher owns one poll session per tracked task and folds push-derived
// updates into the same path, so a status change is handled identically no
// matter which side delivered it. Every observation triggers a coalesced
// refresh; the cache and the bus are only touched when the observation
// actually differs from the last one.
type Watcher struct {
	userID     string
	fetcher    TaskFetcher
	store      SnapshotStore
	bus        *eventbus.Bus
	refresh    *eventbus.RefreshCoalescer
	sched      clock.Scheduler
	interval   time.Duration
	maxTracked int
	logger     *slog.Logger

	mu       sync.Mutex
	sessions map[string]*poll.Controller
	order    []string
	lastSeen map[string]tasks.Task
}

func New(cfg Config) *Watcher {
	sched := cfg.Scheduler
	if sched == nil {
		sched = clock.RealScheduler{}
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = poll.DefaultInterval
	}
	maxTracked := cfg.MaxTracked
	if maxTracked <= 0 {
		maxTracked = 50
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Watcher{
		userID:     strings.TrimSpace(cfg.UserID),
		fetcher:    cfg.Fetcher,
		store:      cfg.Store,
		bus:        cfg.Bus,
		refresh:    cfg.Refresh,
		sched:      sched,
		interval:   interval,
		maxTracked: maxTracked,
		logger:     logger,
		sessions:   map[string]*poll.Controller{},
		lastSeen:   map[string]tasks.Task{},
	}
}

// Track starts a poll session for the task. Tracking an already-tracked
// task is a no-op. When the tracking limit is reached the oldest session is
// evicted first.
func (w *Watcher) Track(ctx context.Context, taskID string) bool {
	taskID = strings.TrimSpace(taskID)
	if w == nil || taskID == "" {
		return false
	}
	w.mu.Lock()
	if _, ok := w.sessions[taskID]; ok {
		w.mu.Unlock()
		return false
	}
	for len(w.order) >= w.maxTracked {
		oldest := w.order[0]
		w.order = w.order[1:]
		if sess := w.sessions[oldest]; sess != nil {
			sess.Stop()
		}
		delete(w.sessions, oldest)
		w.logger.Info("evicted oldest tracked task", "task_id", oldest)
	}
	ctrl := poll.NewController(poll.Config{
		TaskID:    taskID,
		Interval:  w.interval,
		Fetch:     w.fetcher.GetTaskDetail,
		OnStatus:  func(task tasks.Task) { w.handleObservation(task, false) },
		Scheduler: w.sched,
		Logger:    w.logger,
	})
	w.sessions[taskID] = ctrl
	w.order = append(w.order, taskID)
	w.mu.Unlock()

	return ctrl.Start(ctx)
}

func (w *Watcher) Untrack(taskID string) {
	taskID = strings.TrimSpace(taskID)
	if w == nil || taskID == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dropSessionLocked(taskID)
}

func (w *Watcher) TrackedCount() int {
	if w == nil {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.sessions)
}

// Run consumes push events from the bus until the context ends. Push and
// poll funnel into the same observation path.
func (w *Watcher) Run(ctx context.Context) error {
	statusCh, cancelStatus := w.bus.Subscribe(protocol.OpTaskStatus)
	defer cancelStatus()
	pointsCh, cancelPoints := w.bus.Subscribe(protocol.OpWalletPoints)
	defer cancelPoints()

	for {
		select {
		case <-ctx.Done():
			w.stopAll()
			return ctx.Err()
		case msg := <-statusCh:
			w.handleStatusEvent(msg)
		case msg := <-pointsCh:
			w.handlePointsEvent(msg)
		}
	}
}

// SuspendAll force-stops every live session without losing which ones were
// mid-flight. The daemon calls this on connectivity loss or host sleep.
func (w *Watcher) SuspendAll() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sess := range w.sessions {
		sess.Suspend()
	}
}

// ResumeAll restarts the sessions that were mid-flight at suspend time,
// each from a fresh tick.
func (w *Watcher) ResumeAll(ctx context.Context) {
	if w == nil {
		return
	}
	w.mu.Lock()
	sessions := make([]*poll.Controller, 0, len(w.sessions))
	for _, sess := range w.sessions {
		sessions = append(sessions, sess)
	}
	w.mu.Unlock()
	for _, sess := range sessions {
		sess.Resume(ctx)
	}
}

func (w *Watcher) stopAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for taskID := range w.sessions {
		w.dropSessionLocked(taskID)
	}
}

func (w *Watcher) dropSessionLocked(taskID string) {
	if sess := w.sessions[taskID]; sess != nil {
		sess.Stop()
	}
	delete(w.sessions, taskID)
	for i, id := range w.order {
		if id == taskID {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
}

func (w *Watcher) handleStatusEvent(msg protocol.Message) {
	var payload protocol.TaskStatusPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || strings.TrimSpace(payload.TaskID) == "" {
		w.logger.Warn("dropping unusable task.status event", "event_id", msg.ID)
		return
	}
	w.handleObservation(tasks.Task{
		TaskID:       strings.TrimSpace(payload.TaskID),
		Action:       payload.Action,
		Status:       payload.Status,
		ResultURL:    payload.ResultURL,
		ThumbnailURL: payload.ThumbnailURL,
		Progress:     payload.Progress,
		ErrorMessage: payload.ErrorMessage,
		UpdatedAt:    payload.UpdatedAt,
	}, true)
}

func (w *Watcher) handlePointsEvent(msg protocol.Message) {
	var payload protocol.WalletPointsPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || strings.TrimSpace(payload.UserID) == "" {
		w.logger.Warn("dropping unusable wallet.points event", "event_id", msg.ID)
		return
	}
	if w.store != nil {
		if err := w.store.UpsertBalance(strings.TrimSpace(payload.UserID), payload.Balance); err != nil {
			w.logger.Warn("wallet snapshot write failed", "err", err)
		}
	}
	if payload.Delta < 0 && strings.TrimSpace(payload.Reason) == "refund" {
		w.logger.Info("refund observed", "user_id", payload.UserID, "delta", payload.Delta)
	}
}

// handleObservation is the single funnel for poll ticks and push events.
func (w *Watcher) handleObservation(task tasks.Task, fromPush bool) {
	taskID := strings.TrimSpace(task.TaskID)
	if taskID == "" {
		return
	}

	w.mu.Lock()
	prev, seen := w.lastSeen[taskID]
	changed := !seen || tasks.HasChanged([]tasks.Task{prev}, []tasks.Task{task})
	if changed {
		w.lastSeen[taskID] = task
	}
	terminal := task.NormalizedStatus().Terminal()
	if terminal {
		w.dropSessionLocked(taskID)
	}
	w.mu.Unlock()

	if changed {
		if w.store != nil {
			if err := w.store.UpsertTask(task); err != nil {
				w.logger.Warn("task snapshot write failed", "task_id", taskID, "err", err)
			}
		}
		if !fromPush && w.bus != nil {
			w.bus.Publish(protocol.NewEvent(protocol.OpTaskStatus, protocol.TaskStatusPayload{
				TaskID:       taskID,
				Status:       task.Status,
				Action:       task.Action,
				ResultURL:    task.ResultURL,
				ThumbnailURL: task.ThumbnailURL,
				Progress:     task.Progress,
				ErrorMessage: task.ErrorMessage,
				UpdatedAt:    task.UpdatedAt,
			}))
		}
	}
	if w.refresh != nil {
		w.refresh.RequestRefresh(taskID, eventbus.RefreshParams{UserID: w.userID})
	}
}
