package main

import (
	"context"
	"log/slog"
	"sync"

	"pixsync/internal/api"
	"pixsync/internal/eventbus"
	"pixsync/internal/logging"
	"pixsync/internal/protocol"
	"pixsync/internal/tasks"
)

type taskLister interface {
	ListTasks(ctx context.Context, params api.ListParams) ([]tasks.Task, error)
}

type snapshotWriter interface {
	UpsertTask(task tasks.Task) error
}

type taskTracker interface {
	Track(ctx context.Context, taskID string) bool
}

// listSyncer answers coalesced task.refresh events by re-querying the
// backend list. The previous snapshot is kept so an unchanged response
// touches nothing; on change the cache is rewritten and any active task in
// the new list gets a poll session.
type listSyncer struct {
	lister  taskLister
	store   snapshotWriter
	tracker taskTracker
	userID  string
	logger  *slog.Logger

	mu      sync.Mutex
	current []tasks.Task
}

func newListSyncer(lister taskLister, store snapshotWriter, tracker taskTracker, userID string, logger *slog.Logger) *listSyncer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &listSyncer{
		lister:  lister,
		store:   store,
		tracker: tracker,
		userID:  userID,
		logger:  logger,
	}
}

func (s *listSyncer) Run(ctx context.Context, bus *eventbus.Bus) error {
	refreshCh, cancel := bus.Subscribe(protocol.OpTaskRefresh)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-refreshCh:
			if err := s.SyncOnce(ctx); err != nil {
				s.logger.Warn("task list sync failed", "err", err)
			}
		}
	}
}

// SyncOnce fetches the list and folds it into local state.
func (s *listSyncer) SyncOnce(ctx context.Context) error {
	list, err := s.lister.ListTasks(ctx, api.ListParams{UserID: s.userID})
	if err != nil {
		return err
	}

	s.mu.Lock()
	changed, next := tasks.UpdateSeamlessly(s.current, list)
	s.current = next
	s.mu.Unlock()
	if !changed {
		return nil
	}

	for _, task := range next {
		if s.store != nil {
			if err := s.store.UpsertTask(task); err != nil {
				s.logger.Warn("cache write failed during list sync", "task_id", task.TaskID, "err", err)
			}
		}
		if s.tracker != nil && task.NormalizedStatus().Active() {
			s.tracker.Track(ctx, task.TaskID)
		}
	}
	return nil
}
