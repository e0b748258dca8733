package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"

	"pixsync/internal/logging"
)

type job struct {
	name string
	run  func(context.Context) error
}

// Supervisor runs the daemon's long-lived jobs (notify channel, watcher,
// local API server) and its teardown hooks. The first failing job cancels
// the rest; teardown hooks always run, in registration order.
type Supervisor struct {
	logger *slog.Logger

	mu       sync.Mutex
	runJobs  []job
	stopJobs []job
}

func NewSupervisor(logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Supervisor{logger: logger}
}

func (s *Supervisor) AddRun(name string, fn func(context.Context) error) {
	if s == nil || fn == nil {
		return
	}
	s.mu.Lock()
	s.runJobs = append(s.runJobs, job{name: name, run: fn})
	s.mu.Unlock()
}

func (s *Supervisor) AddStop(name string, fn func(context.Context) error) {
	if s == nil || fn == nil {
		return
	}
	s.mu.Lock()
	s.stopJobs = append(s.stopJobs, job{name: name, run: fn})
	s.mu.Unlock()
}

// Run blocks until all run jobs return, a job fails, the context is
// cancelled, or one of the given signals arrives. Stop jobs run afterwards
// regardless of how the run phase ended.
func (s *Supervisor) Run(parent context.Context, sig ...os.Signal) error {
	ctx := parent
	stopSignal := func() {}
	if len(sig) > 0 {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(parent, sig...)
		stopSignal = stop
	}
	defer stopSignal()

	runCtx, cancelRuns := context.WithCancel(ctx)
	defer cancelRuns()

	s.mu.Lock()
	runJobs := make([]job, len(s.runJobs))
	copy(runJobs, s.runJobs)
	stopJobs := make([]job, len(s.stopJobs))
	copy(stopJobs, s.stopJobs)
	s.mu.Unlock()

	errCh := make(chan error, len(runJobs))
	var wg sync.WaitGroup
	for _, j := range runJobs {
		j := j
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := j.run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("job failed", "job", j.name, "err", err)
				errCh <- err
				cancelRuns()
			}
		}()
	}

	doneCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		cancelRuns()
	case err := <-errCh:
		runErr = err
		cancelRuns()
	case <-doneCh:
	}
	<-doneCh

	var stopErr error
	for _, j := range stopJobs {
		if err := j.run(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("stop job failed", "job", j.name, "err", err)
			stopErr = errors.Join(stopErr, err)
		}
	}
	return errors.Join(runErr, stopErr)
}
