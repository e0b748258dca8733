package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"pixsync/internal/api"
	"pixsync/internal/clock"
	"pixsync/internal/command"
	"pixsync/internal/config"
	"pixsync/internal/debounce"
	"pixsync/internal/eventbus"
	"pixsync/internal/lifecycle"
	"pixsync/internal/localapi"
	"pixsync/internal/logging"
	"pixsync/internal/notify"
	"pixsync/internal/profile"
	"pixsync/internal/taskcache"
	"pixsync/internal/tasks"
	"pixsync/internal/watcher"
)

var version = "dev"

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := command.BuildApp(command.Deps{
		LoadConfig: config.LoadConfig,
		RunWatch:   runWatch,
		ListTasks: func(ctx context.Context, cfg config.Config, params api.ListParams) ([]tasks.Task, error) {
			return api.NewClient(cfg.APIBaseURL).ListTasks(ctx, params)
		},
		ListCached: listCachedTasks,
		ShowTask: func(ctx context.Context, cfg config.Config, taskID string) (tasks.Task, error) {
			return api.NewClient(cfg.APIBaseURL).GetTaskDetail(ctx, taskID, false)
		},
		SubmitTask: submitWithPrecheck,
		PointsBalance: func(ctx context.Context, cfg config.Config, userID string) (api.WalletBalance, error) {
			return api.NewClient(cfg.APIBaseURL).GetPointsBalance(ctx, userID)
		},
		LoadProfile: func(cfg config.Config) (profile.Profile, error) {
			return profile.NewStore(cfg.CacheDir).LoadOrInit()
		},
		SaveProfile: func(cfg config.Config, p profile.Profile) error {
			return profile.NewStore(cfg.CacheDir).Save(p)
		},
	})

	if err := app.RunContext(rootCtx, os.Args); err != nil {
		logging.NewLogger(logging.Options{Level: "error", Writer: os.Stderr, Component: "pixsync"}).Error("pixsync failed", "err", err)
		os.Exit(1)
	}
}

func runWatch(ctx context.Context, cfg config.Config) error {
	logger := logging.NewLogger(logging.Options{Level: cfg.LogLevel, Writer: os.Stderr, Component: "pixsync"})

	prof, err := profile.NewStore(cfg.CacheDir).LoadOrInit()
	if err != nil {
		return err
	}
	baseURL := pickSetting("PIXSYNC_API_BASE_URL", cfg.APIBaseURL, prof.APIBaseURL)
	notifyURL := pickSetting("PIXSYNC_NOTIFY_URL", cfg.NotifyURL, prof.NotifyURL)

	db, err := taskcache.OpenSQLite(filepath.Join(cfg.CacheDir, "pixsync.db"))
	if err != nil {
		return err
	}
	store, err := taskcache.NewStore(db)
	if err != nil {
		return err
	}

	bus := eventbus.NewBus(logger.With("component", "eventbus"))
	reg := debounce.NewRegistry(clock.RealScheduler{})
	refresh := eventbus.NewRefreshCoalescer(bus, reg, time.Duration(cfg.DebounceDelayMs)*time.Millisecond)

	client := api.NewClient(baseURL)
	w := watcher.New(watcher.Config{
		UserID:     prof.UserID,
		Fetcher:    client,
		Store:      store,
		Bus:        bus,
		Refresh:    refresh,
		Interval:   time.Duration(cfg.PollIntervalMs) * time.Millisecond,
		MaxTracked: cfg.MaxTrackedTasks,
		Logger:     logger.With("component", "watcher"),
	})

	adapter := notify.NewAdapter(notify.AdapterConfig{
		URL:    notifyURL,
		Bus:    bus,
		Logger: logger.With("component", "notify"),
	})
	server := localapi.NewServer(localapi.Deps{
		Tasks:  store,
		Bus:    bus,
		Logger: logger.With("component", "localapi"),
	})
	syncer := newListSyncer(client, store, w, prof.UserID, logger.With("component", "listsync"))

	sup := lifecycle.NewSupervisor(logger.With("component", "lifecycle"))
	sup.AddRun("watcher", w.Run)
	sup.AddRun("list-sync", func(runCtx context.Context) error {
		return syncer.Run(runCtx, bus)
	})
	sup.AddRun("ws-bridge", server.RunBridge)
	addr := net.JoinHostPort(cfg.LocalHost, strconv.Itoa(cfg.LocalPort))
	sup.AddRun("local-api", func(runCtx context.Context) error {
		return serveHTTP(runCtx, addr, server.Handler(), logger)
	})
	sup.AddRun("notify", func(runCtx context.Context) error {
		adapter.Start(runCtx)
		<-runCtx.Done()
		adapter.Close()
		return runCtx.Err()
	})
	sup.AddStop("refresh", func(context.Context) error {
		refresh.Close()
		return nil
	})
	sup.AddStop("cache", func(context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	// Seed tracking from the backend's current list before the event loops
	// start; a failure here is survivable, push and refresh will catch up.
	if err := syncer.SyncOnce(ctx); err != nil {
		logger.Warn("initial task list sync failed", "err", err)
	}

	logger.Info("pixsync watch started",
		"version", version,
		"api", baseURL,
		"notify", notifyURL,
		"local", addr,
		"user_id", prof.UserID,
	)
	return sup.Run(ctx)
}

func listCachedTasks(_ context.Context, cfg config.Config, params api.ListParams) ([]tasks.Task, error) {
	db, err := taskcache.OpenSQLite(filepath.Join(cfg.CacheDir, "pixsync.db"))
	if err != nil {
		return nil, err
	}
	defer func() {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
	}()
	store, err := taskcache.NewStore(db)
	if err != nil {
		return nil, err
	}
	return store.ListRecent(params.UserID, params.Action, params.Size)
}

// submitWithPrecheck asks the wallet endpoint whether the balance covers the
// action before submitting. A failed precheck call falls through to the
// submit; the backend stays the authority on billing.
func submitWithPrecheck(ctx context.Context, cfg config.Config, req api.SubmitRequest) (tasks.Task, error) {
	client := api.NewClient(cfg.APIBaseURL)
	if req.UserID != "" {
		if pre, err := client.PrecheckPoints(ctx, req.UserID, req.Action); err == nil && !pre.Sufficient {
			return tasks.Task{}, fmt.Errorf("insufficient points for %s: cost %d, balance %d", req.Action, pre.Cost, pre.Balance)
		}
	}
	return client.SubmitTask(ctx, req)
}

// pickSetting prefers the env value when the variable is explicitly set,
// the stored profile otherwise, and the built-in default last.
func pickSetting(envKey, envValue, profileValue string) string {
	if os.Getenv(envKey) != "" {
		return envValue
	}
	if profileValue != "" {
		return profileValue
	}
	return envValue
}

func serveHTTP(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{Addr: addr, Handler: handler}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		logger.Error("local api server failed", "addr", addr, "err", err)
		return err
	}
}
