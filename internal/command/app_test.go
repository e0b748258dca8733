package command

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"pixsync/internal/api"
	"pixsync/internal/config"
	"pixsync/internal/profile"
	"pixsync/internal/tasks"
)

func TestBuildApp_DefaultCommandIsWatch(t *testing.T) {
	watchCalled := 0
	app := BuildApp(Deps{
		LoadConfig: func() config.Config { return config.Config{} },
		RunWatch: func(context.Context, config.Config) error {
			watchCalled++
			return nil
		},
	})
	if err := app.RunContext(context.Background(), []string{"pixsync"}); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if watchCalled != 1 {
		t.Fatalf("watch called %d times", watchCalled)
	}
}

func TestBuildApp_TasksListPassesFlags(t *testing.T) {
	var got api.ListParams
	var out bytes.Buffer
	app := BuildApp(Deps{
		LoadConfig: func() config.Config { return config.Config{} },
		ListTasks: func(_ context.Context, _ config.Config, params api.ListParams) ([]tasks.Task, error) {
			got = params
			return []tasks.Task{{TaskID: "t1", Status: "completed"}}, nil
		},
		Out: &out,
	})
	args := []string{"pixsync", "tasks", "list", "--user", "u1", "--action", "upscale", "--page", "2", "--size", "5"}
	if err := app.RunContext(context.Background(), args); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got.UserID != "u1" || got.Action != "upscale" || got.Page != 2 || got.Size != 5 {
		t.Fatalf("params = %+v", got)
	}
	var body struct {
		Tasks []tasks.Task `json:"tasks"`
	}
	if err := json.Unmarshal(out.Bytes(), &body); err != nil {
		t.Fatalf("output not json: %v", err)
	}
	if len(body.Tasks) != 1 || body.Tasks[0].TaskID != "t1" {
		t.Fatalf("output = %s", out.String())
	}
}

func TestBuildApp_TasksListCachedUsesCacheRunner(t *testing.T) {
	backendCalled := 0
	cachedCalled := 0
	app := BuildApp(Deps{
		LoadConfig: func() config.Config { return config.Config{} },
		ListTasks: func(context.Context, config.Config, api.ListParams) ([]tasks.Task, error) {
			backendCalled++
			return nil, nil
		},
		ListCached: func(context.Context, config.Config, api.ListParams) ([]tasks.Task, error) {
			cachedCalled++
			return nil, nil
		},
		Out: &bytes.Buffer{},
	})
	if err := app.RunContext(context.Background(), []string{"pixsync", "tasks", "list", "--cached"}); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if backendCalled != 0 || cachedCalled != 1 {
		t.Fatalf("backend=%d cached=%d", backendCalled, cachedCalled)
	}
}

func TestBuildApp_TasksShowRequiresID(t *testing.T) {
	app := BuildApp(Deps{
		LoadConfig: func() config.Config { return config.Config{} },
		ShowTask: func(_ context.Context, _ config.Config, taskID string) (tasks.Task, error) {
			return tasks.Task{TaskID: taskID}, nil
		},
	})
	if err := app.RunContext(context.Background(), []string{"pixsync", "tasks", "show"}); err == nil {
		t.Fatal("expected error without task id")
	}
}

func TestBuildApp_PointsCommand(t *testing.T) {
	var out bytes.Buffer
	app := BuildApp(Deps{
		LoadConfig: func() config.Config { return config.Config{} },
		PointsBalance: func(_ context.Context, _ config.Config, userID string) (api.WalletBalance, error) {
			return api.WalletBalance{UserID: userID, Balance: 120}, nil
		},
		Out: &out,
	})
	if err := app.RunContext(context.Background(), []string{"pixsync", "points", "--user", "u1"}); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	var balance api.WalletBalance
	if err := json.Unmarshal(out.Bytes(), &balance); err != nil {
		t.Fatalf("output not json: %v", err)
	}
	if balance.UserID != "u1" || balance.Balance != 120 {
		t.Fatalf("balance = %+v", balance)
	}
}

func TestBuildApp_ProfileSetMergesFields(t *testing.T) {
	stored := profile.Profile{APIBaseURL: "http://old:8080", UserID: "u1", PollIntervalMs: 1000, DebounceDelayMs: 500}
	var saved profile.Profile
	app := BuildApp(Deps{
		LoadConfig:  func() config.Config { return config.Config{} },
		LoadProfile: func(config.Config) (profile.Profile, error) { return stored, nil },
		SaveProfile: func(_ config.Config, p profile.Profile) error {
			saved = p
			return nil
		},
		Out: &bytes.Buffer{},
	})
	args := []string{"pixsync", "profile", "set", "--api-base-url", "http://new:9090", "--poll-interval-ms", "2000"}
	if err := app.RunContext(context.Background(), args); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if saved.APIBaseURL != "http://new:9090" {
		t.Fatalf("api base = %q", saved.APIBaseURL)
	}
	if saved.PollIntervalMs != 2000 {
		t.Fatalf("poll interval = %d", saved.PollIntervalMs)
	}
	// Untouched fields survive the merge.
	if saved.UserID != "u1" || saved.DebounceDelayMs != 500 {
		t.Fatalf("saved = %+v", saved)
	}
}

func TestBuildApp_MissingRunnerErrors(t *testing.T) {
	app := BuildApp(Deps{
		LoadConfig: func() config.Config { return config.Config{} },
	})
	if err := app.RunContext(context.Background(), []string{"pixsync", "watch"}); err == nil {
		t.Fatal("expected error without watch runner")
	}
}
