package command

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"pixsync/internal/api"
	"pixsync/internal/config"
	"pixsync/internal/profile"
	"pixsync/internal/tasks"
)

type Deps struct {
	LoadConfig    func() config.Config
	RunWatch      func(context.Context, config.Config) error
	ListTasks     func(context.Context, config.Config, api.ListParams) ([]tasks.Task, error)
	ListCached    func(context.Context, config.Config, api.ListParams) ([]tasks.Task, error)
	ShowTask      func(context.Context, config.Config, string) (tasks.Task, error)
	SubmitTask    func(context.Context, config.Config, api.SubmitRequest) (tasks.Task, error)
	PointsBalance func(context.Context, config.Config, string) (api.WalletBalance, error)
	LoadProfile   func(config.Config) (profile.Profile, error)
	SaveProfile   func(config.Config, profile.Profile) error
	Out           io.Writer
}

func BuildApp(deps Deps) *cli.App {
	return &cli.App{
		Name:  "pixsync",
		Usage: "task status sync agent",
		Action: func(ctx *cli.Context) error {
			cfg := loadConfig(deps)
			return runWatch(ctx.Context, deps, cfg)
		},
		Commands: []*cli.Command{
			{
				Name:  "watch",
				Usage: "run the sync daemon",
				Action: func(ctx *cli.Context) error {
					cfg := loadConfig(deps)
					return runWatch(ctx.Context, deps, cfg)
				},
			},
			{
				Name:  "tasks",
				Usage: "inspect backend tasks",
				Subcommands: []*cli.Command{
					{
						Name:  "list",
						Usage: "list tasks from the backend",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "user", Usage: "filter by user id"},
							&cli.StringFlag{Name: "action", Usage: "filter by tool action"},
							&cli.IntFlag{Name: "page", Value: 1},
							&cli.IntFlag{Name: "size", Value: 20},
							&cli.BoolFlag{Name: "cached", Usage: "read the local snapshot cache instead of the backend"},
						},
						Action: func(ctx *cli.Context) error {
							cfg := loadConfig(deps)
							lister := deps.ListTasks
							if ctx.Bool("cached") {
								lister = deps.ListCached
							}
							if lister == nil {
								return errors.New("task list runner is not configured")
							}
							list, err := lister(ctx.Context, cfg, api.ListParams{
								UserID: ctx.String("user"),
								Action: ctx.String("action"),
								Page:   ctx.Int("page"),
								Size:   ctx.Int("size"),
							})
							if err != nil {
								return err
							}
							return printJSON(deps, map[string]any{"tasks": list})
						},
					},
					{
						Name:      "show",
						Usage:     "show one task",
						ArgsUsage: "<task-id>",
						Action: func(ctx *cli.Context) error {
							taskID := ctx.Args().First()
							if taskID == "" {
								return errors.New("task id is required")
							}
							cfg := loadConfig(deps)
							if deps.ShowTask == nil {
								return errors.New("task show runner is not configured")
							}
							task, err := deps.ShowTask(ctx.Context, cfg, taskID)
							if err != nil {
								return err
							}
							return printJSON(deps, task)
						},
					},
					{
						Name:  "submit",
						Usage: "submit a new task",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "user", Required: true},
							&cli.StringFlag{Name: "action", Required: true, Usage: "tool action, e.g. upscale"},
						},
						Action: func(ctx *cli.Context) error {
							cfg := loadConfig(deps)
							if deps.SubmitTask == nil {
								return errors.New("task submit runner is not configured")
							}
							task, err := deps.SubmitTask(ctx.Context, cfg, api.SubmitRequest{
								UserID: ctx.String("user"),
								Action: ctx.String("action"),
							})
							if err != nil {
								return err
							}
							return printJSON(deps, task)
						},
					},
				},
			},
			{
				Name:  "points",
				Usage: "show wallet points balance",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Required: true},
				},
				Action: func(ctx *cli.Context) error {
					cfg := loadConfig(deps)
					if deps.PointsBalance == nil {
						return errors.New("points runner is not configured")
					}
					balance, err := deps.PointsBalance(ctx.Context, cfg, ctx.String("user"))
					if err != nil {
						return err
					}
					return printJSON(deps, balance)
				},
			},
			{
				Name:  "profile",
				Usage: "manage the stored profile",
				Subcommands: []*cli.Command{
					{
						Name:  "show",
						Usage: "print the stored profile",
						Action: func(ctx *cli.Context) error {
							cfg := loadConfig(deps)
							if deps.LoadProfile == nil {
								return errors.New("profile loader is not configured")
							}
							p, err := deps.LoadProfile(cfg)
							if err != nil {
								return err
							}
							return printJSON(deps, p)
						},
					},
					{
						Name:  "set",
						Usage: "update profile fields",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "api-base-url"},
							&cli.StringFlag{Name: "notify-url"},
							&cli.StringFlag{Name: "user-id"},
							&cli.StringFlag{Name: "api-key"},
							&cli.IntFlag{Name: "poll-interval-ms"},
							&cli.IntFlag{Name: "debounce-delay-ms"},
						},
						Action: func(ctx *cli.Context) error {
							cfg := loadConfig(deps)
							if deps.LoadProfile == nil || deps.SaveProfile == nil {
								return errors.New("profile store is not configured")
							}
							p, err := deps.LoadProfile(cfg)
							if err != nil {
								return err
							}
							if v := ctx.String("api-base-url"); v != "" {
								p.APIBaseURL = v
							}
							if v := ctx.String("notify-url"); v != "" {
								p.NotifyURL = v
							}
							if v := ctx.String("user-id"); v != "" {
								p.UserID = v
							}
							if v := ctx.String("api-key"); v != "" {
								p.APIKey = v
							}
							if v := ctx.Int("poll-interval-ms"); v > 0 {
								p.PollIntervalMs = v
							}
							if v := ctx.Int("debounce-delay-ms"); v > 0 {
								p.DebounceDelayMs = v
							}
							if err := deps.SaveProfile(cfg, p); err != nil {
								return err
							}
							return printJSON(deps, p)
						},
					},
				},
			},
		},
	}
}

func loadConfig(deps Deps) config.Config {
	if deps.LoadConfig != nil {
		return deps.LoadConfig()
	}
	return config.LoadConfig()
}

func runWatch(ctx context.Context, deps Deps, cfg config.Config) error {
	if deps.RunWatch == nil {
		return errors.New("watch runner is not configured")
	}
	return deps.RunWatch(ctx, cfg)
}

func printJSON(deps Deps, v any) error {
	out := deps.Out
	if out == nil {
		out = os.Stdout
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
