// Package main is cronbatctl, the operator CLI for the cronbat scheduler.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/cronbat/internal/config"
	"github.com/kiranshivaraju/cronbat/internal/schedapi"
	"github.com/kiranshivaraju/cronbat/internal/store"
	"github.com/kiranshivaraju/cronbat/pkg/models"
	"github.com/spf13/cobra"
)

// keyStore is the part of the Postgres store the keys commands use.
type keyStore interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

// app carries what every command needs. Backends are opened lazily so that
// scheduler commands work without a database and the other way round.
type app struct {
	out       io.Writer
	scheduler func() (schedapi.Client, error)
	keys      func(ctx context.Context) (keyStore, func(), error)
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{
		out:       os.Stdout,
		scheduler: schedulerFromEnv,
		keys:      keysFromEnv,
	}
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func schedulerFromEnv() (schedapi.Client, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return schedapi.NewHTTPClient(cfg.Scheduler.BaseURL, cfg.Scheduler.Token, cfg.Scheduler.Timeout), nil
}

// keysFromEnv connects to the console database. The schema is owned by the
// console server, which applies migrations on start.
func keysFromEnv(ctx context.Context) (keyStore, func(), error) {
	cfg, err := config.LoadDatabase()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	pool, err := store.Connect(ctx, *cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return store.NewPostgresStore(pool), pool.Close, nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "cronbatctl",
		Short:         "Operate a cronbat scheduler",
		Long:          `Inspect and control jobs, executions and dependencies of a cronbat scheduler, and manage console API keys.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		a.jobsCmd(),
		a.actionCmd("run", "Start a job now", func(c schedapi.Client) func(context.Context, string) error { return c.RunJob }),
		a.actionCmd("pause", "Pause a job's trigger", func(c schedapi.Client) func(context.Context, string) error { return c.PauseJob }),
		a.actionCmd("resume", "Resume a paused job", func(c schedapi.Client) func(context.Context, string) error { return c.ResumeJob }),
		a.actionCmd("delete", "Delete a job", func(c schedapi.Client) func(context.Context, string) error { return c.DeleteJob }),
		a.executionsCmd(),
		a.logCmd(),
		a.graphCmd(),
		a.depsCmd(),
		a.keysCmd(),
	)
	return root
}
