package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"HNPulse/internal/app"
	"HNPulse/internal/config"
	"HNPulse/internal/domain"
	"HNPulse/internal/logging"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "hnpulse",
		Short:         "Hacker News ingestion and AI keyword tracking",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newFetchCmd(),
		newScheduleCmd(),
		newConsumeCmd(),
		newInitCmd(),
		newMigrateCmd(),
	)
	return root
}

func newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Run one ingestion pass now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				result := a.RunOnce(ctx)
				fmt.Fprintln(cmd.OutOrStdout(), formatResult(result))
				if !result.Succeeded() {
					return errors.New(result.Reason)
				}
				return nil
			})
		},
	}
}

func newScheduleCmd() *cobra.Command {
	var every time.Duration
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Publish a fetch trigger, once or periodically",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				if every <= 0 {
					if !a.Trigger(ctx) {
						fmt.Fprintln(cmd.ErrOrStderr(), failStyle.Render("trigger not published"))
						return errors.New("trigger not published")
					}
					fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("trigger published"))
					return nil
				}
				return a.Schedule(ctx, every)
			})
		},
	}
	cmd.Flags().DurationVar(&every, "every", 0, "publish a trigger on this interval until interrupted")
	return cmd
}

func newConsumeCmd() *cobra.Command {
	var initFirst bool
	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Run ingestion for every trigger message on the queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				if initFirst {
					printInit(cmd, a.Initialize(ctx))
				}
				err := a.Consume(ctx, func(r domain.RunResult) {
					fmt.Fprintln(cmd.OutOrStdout(), formatResult(r))
				})
				if errors.Is(err, app.ErrMessagingDisabled) {
					fmt.Fprintln(cmd.ErrOrStderr(), failStyle.Render("Kafka bootstrap servers are not configured. Exiting consumer."))
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&initFirst, "init", false, "clear cached views and schedule an initial fetch before consuming")
	return cmd
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Clear cached views and schedule an initial fetch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				report := a.Initialize(ctx)
				printInit(cmd, report)
				return report.CacheErr
			})
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				version, err := a.SchemaVersion(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(fmt.Sprintf("schema at version %d", version)))
				return nil
			})
		},
	}
}

// withApp loads config, builds the application and closes it after fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.Application) error) error {
	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return err
	}

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}()

	if err := fn(ctx, a); err != nil {
		logger.Error("command failed", slog.String("command", cmd.Name()), "error", err)
		return err
	}
	return nil
}

func printInit(cmd *cobra.Command, report app.InitReport) {
	out := cmd.OutOrStdout()
	if report.CacheErr != nil {
		fmt.Fprintln(out, failStyle.Render("cache clear failed: "+report.CacheErr.Error()))
	} else if report.PatternDelete {
		fmt.Fprintln(out, okStyle.Render("cached views cleared"))
	} else {
		fmt.Fprintln(out, warnStyle.Render("cache has no pattern delete, fixed keys cleared only"))
	}
	if report.Triggered {
		fmt.Fprintln(out, okStyle.Render("initial fetch scheduled"))
	} else {
		fmt.Fprintln(out, warnStyle.Render("initial fetch not scheduled"))
	}
}
