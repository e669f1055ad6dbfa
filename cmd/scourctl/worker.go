package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"scour/internal/app"
	"scour/internal/workers/scourrunner"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	var (
		workers      int
		pollInterval time.Duration
		trendCron    string
	)
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Advance running jobs and create trends on a schedule until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd, nil)
			if err != nil {
				return err
			}
			cfg := ctx.cfg
			if workers <= 0 {
				workers = max(cfg.Workers, 1)
			}
			if pollInterval <= 0 {
				pollInterval = cfg.PollInterval
			}
			if !cmd.Flags().Changed("trend-cron") {
				trendCron = cfg.TrendCron
			}
			logger := a.Logger
			if _, err := scourrunner.ScheduleTrends(cmd.Context(), trendCron, a.Trends, logger); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "scour worker running with %d workers\n", workers)
			scourrunner.Run(cmd.Context(), a.Store, a.Jobs, app.AdvanceOptions(cfg), workers, pollInterval, logger)
			return nil
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent job advancers; defaults to SCOUR_WORKERS or 1")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 0, "How often to look for running jobs")
	cmd.Flags().StringVar(&trendCron, "trend-cron", "", "Trend creation schedule; empty disables")
	return cmd
}
