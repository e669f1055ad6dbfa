package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"scour/internal/app"
	"scour/internal/domain"
	"scour/internal/services/scour"
	"scour/internal/workers/scourrunner"
)

type advanceFlags struct {
	budget        time.Duration
	sourceTimeout time.Duration
	batchSize     int
	daysBack      int
}

func (f *advanceFlags) register(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&f.budget, "budget", 0, "Time budget per advance call (10s to 85s)")
	cmd.Flags().DurationVar(&f.sourceTimeout, "source-timeout", 0, "Per-source timeout (15s to 55s)")
	cmd.Flags().IntVar(&f.batchSize, "batch-size", 0, "Sources per batch (at most 10)")
	cmd.Flags().IntVar(&f.daysBack, "days-back", 0, "Recency window in days (at most 30)")
}

// options overlays the flags on the configured defaults.
func (f *advanceFlags) options(ctx *commandContext) scour.AdvanceOptions {
	opts := app.AdvanceOptions(ctx.cfg)
	if f.budget > 0 {
		opts.TimeBudget = f.budget
	}
	if f.sourceTimeout > 0 {
		opts.SourceTimeout = f.sourceTimeout
	}
	if f.batchSize > 0 {
		opts.BatchSize = f.batchSize
	}
	if f.daysBack > 0 {
		opts.DaysBack = f.daysBack
	}
	return opts.Clamp()
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Create, advance and inspect scour jobs",
	}
	jobsCmd.AddCommand(newJobsCreateCommand(ctx))
	jobsCmd.AddCommand(newJobsAdvanceCommand(ctx))
	jobsCmd.AddCommand(newJobsStatusCommand(ctx))
	return jobsCmd
}

func newJobsCreateCommand(ctx *commandContext) *cobra.Command {
	var (
		sourceIDs  []string
		maxSources int
		drain      bool
		flags      advanceFlags
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a job over the given sources, or every enabled source",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd, nil)
			if err != nil {
				return err
			}
			job, err := a.Jobs.CreateJob(cmd.Context(), sourceIDs, maxSources)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s created over %d sources\n", job.ID, job.Total())
			if !drain {
				return nil
			}
			return drainJob(cmd, a, job.ID, flags.options(ctx))
		},
	}
	cmd.Flags().StringSliceVar(&sourceIDs, "source", nil, "Source id to include (repeatable)")
	cmd.Flags().IntVar(&maxSources, "max-sources", 0, "Cap the number of sources")
	cmd.Flags().BoolVar(&drain, "run", false, "Advance the new job until it is done")
	flags.register(cmd)
	return cmd
}

func newJobsAdvanceCommand(ctx *commandContext) *cobra.Command {
	var (
		untilDone bool
		flags     advanceFlags
	)
	cmd := &cobra.Command{
		Use:   "advance JOB_ID",
		Short: "Run one bounded advance call on a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd, nil)
			if err != nil {
				return err
			}
			opts := flags.options(ctx)
			if untilDone {
				return drainJob(cmd, a, args[0], opts)
			}
			p, err := a.Jobs.Advance(cmd.Context(), args[0], opts)
			if p.Job.ID != "" {
				printProgress(cmd.OutOrStdout(), p)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&untilDone, "until-done", false, "Keep advancing until every source is processed")
	flags.register(cmd)
	return cmd
}

func drainJob(cmd *cobra.Command, a *app.App, jobID string, opts scour.AdvanceOptions) error {
	out := cmd.OutOrStdout()
	p, err := scourrunner.Drain(cmd.Context(), a.Jobs, jobID, opts, func(p scour.Progress) {
		printProgress(out, p)
	})
	if err != nil {
		return err
	}
	printJob(out, p.Job)
	return nil
}

func newJobsStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status JOB_ID",
		Short: "Show a job's persisted state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd, nil)
			if err != nil {
				return err
			}
			job, err := a.Jobs.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, job)
			}
			printJob(cmd.OutOrStdout(), job)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the job as JSON")
	return cmd
}

func printProgress(out io.Writer, p scour.Progress) {
	fmt.Fprintf(out, "%s: %d/%d sources, +%d this call (%d created, %d errors)\n",
		p.Job.ID, p.Job.NextIndex, p.Job.Total(), p.ProcessedThisCall, p.CreatedThisCall, len(p.ErrorsThisCall))
}

func printJob(out io.Writer, job domain.ScourJob) {
	fmt.Fprintln(out, renderTable(
		[]string{"Job", "Status", "Progress", "Created", "Duplicates", "Low confidence", "Errors"},
		[][]string{{
			job.ID,
			string(job.Status),
			fmt.Sprintf("%d/%d", job.NextIndex, job.Total()),
			strconv.Itoa(job.Created),
			strconv.Itoa(job.DuplicatesSkipped),
			strconv.Itoa(job.LowConfidenceSkipped),
			strconv.Itoa(len(job.Errors)),
		}},
		3, 4, 5, 6,
	))
	if len(job.Errors) > 0 {
		rows := make([][]string, 0, len(job.Errors))
		for _, e := range job.Errors {
			rows = append(rows, []string{e.SourceID, e.Reason})
		}
		fmt.Fprintln(out, renderTable([]string{"Source", "Error"}, rows))
	}
	if len(job.Rejections) > 0 {
		rows := make([][]string, 0, len(job.Rejections))
		for _, r := range job.Rejections {
			rows = append(rows, []string{r.SourceID, r.Outcome, r.Reason, string(r.Severity), formatConfidence(r.Confidence)})
		}
		fmt.Fprintln(out, renderTable([]string{"Source", "Outcome", "Reason", "Severity", "Confidence"}, rows, 4))
	}
}

func formatConfidence(c *float64) string {
	if c == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *c)
}
