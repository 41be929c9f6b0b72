package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/kiranshivaraju/cronbat/internal/logview"
	"github.com/kiranshivaraju/cronbat/internal/schedapi"
	"github.com/kiranshivaraju/cronbat/pkg/layout"
	"github.com/kiranshivaraju/cronbat/pkg/models"
	"github.com/spf13/cobra"
)

func (a *app) jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List or inspect jobs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.scheduler()
			if err != nil {
				return err
			}
			jobs, err := c.ListJobs(cmd.Context())
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintln(a.out, "no jobs")
				return nil
			}

			tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSTATE\tTRIGGER\tNEXT RUN")
			for _, j := range jobs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", j.ID, j.Name, jobState(j), describeTrigger(j.Trigger), formatTime(j.NextRun))
			}
			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <job-id>",
		Short: "Show one job as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.scheduler()
			if err != nil {
				return err
			}
			job, err := c.GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(a.out)
			enc.SetIndent("", "  ")
			return enc.Encode(job)
		},
	})

	return cmd
}

func (a *app) actionCmd(use, short string, pick func(schedapi.Client) func(context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <job-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.scheduler()
			if err != nil {
				return err
			}
			if err := pick(c)(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s: %s\n", use, args[0])
			return nil
		},
	}
}

func (a *app) executionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "executions [job-id]",
		Short: "List executions of a job, newest first, or of every job",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.scheduler()
			if err != nil {
				return err
			}
			var execs []models.Execution
			if len(args) == 1 {
				execs, err = c.ListExecutions(cmd.Context(), args[0])
			} else {
				execs, err = c.ListAllExecutions(cmd.Context())
			}
			if err != nil {
				return err
			}
			if len(execs) == 0 {
				fmt.Fprintln(a.out, "no executions")
				return nil
			}

			tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "JOB\tTIMESTAMP\tSTATE\tEXIT\tDURATION")
			for _, e := range execs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.JobID, e.Timestamp, e.State, formatExit(e.ExitCode), formatDuration(e.Duration))
			}
			return tw.Flush()
		},
	}
}

func (a *app) logCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "log <job-id> [timestamp]",
		Short: "Print the log of an execution, the newest by default",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.scheduler()
			if err != nil {
				return err
			}
			jobID := args[0]

			var timestamp string
			if len(args) == 2 {
				timestamp = args[1]
			} else {
				execs, err := c.ListExecutions(cmd.Context(), jobID)
				if err != nil {
					return err
				}
				if len(execs) == 0 {
					return fmt.Errorf("job %s has no executions", jobID)
				}
				timestamp = execs[0].Timestamp
			}

			log, err := c.ExecutionLog(cmd.Context(), jobID, timestamp)
			if errors.Is(err, schedapi.ErrNotFound) {
				fmt.Fprintln(a.out, logview.NotAvailable)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprint(a.out, log.Output)
			if log.Output != "" && !strings.HasSuffix(log.Output, "\n") {
				fmt.Fprintln(a.out)
			}
			return nil
		},
	}
}

func (a *app) graphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Print the dependency graph by level",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.scheduler()
			if err != nil {
				return err
			}
			jobs, err := c.ListJobs(cmd.Context())
			if err != nil {
				return err
			}
			edges, err := c.ListDependencies(cmd.Context())
			if err != nil {
				return err
			}
			writeGraph(a, jobs, edges)
			return nil
		},
	}
}

func writeGraph(a *app, jobs []models.Job, edges []models.DependencyEdge) {
	l := layout.Compute(jobs, edges)
	names := make(map[string]string, len(jobs))
	for _, j := range jobs {
		names[j.ID] = j.Name
	}

	for level, ids := range l.Levels {
		labels := make([]string, len(ids))
		for i, id := range ids {
			labels[i] = id
			if n := names[id]; n != "" && n != id {
				labels[i] = fmt.Sprintf("%s (%s)", id, n)
			}
		}
		fmt.Fprintf(a.out, "level %d: %s\n", level, strings.Join(labels, ", "))
	}
	for _, e := range l.Connectors {
		fmt.Fprintf(a.out, "  %s -> %s\n", e.ParentJobID, e.ChildJobID)
	}
	if len(l.Degraded) > 0 {
		fmt.Fprintf(a.out, "unranked (cycle or missing parent): %s\n", strings.Join(l.Degraded, ", "))
	}
}

func jobState(j models.Job) string {
	if j.IsPaused {
		return string(j.State) + " (paused)"
	}
	return string(j.State)
}

func describeTrigger(t models.Trigger) string {
	switch t.Type {
	case models.TriggerSchedule:
		return t.Schedule
	case models.TriggerDependency:
		return "after " + strings.Join(t.ParentJobIDs, ",")
	}
	return "-"
}

func formatTime(t *models.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatExit(code *int) string {
	if code == nil {
		return "-"
	}
	return fmt.Sprint(*code)
}

func formatDuration(d *float64) string {
	if d == nil {
		return "-"
	}
	return fmt.Sprintf("%.1fs", *d)
}
