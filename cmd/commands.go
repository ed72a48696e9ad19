package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-orchestrator/internal/seo"
)

const defaultRecentRuns = 10

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the scheduler and the dashboard API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := appInstance.Run(cmd.Context()); err != nil {
				return fmt.Errorf("run orchestrator: %w", err)
			}
			appInstance.Logger().Info("orchestrator stopped")
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	var (
		asJSON bool
		recent int
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show registered tasks, the latest audit and recent task runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := appInstance.Status(cmd.Context(), recent)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, summary)
			}
			for _, st := range summary.Tasks {
				fmt.Fprintln(out, describeTask(st))
			}
			if summary.LatestAudit == nil {
				fmt.Fprintln(out, "latest audit: none")
			} else {
				fmt.Fprintf(out, "latest audit: %s score=%d at %s\n",
					summary.LatestAudit.ID,
					summary.LatestAudit.OverallScore,
					summary.LatestAudit.Timestamp.Format("2006-01-02 15:04:05Z07:00"),
				)
			}
			for _, run := range summary.RecentRuns {
				fmt.Fprintf(out, "run %s %s %s %dms\n", run.ID, run.TaskName, run.Status, run.DurationMs)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	cmd.Flags().IntVar(&recent, "recent", defaultRecentRuns, "number of recent task runs to list")
	return cmd
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Run a health check across every service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			report, err := appInstance.Health(cmd.Context())
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if report.Overall == seo.HealthUnhealthy {
				return errors.New("system is unhealthy")
			}
			return nil
		},
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <task> [options-json]",
		Short: "Run one task immediately and print its result",
		Long: `Runs a task outside its schedule, whether or not it is enabled. Tasks:
technical-seo, performance-monitoring, content-update,
search-engine-notification, reporting. Options are a JSON object, for example
'{"format":"html"}' for reporting.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := seo.ParseTaskName(args[0])
			if err != nil {
				return err
			}
			var opts seo.TaskOptions
			if len(args) == 2 {
				if err := json.Unmarshal([]byte(args[1]), &opts); err != nil {
					return fmt.Errorf("parse task options: %w", err)
				}
			}
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			result, runErr := appInstance.RunTask(cmd.Context(), name, opts)
			if result.TaskName != "" {
				if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
			}
			if runErr != nil {
				appInstance.Logger().Warn("task run failed", zap.String("task", string(name)), zap.Error(runErr))
				return runErr
			}
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
