package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"docket/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.Status()
			if err != nil {
				return err
			}
			health, healthErr := client.Health()
			if jsonOut {
				return writeJSON(cmd, map[string]any{"status": status, "health": health})
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			daemonKind := statusError
			daemonText := "not running"
			if status.Running {
				daemonKind = statusOK
				daemonText = fmt.Sprintf("running (pid %d, %d workers)", status.PID, status.Workers)
			}
			fmt.Fprintln(out, renderStatusLine("Daemon", daemonKind, daemonText, colorize))
			fmt.Fprintln(out, renderStatusLine("Database", databaseKind(health, healthErr), databaseText(health, healthErr), colorize))
			fmt.Fprintln(out, renderStatusLine("Jobs", statusInfo, jobsText(status.Jobs), colorize))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}

func databaseKind(health api.HealthResponse, err error) statusKind {
	if err != nil || health.Status != "ok" {
		return statusError
	}
	return statusOK
}

func databaseText(health api.HealthResponse, err error) string {
	if err != nil {
		return err.Error()
	}
	if health.Status != "ok" {
		if health.Error != "" {
			return health.Error
		}
		return "degraded"
	}
	return fmt.Sprintf("healthy (%d jobs)", health.TotalJobs)
}

func jobsText(stats api.JobStatsView) string {
	return fmt.Sprintf("%d total: %d queued, %d running, %d completed, %d failed",
		stats.Total, stats.Queued, stats.Running, stats.Completed, stats.Failed)
}
