package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"docket/internal/api"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			jobs, err := client.ListJobs(statuses)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, api.JobListResponse{Jobs: jobs})
			}
			out := cmd.OutOrStdout()
			if len(jobs) == 0 {
				fmt.Fprintln(out, "No jobs found")
				return nil
			}
			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				rows = append(rows, jobRow(job))
			}
			fmt.Fprintln(out, renderTable(jobHeaders, rows))
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}

// resolveJobID expands a unique ID prefix into a full job ID so short
// IDs from table output can be used directly.
func resolveJobID(client *apiClient, arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", fmt.Errorf("job id is required")
	}
	jobs, err := client.ListJobs(nil)
	if err != nil {
		return "", err
	}
	var matches []string
	for _, job := range jobs {
		if job.ID == arg {
			return arg, nil
		}
		if strings.HasPrefix(job.ID, arg) {
			matches = append(matches, job.ID)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return arg, nil
	default:
		return "", fmt.Errorf("job id %q is ambiguous (%d matches)", arg, len(matches))
	}
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a job with its file tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			jobID, err := resolveJobID(client, args[0])
			if err != nil {
				return err
			}
			snapshot, err := client.Snapshot(jobID)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, api.SnapshotResponse{Snapshot: snapshot})
			}
			printSnapshot(cmd, snapshot)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}

func printSnapshot(cmd *cobra.Command, snapshot api.SnapshotView) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	job := snapshot.Job

	fmt.Fprintf(out, "Job %s\n", job.ID)
	fmt.Fprintln(out, renderStatusLine("Status", jobStatusKind(job.Status), job.Status, colorize))
	fmt.Fprintln(out, renderStatusLine("Mode", statusInfo, job.Mode, colorize))
	fmt.Fprintln(out, renderStatusLine("Languages", statusInfo, strings.Join(job.Languages, "+"), colorize))
	fmt.Fprintln(out, renderStatusLine("Source", statusInfo, job.SourcePath, colorize))
	fmt.Fprintln(out, renderStatusLine("Progress", statusInfo, formatProgress(snapshot.Counts), colorize))
	if job.Error != "" {
		fmt.Fprintln(out, renderStatusLine("Error", statusError, job.Error, colorize))
	}

	if len(snapshot.Tasks) == 0 {
		return
	}
	rows := make([][]string, 0, len(snapshot.Tasks))
	for _, task := range snapshot.Tasks {
		detail := task.OutputPDF
		if task.Error != "" {
			detail = task.Error
		}
		rows = append(rows, []string{
			shortID(task.ID),
			task.Status,
			fmt.Sprintf("%d", task.Attempts),
			fmt.Sprintf("%d", task.Pages),
			task.SourcePath,
			detail,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Task", "Status", "Attempts", "Pages", "Source", "Output / Error"},
		rows,
		2, 3,
	))
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "history <job-id>",
		Short: "Show a job's audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			jobID, err := resolveJobID(client, args[0])
			if err != nil {
				return err
			}
			events, err := client.History(jobID)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, api.HistoryResponse{Events: events})
			}
			out := cmd.OutOrStdout()
			if len(events) == 0 {
				fmt.Fprintln(out, "No events recorded")
				return nil
			}
			rows := make([][]string, 0, len(events))
			for _, event := range events {
				rows = append(rows, []string{event.CreatedAt, event.EventType, shortID(event.TaskID), event.Detail})
			}
			fmt.Fprintln(out, renderTable([]string{"Time", "Event", "Task", "Detail"}, rows))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a queued or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			jobID, err := resolveJobID(client, args[0])
			if err != nil {
				return err
			}
			job, err := client.Cancel(jobID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch job.Status {
			case "cancelled":
				fmt.Fprintf(out, "Job %s cancelled\n", shortID(job.ID))
			case "cancelling":
				fmt.Fprintf(out, "Job %s is draining; remaining files will not be processed\n", shortID(job.ID))
			default:
				fmt.Fprintf(out, "Job %s is now %s\n", shortID(job.ID), job.Status)
			}
			return nil
		},
	}
}
