package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"docket/internal/api"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var mode string
	var languages []string
	var recursive bool
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "submit <path>",
		Short: "Submit a file or directory for recognition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			job, err := client.Submit(api.SubmitPayload{
				Path:      args[0],
				Mode:      mode,
				Languages: languages,
				Recursive: recursive,
			})
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, api.JobResponse{Job: job})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Job %s queued (%s, %s)\n", shortID(job.ID), job.Mode, job.SourcePath)
			fmt.Fprintf(out, "Track progress with `docket show %s`\n", shortID(job.ID))
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "", "Recognition mode (fast, forced, visual)")
	cmd.Flags().StringSliceVarP(&languages, "lang", "l", nil, "Recognition languages (repeatable)")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Descend into subdirectories when submitting a directory")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}
