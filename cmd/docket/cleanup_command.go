package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"docket/internal/store"
)

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	var retentionDays int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove finished jobs past the retention window",
		Long: "Cleanup opens the job database directly and removes terminal jobs, " +
			"audit events, and metric samples older than the retention window. " +
			"Run it while the daemon is stopped or rely on the daemon's periodic sweep.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			days := retentionDays
			if days == 0 {
				days = cfg.Workflow.RetentionDays
			}
			if days < 0 {
				return fmt.Errorf("retention must be positive, got %d days", days)
			}

			st, err := store.Open(cfg)
			if err != nil {
				return fmt.Errorf("open job database: %w", err)
			}
			defer st.Close()

			result, err := st.Cleanup(cmd.Context(), time.Duration(days)*24*time.Hour)
			if err != nil {
				return fmt.Errorf("cleanup: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d jobs, %d audit events, %d metric samples older than %d days\n",
				result.Jobs, result.Audit, result.Metrics, days)
			return nil
		},
	}

	cmd.Flags().IntVar(&retentionDays, "older-than", 0, "Retention override in days (default from config)")
	return cmd
}
