package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMetricsCommand(ctx *commandContext) *cobra.Command {
	var window string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Show aggregated processing metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			report, err := client.Metrics(window)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, report)
			}
			out := cmd.OutOrStdout()
			if len(report.Metrics) == 0 {
				fmt.Fprintf(out, "No metrics recorded since %s\n", report.Since)
				return nil
			}
			rows := make([][]string, 0, len(report.Metrics))
			for _, metric := range report.Metrics {
				rows = append(rows, []string{
					metric.Name,
					fmt.Sprintf("%d", metric.Count),
					fmt.Sprintf("%.1f", metric.Avg),
					fmt.Sprintf("%.1f", metric.Min),
					fmt.Sprintf("%.1f", metric.Max),
					fmt.Sprintf("%.1f", metric.Sum),
				})
			}
			fmt.Fprintf(out, "Metrics since %s\n", report.Since)
			fmt.Fprintln(out, renderTable(
				[]string{"Name", "Count", "Avg", "Min", "Max", "Sum"},
				rows,
				1, 2, 3, 4, 5,
			))
			return nil
		},
	}

	cmd.Flags().StringVarP(&window, "window", "w", "24h", "Aggregation window (Go duration)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}
