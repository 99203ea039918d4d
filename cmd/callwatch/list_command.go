package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"callwatch/internal/config"
	"callwatch/internal/records"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string
	var limitFlag int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List call records, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var status records.Status
			if statusFlag != "" {
				parsed, ok := records.ParseStatus(statusFlag)
				if !ok {
					return fmt.Errorf("unknown status %q", statusFlag)
				}
				status = parsed
			}
			return ctx.withStore(func(cfg *config.Config, store *records.Store) error {
				items, err := store.List(cmd.Context(), status, limitFlag)
				if err != nil {
					return fmt.Errorf("list records: %w", err)
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No call records found")
					return nil
				}
				printRecordTable(cmd, items)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&statusFlag, "status", "", "Filter by analysis or alert status")
	cmd.Flags().IntVar(&limitFlag, "limit", 25, "Maximum number of records to show")
	return cmd
}

func printRecordTable(cmd *cobra.Command, items []*records.CallRecord) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatInt(item.ID, 10),
			item.CallID,
			item.AgentName,
			formatSeconds(item.DurationSecs),
			string(item.AnalysisStatus),
			formatScore(item.OverallScore),
			string(item.AlertStatus),
			item.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	cols := []column{
		{title: "ID", numeric: true},
		{title: "Call"},
		{title: "Agent"},
		{title: "Duration", numeric: true},
		{title: "Analysis"},
		{title: "Score", numeric: true},
		{title: "Alert"},
		{title: "Created"},
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(cols, rows))
}

func formatScore(score *int) string {
	if score == nil {
		return "-"
	}
	return strconv.Itoa(*score)
}

func formatSeconds(seconds int) string {
	d := time.Duration(seconds) * time.Second
	minutes := int(d.Minutes())
	return fmt.Sprintf("%d:%02d", minutes, seconds-minutes*60)
}
