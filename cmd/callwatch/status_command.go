package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"callwatch/internal/config"
	"callwatch/internal/records"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show record counts and pipeline health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *records.Store) error {
				summary, err := store.Health(cmd.Context())
				if err != nil {
					return fmt.Errorf("read record counts: %w", err)
				}
				printStatus(cmd, cfg, summary)
				return nil
			})
		},
	}
}

func printStatus(cmd *cobra.Command, cfg *config.Config, summary records.HealthSummary) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	fmt.Fprintln(out, renderSectionHeader("Callwatch", colorize))
	fmt.Fprintln(out, renderStatusLine("Database", statusInfo, cfg.DatabasePath(), colorize))
	fmt.Fprintln(out, renderStatusLine("Webhook bind", statusInfo, cfg.Webhook.Bind, colorize))

	analysisKind := statusOK
	if summary.AnalysisFailed > 0 {
		analysisKind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("Analysis", analysisKind,
		fmt.Sprintf("%d pending, %d failed", summary.AnalysisPending, summary.AnalysisFailed), colorize))

	alertKind := statusOK
	if summary.AlertsFailed > 0 {
		alertKind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("Alerts", alertKind,
		fmt.Sprintf("%d pending, %d failed", summary.AlertsPending, summary.AlertsFailed), colorize))
	fmt.Fprintln(out)

	rows := [][]string{
		{"Total calls", strconv.Itoa(summary.Total)},
		{"Analysis pending", strconv.Itoa(summary.AnalysisPending)},
		{"Analysis running", strconv.Itoa(summary.AnalysisRunning)},
		{"Analysis complete", strconv.Itoa(summary.AnalysisComplete)},
		{"Analysis failed", strconv.Itoa(summary.AnalysisFailed)},
		{"Non-agent calls", strconv.Itoa(summary.NonAgentCalls)},
		{"Alerts pending", strconv.Itoa(summary.AlertsPending)},
		{"Alerts sent", strconv.Itoa(summary.AlertsSent)},
		{"Alerts failed", strconv.Itoa(summary.AlertsFailed)},
	}
	fmt.Fprintln(out, renderTable([]column{{title: "Metric"}, {title: "Count", numeric: true}}, rows))
}
