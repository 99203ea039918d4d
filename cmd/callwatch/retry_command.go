package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"callwatch/internal/config"
	"callwatch/internal/records"
)

func newRetryCommand(ctx *commandContext) *cobra.Command {
	var alertsFlag bool

	cmd := &cobra.Command{
		Use:   "retry [id...]",
		Short: "Requeue failed analyses (or alerts with --alerts)",
		Long: "Moves failed records back to pending so the workers pick them up again.\n" +
			"With no ids, every failed record in the selected stage is requeued.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseRecordIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *records.Store) error {
				var count int64
				if alertsFlag {
					count, err = store.RequeueAlerts(cmd.Context(), ids...)
				} else {
					count, err = store.RequeueAnalysis(cmd.Context(), ids...)
				}
				if err != nil {
					return fmt.Errorf("requeue records: %w", err)
				}
				stage := "analyses"
				if alertsFlag {
					stage = "alerts"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d failed %s\n", count, stage)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&alertsFlag, "alerts", false, "Requeue failed alert deliveries instead of analyses")
	return cmd
}

func parseRecordIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid record id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
