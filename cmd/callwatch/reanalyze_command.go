package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"callwatch/internal/config"
	"callwatch/internal/records"
)

func newReanalyzeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reanalyze <id>",
		Short: "Discard a record's analysis outcome and queue it again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseRecordIDs(args)
			if err != nil {
				return err
			}
			id := ids[0]
			return ctx.withStore(func(cfg *config.Config, store *records.Store) error {
				record, err := store.GetByID(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("load record: %w", err)
				}
				if record == nil {
					return fmt.Errorf("record %d not found", id)
				}
				reset, err := store.Reanalyze(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("reanalyze record: %w", err)
				}
				if !reset {
					return fmt.Errorf("record %d is being processed right now; try again shortly", id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Record %d (%s) queued for reanalysis\n", id, record.CallID)
				return nil
			})
		},
	}
}
