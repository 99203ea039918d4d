package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"callwatch/internal/services/notify"
)

func newTestAlertCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-alert",
		Short: "Send a test alert email using the configured gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.Alerts.APIKey) == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "Alert gateway not configured; nothing sent")
				return nil
			}
			notifier := notify.NewService(cfg)
			if err := notifier.TestNotification(cmd.Context()); err != nil {
				return fmt.Errorf("send test alert: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Test alert sent to %s\n", cfg.Alerts.ToEmail)
			return nil
		},
	}
}
