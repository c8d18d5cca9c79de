package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var testAlertCmd = &cobra.Command{
	Use:   "test-alert <email>",
	Short: "Send a sample alert to one address",
	Long: `Render an alert for a synthetic entity at the most urgent level and send it
to the given address through the configured channels. Throttling is bypassed
and nothing is recorded in the alert history.

Example:
  staleguard test-alert ops@example.com -c staleguard.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			res, err := a.orch.SendTestAlert(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput() {
				return printJSON(res)
			}
			fmt.Printf("Test alert sent to %s\n", res.Recipient)
			fmt.Printf("  Subject: %s\n", res.Subject)
			fmt.Printf("  Level:   %s\n", res.Level)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(testAlertCmd)
}
