package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var ackHours int

var ackCmd = &cobra.Command{
	Use:   "ack <entity-id> <action>",
	Short: "Record a human response to an alert",
	Long: `Record a response to an entity's alerts and start the matching cooldown.

Actions and their default cooldowns:
  acknowledged   24h, then alerts repeat at half frequency
  in_progress    48h, then alerts repeat at half frequency
  escalated      12h
  paused         72h
  resolved       9999h
  none           clears the cooldown

--hours overrides the cooldown length.

Examples:
  staleguard ack INV-1042 acknowledged
  staleguard ack INV-1042 paused --hours 120`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var hours *int
		if cmd.Flags().Changed("hours") {
			if ackHours <= 0 {
				return fmt.Errorf("--hours must be positive")
			}
			hours = &ackHours
		}

		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			state, err := a.orch.Acknowledge(ctx, args[0], args[1], hours)
			if err != nil {
				return err
			}
			if jsonOutput() {
				return printJSON(state)
			}
			fmt.Printf("Recorded %s for %s\n", state.LastUserAction, state.EntityID)
			if state.CooldownUntil != nil {
				fmt.Printf("  Cooldown until: %s\n", formatTime(*state.CooldownUntil))
			} else {
				fmt.Println("  No cooldown")
			}
			return nil
		})
	},
}

func init() {
	ackCmd.Flags().IntVar(&ackHours, "hours", 0, "custom cooldown length in hours")
	rootCmd.AddCommand(ackCmd)
}
