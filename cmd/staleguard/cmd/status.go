package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/staleguard/internal/dispatch"
	"github.com/good-yellow-bee/staleguard/internal/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show entities currently triggering a rule",
	Long: `List every active entity old enough to be evaluated, with its most urgent
triggered level and its cooldown state. Nothing is sent.

Example:
  staleguard status -c staleguard.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			report, err := a.orch.Status(ctx)
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			if jsonOutput() {
				return printJSON(report)
			}
			printStatus(report)
			return nil
		})
	},
}

func printStatus(report *dispatch.StatusReport) {
	if report.Total == 0 {
		fmt.Println("No entities are currently alerting.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ENTITY\tCLIENT\tOWNER\tAGE\tLEVEL\tLAST ACTION\tCOOLDOWN UNTIL\tLAST SENT")
	for _, e := range report.Entities {
		action := string(e.LastUserAction)
		if action == "" {
			action = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%dd\t%s\t%s\t%s\t%s\n",
			e.EntityID,
			truncate(e.Client, 24),
			e.Owner,
			e.AgeDays,
			e.Level,
			action,
			formatOptionalTime(e.CooldownUntil),
			formatOptionalTime(e.LastAlertSentAt),
		)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d", report.Total)
	for _, l := range []models.Level{models.LevelInfo, models.LevelWarning, models.LevelUrgent, models.LevelCritical} {
		if n := report.Counts[l]; n > 0 {
			fmt.Printf("  %s: %d", l, n)
		}
	}
	fmt.Println()
	if report.StateErrors > 0 {
		fmt.Fprintf(os.Stderr, "Warning: cooldown state unavailable for %d entities\n", report.StateErrors)
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
