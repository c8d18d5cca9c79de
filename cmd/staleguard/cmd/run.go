package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/staleguard/internal/dispatch"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one alert cycle now",
	Long: `Evaluate every active entity against the rule catalog and deliver the
alerts the throttling controller allows. Interrupting the run stops it after
the current entity and prints a partial summary.

Examples:
  staleguard run -c staleguard.yaml
  staleguard run -c staleguard.yaml -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return withApp(ctx, func(ctx context.Context, a *app) error {
			ctx, cancel := context.WithTimeout(ctx, mustDuration(a.cfg.Schedule.RunTimeout))
			defer cancel()

			sum, err := a.orch.Run(ctx)
			if err != nil {
				if errors.Is(err, dispatch.ErrRunInProgress) {
					return fmt.Errorf("another run is in progress")
				}
				return fmt.Errorf("run alerts: %w", err)
			}

			if jsonOutput() {
				return printJSON(sum)
			}
			printSummary(&sum)
			return nil
		})
	},
}

func printSummary(sum *dispatch.Summary) {
	fmt.Printf("\nRun %s\n", sum.RunID)
	fmt.Printf("  Started:   %s\n", sum.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("  Duration:  %s\n", sum.Duration)
	fmt.Printf("  Entities:  %d\n", sum.EntitiesProcessed)
	fmt.Printf("  Sent:      %d\n", sum.Sent)
	fmt.Printf("  Skipped:   %d\n", sum.Skipped)
	fmt.Printf("  Errors:    %d\n", sum.Errors)
	if sum.Degraded {
		fmt.Println("  Degraded:  yes (cooldown state unavailable, history fallback used)")
	}
	if sum.Aborted {
		fmt.Println("  Aborted:   yes (interrupted before all entities were processed)")
	}

	if len(sum.SkipReasons) > 0 {
		reasons := make([]string, 0, len(sum.SkipReasons))
		for r := range sum.SkipReasons {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		fmt.Println("\n  Skip reasons:")
		for _, r := range reasons {
			fmt.Printf("    %-20s %d\n", r, sum.SkipReasons[r])
		}
	}
	fmt.Println()
}

func init() {
	rootCmd.AddCommand(runCmd)
}
