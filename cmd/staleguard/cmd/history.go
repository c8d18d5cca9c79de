package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/staleguard/internal/storage"
)

var (
	historyEntity string
	historyLimit  int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show sent alerts",
	Long: `List alerts recorded in the history ledger, newest first.

Examples:
  staleguard history --limit 20
  staleguard history --entity INV-1042`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyLimit <= 0 {
			return fmt.Errorf("--limit must be positive")
		}

		return withStore(func(cfg *Config, store *storage.SQLiteStorage) error {
			entries, err := store.AlertHistory().List(context.Background(), historyEntity, historyLimit)
			if err != nil {
				return fmt.Errorf("list history: %w", err)
			}
			if jsonOutput() {
				return printJSON(entries)
			}

			if len(entries) == 0 {
				fmt.Println("No alerts found.")
				return nil
			}

			fmt.Printf("\n%-16s  %-16s  %-8s  %-5s  %-4s  %s\n",
				"SENT", "ENTITY", "LEVEL", "DAYS", "AGE", "RECIPIENTS")
			fmt.Println(strings.Repeat("-", 100))
			for _, e := range entries {
				fmt.Printf("%-16s  %-16s  %-8s  %-5d  %-4d  %s\n",
					formatTime(e.SentAt),
					truncate(e.EntityID, 16),
					e.Level,
					e.DayThreshold,
					e.AgeDaysAtSend,
					strings.Join(e.Recipients, ", "),
				)
			}
			fmt.Printf("\nTotal: %d alert(s)\n", len(entries))
			return nil
		})
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyEntity, "entity", "", "only show alerts for this entity")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "maximum number of entries")
	rootCmd.AddCommand(historyCmd)
}
