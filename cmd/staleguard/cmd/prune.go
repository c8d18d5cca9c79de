package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/staleguard/internal/storage"
)

var pruneOlderThan time.Duration

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old alert history",
	Long: `Delete history entries sent before the given age. History older than the
longest rule frequency no longer affects throttling.

Example:
  staleguard prune --older-than 2160h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if pruneOlderThan <= 0 {
			return fmt.Errorf("--older-than must be positive")
		}
		return withStore(func(cfg *Config, store *storage.SQLiteStorage) error {
			cutoff := time.Now().Add(-pruneOlderThan)
			n, err := store.AlertHistory().DeleteBefore(context.Background(), cutoff)
			if err != nil {
				return fmt.Errorf("prune history: %w", err)
			}
			fmt.Printf("Deleted %d history entries sent before %s\n", n, formatTime(cutoff))
			return nil
		})
	},
}

func init() {
	pruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 2160*time.Hour, "delete entries older than this")
	rootCmd.AddCommand(pruneCmd)
}
