package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/staleguard/pkg/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit, and build time of staleguard.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if jsonOutput() {
			return printJSON(config.GetBuildInfo())
		}
		fmt.Println(config.VersionString())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
