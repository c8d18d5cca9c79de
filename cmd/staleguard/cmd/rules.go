package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/staleguard/internal/alerting"
)

var (
	rulesValidate string
	rulesYAML     bool
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Show or validate the alert rule catalog",
	Long: `Print the active rule catalog: the rules file from the config, or the
built-in catalog when none is set. --validate checks a rules file without
loading any other configuration.

Examples:
  staleguard rules
  staleguard rules --yaml > rules.yaml
  staleguard rules --validate rules.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			cat *alerting.Catalog
			err error
		)
		if rulesValidate != "" {
			cat, err = alerting.LoadCatalogFromFile(rulesValidate)
			if err != nil {
				return fmt.Errorf("invalid rules file: %w", err)
			}
			fmt.Fprintf(os.Stderr, "%s: %d rules OK\n", rulesValidate, cat.Len())
		} else {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cat, err = loadCatalog(cfg)
			if err != nil {
				return err
			}
		}

		if rulesYAML {
			data, err := alerting.MarshalCatalog(cat)
			if err != nil {
				return fmt.Errorf("marshal rules: %w", err)
			}
			os.Stdout.Write(data)
			return nil
		}
		if jsonOutput() {
			return printJSON(cat.Rules())
		}
		printRules(cat)
		return nil
	},
}

func printRules(cat *alerting.Catalog) {
	fmt.Printf("\n%-16s  %-5s  %-8s  %-9s  %-15s  %s\n",
		"NAME", "DAYS", "LEVEL", "FREQUENCY", "RECIPIENTS", "SUBJECT")
	fmt.Println(strings.Repeat("-", 100))
	for _, r := range cat.Rules() {
		fmt.Printf("%-16s  %-5d  %-8s  %-9s  %-15s  %s\n",
			r.Name(),
			r.DayThreshold,
			r.Level,
			fmt.Sprintf("%dh", r.BaseFrequencyHours),
			r.Recipients,
			truncate(r.SubjectTemplate, 40),
		)
	}
	fmt.Printf("\nTotal: %d rule(s)\n", cat.Len())
}

func init() {
	rulesCmd.Flags().StringVar(&rulesValidate, "validate", "", "validate a rules file and print it")
	rulesCmd.Flags().BoolVar(&rulesYAML, "yaml", false, "print the catalog in rules file format")
	rootCmd.AddCommand(rulesCmd)
}
