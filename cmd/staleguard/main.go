// Package main is the entry point for the staleguard CLI.
package main

import (
	"os"

	"github.com/good-yellow-bee/staleguard/cmd/staleguard/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
