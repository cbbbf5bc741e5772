package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trendllm/paperdex/internal/version"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build metadata",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("paperdex %s (commit %s, built %s)\n", version.Version, version.Commit, version.Date)
	},
}
