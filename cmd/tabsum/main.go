// Package main provides the entry point for the tabsum CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/tabsum/cmd/tabsum/commands"
	"github.com/Sumatoshi-tech/tabsum/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	rootCmd := &cobra.Command{
		Use:   "tabsum",
		Short: "Tabsum - streaming summary statistics for tabular data",
		Long: `Tabsum computes summary statistics over chunked tabular data in a
bounded number of streaming passes.

Commands:
  summarize  Summarize the columns of a CSV file`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewSummarizeCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "tabsum %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
