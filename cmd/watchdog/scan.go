package main

import (
	"os"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "scan <url>",
		Short: "Evaluate one page",
		Long:  "Fetch a page once, extract its text for the detected platform and print the verdict.",
		Args:  cobra.ExactArgs(1),
		Run:   runScan,
	}

	rootCmd.AddCommand(cmd)
}

func runScan(cmd *cobra.Command, args []string) {
	a := newCLIAnalyzer(loadConfig())

	result, err := a.ScanURL(cmd.Context(), args[0])
	printResult(result, err)
	if err != nil {
		os.Exit(1)
	}
}
