// Command chartctl resolves charts from tabular files on the command line.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	noColor  bool
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "chartctl",
	Short: "Turn a CSV or XLSX file and a chart request into a chart spec",
	Long: `chartctl parses a dataset, resolves a visualization intent against its
columns and prints the resulting chart specification as JSON.

The intent comes either from explicit --x/--y/--type flags or from a free
text --query sent to the prediction service.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.NoColor = true
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.AddCommand(chartCmd, columnsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}
