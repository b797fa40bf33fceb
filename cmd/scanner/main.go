package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	outputFormat string
	runTimeout   time.Duration
	volumeRatio  float64
	maGap        float64
	breakoutPct  float64
)

// rootCmd is the base command for the scanner CLI.
var rootCmd = &cobra.Command{
	Use:   "scanner",
	Short: "Volume-price resonance scanner for TWSE and TPEx listed stocks",
	Long: `scanner runs the resonance pipeline from a terminal.

Discovery ranks today's most active gainers, filtering scores candidates on a
short history, and the expert stage scores one symbol on its full history with
institutional flows and a position size.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "Output format: table, json")
	rootCmd.PersistentFlags().DurationVar(&runTimeout, "timeout", 5*time.Minute, "Overall timeout for the command")
	rootCmd.PersistentFlags().Float64Var(&volumeRatio, "volume-ratio", 0, "Override the volume ratio threshold")
	rootCmd.PersistentFlags().Float64Var(&maGap, "ma-gap", 0, "Override the MA constriction threshold (0.02 = 2%)")
	rootCmd.PersistentFlags().Float64Var(&breakoutPct, "breakout-pct", 0, "Override the breakout threshold in percent")

	rootCmd.AddCommand(discoveryCmd, filterCmd, expertCmd, fullCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
