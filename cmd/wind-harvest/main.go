package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "wind-harvest",
	Short: "Wind observation and webcam ingestion service",
	Long: `wind-harvest collects wind and temperature readings and webcam frames from
many providers, normalizes them on a 10 minute cadence and flags silent stations.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
