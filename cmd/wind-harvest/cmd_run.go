package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <task>",
	Short: "Run one task and exit",
	Long: `Run one task synchronously and exit. Tasks:
  readings:harvest, readings:metservice, readings:rest, readings:all,
  images, detector, merge, merge:daily

Per-station failures do not fail the command; only infrastructure errors do.`,
	Args: cobra.ExactArgs(1),
	RunE: runOnce,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	a, err := newApplication(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	if err := a.scheduler.RunOnce(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("%s: %w (tasks: %s)", args[0], err, strings.Join(a.scheduler.Tasks(), ", "))
	}
	return nil
}
