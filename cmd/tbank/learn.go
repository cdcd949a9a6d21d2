package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var learnTrend int

var learnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Run a batch learning round over the stored experiences",
	Long: `Learn groups the stored experiences by type and category, scores each
group, and extracts a pattern wherever one member clearly outperforms
its group. Extracted patterns merge into the persisted per-type
collections with streak-tracked confidence.

Examples:
  tbank learn
  tbank learn --trend 10`,
	Args: cobra.NoArgs,
	RunE: runLearn,
}

func init() {
	learnCmd.Flags().IntVar(&learnTrend, "trend", 0, "also print the last N learning log entries")
}

func runLearn(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		summary, err := a.learner.Learn(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, summary.Message)
		if len(summary.Patterns) > 0 {
			if err := printJSON(summary.Patterns); err != nil {
				return err
			}
		}

		if learnTrend > 0 {
			entries, err := a.patterns.RecentLearning(ctx, learnTrend)
			if err != nil {
				return err
			}
			return printJSON(entries)
		}
		return nil
	})
}
