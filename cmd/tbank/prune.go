package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var pruneMaxAge time.Duration

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove usage records, comparison groups, and experiences past retention",
	Long: `Prune removes usage records and comparison groups older than the
retention cutoff, deletes emptied context buckets and orphaned cumulative
scores, and drops stale experiences.

Examples:
  tbank prune
  tbank prune --max-age 720h`,
	Args: cobra.NoArgs,
	RunE: runPrune,
}

func init() {
	pruneCmd.Flags().DurationVar(&pruneMaxAge, "max-age", 0, "override the configured retention cutoff")
}

func runPrune(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		maxAge := pruneMaxAge
		if maxAge <= 0 {
			maxAge = a.cfg.Learning.Retention.Duration()
		}

		telemetryRemoved, err := a.telemetry.PruneOldRecords(ctx, maxAge)
		if err != nil {
			return err
		}
		experiencesRemoved, err := a.experiences.PruneOld(ctx, maxAge)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "pruned %d telemetry entries and %d experiences\n",
			telemetryRemoved, experiencesRemoved)
		return nil
	})
}
