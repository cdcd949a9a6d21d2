package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/toolbank/internal/experience"
	"github.com/fyrsmithlabs/toolbank/internal/telemetry"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show collection sizes across the engine's stores",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

// statsReport aggregates sizes across the telemetry, experience, and
// pattern stores.
type statsReport struct {
	Telemetry   telemetry.Stats         `json:"telemetry"`
	Experiences int                     `json:"experiences"`
	Patterns    map[experience.Type]int `json:"patterns"`
}

func runStats(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		counts, err := a.patterns.CountByType(ctx)
		if err != nil {
			return err
		}
		return printJSON(statsReport{
			Telemetry:   a.telemetry.Stats(ctx),
			Experiences: a.experiences.Count(ctx),
			Patterns:    counts,
		})
	})
}
