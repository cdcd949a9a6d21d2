package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/toolbank/internal/telemetry"
)

var (
	suggestLimit    int
	suggestMinScore float64
	candidateCount  int
)

var suggestCmd = &cobra.Command{
	Use:   "suggest <context>",
	Short: "Suggest the best tools for a context from decayed usage history",
	Long: `Suggest ranks tools for a context by the decay-weighted average of
their recorded scores. Tools with too few samples are excluded; when the
context itself has no qualifying tools, related contexts sharing its
first segment are consulted and the results labeled low confidence.

Examples:
  tbank suggest search:file
  tbank suggest search:file --limit 3 --min-score 0.5`,
	Args: cobra.ExactArgs(1),
	RunE: runSuggest,
}

var candidatesCmd = &cobra.Command{
	Use:   "candidates <context>",
	Short: "Rank tool candidates blending usage history with comparison scores",
	Long: `Candidates merges the decayed usage average with the cumulative group
comparison score for every tool seen in the context, applying cold-start
floors and related-context borrowing where data is thin.

Examples:
  tbank candidates search:file
  tbank candidates search:file --count 5`,
	Args: cobra.ExactArgs(1),
	RunE: runCandidates,
}

func init() {
	suggestCmd.Flags().IntVar(&suggestLimit, "limit", 5, "maximum suggestions returned")
	suggestCmd.Flags().Float64Var(&suggestMinScore, "min-score", 0, "drop suggestions scoring below this")
	candidatesCmd.Flags().IntVar(&candidateCount, "count", 5, "maximum candidates returned")
}

func runSuggest(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		suggestions, err := a.telemetry.SuggestTool(ctx, args[0], telemetry.SuggestOptions{
			Limit:    suggestLimit,
			MinScore: suggestMinScore,
		})
		if err != nil {
			return err
		}
		return printJSON(suggestions)
	})
}

func runCandidates(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		candidates, err := a.telemetry.SuggestToolCandidates(ctx, args[0], candidateCount)
		if err != nil {
			return err
		}
		return printJSON(candidates)
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
