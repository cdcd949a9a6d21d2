package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/toolbank/internal/experience"
)

var (
	recordTool    string
	recordContext string
	recordScore   float64
	recordNoLearn bool
)

var recordCmd = &cobra.Command{
	Use:   "record [file]",
	Short: "Record a session-facts document or a single usage observation",
	Long: `Record ingests a session-facts JSON document from a file or stdin,
normalizes it into experiences, stores them, and runs a learning round
over the stored collection.

With --tool and --context set, it instead records one direct usage
observation into the telemetry store.

Examples:
  # Ingest session facts
  tbank record session.json
  cat session.json | tbank record -

  # Record a single usage observation
  tbank record --tool Read --context search:file --score 0.9`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRecord,
}

func init() {
	recordCmd.Flags().StringVar(&recordTool, "tool", "", "tool name for a direct usage observation")
	recordCmd.Flags().StringVar(&recordContext, "context", "", "context key for a direct usage observation")
	recordCmd.Flags().Float64Var(&recordScore, "score", 0, "score in [0,1] for a direct usage observation")
	recordCmd.Flags().BoolVar(&recordNoLearn, "no-learn", false, "skip the learning round after ingesting facts")
}

func runRecord(cmd *cobra.Command, args []string) error {
	if recordTool != "" || recordContext != "" {
		if recordTool == "" || recordContext == "" {
			return fmt.Errorf("--tool and --context must be set together")
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return a.telemetry.RecordUsage(ctx, recordTool, recordContext, recordScore, nil)
		})
	}

	content, err := readInput(args)
	if err != nil {
		return err
	}
	var facts experience.SessionFacts
	if err := json.Unmarshal(content, &facts); err != nil {
		return fmt.Errorf("failed to parse session facts: %w", err)
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		collector := experience.NewCollector()
		exps := collector.Collect(facts)
		if len(exps) == 0 {
			fmt.Fprintln(os.Stderr, "no experiences derived from input")
			return nil
		}
		if err := a.experiences.Add(ctx, exps...); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "stored %d experiences\n", len(exps))

		if recordNoLearn {
			return nil
		}
		summary, err := a.learner.Learn(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, summary.Message)
		return nil
	})
}

func readInput(args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return content, nil
	}
	content, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	return content, nil
}
