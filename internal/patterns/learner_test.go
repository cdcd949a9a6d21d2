package patterns

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/toolbank/internal/experience"
	"github.com/fyrsmithlabs/toolbank/internal/storage"
)

func newTestLearner(t *testing.T, opts ...LearnerOption) (*Learner, *experience.Store, *Store) {
	t.Helper()
	mem := storage.NewMemStore()
	exps, err := experience.NewStore(mem, zap.NewNop(), experience.WithFlushDelay(time.Hour))
	require.NoError(t, err)
	pats, err := NewStore(mem, zap.NewNop())
	require.NoError(t, err)
	l, err := NewLearner(exps, pats, zap.NewNop(), opts...)
	require.NoError(t, err)
	return l, exps, pats
}

func taskExp(id, category string, pass bool, durationMs float64) experience.Experience {
	return experience.Experience{
		ID:       id,
		Type:     experience.TypeSuccess,
		Category: category,
		Data: experience.SuccessData{
			TaskType:   category,
			DurationMs: durationMs,
			TestsPass:  boolPtr(pass),
		},
		Timestamp: time.Now(),
	}
}

func TestLearn_InsufficientData(t *testing.T) {
	l, _, pats := newTestLearner(t)
	ctx := context.Background()

	got, err := l.Learn(ctx, taskExp("a", "refactor", true, 1000))
	require.NoError(t, err)
	assert.Equal(t, 1, got.ExperienceCount)
	assert.Zero(t, got.PatternsExtracted)
	assert.Empty(t, got.Patterns)
	assert.Equal(t, insufficientDataMessage, got.Message)

	// The round is still logged.
	log, err := pats.RecentLearning(ctx, 0)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, 1, log[0].ExperienceCount)
	assert.Zero(t, log[0].PatternsExtracted)
}

func TestLearn_HomogeneousGroupExtractsNothing(t *testing.T) {
	l, _, _ := newTestLearner(t)
	ctx := context.Background()

	got, err := l.Learn(ctx,
		taskExp("a", "refactor", true, 5000),
		taskExp("b", "refactor", true, 5000),
		taskExp("c", "refactor", true, 5000),
	)
	require.NoError(t, err)
	assert.Equal(t, 3, got.ExperienceCount)
	assert.Zero(t, got.PatternsExtracted, "identical data has no standout performer")
}

func TestLearn_DominantExperienceExtractsOnePattern(t *testing.T) {
	l, _, pats := newTestLearner(t)
	ctx := context.Background()

	winner := taskExp("fast", "refactor", true, 10000)
	loser := taskExp("slow", "refactor", false, 50000)
	got, err := l.Learn(ctx, winner, loser)
	require.NoError(t, err)
	require.Equal(t, 1, got.PatternsExtracted)

	p := got.Patterns[0]
	assert.Equal(t, Key{Type: experience.TypeSuccess, Category: "refactor"}, p.Key)
	assert.Equal(t, 2, p.SampleSize)
	assert.InDelta(t, scoreExperience(winner), p.Confidence, 1e-12,
		"confidence is the winner's composite")
	assert.Equal(t, p.BestComposite, p.Confidence)
	assert.Greater(t, p.BestComposite, p.GroupMean+DefaultExtractionEpsilon)
	assert.Equal(t, winner.Data, p.BestData)
	assert.Contains(t, p.Insight, "Task type refactor")

	stored, ok, err := pats.Get(ctx, p.Key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, stored.FirstSeen.Equal(p.ExtractedAt),
		"firstSeen pins to the extraction time")
}

func TestLearn_SmallGroupsAreSkipped(t *testing.T) {
	l, _, _ := newTestLearner(t)
	ctx := context.Background()

	// Two singleton categories: enough experiences overall, but no group
	// reaches the minimum size.
	got, err := l.Learn(ctx,
		taskExp("a", "refactor", true, 1000),
		taskExp("b", "bugfix", false, 90000),
	)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ExperienceCount)
	assert.Zero(t, got.PatternsExtracted)
}

func TestLearn_LoadsStoredExperiencesWhenNoneSupplied(t *testing.T) {
	l, exps, _ := newTestLearner(t)
	ctx := context.Background()

	require.NoError(t, exps.Add(ctx,
		taskExp("fast", "refactor", true, 10000),
		taskExp("slow", "refactor", false, 50000),
	))

	got, err := l.Learn(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ExperienceCount)
	assert.Equal(t, 1, got.PatternsExtracted)
}

func TestLearn_RepeatRoundsAdvanceStreaks(t *testing.T) {
	l, _, pats := newTestLearner(t)
	ctx := context.Background()

	// First round: a clear but modest winner.
	_, err := l.Learn(ctx,
		taskExp("a", "refactor", true, 50000),
		taskExp("b", "refactor", false, 50000),
	)
	require.NoError(t, err)

	// Second round: the winner improves, so confidence rises.
	got, err := l.Learn(ctx,
		taskExp("c", "refactor", true, 5000),
		taskExp("d", "refactor", false, 50000),
	)
	require.NoError(t, err)
	require.Equal(t, 1, got.PatternsExtracted)

	stored, ok, err := pats.Get(ctx, Key{Type: experience.TypeSuccess, Category: "refactor"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, stored.ConsecutiveSuccesses)
	assert.Zero(t, stored.ConsecutiveFailures)
	assert.Equal(t, 1, stored.UpdateCount)

	log, err := pats.RecentLearning(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, log, 2)
}

func TestLearn_MixedTypesInOneRound(t *testing.T) {
	l, _, pats := newTestLearner(t)
	ctx := context.Background()

	readFast := experience.Experience{
		ID: "r1", Type: experience.TypeTool, Category: "Read",
		Data: experience.ToolData{Tool: "Read", Calls: 10, SuccessRate: 0.95, AvgMs: 100},
	}
	readSlow := experience.Experience{
		ID: "r2", Type: experience.TypeTool, Category: "Read",
		Data: experience.ToolData{Tool: "Read", Calls: 4, SuccessRate: 0.4, AvgMs: 4000},
	}
	got, err := l.Learn(ctx,
		readFast, readSlow,
		taskExp("fast", "refactor", true, 10000),
		taskExp("slow", "refactor", false, 50000),
	)
	require.NoError(t, err)
	assert.Equal(t, 2, got.PatternsExtracted)

	counts, err := pats.CountByType(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[experience.TypeTool])
	assert.Equal(t, 1, counts[experience.TypeSuccess])
	assert.Contains(t, got.Patterns[len(got.Patterns)-1].Insight, "Tool Read")
}

func TestNewLearner_Validation(t *testing.T) {
	mem := storage.NewMemStore()
	exps, err := experience.NewStore(mem, zap.NewNop())
	require.NoError(t, err)
	pats, err := NewStore(mem, zap.NewNop())
	require.NoError(t, err)

	_, err = NewLearner(nil, pats, zap.NewNop())
	assert.Error(t, err)
	_, err = NewLearner(exps, nil, zap.NewNop())
	assert.Error(t, err)
	_, err = NewLearner(exps, pats, nil)
	assert.Error(t, err)
}
