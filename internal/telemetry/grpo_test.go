package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordGroupComparison_RejectsSmallGroups(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	_, err := m.RecordGroupComparison(ctx, "x", []CompetitorResult{{Tool: "A", Success: true}})
	assert.ErrorIs(t, err, ErrInvalidGroupSize)

	_, err = m.RecordGroupComparison(ctx, "x", nil)
	assert.ErrorIs(t, err, ErrInvalidGroupSize)

	_, err = m.RecordGroupComparison(ctx, "", []CompetitorResult{{Tool: "A"}, {Tool: "B"}})
	assert.ErrorIs(t, err, ErrEmptyContext)

	_, err = m.RecordGroupComparison(ctx, "x", []CompetitorResult{{Tool: "A"}, {Tool: ""}})
	assert.ErrorIs(t, err, ErrEmptyTool)
}

func TestRecordGroupComparison_RejectsReservedSeparator(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	// A tool or context containing "::" would make the stored score key
	// ambiguous and leak the score into another context's projection.
	_, err := m.RecordGroupComparison(ctx, "x", []CompetitorResult{
		{Tool: "A::B", Success: true},
		{Tool: "C", Success: false},
	})
	assert.ErrorIs(t, err, ErrReservedSeparator)

	_, err = m.RecordGroupComparison(ctx, "x::y", []CompetitorResult{
		{Tool: "A", Success: true},
		{Tool: "B", Success: false},
	})
	assert.ErrorIs(t, err, ErrReservedSeparator)

	scores, err := m.GetGrpoScores(ctx, "x")
	require.NoError(t, err)
	assert.Empty(t, scores, "rejected comparisons record nothing")
}

func TestRecordGroupComparison_FastSuccessOutranksSlowFailure(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	group, err := m.RecordGroupComparison(ctx, "search:file", []CompetitorResult{
		{Tool: "A", Success: true, DurationMs: 100},
		{Tool: "B", Success: false, DurationMs: 500},
	})
	require.NoError(t, err)
	require.Len(t, group.Rankings, 2)

	assert.Equal(t, "A", group.Rankings[0].Tool)
	assert.Equal(t, 1, group.Rankings[0].Rank)
	assert.Equal(t, 2, group.Rankings[1].Rank)
	assert.Greater(t, group.Rankings[0].CompositeScore, group.Rankings[1].CompositeScore)

	// Advantages are relative to the group mean and therefore sum to zero.
	assert.InDelta(t, 0,
		group.Rankings[0].RelativeAdvantage+group.Rankings[1].RelativeAdvantage, 1e-12)
	assert.Greater(t, group.Rankings[0].RelativeAdvantage, 0.0)
}

func TestSpeedScores(t *testing.T) {
	t.Run("linear scaling between fastest and slowest", func(t *testing.T) {
		scores := speedScores([]CompetitorResult{
			{DurationMs: 100},
			{DurationMs: 300},
			{DurationMs: 500},
		})
		assert.Equal(t, 1.0, scores[0])
		assert.InDelta(t, 0.5, scores[1], 1e-12)
		assert.Equal(t, 0.0, scores[2])
	})

	t.Run("equal durations all score 1.0", func(t *testing.T) {
		scores := speedScores([]CompetitorResult{
			{DurationMs: 250},
			{DurationMs: 250},
		})
		assert.Equal(t, []float64{1.0, 1.0}, scores)
	})

	t.Run("single timed result scores 1.0", func(t *testing.T) {
		scores := speedScores([]CompetitorResult{
			{DurationMs: 100},
			{DurationMs: 0},
		})
		assert.Equal(t, 1.0, scores[0])
		assert.Equal(t, noTimingSpeedScore, scores[1])
	})

	t.Run("no timing means the fixed default", func(t *testing.T) {
		scores := speedScores([]CompetitorResult{
			{DurationMs: 0},
			{DurationMs: 0},
		})
		assert.Equal(t, []float64{noTimingSpeedScore, noTimingSpeedScore}, scores)
	})
}

func TestRecordGroupComparison_EqualResultsTieStably(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	group, err := m.RecordGroupComparison(ctx, "search:file", []CompetitorResult{
		{Tool: "First", Success: true, DurationMs: 200, Accuracy: 0.8, Brevity: 0.5},
		{Tool: "Second", Success: true, DurationMs: 200, Accuracy: 0.8, Brevity: 0.5},
	})
	require.NoError(t, err)

	// Identical inputs produce identical composites; ties keep input order.
	assert.Equal(t, group.Rankings[0].CompositeScore, group.Rankings[1].CompositeScore)
	assert.Equal(t, "First", group.Rankings[0].Tool)
	assert.Equal(t, "Second", group.Rankings[1].Tool)
}

func TestRecordGroupComparison_ClampsMalformedInputs(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	group, err := m.RecordGroupComparison(ctx, "search:file", []CompetitorResult{
		{Tool: "A", Success: true, DurationMs: 100, Accuracy: 2.0, Brevity: -3},
		{Tool: "B", Success: true, DurationMs: 100, Accuracy: 1.0, Brevity: 0},
	})
	require.NoError(t, err)

	// Clamped accuracy/brevity make the two composites identical.
	assert.Equal(t, group.Rankings[0].CompositeScore, group.Rankings[1].CompositeScore)
}

func TestRecordGroupComparison_CumulativeScores(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	_, err := m.RecordGroupComparison(ctx, "search:file", []CompetitorResult{
		{Tool: "A", Success: true, DurationMs: 100},
		{Tool: "B", Success: false, DurationMs: 500},
	})
	require.NoError(t, err)

	first, err := m.GetGrpoScores(ctx, "search:file")
	require.NoError(t, err)
	require.Contains(t, first, "A")

	_, err = m.RecordGroupComparison(ctx, "search:file", []CompetitorResult{
		{Tool: "A", Success: false, DurationMs: 500},
		{Tool: "B", Success: true, DurationMs: 100},
	})
	require.NoError(t, err)

	second, err := m.GetGrpoScores(ctx, "search:file")
	require.NoError(t, err)

	// Running average: A's second (worse) showing pulls its score down.
	assert.Less(t, second["A"], first["A"])
	assert.Greater(t, second["B"], first["B"])

	key, ok := ParseScoreKey("search:file::A")
	require.True(t, ok)
	cum := m.doc.GrpoScores[key.String()]
	assert.Equal(t, 2, cum.Comparisons)
}

func TestGetGrpoScores_NoCrossContextLeakage(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	_, err := m.RecordGroupComparison(ctx, "search:file", []CompetitorResult{
		{Tool: "A", Success: true, DurationMs: 100},
		{Tool: "B", Success: false, DurationMs: 500},
	})
	require.NoError(t, err)
	_, err = m.RecordGroupComparison(ctx, "edit:config", []CompetitorResult{
		{Tool: "C", Success: true, DurationMs: 100},
		{Tool: "D", Success: false, DurationMs: 500},
	})
	require.NoError(t, err)

	scores, err := m.GetGrpoScores(ctx, "search:file")
	require.NoError(t, err)
	assert.Len(t, scores, 2)
	assert.NotContains(t, scores, "C")
	assert.NotContains(t, scores, "D")

	history, err := m.GetGrpoHistory(ctx, "search:file", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "search:file", history[0].Context)
}

func TestRecordGroupComparison_GroupCap(t *testing.T) {
	m := newTestManager(t, nil, WithMaxGroupsPerContext(5))
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		_, err := m.RecordGroupComparison(ctx, "search:file", []CompetitorResult{
			{Tool: "A", Success: true, DurationMs: 100},
			{Tool: "B", Success: false, DurationMs: 500},
		})
		require.NoError(t, err)
	}

	history, err := m.GetGrpoHistory(ctx, "search:file", 0)
	require.NoError(t, err)
	assert.Len(t, history, 5, "oldest groups evicted at the cap")
}

func TestGetGrpoHistory_Limit(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := m.RecordGroupComparison(ctx, "search:file", []CompetitorResult{
			{Tool: "A", Success: true, DurationMs: 100},
			{Tool: "B", Success: false, DurationMs: 500},
		})
		require.NoError(t, err)
	}

	history, err := m.GetGrpoHistory(ctx, "search:file", 2)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}
