package patterns

import (
	"math"

	"github.com/fyrsmithlabs/toolbank/internal/experience"
)

// neutralScore is the composite assigned where no signal exists: unknown
// experience types, and individual missing sub-signals.
const neutralScore = 0.5

// Blend weights and scales per experience type. Each composite stays in
// [0,1] because its weights sum to 1 and every term is clamped.
const (
	toolSuccessWeight = 0.7
	toolSpeedWeight   = 0.3
	toolSpeedScaleMs  = 1000 // avgMs at which the speed term halves

	taskTestsWeight      = 0.5
	taskSpeedWeight      = 0.3
	taskEfficiencyWeight = 0.2
	taskSpeedScaleMs     = 60000
	taskFileScale        = 10 // filesModified at which efficiency halves

	teamSuccessWeight = 0.5
	teamSpeedWeight   = 0.3
	teamSizeWeight    = 0.2
	teamSpeedScaleMs  = 60000

	errorRecoverableScore   = 0.7
	errorUnrecoverableScore = 0.2
	errorUnknownScore       = 0.35
)

// scoreExperience computes the type-specific composite in [0,1] used to
// rank experiences within a learning group.
func scoreExperience(exp experience.Experience) float64 {
	switch d := exp.Data.(type) {
	case experience.ToolData:
		return clamp01(toolSuccessWeight*clamp01(d.SuccessRate) +
			toolSpeedWeight*speedScore(d.AvgMs, toolSpeedScaleMs))

	case experience.SuccessData:
		tests := neutralScore
		if d.TestsPass != nil {
			tests = 0
			if *d.TestsPass {
				tests = 1
			}
		}
		return clamp01(taskTestsWeight*tests +
			taskSpeedWeight*speedScore(d.DurationMs, taskSpeedScaleMs) +
			taskEfficiencyWeight*efficiencyScore(d.FilesModified))

	case experience.ErrorData:
		if d.Recoverable == nil {
			return errorUnknownScore
		}
		if *d.Recoverable {
			return errorRecoverableScore
		}
		return errorUnrecoverableScore

	case experience.TeamData:
		size := neutralScore
		if d.Size > 0 {
			size = 1 / float64(d.Size)
		}
		return clamp01(teamSuccessWeight*clamp01(d.SuccessRate) +
			teamSpeedWeight*speedScore(d.DurationMs, teamSpeedScaleMs) +
			teamSizeWeight*size)

	default:
		return neutralScore
	}
}

// speedScore maps a duration onto [0,1], higher for faster. A missing or
// invalid duration contributes the neutral score rather than rewarding
// absent timing.
func speedScore(ms, scale float64) float64 {
	if math.IsNaN(ms) || ms <= 0 {
		return neutralScore
	}
	return scale / (scale + ms)
}

// efficiencyScore prefers tasks that touched fewer files. Zero files maps
// to 1.0.
func efficiencyScore(files int) float64 {
	if files <= 0 {
		return 1
	}
	return taskFileScale / (taskFileScale + float64(files))
}

// clamp01 confines v to [0,1]; NaN and negatives map to 0.
func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
