package experience

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Fallback categories used when a fact carries no usable category field.
const (
	CategoryUnknown = "unknown"
	CategoryTask    = "task"

	// DefaultTeamDomain fills missing string fields on team facts.
	DefaultTeamDomain = "general"
)

// SessionFacts is the raw input one session reports. Every field is
// optional; absent collections simply produce no experiences.
type SessionFacts struct {
	SessionID      string               `json:"sessionId,omitempty"`
	ToolUsage      map[string]ToolUsage `json:"toolUsage,omitempty"`
	Errors         []ErrorFact          `json:"errors,omitempty"`
	CompletedTasks []TaskFact           `json:"completedTasks,omitempty"`
	TeamConfig     *TeamConfig          `json:"teamConfig,omitempty"`
}

// ToolUsage is one tool's call tally for the session.
type ToolUsage struct {
	Calls     int     `json:"calls"`
	Successes int     `json:"successes"`
	TotalMs   float64 `json:"totalMs"`
}

// ErrorFact is one reported error.
type ErrorFact struct {
	Type        string `json:"type,omitempty"`
	Code        string `json:"code,omitempty"`
	Message     string `json:"message,omitempty"`
	Recoverable *bool  `json:"recoverable,omitempty"`
}

// TaskFact is one completed task. FilesModified accepts whatever shape the
// session reported (a file list or a count) and is coerced to a count.
type TaskFact struct {
	Type          string  `json:"type,omitempty"`
	TaskType      string  `json:"taskType,omitempty"`
	DurationMs    float64 `json:"durationMs,omitempty"`
	TestsPass     *bool   `json:"testsPass,omitempty"`
	FilesModified any     `json:"filesModified,omitempty"`
}

// TeamConfig is the session's team composition.
type TeamConfig struct {
	Pattern     string   `json:"pattern,omitempty"`
	SuccessRate float64  `json:"successRate,omitempty"`
	DurationMs  float64  `json:"durationMs,omitempty"`
	Agents      []string `json:"agents,omitempty"`
	Size        int      `json:"size,omitempty"`
	Domain      string   `json:"domain,omitempty"`
}

// Collector normalizes session facts into experiences.
type Collector struct {
	now   func() time.Time
	newID func() string
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithCollectorClock overrides the time source for tests.
func WithCollectorClock(now func() time.Time) CollectorOption {
	return func(c *Collector) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCollector creates a collector with UUID identifiers and wall-clock
// timestamps.
func NewCollector(opts ...CollectorOption) *Collector {
	c := &Collector{
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect turns one session's facts into uniform experience records. Every
// derived experience inherits the session's id and the collection timestamp.
func (c *Collector) Collect(facts SessionFacts) []Experience {
	now := c.now()
	var out []Experience

	add := func(t Type, category string, data Data) {
		out = append(out, Experience{
			ID:        c.newID(),
			Type:      t,
			Category:  category,
			Data:      data,
			SessionID: facts.SessionID,
			Timestamp: now,
		})
	}

	// Tool usage map, in stable key order.
	tools := make([]string, 0, len(facts.ToolUsage))
	for tool := range facts.ToolUsage {
		tools = append(tools, tool)
	}
	sort.Strings(tools)
	for _, tool := range tools {
		u := facts.ToolUsage[tool]
		data := ToolData{
			Tool:      tool,
			Calls:     u.Calls,
			Successes: u.Successes,
			TotalMs:   u.TotalMs,
		}
		if u.Calls > 0 {
			data.SuccessRate = float64(u.Successes) / float64(u.Calls)
			data.AvgMs = u.TotalMs / float64(u.Calls)
		}
		add(TypeTool, tool, data)
	}

	for _, e := range facts.Errors {
		category := e.Type
		if category == "" {
			category = e.Code
		}
		if category == "" {
			category = CategoryUnknown
		}
		add(TypeError, category, ErrorData{
			ErrorType:   e.Type,
			Code:        e.Code,
			Message:     e.Message,
			Recoverable: e.Recoverable,
		})
	}

	for _, task := range facts.CompletedTasks {
		category := task.Type
		if category == "" {
			category = task.TaskType
		}
		if category == "" {
			category = CategoryTask
		}
		add(TypeSuccess, category, SuccessData{
			TaskType:      category,
			DurationMs:    task.DurationMs,
			TestsPass:     task.TestsPass,
			FilesModified: coerceCount(task.FilesModified),
		})
	}

	if tc := facts.TeamConfig; tc != nil {
		category := tc.Pattern
		if category == "" {
			category = CategoryUnknown
		}
		size := tc.Size
		if size == 0 {
			size = len(tc.Agents)
		}
		domain := tc.Domain
		if domain == "" {
			domain = DefaultTeamDomain
		}
		add(TypeTeam, category, TeamData{
			Pattern:     category,
			SuccessRate: tc.SuccessRate,
			DurationMs:  tc.DurationMs,
			Size:        size,
			Domain:      domain,
		})
	}

	return out
}

// coerceCount turns a loosely-typed filesModified value into a count: array
// length, a non-negative number, or 0.
func coerceCount(v any) int {
	switch val := v.(type) {
	case nil:
		return 0
	case []any:
		return len(val)
	case []string:
		return len(val)
	case int:
		if val > 0 {
			return val
		}
	case float64:
		if val > 0 {
			return int(val)
		}
	}
	return 0
}
