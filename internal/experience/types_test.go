package experience

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExperience_JSONRoundTrip(t *testing.T) {
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		exp  Experience
	}{
		{
			name: "tool",
			exp: Experience{
				ID: "e1", Type: TypeTool, Category: "Read",
				SessionID: "sess-1", Timestamp: ts,
				Data: ToolData{Tool: "Read", Calls: 10, Successes: 8,
					TotalMs: 1500, SuccessRate: 0.8, AvgMs: 150},
			},
		},
		{
			name: "error",
			exp: Experience{
				ID: "e2", Type: TypeError, Category: "timeout", Timestamp: ts,
				Data: ErrorData{ErrorType: "timeout", Code: "E_TIMEOUT",
					Message: "deadline exceeded", Recoverable: boolPtr(true)},
			},
		},
		{
			name: "success",
			exp: Experience{
				ID: "e3", Type: TypeSuccess, Category: "refactor", Timestamp: ts,
				Data: SuccessData{TaskType: "refactor", DurationMs: 4000,
					TestsPass: boolPtr(false), FilesModified: 2},
			},
		},
		{
			name: "team",
			exp: Experience{
				ID: "e4", Type: TypeTeam, Category: "pair", Timestamp: ts,
				Data: TeamData{Pattern: "pair", SuccessRate: 0.9,
					DurationMs: 60000, Size: 2, Domain: "backend"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.exp)
			require.NoError(t, err)

			var got Experience
			require.NoError(t, json.Unmarshal(data, &got))
			assert.Equal(t, tt.exp, got)
		})
	}
}

func TestExperience_UnknownTypeRoundTrips(t *testing.T) {
	in := []byte(`{"id":"e5","type":"handoff","category":"review",` +
		`"data":{"from":"coder","to":"reviewer"},` +
		`"timestamp":"2026-08-01T12:00:00Z"}`)

	var got Experience
	require.NoError(t, json.Unmarshal(in, &got))

	g, ok := got.Data.(GenericData)
	require.True(t, ok)
	assert.Equal(t, Type("handoff"), g.Kind())
	assert.Equal(t, "coder", g.Fields["from"])

	// Payload survives a second encode cycle.
	data, err := json.Marshal(got)
	require.NoError(t, err)
	var again Experience
	require.NoError(t, json.Unmarshal(data, &again))
	assert.Equal(t, got, again)
}

func TestExperience_MalformedPayload(t *testing.T) {
	in := []byte(`{"id":"e6","type":"tool","category":"Read","data":[1,2]}`)
	var got Experience
	assert.Error(t, json.Unmarshal(in, &got))
}
