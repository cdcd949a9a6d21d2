package experience

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type discriminates experience payload variants.
type Type string

const (
	// TypeTool summarizes one tool's usage within a session.
	TypeTool Type = "tool"

	// TypeError records one error the session hit.
	TypeError Type = "error"

	// TypeSuccess records one completed task.
	TypeSuccess Type = "success"

	// TypeTeam records the session's team composition, at most one per
	// session.
	TypeTeam Type = "team"
)

// Data is the tagged payload of an experience. Scoring dispatches on the
// concrete variant.
type Data interface {
	Kind() Type
}

// ToolData aggregates one tool's calls within a session.
type ToolData struct {
	Tool        string  `json:"tool"`
	Calls       int     `json:"calls"`
	Successes   int     `json:"successes"`
	TotalMs     float64 `json:"totalMs"`
	SuccessRate float64 `json:"successRate"`
	AvgMs       float64 `json:"avgMs"`
}

// Kind implements Data.
func (ToolData) Kind() Type { return TypeTool }

// ErrorData describes one error. Recoverable is tri-state: nil means the
// session did not report either way.
type ErrorData struct {
	ErrorType   string `json:"errorType,omitempty"`
	Code        string `json:"code,omitempty"`
	Message     string `json:"message,omitempty"`
	Recoverable *bool  `json:"recoverable,omitempty"`
}

// Kind implements Data.
func (ErrorData) Kind() Type { return TypeError }

// SuccessData describes one completed task. TestsPass is tri-state.
type SuccessData struct {
	TaskType      string  `json:"taskType"`
	DurationMs    float64 `json:"durationMs"`
	TestsPass     *bool   `json:"testsPass,omitempty"`
	FilesModified int     `json:"filesModified"`
}

// Kind implements Data.
func (SuccessData) Kind() Type { return TypeSuccess }

// TeamData describes the session's team configuration.
type TeamData struct {
	Pattern     string  `json:"pattern"`
	SuccessRate float64 `json:"successRate"`
	DurationMs  float64 `json:"durationMs"`
	Size        int     `json:"size"`
	Domain      string  `json:"domain"`
}

// Kind implements Data.
func (TeamData) Kind() Type { return TypeTeam }

// GenericData carries payloads of types this build does not know. It keeps
// unknown experiences round-tripping through storage without loss.
type GenericData struct {
	Type   Type           `json:"-"`
	Fields map[string]any `json:"-"`
}

// Kind implements Data.
func (g GenericData) Kind() Type { return g.Type }

// Experience is one normalized session fact.
type Experience struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Category  string    `json:"category"`
	Data      Data      `json:"data"`
	SessionID string    `json:"sessionId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// envelope is the storage encoding of an Experience; Data is decoded per
// the type tag.
type envelope struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Category  string          `json:"category"`
	Data      json.RawMessage `json:"data"`
	SessionID string          `json:"sessionId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// MarshalData encodes a payload variant for storage. GenericData encodes
// as its raw field map.
func MarshalData(d Data) (json.RawMessage, error) {
	var payload any = d
	if g, ok := d.(GenericData); ok {
		payload = g.Fields
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s experience data: %w", d.Kind(), err)
	}
	return raw, nil
}

// UnmarshalData decodes a stored payload into the variant selected by the
// type tag. Unknown types decode into GenericData.
func UnmarshalData(t Type, raw json.RawMessage) (Data, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	var payload Data
	var err error
	switch t {
	case TypeTool:
		var d ToolData
		err = json.Unmarshal(raw, &d)
		payload = d
	case TypeError:
		var d ErrorData
		err = json.Unmarshal(raw, &d)
		payload = d
	case TypeSuccess:
		var d SuccessData
		err = json.Unmarshal(raw, &d)
		payload = d
	case TypeTeam:
		var d TeamData
		err = json.Unmarshal(raw, &d)
		payload = d
	default:
		g := GenericData{Type: t, Fields: map[string]any{}}
		if len(raw) > 0 {
			err = json.Unmarshal(raw, &g.Fields)
		}
		payload = g
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s experience data: %w", t, err)
	}
	return payload, nil
}

// MarshalJSON implements json.Marshaler.
func (e Experience) MarshalJSON() ([]byte, error) {
	raw, err := MarshalData(e.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{
		ID:        e.ID,
		Type:      e.Type,
		Category:  e.Category,
		Data:      raw,
		SessionID: e.SessionID,
		Timestamp: e.Timestamp,
	})
}

// UnmarshalJSON implements json.Unmarshaler, decoding the payload variant
// selected by the type tag. Unknown types decode into GenericData.
func (e *Experience) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	payload, err := UnmarshalData(env.Type, env.Data)
	if err != nil {
		return err
	}

	e.ID = env.ID
	e.Type = env.Type
	e.Category = env.Category
	e.Data = payload
	e.SessionID = env.SessionID
	e.Timestamp = env.Timestamp
	return nil
}
