package models

import "time"

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a structured request from the model to run a named tool.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Turn is one entry of a session's conversation history.
// Assistant turns may carry ToolCalls; tool turns carry the result for ToolCallID.
type Turn struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
	IsError    bool       `json:"is_error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Session is a read-only snapshot of an analysis session.
// Mutations go through the session store.
type Session struct {
	ID        string            `json:"id"`
	Dives     []Dive            `json:"dives"`
	Features  []DiveFeatures    `json:"features"`
	Ranking   []ProblematicDive `json:"ranking"`
	Excluded  []ExcludedDive    `json:"excluded,omitempty"`
	History   []Turn            `json:"history"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Dive returns the dive with the given id.
func (s Session) Dive(id string) (Dive, bool) {
	for _, d := range s.Dives {
		if d.ID == id {
			return d, true
		}
	}
	return Dive{}, false
}

// FeaturesFor returns the features computed for a dive.
func (s Session) FeaturesFor(id string) (DiveFeatures, bool) {
	for _, f := range s.Features {
		if f.DiveID == id {
			return f, true
		}
	}
	return DiveFeatures{}, false
}

// DiveIDs lists the analysed dive ids in log order.
func (s Session) DiveIDs() []string {
	ids := make([]string, 0, len(s.Features))
	for _, f := range s.Features {
		ids = append(ids, f.DiveID)
	}
	return ids
}
