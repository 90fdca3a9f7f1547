package models

import "time"

// TraceStep is one structured event recorded while processing a
// request. Timestamp comes from time.Now and therefore carries both
// the wall clock and Go's monotonic reading.
type TraceStep struct {
	Timestamp time.Time      `json:"timestamp"`
	Component string         `json:"component"`
	Event     string         `json:"event"`
	Details   map[string]any `json:"details,omitempty"`
}

// Session is server-side conversation state. Messages are append-only
// within a process lifetime except for the summarizer's atomic prefix
// replacement. MessageCount grows monotonically and always equals
// len(Messages) + SummaryCovered.
type Session struct {
	ID             string      `json:"session_id"`
	AgentID        string      `json:"agent_id"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	Messages       []Message   `json:"messages"`
	Summary        string      `json:"summary,omitempty"`
	SummaryCovered int         `json:"summary_covered"`
	MessageCount   int         `json:"message_count"`
	Trace          []TraceStep `json:"trace,omitempty"`
}
