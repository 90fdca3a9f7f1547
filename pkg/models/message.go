// Package models defines the value types exchanged between the
// orchestrator, the session store, the provider adapters, and the HTTP
// surface. Everything here is JSON-serializable with RFC3339 timestamps.
package models

import (
	"encoding/json"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn in a conversation. Content may be empty for
// assistant turns that only request tools. ToolCalls is set only on
// assistant messages; ToolCallID only on tool messages. Messages are
// immutable once appended to a session.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// HasToolCalls reports whether the message requests tool executions.
func (m Message) HasToolCalls() bool { return len(m.ToolCalls) > 0 }

// ToolCall is a model-issued request to invoke a registered tool. The
// ID is stable within a session and ties the eventual tool-result
// message back to this call.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult carries the serialized return value of a tool execution
// back into the history as the body of a role=tool message.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// ToolSchema describes a registered tool for provider translation.
// Parameters holds a JSON-Schema document.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}
