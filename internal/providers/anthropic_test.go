package providers

import (
	"encoding/json"
	"testing"

	"github.com/prismllm/prism/pkg/models"
)

func TestToAnthropicMessagesMergesToolResults(t *testing.T) {
	history := []models.Message{
		{Role: models.RoleUser, Content: "run both tools"},
		{
			Role: models.RoleAssistant,
			ToolCalls: []models.ToolCall{
				{ID: "call-1", Name: "get_current_time", Arguments: map[string]any{}},
				{ID: "call-2", Name: "get_system_info", Arguments: map[string]any{}},
			},
		},
		{Role: models.RoleTool, Content: `{"time":"now"}`, ToolCallID: "call-1"},
		{Role: models.RoleTool, Content: `{"os":"linux"}`, ToolCallID: "call-2"},
	}

	out := toAnthropicMessages(history)

	// user, assistant, then one merged user message with both results
	if len(out) != 3 {
		t.Fatalf("got %d messages, want 3", len(out))
	}
	if len(out[2].Content) != 2 {
		t.Errorf("merged tool-result message has %d blocks, want 2", len(out[2].Content))
	}
}

func TestAnthropicSystemFoldsSummary(t *testing.T) {
	history := []models.Message{
		{Role: models.RoleSystem, Content: "Summary of earlier turns."},
		{Role: models.RoleUser, Content: "continue"},
	}

	system := anthropicSystem("be terse", history)
	if len(system) != 2 {
		t.Fatalf("got %d system blocks, want 2", len(system))
	}
	if system[0].Text != "be terse" || system[1].Text != "Summary of earlier turns." {
		t.Errorf("system blocks = %+v", system)
	}

	// System-role messages must not appear in the message list.
	msgs := toAnthropicMessages(history)
	if len(msgs) != 1 {
		t.Errorf("got %d messages, want 1 (system folded out)", len(msgs))
	}
}

func TestToAnthropicToolsRejectsBadSchema(t *testing.T) {
	tools := []models.ToolSchema{
		{Name: "broken", Parameters: json.RawMessage(`{not json`)},
	}
	if _, err := toAnthropicTools(tools); err == nil {
		t.Error("expected schema parse error")
	}
}

func TestToAnthropicTools(t *testing.T) {
	schema := json.RawMessage(`{"type":"object","properties":{"timezone":{"type":"string"}},"required":["timezone"]}`)
	tools := []models.ToolSchema{
		{Name: "get_current_time", Description: "Current time", Parameters: schema},
	}

	out, err := toAnthropicTools(tools)
	if err != nil {
		t.Fatalf("toAnthropicTools() = %v", err)
	}
	if len(out) != 1 || out[0].OfTool == nil {
		t.Fatalf("unexpected conversion result: %+v", out)
	}
	if out[0].OfTool.Name != "get_current_time" {
		t.Errorf("tool name = %q", out[0].OfTool.Name)
	}
}
