package tokens

import (
	"encoding/json"
	"testing"

	"github.com/ctxgate/ctxgate/types"
)

func TestApproximate(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected int
	}{
		{
			name:     "empty string",
			content:  "",
			expected: 0,
		},
		{
			name:     "short string",
			content:  "hi",
			expected: 1, // (2 + 3) / 4 = 1
		},
		{
			name:     "4 chars",
			content:  "test",
			expected: 1, // (4 + 3) / 4 = 1
		},
		{
			name:     "8 chars",
			content:  "12345678",
			expected: 2, // (8 + 3) / 4 = 2
		},
		{
			name:     "longer text",
			content:  "This is a longer piece of text for testing token approximation.",
			expected: 16, // (63 + 3) / 4 = 16
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Approximate(tt.content)
			if got != tt.expected {
				t.Errorf("Approximate(%q) = %d, want %d", tt.content, got, tt.expected)
			}
		})
	}
}

func TestCounter_Count_fallback(t *testing.T) {
	c := NewCounter()

	messages := []types.Message{
		{Role: types.RoleUser, Content: "12345678"}, // 2 content tokens + 4 overhead
		{Role: types.RoleAssistant, Content: ""},    // overhead only
	}

	result := c.Count(messages, "")

	if !result.IsEstimated {
		t.Error("empty encoding should produce an estimated count")
	}
	if len(result.PerMessage) != 2 {
		t.Fatalf("PerMessage length = %d, want 2", len(result.PerMessage))
	}
	if result.PerMessage[0] != 6 {
		t.Errorf("PerMessage[0] = %d, want 6", result.PerMessage[0])
	}
	if result.PerMessage[1] != 4 {
		t.Errorf("PerMessage[1] = %d, want 4", result.PerMessage[1])
	}
	if result.Total != 10 {
		t.Errorf("Total = %d, want 10", result.Total)
	}
}

func TestCounter_Count_toolCallOverhead(t *testing.T) {
	c := NewCounter()

	args := json.RawMessage(`{"path":"main.go"}`) // 18 chars -> 5 tokens
	messages := []types.Message{
		{
			Role:      types.RoleAssistant,
			ToolCalls: []types.ToolCall{{ID: "c1", Name: "read_file", Arguments: args}},
		},
		{Role: types.RoleTool, ToolCallID: "c1", Content: "package main"}, // 12 chars -> 3
	}

	result := c.Count(messages, "")

	// assistant: 4 overhead + 10 call overhead + 3 (name, 9 chars) + 5 (args)
	if result.PerMessage[0] != 22 {
		t.Errorf("assistant tokens = %d, want 22", result.PerMessage[0])
	}
	// tool: 4 overhead + 3 content + 10 result overhead
	if result.PerMessage[1] != 17 {
		t.Errorf("tool result tokens = %d, want 17", result.PerMessage[1])
	}
}

func TestCounter_Count_unknownEncoding(t *testing.T) {
	c := NewCounter()

	result := c.Count([]types.Message{{Role: types.RoleUser, Content: "hello"}}, "no_such_encoding")
	if !result.IsEstimated {
		t.Error("unknown encoding should fall back to estimation")
	}

	// Second call exercises the remembered-failure path.
	again := c.Count([]types.Message{{Role: types.RoleUser, Content: "hello"}}, "no_such_encoding")
	if again.Total != result.Total {
		t.Errorf("repeated count differs: %d vs %d", again.Total, result.Total)
	}
}

func TestCounter_Count_empty(t *testing.T) {
	c := NewCounter()
	result := c.Count(nil, "")
	if result.Total != 0 || len(result.PerMessage) != 0 {
		t.Errorf("empty input should count to zero, got %+v", result)
	}
}
