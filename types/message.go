// Package types defines the message model shared by all ctxgate components.
//
// A conversation is an ordered list of Messages in the flat tool-calling wire
// shape: assistant messages carry tool_calls, and each tool invocation is
// answered by a separate role=tool message referencing the call by
// tool_call_id. Messages are treated as immutable once appended; components
// that transform history (masking, compaction) operate on deep copies.
package types

import (
	"bytes"
	"encoding/json"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// ToolCall is a single tool invocation requested by an assistant message.
type ToolCall struct {
	// ID is the provider-assigned call identifier. The answering tool-result
	// message references it via Message.ToolCallID.
	ID string `json:"id"`

	// Name is the tool being invoked.
	Name string `json:"name"`

	// Arguments is the raw JSON argument payload.
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Message is a single entry in a conversation.
type Message struct {
	// ID is an optional caller-assigned message identifier.
	ID string `json:"id,omitempty"`

	// Role is the message author.
	Role Role `json:"role"`

	// Content is the textual payload. For tool-result messages this is the
	// observation: the output of the tool invocation.
	Content string `json:"content"`

	// ToolCalls is the ordered list of tool invocations requested by an
	// assistant message. Empty for all other roles.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a role=tool message to the tool_calls entry it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// HasToolCalls reports whether the message starts a tool turn.
func (m Message) HasToolCalls() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

// IsToolResult reports whether the message is a tool observation.
func (m Message) IsToolResult() bool {
	return m.Role == RoleTool
}

// Clone returns a deep copy of the message. Mutating the copy never affects
// the original, including the tool-call argument payloads.
func (m Message) Clone() Message {
	cp := m
	if m.ToolCalls != nil {
		cp.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			cp.ToolCalls[i] = tc
			if tc.Arguments != nil {
				cp.ToolCalls[i].Arguments = append(json.RawMessage(nil), tc.Arguments...)
			}
		}
	}
	return cp
}

// CloneMessages returns a deep copy of a message list.
func CloneMessages(messages []Message) []Message {
	if messages == nil {
		return nil
	}
	out := make([]Message, len(messages))
	for i, m := range messages {
		out[i] = m.Clone()
	}
	return out
}

// Equal reports whether two messages are byte-identical across all fields.
func Equal(a, b Message) bool {
	if a.ID != b.ID || a.Role != b.Role || a.Content != b.Content || a.ToolCallID != b.ToolCallID {
		return false
	}
	if len(a.ToolCalls) != len(b.ToolCalls) {
		return false
	}
	for i := range a.ToolCalls {
		if a.ToolCalls[i].ID != b.ToolCalls[i].ID || a.ToolCalls[i].Name != b.ToolCalls[i].Name {
			return false
		}
		if !bytes.Equal(a.ToolCalls[i].Arguments, b.ToolCalls[i].Arguments) {
			return false
		}
	}
	return true
}

// EqualMessages reports whether two message lists are byte-identical,
// element by element and in the same order.
func EqualMessages(a, b []Message) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
