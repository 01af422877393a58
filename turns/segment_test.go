package turns

import (
	"testing"

	"github.com/ctxgate/ctxgate/types"
)

func assistantWithCalls(ids ...string) types.Message {
	m := types.Message{Role: types.RoleAssistant}
	for _, id := range ids {
		m.ToolCalls = append(m.ToolCalls, types.ToolCall{ID: id, Name: "tool_" + id})
	}
	return m
}

func toolResult(callID, content string) types.Message {
	return types.Message{Role: types.RoleTool, ToolCallID: callID, Content: content}
}

func TestSegment_basicTurns(t *testing.T) {
	messages := []types.Message{
		{Role: types.RoleUser, Content: "do something"},
		assistantWithCalls("c1", "c2"),
		toolResult("c1", "out1"),
		toolResult("c2", "out2"),
		{Role: types.RoleAssistant, Content: "done with step one"},
		assistantWithCalls("c3"),
		toolResult("c3", "out3"),
		{Role: types.RoleUser, Content: "thanks"},
	}

	seg := Segment(messages)

	if len(seg.Turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(seg.Turns))
	}
	if seg.Turns[0].AssistantIndex != 1 {
		t.Errorf("turn 0 assistant index = %d, want 1", seg.Turns[0].AssistantIndex)
	}
	if got := seg.Turns[0].ToolResultIndices; len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Errorf("turn 0 result indices = %v, want [2 3]", got)
	}
	if got := seg.Turns[1].ToolResultIndices; len(got) != 1 || got[0] != 6 {
		t.Errorf("turn 1 result indices = %v, want [6]", got)
	}
	if len(seg.OrphanIndices) != 0 {
		t.Errorf("expected no orphans, got %v", seg.OrphanIndices)
	}
}

func TestSegment_orphanToolResults(t *testing.T) {
	messages := []types.Message{
		// Orphan before any assistant turn.
		toolResult("ghost", "stale output"),
		assistantWithCalls("c1"),
		toolResult("c1", "out1"),
		// Orphan inside the contiguous block: ID matches nothing.
		toolResult("wrong-id", "mystery"),
		{Role: types.RoleUser, Content: "next"},
	}

	seg := Segment(messages)

	if len(seg.Turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(seg.Turns))
	}
	if got := seg.Turns[0].ToolResultIndices; len(got) != 1 || got[0] != 2 {
		t.Errorf("result indices = %v, want [2]", got)
	}
	if len(seg.OrphanIndices) != 2 || seg.OrphanIndices[0] != 0 || seg.OrphanIndices[1] != 3 {
		t.Errorf("orphan indices = %v, want [0 3]", seg.OrphanIndices)
	}
}

func TestSegment_turnEndsAtNextAssistant(t *testing.T) {
	messages := []types.Message{
		assistantWithCalls("c1"),
		{Role: types.RoleAssistant, Content: "interrupting"},
		// Matches c1 but is no longer contiguous, so it is an orphan.
		toolResult("c1", "late output"),
	}

	seg := Segment(messages)

	if len(seg.Turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(seg.Turns))
	}
	if len(seg.Turns[0].ToolResultIndices) != 0 {
		t.Errorf("expected empty turn, got %v", seg.Turns[0].ToolResultIndices)
	}
	if len(seg.OrphanIndices) != 1 || seg.OrphanIndices[0] != 2 {
		t.Errorf("orphan indices = %v, want [2]", seg.OrphanIndices)
	}
}

func TestSegment_empty(t *testing.T) {
	seg := Segment(nil)
	if len(seg.Turns) != 0 || len(seg.OrphanIndices) != 0 {
		t.Errorf("expected empty segmentation, got %+v", seg)
	}
}

func TestToolNameByResult(t *testing.T) {
	messages := []types.Message{
		assistantWithCalls("c1", "c2"),
		toolResult("c2", "second"),
		toolResult("c1", "first"),
	}

	seg := Segment(messages)
	names := seg.ToolNameByResult(messages)

	if names[1] != "tool_c2" {
		t.Errorf("names[1] = %q, want tool_c2", names[1])
	}
	if names[2] != "tool_c1" {
		t.Errorf("names[2] = %q, want tool_c1", names[2])
	}
}

func TestTurnByResult(t *testing.T) {
	messages := []types.Message{
		assistantWithCalls("c1"),
		toolResult("c1", "a"),
		{Role: types.RoleUser, Content: "go on"},
		assistantWithCalls("c2"),
		toolResult("c2", "b"),
	}

	seg := Segment(messages)
	turnOf := seg.TurnByResult()

	if turnOf[1] != 0 {
		t.Errorf("turnOf[1] = %d, want 0", turnOf[1])
	}
	if turnOf[4] != 1 {
		t.Errorf("turnOf[4] = %d, want 1", turnOf[4])
	}
}
