// Package turns groups a conversation into ordered tool turns.
//
// A tool turn is an assistant message carrying tool_calls plus the contiguous
// tool-result messages that answer it. Segmentation is derived on demand from
// a message list and never persisted; it is the structural foundation for
// observation masking and compaction boundary checks.
package turns

import (
	"github.com/ctxgate/ctxgate/types"
)

// ToolTurn is one assistant tool invocation round.
type ToolTurn struct {
	// Index is the chronological turn number, starting at 0.
	Index int

	// AssistantIndex is the position of the assistant message that opened
	// the turn in the source message list.
	AssistantIndex int

	// ToolResultIndices are the positions of the tool-result messages that
	// answer this turn's tool_calls, in order.
	ToolResultIndices []int
}

// Segmentation is the result of splitting a message list into tool turns.
type Segmentation struct {
	// Turns are the tool turns in chronological order.
	Turns []ToolTurn

	// OrphanIndices are positions of role=tool messages whose tool_call_id
	// matches no tool_calls entry of the turn they sit in. Orphans belong to
	// no turn and are exempt from masking and compaction boundary logic.
	OrphanIndices []int
}

// Segment splits messages into tool turns.
//
// A turn begins at an assistant message with non-empty tool_calls and
// includes every immediately-following tool-result message whose
// tool_call_id matches one of that assistant's call IDs. Any other message
// ends the turn. Tool-result messages with no matching call are orphans.
func Segment(messages []types.Message) Segmentation {
	var seg Segmentation
	claimed := make(map[int]bool)

	for i := 0; i < len(messages); i++ {
		m := messages[i]
		if !m.HasToolCalls() {
			continue
		}

		callIDs := make(map[string]bool, len(m.ToolCalls))
		for _, tc := range m.ToolCalls {
			callIDs[tc.ID] = true
		}

		turn := ToolTurn{Index: len(seg.Turns), AssistantIndex: i}
		j := i + 1
		for ; j < len(messages); j++ {
			if !messages[j].IsToolResult() {
				break
			}
			if callIDs[messages[j].ToolCallID] {
				turn.ToolResultIndices = append(turn.ToolResultIndices, j)
				claimed[j] = true
			}
			// Unmatched tool messages inside the block stay orphans but do
			// not end the turn.
		}
		seg.Turns = append(seg.Turns, turn)
		i = j - 1
	}

	for i, m := range messages {
		if m.IsToolResult() && !claimed[i] {
			seg.OrphanIndices = append(seg.OrphanIndices, i)
		}
	}

	return seg
}

// ToolNameByResult maps each claimed tool-result index to the name of the
// tool_calls entry that produced it.
func (s Segmentation) ToolNameByResult(messages []types.Message) map[int]string {
	names := make(map[int]string)
	for _, turn := range s.Turns {
		assistant := messages[turn.AssistantIndex]
		byCallID := make(map[string]string, len(assistant.ToolCalls))
		for _, tc := range assistant.ToolCalls {
			byCallID[tc.ID] = tc.Name
		}
		for _, ri := range turn.ToolResultIndices {
			names[ri] = byCallID[messages[ri].ToolCallID]
		}
	}
	return names
}

// TurnByResult maps each claimed tool-result index to its turn index.
func (s Segmentation) TurnByResult() map[int]int {
	turns := make(map[int]int)
	for _, turn := range s.Turns {
		for _, ri := range turn.ToolResultIndices {
			turns[ri] = turn.Index
		}
	}
	return turns
}
