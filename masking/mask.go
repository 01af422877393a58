package masking

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ctxgate/ctxgate/turns"
	"github.com/ctxgate/ctxgate/types"
)

// Report summarizes what one Mask call did. Emitted as the payload of
// masking-applied notifications.
type Report struct {
	// MaskedResults is the number of observations replaced with placeholders.
	MaskedResults int

	// CharsRemoved is the total original character count of the replaced
	// observations minus the rendered placeholder sizes.
	CharsRemoved int

	// KeptErrors is the number of observations preserved by the error
	// heuristic.
	KeptErrors int

	// Orphans is the number of tool-result messages outside any turn.
	Orphans int
}

// Mask replaces old tool observations with placeholders according to policy.
// The returned list has the same length, order, roles, and IDs as the input.
func Mask(messages []types.Message, policy Policy) []types.Message {
	masked, _ := MaskWithReport(messages, policy)
	return masked
}

// MaskWithReport is Mask plus a Report of what changed.
//
// The transform is derived fresh from the input on every call: masking an
// already-masked list yields the identical list, and a disabled policy
// returns the input untouched.
func MaskWithReport(messages []types.Message, policy Policy) ([]types.Message, Report) {
	if !policy.Enabled {
		return messages, Report{}
	}
	policy.ApplyDefaults()

	seg := turns.Segment(messages)
	report := Report{Orphans: len(seg.OrphanIndices)}

	// The last WindowTurns turns are fresh and exempt.
	freshFrom := len(seg.Turns) - policy.WindowTurns
	if freshFrom < 0 {
		freshFrom = 0
	}

	toolNames := seg.ToolNameByResult(messages)

	// Collect maskable candidates in chronological order: results in stale
	// turns, minus error-looking content when KeepErrors is set.
	var candidates []int
	for _, turn := range seg.Turns {
		if turn.Index >= freshFrom {
			continue
		}
		for _, ri := range turn.ToolResultIndices {
			if policy.KeepErrors && LooksLikeError(messages[ri].Content) {
				report.KeptErrors++
				continue
			}
			candidates = append(candidates, ri)
		}
	}

	// Per tool name, the K most-recent candidates survive.
	keep := make(map[int]bool)
	if policy.KeepLastKPerTool > 0 {
		kept := make(map[string]int)
		for i := len(candidates) - 1; i >= 0; i-- {
			ri := candidates[i]
			name := toolNames[ri]
			if kept[name] < policy.KeepLastKPerTool {
				kept[name]++
				keep[ri] = true
			}
		}
	}

	out := messages
	copied := false
	for _, ri := range candidates {
		if keep[ri] {
			continue
		}
		original := messages[ri].Content
		name := toolNames[ri]
		callID := messages[ri].ToolCallID

		// Already a placeholder from a previous pass: leave as-is so
		// mask(mask(M)) == mask(M).
		if isPlaceholder(original, policy.PlaceholderTemplate, callID, name) {
			continue
		}

		if !copied {
			out = types.CloneMessages(messages)
			copied = true
		}
		placeholder := RenderPlaceholder(policy.PlaceholderTemplate, callID, name, len(original))
		out[ri].Content = placeholder
		report.MaskedResults++
		report.CharsRemoved += len(original) - len(placeholder)
	}

	return out, report
}

// errorMarkers are matched case-insensitively anywhere in an observation.
var errorMarkers = []string{"traceback", "exception", "timeout"}

// LooksLikeError reports whether an observation appears to describe a
// failure: a stack trace, an exception, a timeout, or a JSON object carrying
// an "error" key.
func LooksLikeError(content string) bool {
	lower := strings.ToLower(content)
	for _, marker := range errorMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	if parsed := gjson.Parse(content); parsed.IsObject() && parsed.Get("error").Exists() {
		return true
	}
	return false
}
