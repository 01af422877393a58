// Package masking implements windowed, policy-driven replacement of old tool
// observations with short placeholders.
//
// Masking is a pure transform: it never adds, removes, or reorders messages,
// and it never touches roles or tool-call pairings. It is re-derived from the
// inbound history on every request, which makes it stateless and idempotent
// with no persisted bookkeeping.
package masking

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidPolicy indicates an invalid masking policy. Policies are
// validated at load time, never inside a request.
var ErrInvalidPolicy = errors.New("invalid masking policy")

// DefaultPlaceholderTemplate is the placeholder rendered in place of masked
// observations. Substitution fields: {tool_call_id}, {tool_name},
// {original_chars}.
const DefaultPlaceholderTemplate = "[tool output pruned: {tool_name} call {tool_call_id}, {original_chars} chars]"

// DefaultWindowTurns is the number of most-recent tool turns exempt from
// masking.
const DefaultWindowTurns = 3

// Policy controls which observations are masked and what replaces them.
type Policy struct {
	// Enabled turns masking on. When false, Mask is an exact passthrough.
	Enabled bool `yaml:"enabled"`

	// WindowTurns is the number of most-recent tool turns whose observations
	// are never masked.
	WindowTurns int `yaml:"window_turns"`

	// KeepErrors preserves observations that look like errors (tracebacks,
	// exceptions, timeouts, JSON error objects) regardless of age.
	KeepErrors bool `yaml:"keep_errors"`

	// KeepLastKPerTool preserves the K most-recent maskable observations per
	// tool name, so at least some real output survives for every tool.
	KeepLastKPerTool int `yaml:"keep_last_k_per_tool"`

	// PlaceholderTemplate is the replacement text. Empty selects
	// DefaultPlaceholderTemplate.
	PlaceholderTemplate string `yaml:"placeholder_template"`
}

// DefaultPolicy returns a masking policy with sensible defaults.
func DefaultPolicy() Policy {
	return Policy{
		Enabled:             true,
		WindowTurns:         DefaultWindowTurns,
		KeepErrors:          true,
		KeepLastKPerTool:    1,
		PlaceholderTemplate: DefaultPlaceholderTemplate,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (p *Policy) ApplyDefaults() {
	if p.PlaceholderTemplate == "" {
		p.PlaceholderTemplate = DefaultPlaceholderTemplate
	}
}

// Validate checks the policy and returns ErrInvalidPolicy describing the
// first problem found.
func (p Policy) Validate() error {
	if p.WindowTurns < 0 {
		return fmt.Errorf("%w: window_turns must be non-negative, got %d", ErrInvalidPolicy, p.WindowTurns)
	}
	if p.KeepLastKPerTool < 0 {
		return fmt.Errorf("%w: keep_last_k_per_tool must be non-negative, got %d", ErrInvalidPolicy, p.KeepLastKPerTool)
	}
	if p.PlaceholderTemplate == "" {
		return fmt.Errorf("%w: placeholder_template is required", ErrInvalidPolicy)
	}
	return nil
}

// RenderPlaceholder renders template with the masking substitution fields.
// Rendering is deterministic and references no external state.
func RenderPlaceholder(template, toolCallID, toolName string, originalChars int) string {
	return strings.NewReplacer(
		"{tool_call_id}", toolCallID,
		"{tool_name}", toolName,
		"{original_chars}", strconv.Itoa(originalChars),
	).Replace(template)
}

// isPlaceholder reports whether content is template already rendered for the
// given call ID and tool name, with any integer in the {original_chars} slot.
// Used to keep re-masking idempotent when a masked list is fed back in.
func isPlaceholder(content, template, toolCallID, toolName string) bool {
	shape := strings.NewReplacer(
		"{tool_call_id}", toolCallID,
		"{tool_name}", toolName,
	).Replace(template)

	parts := strings.Split(shape, "{original_chars}")
	if len(parts) == 1 {
		return content == shape
	}

	rest := content
	for i, part := range parts {
		if !strings.HasPrefix(rest, part) {
			return false
		}
		rest = rest[len(part):]
		if i == len(parts)-1 {
			break
		}
		// Consume the integer standing in for {original_chars}.
		j := 0
		for j < len(rest) && rest[j] >= '0' && rest[j] <= '9' {
			j++
		}
		if j == 0 {
			return false
		}
		rest = rest[j:]
	}
	return rest == ""
}
