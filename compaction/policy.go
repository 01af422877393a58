package compaction

import "fmt"

// Default policy values.
const (
	// DefaultThresholdPct triggers compaction at 85% of the model's context.
	DefaultThresholdPct = 85

	// DefaultPreserveMessages keeps the last 10 messages verbatim.
	DefaultPreserveMessages = 10
)

// Policy controls when compaction fires and how much recent history it
// preserves verbatim.
type Policy struct {
	// Enabled turns compaction on.
	Enabled bool `yaml:"enabled"`

	// ThresholdPct is the fraction of the model's context window, in
	// percent, above which compaction becomes applicable.
	ThresholdPct int `yaml:"threshold_pct"`

	// PreserveMessages is the number of trailing messages carried into the
	// compacted conversation unchanged.
	PreserveMessages int `yaml:"preserve_messages"`

	// ReservedTokens is headroom subtracted from the context window when
	// reporting utilization and savings targets. It does not move the
	// trigger threshold.
	ReservedTokens int `yaml:"reserved_tokens"`
}

// DefaultPolicy returns a compaction policy with sensible defaults.
func DefaultPolicy() Policy {
	return Policy{
		Enabled:          true,
		ThresholdPct:     DefaultThresholdPct,
		PreserveMessages: DefaultPreserveMessages,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (p *Policy) ApplyDefaults() {
	if p.ThresholdPct == 0 {
		p.ThresholdPct = DefaultThresholdPct
	}
	if p.PreserveMessages == 0 {
		p.PreserveMessages = DefaultPreserveMessages
	}
}

// Validate checks the policy and returns ErrInvalidPolicy describing the
// first problem found.
func (p Policy) Validate() error {
	if p.ThresholdPct < 1 || p.ThresholdPct > 100 {
		return fmt.Errorf("%w: threshold_pct must be in [1, 100], got %d", ErrInvalidPolicy, p.ThresholdPct)
	}
	if p.PreserveMessages < 0 {
		return fmt.Errorf("%w: preserve_messages must be non-negative, got %d", ErrInvalidPolicy, p.PreserveMessages)
	}
	if p.ReservedTokens < 0 {
		return fmt.Errorf("%w: reserved_tokens must be non-negative, got %d", ErrInvalidPolicy, p.ReservedTokens)
	}
	return nil
}

// Threshold returns the token count at which compaction becomes applicable
// for the given context window.
func (p Policy) Threshold(maxContext int) int {
	return maxContext * p.ThresholdPct / 100
}
