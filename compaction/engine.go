// Package compaction replaces the head of a long conversation with a single
// summary message once the token count crosses a configured share of the
// model's context window.
//
// The engine is pure with respect to its inputs: Preview and ShouldCompact
// never mutate anything, and Execute returns a fresh message list without
// touching the one passed in. Session locking and persistence live with the
// caller.
package compaction

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ctxgate/ctxgate/tokens"
	"github.com/ctxgate/ctxgate/turns"
	"github.com/ctxgate/ctxgate/types"
)

// Reason explains a ShouldCompact decision.
type Reason string

const (
	// ReasonInsufficientTokens means the token count is below the trigger
	// threshold.
	ReasonInsufficientTokens Reason = "insufficient_tokens"

	// ReasonNotEnoughHistory means the conversation is too short to leave
	// anything worth summarizing after the preserved tail.
	ReasonNotEnoughHistory Reason = "not_enough_history"

	// ReasonThresholdExceeded means compaction is applicable.
	ReasonThresholdExceeded Reason = "threshold_exceeded"

	// ReasonDisabled means the policy has compaction turned off.
	ReasonDisabled Reason = "disabled"
)

// Trigger records what initiated a compaction.
type Trigger string

const (
	// TriggerManual is an operator-requested compaction.
	TriggerManual Trigger = "manual"

	// TriggerManualForced is an operator-requested compaction that skipped
	// the applicability checks.
	TriggerManualForced Trigger = "manual_forced"

	// TriggerAuto is a compaction started by the auto-compaction controller.
	TriggerAuto Trigger = "auto"
)

// SummaryPrefix frames every generated summary message.
const SummaryPrefix = "Summary of previous context:\n"

// Record is the durable audit entry for one completed compaction.
type Record struct {
	ID              uuid.UUID `json:"id"`
	SessionID       string    `json:"session_id"`
	Timestamp       time.Time `json:"timestamp"`
	OriginalTokens  int       `json:"original_tokens"`
	CompactedTokens int       `json:"compacted_tokens"`
	Ratio           float64   `json:"ratio"`
	Trigger         Trigger   `json:"trigger"`
	MessagesRemoved int       `json:"messages_removed"`
}

// Estimate is a dry-run answer: what compaction would do, without doing it.
type Estimate struct {
	CanCompact               bool     `json:"can_compact"`
	Reason                   Reason   `json:"reason"`
	OriginalTokens           int      `json:"original_tokens"`
	EstimatedCompactedTokens int      `json:"estimated_compacted_tokens"`
	TokensSaved              int      `json:"tokens_saved"`
	SavingsPct               float64  `json:"savings_pct"`
	SampleMessages           []string `json:"sample_messages,omitempty"`
}

// Result is a completed compaction: the new message list plus its record.
type Result struct {
	Messages []types.Message
	Record   Record
	Summary  string
}

// SummaryBuilder produces the summary text that stands in for removed
// messages.
type SummaryBuilder interface {
	Build(messages []types.Message) (string, error)
}

// Logger is the minimal logging interface the engine needs. The zero
// value of the engine logs nowhere.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Engine performs conversation compaction.
type Engine struct {
	counter *tokens.Counter
	builder SummaryBuilder
	logger  Logger
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithSummaryBuilder replaces the default heuristic summary builder.
func WithSummaryBuilder(b SummaryBuilder) Option {
	return func(e *Engine) { e.builder = b }
}

// WithLogger sets the engine logger.
func WithLogger(l Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides the record timestamp source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a compaction engine backed by the given token counter.
func NewEngine(counter *tokens.Counter, opts ...Option) *Engine {
	e := &Engine{
		counter: counter,
		builder: HeuristicBuilder{},
		logger:  nopLogger{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ShouldCompact decides whether compaction is applicable. tokenHint is the
// caller's current token count for the conversation; the decision reads no
// session state and takes no locks.
func ShouldCompact(tokenHint, messageCount, maxContext int, policy Policy) (bool, Reason) {
	if !policy.Enabled {
		return false, ReasonDisabled
	}
	if tokenHint < policy.Threshold(maxContext) {
		return false, ReasonInsufficientTokens
	}
	// The preserved tail plus at least two removable messages, otherwise
	// there is nothing worth summarizing.
	if messageCount < policy.PreserveMessages+2 {
		return false, ReasonNotEnoughHistory
	}
	return true, ReasonThresholdExceeded
}

// cutIndex returns the index of the first preserved message. It starts
// preserve messages from the end and walks backward over tool results so a
// tool call and its results always land on the same side of the cut.
func cutIndex(messages []types.Message, preserve int) int {
	cut := len(messages) - preserve
	if cut < 0 {
		cut = 0
	}
	for cut > 0 && messages[cut].Role == types.RoleTool {
		cut--
	}
	return cut
}

// summarySampleLimit bounds how many removed messages Preview echoes back.
const summarySampleLimit = 3

// Preview estimates what compaction would achieve without mutating anything.
func (e *Engine) Preview(messages []types.Message, policy Policy, maxContext int, encoding string) Estimate {
	policy.ApplyDefaults()

	counted := e.counter.Count(messages, encoding)
	est := Estimate{OriginalTokens: counted.Total}

	ok, reason := ShouldCompact(counted.Total, len(messages), maxContext, policy)
	est.Reason = reason
	if !ok {
		return est
	}

	cut := cutIndex(messages, policy.PreserveMessages)
	if cut == 0 {
		est.Reason = ReasonNotEnoughHistory
		return est
	}
	est.CanCompact = true

	// Tokens of the preserved tail plus an estimated summary size.
	tailTokens := 0
	for _, n := range counted.PerMessage[cut:] {
		tailTokens += n
	}
	est.EstimatedCompactedTokens = tailTokens + estimateSummaryTokens(cut)
	est.TokensSaved = est.OriginalTokens - est.EstimatedCompactedTokens
	if est.TokensSaved < 0 {
		est.TokensSaved = 0
	}
	if est.OriginalTokens > 0 {
		est.SavingsPct = float64(est.TokensSaved) / float64(est.OriginalTokens) * 100
	}

	for i := 0; i < cut && i < summarySampleLimit; i++ {
		est.SampleMessages = append(est.SampleMessages, truncateSample(messages[i]))
	}
	return est
}

// estimateSummaryTokens sizes the not-yet-built summary for previews: a base
// cost plus a little per removed message, capped.
func estimateSummaryTokens(removed int) int {
	est := 200 + 8*removed
	if est > 1024 {
		est = 1024
	}
	return est
}

const sampleChars = 80

func truncateSample(m types.Message) string {
	content := m.Content
	if content == "" && m.HasToolCalls() {
		content = "[tool call: " + m.ToolCalls[0].Name + "]"
	}
	content = strings.ReplaceAll(content, "\n", " ")
	if len(content) > sampleChars {
		content = content[:sampleChars] + "..."
	}
	return string(m.Role) + ": " + content
}

// Execute compacts the conversation and returns the new message list plus a
// record. When force is false the applicability checks run first and a
// not-applicable request returns an *Error wrapping ErrNotApplicable. The
// input slice is never modified; on any error the caller's conversation is
// exactly what it was.
func (e *Engine) Execute(sessionID string, messages []types.Message, policy Policy, maxContext int, encoding string, trigger Trigger, force bool) (*Result, error) {
	policy.ApplyDefaults()

	counted := e.counter.Count(messages, encoding)
	if !force {
		if ok, reason := ShouldCompact(counted.Total, len(messages), maxContext, policy); !ok {
			e.logger.Debug("compaction not applicable",
				"session_id", sessionID, "reason", string(reason), "tokens", counted.Total)
			return nil, notApplicable("execute", reason).WithSession(sessionID)
		}
	}

	cut := cutIndex(messages, policy.PreserveMessages)
	if cut == 0 {
		return nil, notApplicable("execute", ReasonNotEnoughHistory).WithSession(sessionID)
	}

	if n := orphanedAfterCut(messages, cut); n > 0 {
		e.logger.Warn("preserved tail contains orphan tool results",
			"session_id", sessionID, "orphans", n)
	}

	summary, err := e.builder.Build(messages[:cut])
	if err != nil {
		e.logger.Error("summary generation failed", "session_id", sessionID, "error", err)
		return nil, &Error{Op: "execute", SessionID: sessionID, Err: ErrSummaryFailed}
	}

	summaryMsg := types.Message{
		ID:      uuid.NewString(),
		Role:    types.RoleAssistant,
		Content: SummaryPrefix + summary,
	}

	compacted := make([]types.Message, 0, 1+len(messages)-cut)
	compacted = append(compacted, summaryMsg)
	compacted = append(compacted, types.CloneMessages(messages[cut:])...)

	after := e.counter.Count(compacted, encoding)
	record := Record{
		ID:              uuid.New(),
		SessionID:       sessionID,
		Timestamp:       e.now().UTC(),
		OriginalTokens:  counted.Total,
		CompactedTokens: after.Total,
		Trigger:         trigger,
		MessagesRemoved: cut,
	}
	if counted.Total > 0 {
		record.Ratio = float64(after.Total) / float64(counted.Total)
	}

	e.logger.Info("compaction complete",
		"session_id", sessionID,
		"trigger", string(trigger),
		"original_tokens", record.OriginalTokens,
		"compacted_tokens", record.CompactedTokens,
		"messages_removed", record.MessagesRemoved)

	return &Result{Messages: compacted, Record: record, Summary: summary}, nil
}

// orphanedAfterCut reports tool results in the preserved tail whose calls
// were removed. The cut walk prevents this for well-formed histories; it can
// still happen when the inbound history was malformed to begin with.
func orphanedAfterCut(messages []types.Message, cut int) int {
	seg := turns.Segment(messages[cut:])
	return len(seg.OrphanIndices)
}
