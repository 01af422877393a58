package compaction

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ctxgate/ctxgate/tokens"
	"github.com/ctxgate/ctxgate/types"
)

func chat(n int) []types.Message {
	var msgs []types.Message
	for i := 0; i < n; i++ {
		msgs = append(msgs,
			types.Message{ID: fmt.Sprintf("u%d", i), Role: types.RoleUser, Content: fmt.Sprintf("user message %d with a bit of padding text", i)},
			types.Message{ID: fmt.Sprintf("a%d", i), Role: types.RoleAssistant, Content: fmt.Sprintf("assistant reply %d with a bit of padding text", i)},
		)
	}
	return msgs
}

func testPolicy(thresholdPct, preserve int) Policy {
	return Policy{Enabled: true, ThresholdPct: thresholdPct, PreserveMessages: preserve}
}

func TestShouldCompact(t *testing.T) {
	tests := []struct {
		name         string
		tokenHint    int
		messageCount int
		maxContext   int
		policy       Policy
		want         bool
		wantReason   Reason
	}{
		{
			name:       "disabled",
			tokenHint:  1000, messageCount: 100, maxContext: 100,
			policy: Policy{Enabled: false, ThresholdPct: 85, PreserveMessages: 10},
			want:   false, wantReason: ReasonDisabled,
		},
		{
			name:      "below threshold",
			tokenHint: 84, messageCount: 100, maxContext: 100,
			policy: testPolicy(85, 10),
			want:   false, wantReason: ReasonInsufficientTokens,
		},
		{
			name:      "exactly at threshold",
			tokenHint: 85, messageCount: 100, maxContext: 100,
			policy: testPolicy(85, 10),
			want:   true, wantReason: ReasonThresholdExceeded,
		},
		{
			name:      "too little history",
			tokenHint: 99, messageCount: 11, maxContext: 100,
			policy: testPolicy(85, 10),
			want:   false, wantReason: ReasonNotEnoughHistory,
		},
		{
			name:      "just enough history",
			tokenHint: 99, messageCount: 12, maxContext: 100,
			policy: testPolicy(85, 10),
			want:   true, wantReason: ReasonThresholdExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := ShouldCompact(tt.tokenHint, tt.messageCount, tt.maxContext, tt.policy)
			if got != tt.want || reason != tt.wantReason {
				t.Errorf("ShouldCompact() = (%v, %s), want (%v, %s)", got, reason, tt.want, tt.wantReason)
			}
		})
	}
}

func TestCutIndex_neverSplitsToolTurn(t *testing.T) {
	msgs := []types.Message{
		{Role: types.RoleUser, Content: "start"},
		{Role: types.RoleAssistant, Content: "working"},
		{Role: types.RoleAssistant, ToolCalls: []types.ToolCall{{ID: "c1", Name: "grep"}, {ID: "c2", Name: "grep"}}},
		{Role: types.RoleTool, ToolCallID: "c1", Content: "match a"},
		{Role: types.RoleTool, ToolCallID: "c2", Content: "match b"},
		{Role: types.RoleUser, Content: "thanks"},
	}

	// preserve=3 would cut between the tool call and its second result;
	// the cut has to retreat to the assistant message.
	if got := cutIndex(msgs, 3); got != 2 {
		t.Errorf("cutIndex = %d, want 2", got)
	}
	// preserve=1 lands after the pair, no adjustment needed.
	if got := cutIndex(msgs, 1); got != 5 {
		t.Errorf("cutIndex = %d, want 5", got)
	}
}

func TestEngine_Execute(t *testing.T) {
	engine := NewEngine(tokens.NewCounter(), WithClock(func() time.Time {
		return time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	}))
	msgs := chat(10) // 20 messages
	policy := testPolicy(1, 4)

	res, err := engine.Execute("sess-1", msgs, policy, 100, "", TriggerManual, false)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if len(res.Messages) != 5 { // summary + 4 preserved
		t.Fatalf("compacted length = %d, want 5", len(res.Messages))
	}
	if res.Messages[0].Role != types.RoleAssistant {
		t.Errorf("summary role = %s, want assistant", res.Messages[0].Role)
	}
	if !strings.HasPrefix(res.Messages[0].Content, SummaryPrefix) {
		t.Errorf("summary content missing prefix: %q", res.Messages[0].Content)
	}
	if !types.EqualMessages(res.Messages[1:], msgs[16:]) {
		t.Error("preserved tail must be identical to the original tail")
	}
	if res.Record.MessagesRemoved != 16 {
		t.Errorf("MessagesRemoved = %d, want 16", res.Record.MessagesRemoved)
	}
	if res.Record.CompactedTokens >= res.Record.OriginalTokens {
		t.Errorf("compaction did not shrink: %d -> %d", res.Record.OriginalTokens, res.Record.CompactedTokens)
	}
	if res.Record.Trigger != TriggerManual {
		t.Errorf("Trigger = %s, want manual", res.Record.Trigger)
	}
	if res.Record.Timestamp.IsZero() || res.Record.ID.String() == "" {
		t.Error("record must carry an ID and a timestamp")
	}
}

func TestEngine_Execute_inputUntouched(t *testing.T) {
	engine := NewEngine(tokens.NewCounter())
	msgs := chat(8)
	before := types.CloneMessages(msgs)

	if _, err := engine.Execute("s", msgs, testPolicy(1, 2), 100, "", TriggerAuto, false); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !types.EqualMessages(msgs, before) {
		t.Error("Execute must not mutate the input slice")
	}
}

func TestEngine_Execute_notApplicable(t *testing.T) {
	engine := NewEngine(tokens.NewCounter())

	// Tiny conversation in a huge context: threshold not reached.
	_, err := engine.Execute("s", chat(3), testPolicy(85, 2), 200000, "", TriggerManual, false)
	if !errors.Is(err, ErrNotApplicable) {
		t.Fatalf("error = %v, want ErrNotApplicable", err)
	}

	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatal("error must be a *Error")
	}
	if cerr.Reason != ReasonInsufficientTokens {
		t.Errorf("Reason = %s, want insufficient_tokens", cerr.Reason)
	}
	if cerr.SessionID != "s" {
		t.Errorf("SessionID = %q, want s", cerr.SessionID)
	}
}

func TestEngine_Execute_forceSkipsChecks(t *testing.T) {
	engine := NewEngine(tokens.NewCounter())

	res, err := engine.Execute("s", chat(3), testPolicy(85, 2), 200000, "", TriggerManualForced, true)
	if err != nil {
		t.Fatalf("forced Execute() error = %v", err)
	}
	if res.Record.Trigger != TriggerManualForced {
		t.Errorf("Trigger = %s, want manual_forced", res.Record.Trigger)
	}
}

type failingBuilder struct{}

func (failingBuilder) Build([]types.Message) (string, error) {
	return "", errors.New("builder blew up")
}

func TestEngine_Execute_summaryFailureLeavesInputAlone(t *testing.T) {
	engine := NewEngine(tokens.NewCounter(), WithSummaryBuilder(failingBuilder{}))
	msgs := chat(8)
	before := types.CloneMessages(msgs)

	res, err := engine.Execute("s", msgs, testPolicy(1, 2), 100, "", TriggerAuto, false)
	if !errors.Is(err, ErrSummaryFailed) {
		t.Fatalf("error = %v, want ErrSummaryFailed", err)
	}
	if res != nil {
		t.Error("failed Execute must not return a result")
	}
	if !types.EqualMessages(msgs, before) {
		t.Error("failed Execute must leave the input unchanged")
	}
}

func TestEngine_Preview(t *testing.T) {
	engine := NewEngine(tokens.NewCounter())
	msgs := chat(10)
	before := types.CloneMessages(msgs)

	est := engine.Preview(msgs, testPolicy(1, 4), 100, "")

	if !est.CanCompact {
		t.Fatalf("CanCompact = false, reason %s", est.Reason)
	}
	if est.Reason != ReasonThresholdExceeded {
		t.Errorf("Reason = %s, want threshold_exceeded", est.Reason)
	}
	if est.OriginalTokens <= 0 {
		t.Error("OriginalTokens must be positive")
	}
	if est.EstimatedCompactedTokens <= 0 || est.EstimatedCompactedTokens >= est.OriginalTokens+1025 {
		t.Errorf("implausible EstimatedCompactedTokens = %d", est.EstimatedCompactedTokens)
	}
	if len(est.SampleMessages) == 0 || len(est.SampleMessages) > summarySampleLimit {
		t.Errorf("SampleMessages length = %d", len(est.SampleMessages))
	}
	if !types.EqualMessages(msgs, before) {
		t.Error("Preview must not mutate the input")
	}
}

func TestEngine_Preview_notApplicable(t *testing.T) {
	engine := NewEngine(tokens.NewCounter())

	est := engine.Preview(chat(2), testPolicy(85, 10), 200000, "")
	if est.CanCompact {
		t.Error("tiny conversation must not be compactable")
	}
	if est.Reason != ReasonInsufficientTokens {
		t.Errorf("Reason = %s, want insufficient_tokens", est.Reason)
	}
}

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		wantErr bool
	}{
		{"defaults", DefaultPolicy(), false},
		{"zero threshold", Policy{ThresholdPct: 0, PreserveMessages: 1}, true},
		{"threshold over 100", Policy{ThresholdPct: 101}, true},
		{"negative preserve", Policy{ThresholdPct: 85, PreserveMessages: -1}, true},
		{"negative reserved", Policy{ThresholdPct: 85, ReservedTokens: -5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPolicy_Threshold(t *testing.T) {
	p := testPolicy(85, 10)
	if got := p.Threshold(200000); got != 170000 {
		t.Errorf("Threshold(200000) = %d, want 170000", got)
	}
	if got := p.Threshold(100); got != 85 {
		t.Errorf("Threshold(100) = %d, want 85", got)
	}
}
