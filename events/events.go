// Package events defines the engine's outbound notification stream:
// compaction results, failures, threshold alerts, and masking reports.
package events

import (
	"sync"

	"github.com/rs/zerolog"
)

// Type identifies an event kind.
type Type string

const (
	// CompactionEvent is emitted after a successful compaction.
	CompactionEvent Type = "compaction_event"

	// CompactionAlert is emitted when a session crosses the compaction
	// threshold but auto-compaction is off.
	CompactionAlert Type = "compaction_alert"

	// CompactionFailed is emitted when a compaction attempt errored and the
	// session was left untouched.
	CompactionFailed Type = "compaction_failed"

	// MaskingApplied is emitted when masking replaced at least one
	// observation.
	MaskingApplied Type = "masking_applied"
)

// Payload carries event fields. Values must be plain data; emitters may
// serialize them.
type Payload map[string]any

// Emitter receives engine events. Implementations must be safe for
// concurrent use and must not block the request path.
type Emitter interface {
	Emit(sessionID string, typ Type, payload Payload)
}

// NopEmitter discards all events.
type NopEmitter struct{}

func (NopEmitter) Emit(string, Type, Payload) {}

// LogEmitter writes events as structured log lines.
type LogEmitter struct {
	logger zerolog.Logger
}

// NewLogEmitter creates an emitter backed by the given logger.
func NewLogEmitter(logger zerolog.Logger) *LogEmitter {
	return &LogEmitter{logger: logger}
}

func (e *LogEmitter) Emit(sessionID string, typ Type, payload Payload) {
	evt := e.logger.Info()
	if typ == CompactionFailed {
		evt = e.logger.Error()
	}
	evt.Str("session_id", sessionID).Str("event", string(typ)).Fields(map[string]any(payload)).Msg("engine event")
}

// Multi fans events out to several emitters in order.
type Multi struct {
	emitters []Emitter
}

// NewMulti creates a fan-out emitter. Nil entries are skipped.
func NewMulti(emitters ...Emitter) *Multi {
	m := &Multi{}
	for _, e := range emitters {
		if e != nil {
			m.emitters = append(m.emitters, e)
		}
	}
	return m
}

func (m *Multi) Emit(sessionID string, typ Type, payload Payload) {
	for _, e := range m.emitters {
		e.Emit(sessionID, typ, payload)
	}
}

// Recorder is an Emitter that keeps everything it receives. Intended for
// tests and diagnostics.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
}

// Recorded is one captured event.
type Recorded struct {
	SessionID string
	Type      Type
	Payload   Payload
}

func (r *Recorder) Emit(sessionID string, typ Type, payload Payload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Recorded{SessionID: sessionID, Type: typ, Payload: payload})
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Recorded, len(r.events))
	copy(out, r.events)
	return out
}

// ByType returns recorded events of one kind.
func (r *Recorder) ByType(typ Type) []Recorded {
	var out []Recorded
	for _, e := range r.Events() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
