package ctxgate

import (
	"fmt"
)

// EngineError wraps failures from engine operations with the operation name
// and the session involved.
type EngineError struct {
	Op        string
	SessionID string
	Err       error
	Context   map[string]any
}

func (e *EngineError) Error() string {
	msg := fmt.Sprintf("ctxgate %s", e.Op)
	if e.SessionID != "" {
		msg += fmt.Sprintf(" (session %s)", e.SessionID)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// WithContext returns a copy of the error with one more context field.
func (e *EngineError) WithContext(key string, value any) *EngineError {
	clone := *e
	clone.Context = make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		clone.Context[k] = v
	}
	clone.Context[key] = value
	return &clone
}

func wrapErr(op, sessionID string, err error) *EngineError {
	return &EngineError{Op: op, SessionID: sessionID, Err: err}
}
