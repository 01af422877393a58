package compaction

import (
	"errors"
	"fmt"
)

// Sentinel errors for the compaction engine.
var (
	// ErrInvalidPolicy indicates an invalid compaction policy.
	ErrInvalidPolicy = errors.New("invalid compaction policy")

	// ErrNotApplicable indicates that compaction was requested but its
	// preconditions do not hold. Carried inside an Error whose Reason field
	// says which precondition failed.
	ErrNotApplicable = errors.New("compaction not applicable")

	// ErrSummaryFailed indicates the summary could not be built. The
	// session is left untouched when this is returned.
	ErrSummaryFailed = errors.New("summary generation failed")
)

// Error is a structured compaction error carrying the operation, the
// session, and the no-op reason when applicable.
type Error struct {
	Op        string
	SessionID string
	Reason    Reason
	Err       error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("compaction %s", e.Op)
	if e.SessionID != "" {
		msg += fmt.Sprintf(" (session %s)", e.SessionID)
	}
	if e.Reason != "" {
		msg += fmt.Sprintf(": %s", e.Reason)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithSession returns a copy of the error bound to a session ID.
func (e *Error) WithSession(sessionID string) *Error {
	clone := *e
	clone.SessionID = sessionID
	return &clone
}

func notApplicable(op string, reason Reason) *Error {
	return &Error{Op: op, Reason: reason, Err: ErrNotApplicable}
}
