package auth

import "fmt"

// Reason distinguishes authentication failures in logs and metrics. The
// client never sees it.
type Reason string

const (
	ReasonMissing     Reason = "missing"
	ReasonInvalid     Reason = "invalid"
	ReasonUnknownUser Reason = "unknown_user"
)

var (
	ErrMissing     = &Error{Reason: ReasonMissing}
	ErrInvalid     = &Error{Reason: ReasonInvalid}
	ErrUnknownUser = &Error{Reason: ReasonUnknownUser}
)

// Error is the typed outcome of a failed verification.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("auth: %s token", e.Reason)
	}
	return fmt.Sprintf("auth: %s token: %v", e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Reason so errors.Is(err, ErrInvalid) holds for any
// invalid-token failure regardless of cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Reason == e.Reason
}

func invalid(err error) *Error {
	return &Error{Reason: ReasonInvalid, Err: err}
}
