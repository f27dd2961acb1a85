package models

import (
	"fmt"
	"math"
	"time"
)

// OutcomeKind enumerates the terminal results of an authentication attempt.
type OutcomeKind int

const (
	OutcomeMalformedRequest OutcomeKind = iota + 1
	OutcomeInvalidCredential
	OutcomeLocked
	OutcomeSuccess
	// OutcomeUnavailable is an infrastructure fault, not a security event.
	OutcomeUnavailable
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeMalformedRequest:
		return "malformed_request"
	case OutcomeInvalidCredential:
		return "invalid_credential"
	case OutcomeLocked:
		return "locked"
	case OutcomeSuccess:
		return "success"
	case OutcomeUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Outcome is the result of Guard.Authenticate. Only an outcome of kind
// OutcomeSuccess carries a user and may be used to issue a session.
type Outcome struct {
	Kind     OutcomeKind
	Identity string // normalized

	// Success
	UserID      string
	DisplayName string

	// InvalidCredential
	RemainingAttempts int

	// Locked
	LockoutDuration time.Duration
	// RetryAfter is the time left on the lock; 0 means unknown.
	RetryAfter time.Duration
	// NewlyLocked is true when this attempt is the one that crossed the threshold.
	NewlyLocked bool
	// AccountExists is true when the failure was a password mismatch on a stored record.
	AccountExists bool

	// Unavailable
	Err error
}

// Message maps the outcome to the text shown to the caller.
func (o Outcome) Message() string {
	switch o.Kind {
	case OutcomeMalformedRequest:
		return "Please enter email and password"
	case OutcomeInvalidCredential:
		return fmt.Sprintf("Invalid email or password. %d attempts remaining.", o.RemainingAttempts)
	case OutcomeLocked:
		return fmt.Sprintf("Account locked due to multiple failed login attempts. Try again in %d minutes.", lockoutMinutes(o.LockoutDuration))
	case OutcomeUnavailable:
		return "Authentication is temporarily unavailable. Please try again later."
	default:
		return ""
	}
}

// RetryAfterOrDuration returns RetryAfter when known and the full lockout
// duration otherwise.
func (o Outcome) RetryAfterOrDuration() time.Duration {
	if o.RetryAfter > 0 {
		return o.RetryAfter
	}
	return o.LockoutDuration
}

// Succeeded reports whether the outcome may be handed to a session issuer.
func (o Outcome) Succeeded() bool {
	return o.Kind == OutcomeSuccess
}

func lockoutMinutes(d time.Duration) int {
	minutes := int(math.Ceil(d.Minutes()))
	if minutes < 1 {
		return 1
	}
	return minutes
}
