package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOutcome_Message(t *testing.T) {
	tests := []struct {
		name    string
		outcome Outcome
		want    string
	}{
		{
			name:    "locked",
			outcome: Outcome{Kind: OutcomeLocked, LockoutDuration: 15 * time.Minute},
			want:    "Account locked due to multiple failed login attempts. Try again in 15 minutes.",
		},
		{
			name:    "locked rounds partial minutes up",
			outcome: Outcome{Kind: OutcomeLocked, LockoutDuration: 90 * time.Second},
			want:    "Account locked due to multiple failed login attempts. Try again in 2 minutes.",
		},
		{
			name:    "locked never reports zero minutes",
			outcome: Outcome{Kind: OutcomeLocked, LockoutDuration: time.Second},
			want:    "Account locked due to multiple failed login attempts. Try again in 1 minutes.",
		},
		{
			name:    "invalid credential",
			outcome: Outcome{Kind: OutcomeInvalidCredential, RemainingAttempts: 3},
			want:    "Invalid email or password. 3 attempts remaining.",
		},
		{
			name:    "malformed request",
			outcome: Outcome{Kind: OutcomeMalformedRequest},
			want:    "Please enter email and password",
		},
		{
			name:    "unavailable",
			outcome: Outcome{Kind: OutcomeUnavailable, Err: errors.New("boom")},
			want:    "Authentication is temporarily unavailable. Please try again later.",
		},
		{
			name:    "success",
			outcome: Outcome{Kind: OutcomeSuccess, UserID: "u1"},
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.outcome.Message())
		})
	}
}

func TestOutcome_Succeeded(t *testing.T) {
	assert.True(t, Outcome{Kind: OutcomeSuccess}.Succeeded())
	assert.False(t, Outcome{Kind: OutcomeLocked}.Succeeded())
	assert.False(t, Outcome{Kind: OutcomeUnavailable}.Succeeded())
}

func TestOutcomeKind_String(t *testing.T) {
	assert.Equal(t, "success", OutcomeSuccess.String())
	assert.Equal(t, "locked", OutcomeLocked.String())
	assert.Equal(t, "invalid_credential", OutcomeInvalidCredential.String())
	assert.Equal(t, "malformed_request", OutcomeMalformedRequest.String())
	assert.Equal(t, "unavailable", OutcomeUnavailable.String())
	assert.Equal(t, "unknown", OutcomeKind(0).String())
}

func TestAttemptState_LockWindow(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Minute)
	past := now.Add(-time.Minute)

	var nilState *AttemptState
	assert.False(t, nilState.IsLockedAt(now))
	assert.False(t, nilState.LockExpiredAt(now))

	unlocked := &AttemptState{FailureCount: 2}
	assert.False(t, unlocked.IsLockedAt(now))
	assert.False(t, unlocked.LockExpiredAt(now))

	locked := &AttemptState{FailureCount: 5, LockedUntil: &future}
	assert.True(t, locked.IsLockedAt(now))
	assert.False(t, locked.LockExpiredAt(now))

	expired := &AttemptState{FailureCount: 5, LockedUntil: &past}
	assert.False(t, expired.IsLockedAt(now))
	assert.True(t, expired.LockExpiredAt(now))

	boundary := &AttemptState{FailureCount: 5, LockedUntil: &now}
	assert.False(t, boundary.IsLockedAt(now))
	assert.True(t, boundary.LockExpiredAt(now))
}

func TestNormalizeIdentity(t *testing.T) {
	assert.Equal(t, "a@x.com", NormalizeIdentity("  A@X.com "))
	assert.Equal(t, "", NormalizeIdentity("   "))
}

func TestOutcome_RetryAfterOrDuration(t *testing.T) {
	full := Outcome{Kind: OutcomeLocked, LockoutDuration: 15 * time.Minute}
	assert.Equal(t, 15*time.Minute, full.RetryAfterOrDuration())

	partial := Outcome{Kind: OutcomeLocked, LockoutDuration: 15 * time.Minute, RetryAfter: 4 * time.Minute}
	assert.Equal(t, 4*time.Minute, partial.RetryAfterOrDuration())
}

func TestAttemptState_LockRemainingAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	until := now.Add(10 * time.Minute)

	var missing *AttemptState
	assert.Zero(t, missing.LockRemainingAt(now))
	assert.Zero(t, (&AttemptState{FailureCount: 3}).LockRemainingAt(now))

	locked := &AttemptState{FailureCount: 5, LockedUntil: &until}
	assert.Equal(t, 10*time.Minute, locked.LockRemainingAt(now))
	assert.Zero(t, locked.LockRemainingAt(until), "a lock ending exactly at now has nothing left")
}
