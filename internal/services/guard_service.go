package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/lockout/internal/config"
	"github.com/BradenHooton/lockout/internal/models"
	pkglogger "github.com/BradenHooton/lockout/pkg/logger"
)

// CredentialStore looks up credential records by identity.
// It returns models.ErrNotFound when no record exists; any other error is an
// infrastructure fault.
type CredentialStore interface {
	FindByIdentity(ctx context.Context, identity string) (*models.User, error)
}

// SecretHasher compares a plaintext secret against a stored one-way hash.
type SecretHasher interface {
	Verify(plainSecret, storedHash string) bool
}

// Guard validates credentials and enforces the failed-attempt lockout.
type Guard struct {
	store     CredentialStore
	hasher    SecretHasher
	tracker   AttemptTracker
	threshold int
	duration  time.Duration
	logger    *slog.Logger
}

// NewGuard creates a Guard. The tracker's own policy should match cfg, since
// cfg decides how remaining attempts are reported.
func NewGuard(store CredentialStore, hasher SecretHasher, tracker AttemptTracker, cfg config.LockoutConfig, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		store:     store,
		hasher:    hasher,
		tracker:   tracker,
		threshold: cfg.Threshold,
		duration:  cfg.Duration,
		logger:    logger,
	}
}

// Authenticate checks identity and secret and returns exactly one outcome.
//
// The lockout check runs before the store lookup, and failures against
// identities that have no record are counted the same way as wrong
// passwords. Unknown and existing identities therefore lock out identically.
func (g *Guard) Authenticate(ctx context.Context, identity, secret string) models.Outcome {
	key := models.NormalizeIdentity(identity)
	if key == "" || secret == "" {
		return models.Outcome{Kind: models.OutcomeMalformedRequest, Identity: key}
	}

	locked, err := g.tracker.IsLocked(ctx, key)
	if err != nil {
		return g.unavailable(key, fmt.Errorf("%w: %w", models.ErrTrackerUnavailable, err))
	}
	if locked {
		g.logger.Info("login rejected: identity locked", slog.String("identity", pkglogger.SanitizedEmail(key)))
		outcome := g.lockedOutcome(key)
		outcome.RetryAfter = g.lockRemaining(ctx, key)
		return outcome
	}

	user, err := g.store.FindByIdentity(ctx, key)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return g.unavailable(key, fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err))
	}
	if user == nil {
		return g.recordFailure(ctx, key, false)
	}

	if !g.hasher.Verify(secret, user.PasswordHash) {
		return g.recordFailure(ctx, key, true)
	}

	if err := g.tracker.Reset(ctx, key); err != nil {
		return g.unavailable(key, fmt.Errorf("%w: %w", models.ErrTrackerUnavailable, err))
	}

	return models.Outcome{
		Kind:        models.OutcomeSuccess,
		Identity:    key,
		UserID:      user.ID,
		DisplayName: user.Name,
	}
}

// recordFailure counts the failure and derives the outcome from the
// post-increment count returned by the tracker.
func (g *Guard) recordFailure(ctx context.Context, key string, accountExists bool) models.Outcome {
	state, err := g.tracker.RecordFailure(ctx, key)
	if err != nil {
		return g.unavailable(key, fmt.Errorf("%w: %w", models.ErrTrackerUnavailable, err))
	}

	remaining := g.threshold - state.FailureCount
	if remaining <= 0 {
		outcome := g.lockedOutcome(key)
		outcome.NewlyLocked = state.FailureCount == g.threshold
		outcome.AccountExists = accountExists
		if state.LockedUntil != nil {
			outcome.RetryAfter = state.LockedUntil.Sub(state.LastFailureAt)
		}
		if outcome.NewlyLocked {
			g.logger.Warn("identity locked after repeated failures",
				slog.String("identity", pkglogger.SanitizedEmail(key)),
				slog.Int("failed_attempts", state.FailureCount),
				slog.Duration("lockout_duration", g.duration))
		}
		return outcome
	}

	return models.Outcome{
		Kind:              models.OutcomeInvalidCredential,
		Identity:          key,
		RemainingAttempts: remaining,
		AccountExists:     accountExists,
	}
}

func (g *Guard) lockedOutcome(key string) models.Outcome {
	return models.Outcome{
		Kind:            models.OutcomeLocked,
		Identity:        key,
		LockoutDuration: g.duration,
	}
}

// lockRemaining asks the tracker for the time left on the lock. Trackers that
// cannot tell, and read errors, fall back to the full lockout duration.
func (g *Guard) lockRemaining(ctx context.Context, key string) time.Duration {
	reader, ok := g.tracker.(LockRemainingReader)
	if !ok {
		return g.duration
	}
	remaining, err := reader.LockRemaining(ctx, key)
	if err != nil {
		g.logger.Warn("failed to read lock expiry",
			slog.String("identity", pkglogger.SanitizedEmail(key)),
			slog.Any("error", err))
		return g.duration
	}
	if remaining <= 0 {
		return g.duration
	}
	return remaining
}

func (g *Guard) unavailable(key string, err error) models.Outcome {
	g.logger.Error("authentication unavailable",
		slog.String("identity", pkglogger.SanitizedEmail(key)),
		slog.Any("error", err))
	return models.Outcome{
		Kind:     models.OutcomeUnavailable,
		Identity: key,
		Err:      err,
	}
}

// LockoutDuration returns the configured lockout window
func (g *Guard) LockoutDuration() time.Duration {
	return g.duration
}
