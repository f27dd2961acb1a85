package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/lockout/internal/auth"
	"github.com/BradenHooton/lockout/internal/models"
	pkgauth "github.com/BradenHooton/lockout/pkg/auth"
	pkglogger "github.com/BradenHooton/lockout/pkg/logger"
)

const notifyTimeout = 10 * time.Second

// UserRepository is the credential store plus the write path used by registration
type UserRepository interface {
	CredentialStore
	Create(ctx context.Context, user *models.User) (*models.User, error)
}

// PasswordHasher hashes new secrets and verifies stored ones
type PasswordHasher interface {
	SecretHasher
	Hash(password string) (string, error)
}

// LockoutNotifier tells an account owner their account was locked
type LockoutNotifier interface {
	NotifyLocked(ctx context.Context, email string, duration time.Duration) error
}

// OutcomeObserver receives every guard outcome, e.g. for metrics
type OutcomeObserver interface {
	ObserveOutcome(outcome models.Outcome)
}

// AuthService handles authentication business logic around the Guard
type AuthService struct {
	repo        UserRepository
	guard       *Guard
	hasher      PasswordHasher
	timing      *auth.TimingDelay
	notifier    LockoutNotifier
	observer    OutcomeObserver
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger

	notifyWG sync.WaitGroup
}

// NewAuthService creates a new AuthService. timing, notifier and observer are optional.
func NewAuthService(
	repo UserRepository,
	guard *Guard,
	hasher PasswordHasher,
	timing *auth.TimingDelay,
	notifier LockoutNotifier,
	observer OutcomeObserver,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *AuthService {
	return &AuthService{
		repo:        repo,
		guard:       guard,
		hasher:      hasher,
		timing:      timing,
		notifier:    notifier,
		observer:    observer,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// UserResponse represents a user in the HTTP response
type UserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Login authenticates a user through the Guard and records the attempt
func (s *AuthService) Login(ctx context.Context, email, password, ipAddress, userAgent string) models.Outcome {
	start := time.Now()

	outcome := s.guard.Authenticate(ctx, email, password)

	if s.observer != nil {
		s.observer.ObserveOutcome(outcome)
	}
	s.audit(outcome, ipAddress, userAgent)

	if outcome.NewlyLocked {
		s.auditLogger.LogLockout(outcome.Identity, ipAddress, s.guard.threshold, outcome.LockoutDuration)
		if outcome.AccountExists {
			s.notifyLocked(outcome.Identity, outcome.LockoutDuration)
		}
	}

	if s.timing != nil && outcome.Kind != models.OutcomeUnavailable {
		s.timing.WaitFrom(start, outcome.Succeeded())
	}

	return outcome
}

// Register creates a new user account
func (s *AuthService) Register(ctx context.Context, email, password, name string) (*UserResponse, error) {
	email = models.NormalizeIdentity(email)
	name = strings.TrimSpace(name)

	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, err
	}

	_, err := s.repo.FindByIdentity(ctx, email)
	if err == nil {
		s.logger.Info("registration failed: user already exists")
		return nil, models.ErrConflict
	}
	if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check if user exists", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	hashedPassword, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	createdUser, err := s.repo.Create(ctx, &models.User{
		Email:        email,
		PasswordHash: hashedPassword,
		Name:         name,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user registered", slog.String("user_id", createdUser.ID))
	s.auditLogger.LogAccountAction("user_registered", createdUser.ID, "", nil)

	return userModelToResponse(createdUser), nil
}

// Wait blocks until in-flight lockout notifications have finished
func (s *AuthService) Wait() {
	s.notifyWG.Wait()
}

func (s *AuthService) notifyLocked(email string, duration time.Duration) {
	if s.notifier == nil {
		return
	}

	s.notifyWG.Add(1)
	go func() {
		defer s.notifyWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		if err := s.notifier.NotifyLocked(ctx, email, duration); err != nil {
			s.logger.Error("failed to send lockout notification",
				slog.String("identity", pkglogger.SanitizedEmail(email)),
				slog.Any("error", err))
		}
	}()
}

func (s *AuthService) audit(outcome models.Outcome, ipAddress, userAgent string) {
	event := pkglogger.AuditEvent{
		EventType: "login_failed",
		Identity:  outcome.Identity,
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}

	switch outcome.Kind {
	case models.OutcomeSuccess:
		event.EventType = "login_success"
		event.UserID = outcome.UserID
		event.Success = true
	case models.OutcomeInvalidCredential:
		event.FailureReason = "invalid_credentials"
		event.Metadata = map[string]string{"remaining_attempts": fmt.Sprint(outcome.RemainingAttempts)}
	case models.OutcomeLocked:
		event.FailureReason = "account_locked"
	case models.OutcomeMalformedRequest:
		event.FailureReason = "malformed_request"
	case models.OutcomeUnavailable:
		event.EventType = "login_error"
		event.FailureReason = "unavailable"
	}

	s.auditLogger.LogAuthAttempt(event)
}

// userModelToResponse converts a user model to response DTO
func userModelToResponse(user *models.User) *UserResponse {
	return &UserResponse{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
	}
}

// OutcomeUser returns the response DTO for a successful outcome, nil otherwise
func OutcomeUser(outcome models.Outcome) *UserResponse {
	if !outcome.Succeeded() {
		return nil
	}
	return &UserResponse{
		ID:    outcome.UserID,
		Email: outcome.Identity,
		Name:  outcome.DisplayName,
	}
}
