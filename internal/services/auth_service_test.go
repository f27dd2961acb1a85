package services

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/lockout/internal/config"
	"github.com/BradenHooton/lockout/internal/models"
	pkglogger "github.com/BradenHooton/lockout/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu    sync.Mutex
	kinds []models.OutcomeKind
}

func (r *recordingObserver) ObserveOutcome(outcome models.Outcome) {
	r.mu.Lock()
	r.kinds = append(r.kinds, outcome.Kind)
	r.mu.Unlock()
}

type authServiceFixture struct {
	service  *AuthService
	tracker  *MemoryAttemptTracker
	notifier *MockLockoutNotifier
	observer *recordingObserver
	logs     *bytes.Buffer
}

func newAuthServiceFixture(repo UserRepository) *authServiceFixture {
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(logs, nil))
	tracker := newTestTracker(newFakeClock())
	guard := NewGuard(repo, plainHasher{}, tracker, config.DefaultLockoutConfig(), logger)
	notifier := newMockLockoutNotifier()
	observer := &recordingObserver{}

	service := NewAuthService(repo, guard, plainHasher{}, nil, notifier, observer, logger, pkglogger.NewAuditLogger(logger))

	return &authServiceFixture{
		service:  service,
		tracker:  tracker,
		notifier: notifier,
		observer: observer,
		logs:     logs,
	}
}

// ============================================================================
// Login
// ============================================================================

func TestAuthService_Login_Success(t *testing.T) {
	user := NewTestUser("user-1", "alice@example.com", "Alice", "Correct#1")
	f := newAuthServiceFixture(storeWith(user))

	outcome := f.service.Login(context.Background(), "alice@example.com", "Correct#1", "10.0.0.1", "test-agent")

	require.Equal(t, models.OutcomeSuccess, outcome.Kind)
	assert.Equal(t, &UserResponse{ID: "user-1", Email: "alice@example.com", Name: "Alice"}, OutcomeUser(outcome))
	assert.Equal(t, []models.OutcomeKind{models.OutcomeSuccess}, f.observer.kinds)
	assert.Contains(t, f.logs.String(), `"event_type":"login_success"`)
}

func TestAuthService_Login_InvalidCredentialIsAudited(t *testing.T) {
	user := NewTestUser("user-1", "alice@example.com", "Alice", "Correct#1")
	f := newAuthServiceFixture(storeWith(user))

	outcome := f.service.Login(context.Background(), "alice@example.com", "wrong", "10.0.0.1", "test-agent")

	assert.Equal(t, models.OutcomeInvalidCredential, outcome.Kind)
	assert.Nil(t, OutcomeUser(outcome))
	assert.Contains(t, f.logs.String(), `"failure_reason":"invalid_credentials"`)
	assert.Contains(t, f.logs.String(), `"remaining_attempts":"4"`)
	assert.NotContains(t, f.logs.String(), "alice@example.com", "identities are masked in logs")
}

func TestAuthService_Login_LockoutNotifiesExistingAccountOnce(t *testing.T) {
	user := NewTestUser("user-1", "alice@example.com", "Alice", "Correct#1")
	f := newAuthServiceFixture(storeWith(user))
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		f.service.Login(ctx, "alice@example.com", "wrong", "10.0.0.1", "test-agent")
	}
	f.service.Wait()

	assert.Equal(t, []string{"alice@example.com"}, f.notifier.Calls())
	assert.Contains(t, f.logs.String(), `"event_type":"account_locked"`)
}

func TestAuthService_Login_LockoutOfUnknownIdentityDoesNotNotify(t *testing.T) {
	f := newAuthServiceFixture(storeWith())
	ctx := context.Background()

	var outcome models.Outcome
	for i := 0; i < 5; i++ {
		outcome = f.service.Login(ctx, "ghost@example.com", "pw", "", "")
	}
	f.service.Wait()

	assert.Equal(t, models.OutcomeLocked, outcome.Kind)
	assert.Empty(t, f.notifier.Calls())
	assert.Contains(t, f.logs.String(), `"event_type":"account_locked"`)
}

func TestAuthService_Login_NotifierErrorIsLoggedNotSurfaced(t *testing.T) {
	user := NewTestUser("user-1", "alice@example.com", "Alice", "Correct#1")
	f := newAuthServiceFixture(storeWith(user))
	f.notifier.err = errors.New("ses: throttled")
	ctx := context.Background()

	var outcome models.Outcome
	for i := 0; i < 5; i++ {
		outcome = f.service.Login(ctx, "alice@example.com", "wrong", "", "")
	}
	f.service.Wait()

	assert.Equal(t, models.OutcomeLocked, outcome.Kind)
	assert.Contains(t, f.logs.String(), "failed to send lockout notification")
}

func TestAuthService_Login_StoreFailureIsUnavailable(t *testing.T) {
	repo := &MockUserRepository{
		FindByIdentityFunc: func(ctx context.Context, identity string) (*models.User, error) {
			return nil, errors.New("dial tcp: connection refused")
		},
	}
	f := newAuthServiceFixture(repo)

	outcome := f.service.Login(context.Background(), "alice@example.com", "pw", "", "")

	assert.Equal(t, models.OutcomeUnavailable, outcome.Kind)
	assert.Contains(t, f.logs.String(), `"event_type":"login_error"`)
	count, _ := f.tracker.GetAttemptCount(context.Background(), "alice@example.com")
	assert.Zero(t, count)
}

func TestAuthService_Login_MalformedRequest(t *testing.T) {
	f := newAuthServiceFixture(storeWith())

	outcome := f.service.Login(context.Background(), "alice@example.com", "", "", "")

	assert.Equal(t, models.OutcomeMalformedRequest, outcome.Kind)
	assert.Contains(t, f.logs.String(), `"failure_reason":"malformed_request"`)
}

// ============================================================================
// Register
// ============================================================================

func TestAuthService_Register_Success(t *testing.T) {
	var created *models.User
	repo := &MockUserRepository{
		CreateFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
			created = user
			user.ID = "user-123"
			user.CreatedAt = time.Now()
			user.UpdatedAt = user.CreatedAt
			return user, nil
		},
	}
	f := newAuthServiceFixture(repo)

	resp, err := f.service.Register(context.Background(), "  New.User@Example.com ", "SecurePassword123!", " New User ")

	require.NoError(t, err)
	assert.Equal(t, &UserResponse{ID: "user-123", Email: "new.user@example.com", Name: "New User"}, resp)
	require.NotNil(t, created)
	assert.Equal(t, "hashed:SecurePassword123!", created.PasswordHash)
}

func TestAuthService_Register_DuplicateEmail(t *testing.T) {
	existing := NewTestUser("existing", "user@example.com", "Existing", "Secret#123")
	f := newAuthServiceFixture(storeWith(existing))

	resp, err := f.service.Register(context.Background(), "USER@example.com", "SecurePassword123!", "John Doe")

	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Nil(t, resp)
}

func TestAuthService_Register_ConflictOnInsertRace(t *testing.T) {
	repo := &MockUserRepository{
		CreateFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
			return nil, models.ErrConflict
		},
	}
	f := newAuthServiceFixture(repo)

	_, err := f.service.Register(context.Background(), "user@example.com", "SecurePassword123!", "John Doe")

	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestAuthService_Register_InvalidInput(t *testing.T) {
	f := newAuthServiceFixture(storeWith())

	tests := []struct {
		name     string
		email    string
		password string
		userName string
	}{
		{name: "missing email", email: " ", password: "SecurePassword123!", userName: "John"},
		{name: "missing name", email: "a@x.com", password: "SecurePassword123!", userName: "  "},
		{name: "short password", email: "a@x.com", password: "short", userName: "John"},
		{name: "no uppercase", email: "a@x.com", password: "nouppercase123!", userName: "John"},
		{name: "no digits", email: "a@x.com", password: "NoDigits!!", userName: "John"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := f.service.Register(context.Background(), tt.email, tt.password, tt.userName)
			assert.Error(t, err)
			assert.Nil(t, resp)
		})
	}
}

func TestAuthService_Register_StoreFailure(t *testing.T) {
	repo := &MockUserRepository{
		FindByIdentityFunc: func(ctx context.Context, identity string) (*models.User, error) {
			return nil, errors.New("timeout")
		},
	}
	f := newAuthServiceFixture(repo)

	_, err := f.service.Register(context.Background(), "a@x.com", "SecurePassword123!", "John")

	assert.ErrorIs(t, err, models.ErrInternalServer)
}
