package services

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/lockout/internal/models"
)

// fakeClock is a manually advanced clock for lockout expiry tests
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	FindByIdentityFunc func(ctx context.Context, identity string) (*models.User, error)
	CreateFunc         func(ctx context.Context, user *models.User) (*models.User, error)
}

func (m *MockUserRepository) FindByIdentity(ctx context.Context, identity string) (*models.User, error) {
	if m.FindByIdentityFunc != nil {
		return m.FindByIdentityFunc(ctx, identity)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

// MockAttemptTracker implements AttemptTracker for testing error paths
type MockAttemptTracker struct {
	IsLockedFunc        func(ctx context.Context, identity string) (bool, error)
	RecordFailureFunc   func(ctx context.Context, identity string) (models.AttemptState, error)
	GetAttemptCountFunc func(ctx context.Context, identity string) (int, error)
	ResetFunc           func(ctx context.Context, identity string) error
}

func (m *MockAttemptTracker) IsLocked(ctx context.Context, identity string) (bool, error) {
	if m.IsLockedFunc != nil {
		return m.IsLockedFunc(ctx, identity)
	}
	return false, nil
}

func (m *MockAttemptTracker) RecordFailure(ctx context.Context, identity string) (models.AttemptState, error) {
	if m.RecordFailureFunc != nil {
		return m.RecordFailureFunc(ctx, identity)
	}
	return models.AttemptState{Identity: identity, FailureCount: 1}, nil
}

func (m *MockAttemptTracker) GetAttemptCount(ctx context.Context, identity string) (int, error) {
	if m.GetAttemptCountFunc != nil {
		return m.GetAttemptCountFunc(ctx, identity)
	}
	return 0, nil
}

func (m *MockAttemptTracker) Reset(ctx context.Context, identity string) error {
	if m.ResetFunc != nil {
		return m.ResetFunc(ctx, identity)
	}
	return nil
}

// plainHasher treats the stored hash as "hashed:" + secret, keeping tests fast
type plainHasher struct{}

func (plainHasher) Verify(plainSecret, storedHash string) bool {
	return storedHash == "hashed:"+plainSecret
}

func (plainHasher) Hash(password string) (string, error) {
	return "hashed:" + password, nil
}

// MockLockoutNotifier records lockout notifications
type MockLockoutNotifier struct {
	mu    sync.Mutex
	calls []string
	done  chan struct{}
	err   error
}

func newMockLockoutNotifier() *MockLockoutNotifier {
	return &MockLockoutNotifier{done: make(chan struct{}, 8)}
}

func (m *MockLockoutNotifier) NotifyLocked(ctx context.Context, email string, duration time.Duration) error {
	m.mu.Lock()
	m.calls = append(m.calls, email)
	m.mu.Unlock()
	m.done <- struct{}{}
	return m.err
}

func (m *MockLockoutNotifier) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// NewTestUser builds a stored credential record whose password is secret
func NewTestUser(id, email, name, secret string) *models.User {
	now := time.Now()
	return &models.User{
		ID:           id,
		Email:        models.NormalizeIdentity(email),
		PasswordHash: "hashed:" + secret,
		Name:         name,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// storeWith returns a repository holding exactly the given users
func storeWith(users ...*models.User) *MockUserRepository {
	byEmail := make(map[string]*models.User, len(users))
	for _, u := range users {
		byEmail[u.Email] = u
	}
	return &MockUserRepository{
		FindByIdentityFunc: func(ctx context.Context, identity string) (*models.User, error) {
			if u, ok := byEmail[identity]; ok {
				return u, nil
			}
			return nil, models.ErrNotFound
		},
	}
}
