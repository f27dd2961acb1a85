package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/lockout/internal/database"
	"github.com/BradenHooton/lockout/internal/models"
	"github.com/google/uuid"
)

// UserRepository is the Postgres credential store
type UserRepository struct {
	db database.Querier
	now func() time.Time
}

func NewUserRepository(db database.Querier) *UserRepository {
	return &UserRepository{db: db, now: time.Now}
}

// rowScanner is satisfied by pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User

	err := scanner.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Name,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &user, nil
}

// FindByIdentity returns the user whose email matches identity case-insensitively.
// It returns models.ErrNotFound when there is none.
func (r *UserRepository) FindByIdentity(ctx context.Context, identity string) (*models.User, error) {
	query := `
		SELECT id, email, password_hash, name, created_at, updated_at
		FROM users WHERE LOWER(email) = $1
	`

	return scanUserRow(r.db.QueryRow(ctx, query, models.NormalizeIdentity(identity)))
}

// Create inserts a new user, returning models.ErrConflict for a duplicate email
func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	now := r.now().UTC()

	query := `
		INSERT INTO users (id, email, password_hash, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, email, password_hash, name, created_at, updated_at
	`

	return scanUserRow(r.db.QueryRow(ctx, query,
		uuid.New().String(),
		models.NormalizeIdentity(user.Email),
		user.PasswordHash,
		user.Name,
		now,
		now,
	))
}
