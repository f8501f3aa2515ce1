package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"storefront/api/models"
)

const userSchema = `
CREATE TABLE IF NOT EXISTS users (
	id              SERIAL PRIMARY KEY,
	email           TEXT NOT NULL UNIQUE,
	role            TEXT NOT NULL DEFAULT 'analyst',
	hashed_password BYTEA NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// UserStore persists back-office operator accounts in Postgres.
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, userSchema); err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	return nil
}

// CreateUser inserts a new operator. It returns ErrDuplicateKey when the email
// is taken.
func (s *UserStore) CreateUser(ctx context.Context, email, role string, hashedPassword []byte) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, role, hashed_password)
		VALUES ($1, $2, $3)
		RETURNING id, email, role, created_at, updated_at;
	`, email, role, hashedPassword).Scan(
		&user.ID,
		&user.Email,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("user with email '%s': %w", email, ErrDuplicateKey)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	log.Info().Int("user_id", user.ID).Str("role", user.Role).Msg("Operator account created")
	return user, nil
}

func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, role, hashed_password, created_at, updated_at
		FROM users
		WHERE email = $1;
	`, email).Scan(
		&user.ID,
		&user.Email,
		&user.Role,
		&user.HashedPassword,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user with email '%s': %w", email, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return user, nil
}
