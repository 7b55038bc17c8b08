package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/keywordpilot/backend/internal/models"
)

const defaultPageSize = 200

// Store provides database-backed accessors for application data.
type Store struct {
	db *sql.DB
}

// New creates a Store using the provided sql.DB connection.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	return &Store{db: db}, nil
}

// UpsertUser ensures that the identity-provider account exists in the local
// users table and returns the local row. Rows are keyed by the provider's
// stable external id.
func (s *Store) UpsertUser(ctx context.Context, payload models.IdentitySyncPayload) (*models.User, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store: db cannot be nil")
	}

	var user models.User
	err := s.db.QueryRowContext(
		ctx,
		`INSERT INTO users (external_id, email, name)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (external_id) DO UPDATE
		 SET email = EXCLUDED.email,
		     name = EXCLUDED.name,
		     updated_at = now()
		 RETURNING id, external_id, email, name, created_at, updated_at`,
		payload.ExternalID,
		payload.Email,
		payload.Name,
	).Scan(&user.ID, &user.ExternalID, &user.Email, &user.Name, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: upsert user: %w", err)
	}

	return &user, nil
}

// GetUserByExternalID retrieves the local user row for an identity-provider
// account id.
func (s *Store) GetUserByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store: db cannot be nil")
	}

	var user models.User
	err := s.db.QueryRowContext(
		ctx,
		`SELECT id, external_id, email, name, created_at, updated_at
		 FROM users
		 WHERE external_id = $1
		 LIMIT 1`,
		externalID,
	).Scan(&user.ID, &user.ExternalID, &user.Email, &user.Name, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("store: get user by external id: %w", err)
	}

	return &user, nil
}

// ErrUserNotFound is returned when no local user row exists for a lookup.
var ErrUserNotFound = errors.New("user not found")

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	return &value.String
}
