// Package refreshtokens provides the PostgreSQL-backed refresh-token ledger.
package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/google/uuid"
)

// PostgresRepository implements Repository over dbx.DBTX (satisfied by both
// *sql.DB and *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new active ledger row with a fresh UUID.
func (r *PostgresRepository) Create(ctx context.Context, userID string, expiresAt time.Time, previousTokenID *string) (*models.RefreshToken, error) {
	token := &models.RefreshToken{
		ID:              uuid.NewString(),
		UserID:          userID,
		IsActive:        true,
		ExpiresAt:       expiresAt,
		PreviousTokenID: previousTokenID,
	}

	query := `
		INSERT INTO refresh_tokens (id, user_id, is_active, expires_at, previous_token_id)
		VALUES ($1, $2, TRUE, $3, $4)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		token.ID, token.UserID, token.ExpiresAt, token.PreviousTokenID,
	).Scan(&token.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return token, nil
}

// Get returns the ledger row with the given id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.RefreshToken, error) {
	query := `
		SELECT id, user_id, is_active, created_at, expires_at, previous_token_id
		FROM refresh_tokens
		WHERE id = $1
	`
	token := &models.RefreshToken{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&token.ID, &token.UserID, &token.IsActive,
		&token.CreatedAt, &token.ExpiresAt, &token.PreviousTokenID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return token, nil
}

// Deactivate flips the row inactive and reports its prior state. The row is
// locked and read in the same statement that updates it, so two concurrent
// calls can never both observe wasActive=true.
func (r *PostgresRepository) Deactivate(ctx context.Context, id string) (*models.RefreshToken, bool, error) {
	query := `
		UPDATE refresh_tokens t
		SET is_active = FALSE
		FROM (SELECT id, is_active FROM refresh_tokens WHERE id = $1 FOR UPDATE) prior
		WHERE t.id = prior.id
		RETURNING t.id, t.user_id, t.created_at, t.expires_at, t.previous_token_id, prior.is_active
	`
	token := &models.RefreshToken{}
	var wasActive bool
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&token.ID, &token.UserID, &token.CreatedAt,
		&token.ExpiresAt, &token.PreviousTokenID, &wasActive,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, common.ErrorNotFound
		}
		return nil, false, fmt.Errorf("db error: %w", err)
	}

	return token, wasActive, nil
}

// ListActive returns the most recently created active rows for userID,
// newest first.
func (r *PostgresRepository) ListActive(ctx context.Context, userID string, limit int) ([]*models.RefreshToken, error) {
	query := `
		SELECT id, user_id, is_active, created_at, expires_at, previous_token_id
		FROM refresh_tokens
		WHERE user_id = $1 AND is_active
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var tokens []*models.RefreshToken
	for rows.Next() {
		token := &models.RefreshToken{}
		if err := rows.Scan(
			&token.ID, &token.UserID, &token.IsActive,
			&token.CreatedAt, &token.ExpiresAt, &token.PreviousTokenID,
		); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return tokens, nil
}
