// Package users declares the server-side repository contract for durable
// user credential records.
package users

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository defines lookup and mutation operations over user records.
// Lookups return common.ErrorNotFound when no row matches.
type Repository interface {
	// Create inserts a new user. Unique-index violations are reported as
	// common.ErrUsernameTaken or common.ErrEmailTaken.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	// GetByID returns the user with the given id.
	GetByID(ctx context.Context, id string) (*models.User, error)

	// GetByUsername returns the user with the given username.
	GetByUsername(ctx context.Context, username string) (*models.User, error)

	// GetByEmail returns the user with the given email.
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// UpdatePasswordHash replaces the stored password hash, used by the
	// rehash-on-login upgrade.
	UpdatePasswordHash(ctx context.Context, id string, passwordHash string) error
}
