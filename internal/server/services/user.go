// Package services contains server-side business logic. This file implements
// UserService, the session engine: registration, login, refresh-token
// rotation, logout/revocation, and the access-token guards used by the
// transport layer.
package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/password"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

// TokenPair bundles a short-lived access token and a long-lived refresh
// token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// sessionListLimit caps how many rows ListSessions returns by default.
const sessionListLimit = 5

// UserService provides the session lifecycle operations:
//   - Register: create a user and log it in
//   - Login: verify credentials and mint a token pair
//   - Refresh: rotate a refresh token, revoking the presented one
//   - Logout: revoke a refresh token
//   - ListSessions: active refresh-token rows for session-management UI
//   - GetCurrentUser / RequireSuperuser: guards for privileged calls
//
// A refresh token is valid only when its signature verifies AND its ledger
// row exists, is active, and is not past its stored expiry. That joint
// predicate lives here and nowhere else.
type UserService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	keys                         *auth.Keys
	hasher                       *password.Argon2
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	logger                       logging.Logger

	// dummyHash is verified against when a login identifier matches no user,
	// so the unknown-user and wrong-password paths cost the same.
	dummyHash string
}

// NewUserService constructs a UserService using repositories, the signing
// keys, the password hasher, and server config.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, keys *auth.Keys, hasher *password.Argon2, cfg *config.Config, logger logging.Logger) *UserService {
	s := &UserService{
		db:                           db,
		repomanager:                  m,
		keys:                         keys,
		hasher:                       hasher,
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		logger:                       logger.With("module", "user_service"),
	}
	if dummy, err := hasher.Hash("authkeeper-dummy-password"); err == nil {
		s.dummyHash = dummy
	}
	return s
}

// Register creates a new user and immediately logs it in, returning the user
// and a fresh token pair. Username and email conflicts are reported as the
// distinct errors common.ErrUsernameTaken and common.ErrEmailTaken.
func (s *UserService) Register(ctx context.Context, username, email, plainPassword string) (*models.User, *TokenPair, error) {
	if err := validateRegistration(username, email, plainPassword); err != nil {
		return nil, nil, err
	}

	// Hash outside the transaction: argon2id is deliberately slow.
	hash, err := s.hasher.Hash(plainPassword)
	if err != nil {
		return nil, nil, common.ErrorInternal
	}

	var user *models.User
	var pair *TokenPair
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		if _, err := repo.GetByUsername(ctx, username); err == nil {
			return common.ErrUsernameTaken
		} else if !errors.Is(err, common.ErrorNotFound) {
			return err
		}
		if _, err := repo.GetByEmail(ctx, email); err == nil {
			return common.ErrEmailTaken
		} else if !errors.Is(err, common.ErrorNotFound) {
			return err
		}

		user, err = repo.Create(ctx, &models.User{
			Username:     username,
			Email:        email,
			PasswordHash: hash,
			IsActive:     true,
		})
		if err != nil {
			return err
		}

		pair, err = s.generateTokenPair(ctx, user.ID, nil, tx)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, common.ErrUsernameTaken), errors.Is(err, common.ErrEmailTaken):
			return nil, nil, err
		default:
			s.logger.Error(ctx, "registration failed", "username", username, "error", err.Error())
			return nil, nil, common.ErrorInternal
		}
	}

	return user, pair, nil
}

// Login resolves the identifier as a username first and an email second,
// verifies the password, and mints a token pair starting a new rotation
// lineage. Unknown identifier and wrong password produce the identical
// common.ErrInvalidCredentials after comparable work.
func (s *UserService) Login(ctx context.Context, identifier, plainPassword string) (*TokenPair, error) {
	user, err := s.resolveUser(ctx, identifier)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// Burn the same hashing cost as a real verification.
			if s.dummyHash != "" {
				s.hasher.Verify(plainPassword, s.dummyHash)
			}
			return nil, common.ErrInvalidCredentials
		}
		return nil, common.ErrorInternal
	}

	if !s.hasher.Verify(plainPassword, user.PasswordHash) {
		return nil, common.ErrInvalidCredentials
	}

	s.upgradeHashIfStale(ctx, user, plainPassword)

	pair, err := s.generateTokenPair(ctx, user.ID, nil, s.db)
	if err != nil {
		return nil, common.ErrorInternal
	}
	return pair, nil
}

// Refresh rotates a refresh token: the presented token's ledger row is
// deactivated and a replacement pair is issued, linked to the old row. Any
// signature, structure, expiry or ledger-state problem fails with the single
// undifferentiated common.ErrInvalidToken so callers cannot probe ledger
// state. Once the old row is deactivated there is no way back: a failure to
// create the replacement terminates the lineage with common.ErrSession.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := auth.ParseToken(refreshToken, s.keys)
	if err != nil {
		return nil, common.ErrInvalidToken
	}
	if claims.TokenType != auth.TokenTypeRefresh || claims.TokenID == "" {
		return nil, common.ErrInvalidToken
	}

	repo := s.repomanager.RefreshTokens(s.db)

	old, wasActive, err := repo.Deactivate(ctx, claims.TokenID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, common.ErrorInternal
	}
	if !wasActive || old.UserID != claims.Subject || !old.ExpiresAt.After(time.Now()) {
		return nil, common.ErrInvalidToken
	}

	pair, err := s.generateTokenPair(ctx, old.UserID, &old.ID, s.db)
	if err != nil {
		// The old row is already gone; better a forced re-login than a
		// lineage with two live heads.
		s.logger.Error(ctx, "rotation failed after deactivation, lineage terminated",
			"token_id", old.ID, "user_id", old.UserID, "error", err.Error())
		return nil, common.ErrSession
	}

	return pair, nil
}

// Logout revokes the ledger row behind the presented refresh token. It is
// deliberately tolerant: a missing, malformed or already-revoked token is
// not an error, so logout is idempotent.
func (s *UserService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := auth.ParseToken(refreshToken, s.keys)
	if err != nil || claims.TokenType != auth.TokenTypeRefresh || claims.TokenID == "" {
		return nil
	}

	_, _, err = s.repomanager.RefreshTokens(s.db).Deactivate(ctx, claims.TokenID)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return common.ErrorInternal
	}
	return nil
}

// ListSessions returns up to limit active refresh-token rows owned by
// userID, newest first. A non-positive limit falls back to the default.
func (s *UserService) ListSessions(ctx context.Context, userID string, limit int) ([]*models.RefreshToken, error) {
	if limit <= 0 {
		limit = sessionListLimit
	}
	tokens, err := s.repomanager.RefreshTokens(s.db).ListActive(ctx, userID, limit)
	if err != nil {
		return nil, common.ErrorInternal
	}
	return tokens, nil
}

// GetCurrentUser resolves an access token to its user. Any token problem, a
// missing user, or a non-access token kind fails with
// common.ErrUnauthorized; a deactivated user fails with
// common.ErrUserInactive.
func (s *UserService) GetCurrentUser(ctx context.Context, accessToken string) (*models.User, error) {
	claims, err := auth.ParseToken(accessToken, s.keys)
	if err != nil {
		return nil, common.ErrUnauthorized
	}
	if claims.TokenType != auth.TokenTypeAccess {
		return nil, common.ErrUnauthorized
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUnauthorized
		}
		return nil, common.ErrorInternal
	}
	if !user.IsActive {
		return nil, common.ErrUserInactive
	}

	return user, nil
}

// RequireSuperuser fails with common.ErrForbidden unless user is a
// superuser.
func (s *UserService) RequireSuperuser(user *models.User) error {
	if user == nil || !user.IsSuperuser {
		return common.ErrForbidden
	}
	return nil
}

// GetUserByID returns the user with the given id; used by the
// superuser-guarded admin endpoint.
func (s *UserService) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, common.ErrorInternal
	}
	return user, nil
}

// --- helpers below ---

// resolveUser tries the identifier as a username first, then as an email.
func (s *UserService) resolveUser(ctx context.Context, identifier string) (*models.User, error) {
	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByUsername(ctx, identifier)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}
	return repo.GetByEmail(ctx, identifier)
}

// upgradeHashIfStale re-hashes the password after a successful verification
// when the stored hash predates a cost-parameter raise. Best-effort: a
// failure is logged, never surfaced to the login.
func (s *UserService) upgradeHashIfStale(ctx context.Context, user *models.User, plainPassword string) {
	if !s.hasher.NeedsUpgrade(user.PasswordHash) {
		return
	}
	newHash, err := s.hasher.Hash(plainPassword)
	if err != nil {
		return
	}
	if err := s.repomanager.Users(s.db).UpdatePasswordHash(ctx, user.ID, newHash); err != nil {
		s.logger.Warn(ctx, "password hash upgrade failed", "user_id", user.ID, "error", err.Error())
	}
}

// generateTokenPair mints an access token and a refresh token whose ledger
// row is created on db (a transaction or the plain handle).
func (s *UserService) generateTokenPair(ctx context.Context, userID string, previousTokenID *string, db dbx.DBTX) (*TokenPair, error) {
	access, err := auth.GenerateAccessToken(userID, s.keys, s.accessTokenValidityDuration)
	if err != nil {
		return nil, err
	}

	row, err := s.repomanager.RefreshTokens(db).Create(ctx, userID, time.Now().Add(s.refreshTokenValidityDuration), previousTokenID)
	if err != nil {
		return nil, err
	}

	refresh, err := auth.GenerateRefreshToken(userID, row.ID, s.keys, s.refreshTokenValidityDuration)
	if err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
