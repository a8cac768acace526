// Package auth issues and verifies the signed tokens used for
// authentication. Tokens are RS256 JWTs: the private key signs, the public
// key verifies, so the public key can be handed to other services for
// stateless verification without granting issuance capability.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Token kind discriminators carried in the "type" claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims is the claim set for both token kinds. Subject is always the user
// id. Refresh tokens additionally carry the ledger row id in TokenID, which
// binds the signed string to its durable record.
type Claims struct {
	jwt.RegisteredClaims
	TokenType string `json:"type,omitempty"`
	TokenID   string `json:"token_id,omitempty"`
}

// GenerateAccessToken issues a short-lived access token for userID.
func GenerateAccessToken(userID string, keys *Keys, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		TokenType: TokenTypeAccess,
	})

	return token.SignedString(keys.Private)
}

// GenerateRefreshToken issues a long-lived refresh token for userID bound to
// the ledger row tokenID.
func GenerateRefreshToken(userID, tokenID string, keys *Keys, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		TokenType: TokenTypeRefresh,
		TokenID:   tokenID,
	})

	return token.SignedString(keys.Private)
}

// ParseToken verifies tokenString against the public key and returns its
// claims. Failures are reported as distinct kinds so callers can branch:
// common.ErrTokenMalformed, common.ErrInvalidSignature, common.ErrTokenExpired,
// or common.ErrInvalidToken for anything else.
func ParseToken(tokenString string, keys *Keys) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return keys.Public, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))

	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, common.ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, common.ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, common.ErrTokenExpired
	case err != nil:
		return nil, common.ErrInvalidToken
	}

	if !token.Valid || claims.Subject == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
