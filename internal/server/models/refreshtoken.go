package models

import "time"

// RefreshToken is one row of the refresh-token ledger. IsActive flips to
// false exactly once, on rotation or logout; rows are kept afterwards as an
// audit trail. PreviousTokenID links each rotation to the row it superseded,
// forming a chain back to the originating login.
type RefreshToken struct {
	ID              string
	UserID          string
	IsActive        bool
	CreatedAt       time.Time
	ExpiresAt       time.Time
	PreviousTokenID *string
}
