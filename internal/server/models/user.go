package models

import "time"

// User is a durable credential record. PasswordHash is an argon2id PHC string
// carrying its own parameters and salt.
type User struct {
	ID            string
	Username      string
	Email         string
	PasswordHash  string
	IsActive      bool
	IsSuperuser   bool
	EmailVerified bool
	CreatedAt     time.Time
}
