package services

import (
	"fmt"
	"net/mail"
	"regexp"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

const (
	usernameMinLength = 3
	usernameMaxLength = 50
	passwordMinLength = 8
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// validateRegistration checks the shape of registration input and reports
// the first offending field.
func validateRegistration(username, email, password string) error {
	if len(username) < usernameMinLength || len(username) > usernameMaxLength {
		return &common.ValidationError{
			Field:  "username",
			Reason: fmt.Sprintf("must be %d to %d characters", usernameMinLength, usernameMaxLength),
		}
	}
	if !usernamePattern.MatchString(username) {
		return &common.ValidationError{
			Field:  "username",
			Reason: "may only contain alphanumeric characters and underscores",
		}
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return &common.ValidationError{Field: "email", Reason: "must be a valid email address"}
	}
	if len(password) < passwordMinLength {
		return &common.ValidationError{
			Field:  "password",
			Reason: fmt.Sprintf("must be at least %d characters", passwordMinLength),
		}
	}
	return nil
}
