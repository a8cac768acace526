package cli

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts for a username, email, and password and creates an
// account. On success the fresh session is adopted immediately, so the user
// is logged in without a separate login step.
//
// The password byte slice is wiped before returning. Any I/O or API error is
// returned unchanged.
func (a *App) Register(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter username", os.Stdout)
	if err != nil {
		return err
	}

	email, err := getSimpleText(a.reader, "Enter email", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	accessToken, err := a.api.Register(ctx, userName, email, password)
	if err != nil {
		return err
	}

	a.accessToken = accessToken
	a.userName = userName

	fmt.Println("Success!")
	return nil
}

// Login prompts for a username or email and a password and authenticates.
// On success the access token and display name are stored on the App.
//
// The password is wiped before returning.
func (a *App) Login(ctx context.Context) error {
	identifier, err := getSimpleText(a.reader, "Enter username or email", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	accessToken, err := a.api.Login(ctx, identifier, password)
	if err != nil {
		log.Printf("Login unsuccessful: %s", err.Error())
		return err
	}

	a.accessToken = accessToken
	a.userName = identifier

	log.Printf("Login successful")
	return nil
}

// Logout revokes the server-side session and drops the in-memory access
// token. A server error still clears the local state, so the user is never
// stuck logged in.
func (a *App) Logout(ctx context.Context) error {
	err := a.api.Logout(ctx)

	a.accessToken = ""
	a.userName = ""

	return err
}
