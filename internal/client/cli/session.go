package cli

import (
	"context"
	"fmt"
)

// Whoami fetches and prints the profile of the logged-in user.
func (a *App) Whoami(ctx context.Context) error {
	user, err := a.api.CurrentUser(ctx, a.accessToken)
	if err != nil {
		return err
	}

	fmt.Printf("id:       %s\n", user.ID)
	fmt.Printf("username: %s\n", user.Username)
	fmt.Printf("email:    %s\n", user.Email)
	if user.IsSuperuser {
		fmt.Println("role:     superuser")
	}
	return nil
}

// Sessions lists the user's active sessions, newest first.
func (a *App) Sessions(ctx context.Context) error {
	sessions, err := a.api.Sessions(ctx, a.accessToken)
	if err != nil {
		return err
	}

	if len(sessions) == 0 {
		fmt.Println("No active sessions")
		return nil
	}
	for _, s := range sessions {
		rotated := ""
		if s.PreviousTokenID != nil {
			rotated = " (rotated)"
		}
		fmt.Printf("%s  created %s  expires %s%s\n",
			s.ID,
			s.CreatedAt.Format("2006-01-02 15:04:05"),
			s.ExpiresAt.Format("2006-01-02 15:04:05"),
			rotated)
	}
	return nil
}

// Refresh rotates the session and adopts the new access token.
func (a *App) Refresh(ctx context.Context) error {
	accessToken, err := a.api.Refresh(ctx)
	if err != nil {
		// The old refresh token is spent either way.
		a.accessToken = ""
		a.userName = ""
		return err
	}

	a.accessToken = accessToken
	fmt.Println("Session refreshed")
	return nil
}
