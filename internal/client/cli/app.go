// Package cli implements the interactive authkeeper client: a small command
// loop for registering, logging in, inspecting the current user, and
// managing sessions against the HTTP API.
package cli

import (
	"bufio"
	"context"
	"os"

	"github.com/dmitrijs2005/authkeeper/internal/client/api"
	"github.com/dmitrijs2005/authkeeper/internal/client/config"
)

type App struct {
	config *config.Config
	api    api.Client
	reader *bufio.Reader

	// accessToken and userName describe the current session; empty when
	// logged out. The refresh token lives inside the API client's cookie
	// jar and is never visible here.
	accessToken string
	userName    string
}

func NewApp(c *config.Config) (*App, error) {
	apiClient, err := api.NewHTTPClient(c.ServerEndpointAddr, c.RequestTimeout)
	if err != nil {
		return nil, err
	}

	return &App{config: c, api: apiClient, reader: bufio.NewReader(os.Stdin)}, nil
}

func (a *App) Run(ctx context.Context) {
	a.Root(ctx)
}

func (a *App) isLoggedIn() bool {
	return a.accessToken != ""
}
