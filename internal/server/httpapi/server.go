// Package httpapi exposes the session engine over HTTP. It is thin glue:
// request decoding, cookie plumbing for the refresh token, and error-kind to
// status-code mapping. All session semantics live in the services package.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

// AuthService is the subset of the session engine the HTTP layer consumes.
// *services.UserService satisfies it; tests substitute fakes.
type AuthService interface {
	Register(ctx context.Context, username, email, password string) (*models.User, *services.TokenPair, error)
	Login(ctx context.Context, identifier, password string) (*services.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	ListSessions(ctx context.Context, userID string, limit int) ([]*models.RefreshToken, error)
	GetCurrentUser(ctx context.Context, accessToken string) (*models.User, error)
	RequireSuperuser(user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// Server serves the public HTTP API.
type Server struct {
	address string
	config  *config.Config
	users   AuthService
	logger  logging.Logger
}

// NewServer constructs a Server around the session engine.
func NewServer(cfg *config.Config, users AuthService, logger logging.Logger) *Server {
	return &Server{
		address: cfg.EndpointAddr,
		config:  cfg,
		users:   users,
		logger:  logger.With("module", "http_server"),
	}
}

// Handler returns the route table; split out so tests can drive it through
// httptest without binding a socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/v1/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/v1/auth/refresh", s.handleRefresh)
	mux.HandleFunc("DELETE /api/v1/auth/logout", s.handleLogout)
	mux.HandleFunc("GET /api/v1/auth/verify_email", s.handleVerifyEmail)
	mux.HandleFunc("POST /api/v1/auth/forgot-password", s.handleForgotPassword)

	mux.HandleFunc("GET /api/v1/users", s.handleCurrentUser)
	mux.HandleFunc("GET /api/v1/users/sessions", s.handleSessions)
	mux.HandleFunc("PATCH /api/v1/users/password", s.handleChangePassword)

	mux.HandleFunc("GET /api/v1/admin/users/{id}", s.handleAdminGetUser)

	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	select {
	case <-ctx.Done():
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
