package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

const sessionListLimit = 5

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// tokenResponse carries the access token; the refresh token travels only in
// the cookie.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type userResponse struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	IsActive      bool      `json:"is_active"`
	IsSuperuser   bool      `json:"is_superuser"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

type sessionResponse struct {
	ID              string    `json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	PreviousTokenID *string   `json:"previous_token_id"`
}

func newTokenResponse(accessToken string) tokenResponse {
	return tokenResponse{AccessToken: accessToken, TokenType: "bearer"}
}

func newUserResponse(u *models.User) userResponse {
	return userResponse{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		IsActive:      u.IsActive,
		IsSuperuser:   u.IsSuperuser,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
	}
}

// bearerToken extracts the access token from the Authorization header,
// or "" when the header is absent or not a bearer scheme.
func bearerToken(r *http.Request) string {
	header := r.Header.Get(common.AuthorizationHeaderName)
	if !strings.HasPrefix(header, common.BearerPrefix) {
		return ""
	}
	return strings.TrimPrefix(header, common.BearerPrefix)
}

// writeServiceError maps error kinds from the session engine to HTTP
// statuses. Unrecognized errors become an opaque 500.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *common.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, "validation_error", vErr.Error())
	case errors.Is(err, common.ErrUsernameTaken):
		writeError(w, http.StatusConflict, "username_taken", "username is already taken")
	case errors.Is(err, common.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email_taken", "email is already registered")
	case errors.Is(err, common.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
	case errors.Is(err, common.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "invalid_token", "invalid or expired token")
	case errors.Is(err, common.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
	case errors.Is(err, common.ErrUserInactive):
		writeError(w, http.StatusForbidden, "user_inactive", "user account is inactive")
	case errors.Is(err, common.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "insufficient privileges")
	case errors.Is(err, common.ErrorNotFound):
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
	default:
		s.logger.Error(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed request body")
		return
	}

	user, pair, err := s.users.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.setRefreshTokenCookie(w, pair.RefreshToken)
	writeJSON(w, http.StatusCreated, struct {
		User  userResponse  `json:"user"`
		Token tokenResponse `json:"token"`
	}{User: newUserResponse(user), Token: newTokenResponse(pair.AccessToken)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed request body")
		return
	}

	pair, err := s.users.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.setRefreshTokenCookie(w, pair.RefreshToken)
	writeJSON(w, http.StatusOK, newTokenResponse(pair.AccessToken))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token := s.refreshTokenFromCookie(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "invalid_token", "missing refresh token")
		return
	}

	pair, err := s.users.Refresh(r.Context(), token)
	if err != nil {
		// A failed rotation may have already retired the old token; clear
		// the cookie so the client does not retry with a dead credential.
		s.deleteRefreshTokenCookie(w)
		s.writeServiceError(w, r, err)
		return
	}

	s.setRefreshTokenCookie(w, pair.RefreshToken)
	writeJSON(w, http.StatusOK, newTokenResponse(pair.AccessToken))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := s.refreshTokenFromCookie(r)
	if token != "" {
		if err := s.users.Logout(r.Context(), token); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
	}

	s.deleteRefreshTokenCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	tokens, err := s.users.ListSessions(r.Context(), user.ID, sessionListLimit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	sessions := make([]sessionResponse, 0, len(tokens))
	for _, t := range tokens {
		sessions = append(sessions, sessionResponse{
			ID:              t.ID,
			CreatedAt:       t.CreatedAt,
			ExpiresAt:       t.ExpiresAt,
			PreviousTokenID: t.PreviousTokenID,
		})
	}
	writeJSON(w, http.StatusOK, struct {
		Sessions []sessionResponse `json:"sessions"`
	}{Sessions: sessions})
}

func (s *Server) handleAdminGetUser(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	if err := s.users.RequireSuperuser(caller); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	user, err := s.users.GetUserByID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotImplemented, "not_implemented", "email verification is not available")
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotImplemented, "not_implemented", "password recovery is not available")
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(w, r); !ok {
		return
	}
	writeError(w, http.StatusNotImplemented, "not_implemented", "password change is not available")
}

// authenticate resolves the caller from the bearer access token. On failure
// it writes the error response and reports ok=false.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return nil, false
	}

	user, err := s.users.GetCurrentUser(r.Context(), token)
	if err != nil {
		s.writeServiceError(w, r, err)
		return nil, false
	}
	return user, true
}
