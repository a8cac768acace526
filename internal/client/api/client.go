// Package api implements the HTTP client for the authkeeper server.
//
// The refresh token travels in an HttpOnly cookie set by the server; the
// client keeps it in an in-memory cookie jar and never exposes it. The
// short-lived access token is held by the caller and sent as a bearer
// header.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

// Client defines the server operations the CLI needs.
type Client interface {
	Register(ctx context.Context, username, email string, password []byte) (string, error)
	Login(ctx context.Context, identifier string, password []byte) (string, error)
	Refresh(ctx context.Context) (string, error)
	Logout(ctx context.Context) error
	CurrentUser(ctx context.Context, accessToken string) (*User, error)
	Sessions(ctx context.Context, accessToken string) ([]*Session, error)
}

// User mirrors the server's user representation.
type User struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	IsActive      bool      `json:"is_active"`
	IsSuperuser   bool      `json:"is_superuser"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

// Session mirrors one active refresh-token row.
type Session struct {
	ID              string    `json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	PreviousTokenID *string   `json:"previous_token_id"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type registerResponse struct {
	User  User          `json:"user"`
	Token tokenResponse `json:"token"`
}

type sessionsResponse struct {
	Sessions []*Session `json:"sessions"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// HTTPClient is the concrete Client over net/http.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient constructs a client for the server at baseURL. The cookie
// jar holding the refresh token lives for the lifetime of the client.
func NewHTTPClient(baseURL string, timeout time.Duration) (*HTTPClient, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid server address: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Jar: jar, Timeout: timeout},
	}, nil
}

// Register creates an account and returns the access token of the freshly
// started session.
func (c *HTTPClient) Register(ctx context.Context, username, email string, password []byte) (string, error) {
	body := map[string]string{"username": username, "email": email, "password": string(password)}

	var resp registerResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/register", body, "", &resp); err != nil {
		return "", err
	}
	return resp.Token.AccessToken, nil
}

// Login authenticates by username or email and returns the access token.
func (c *HTTPClient) Login(ctx context.Context, identifier string, password []byte) (string, error) {
	body := map[string]string{"identifier": identifier, "password": string(password)}

	var resp tokenResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", body, "", &resp); err != nil {
		return "", err
	}
	return resp.AccessToken, nil
}

// Refresh rotates the session using the jarred refresh cookie and returns a
// fresh access token.
func (c *HTTPClient) Refresh(ctx context.Context) (string, error) {
	var resp tokenResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/refresh", nil, "", &resp); err != nil {
		return "", err
	}
	return resp.AccessToken, nil
}

// Logout revokes the current session.
func (c *HTTPClient) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/auth/logout", nil, "", nil)
}

// CurrentUser returns the profile behind accessToken.
func (c *HTTPClient) CurrentUser(ctx context.Context, accessToken string) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/api/v1/users", nil, accessToken, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Sessions lists the caller's active sessions.
func (c *HTTPClient) Sessions(ctx context.Context, accessToken string) ([]*Session, error) {
	var resp sessionsResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/users/sessions", nil, accessToken, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any, accessToken string, out any) error {
	var reqBody *bytes.Buffer
	if body != nil {
		reqBody = &bytes.Buffer{}
		if err := json.NewEncoder(reqBody).Encode(body); err != nil {
			return err
		}
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return apiErrorFromResponse(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// apiErrorFromResponse maps a non-2xx response to one of the package's
// sentinel errors, keeping the server's message as context.
func apiErrorFromResponse(resp *http.Response) error {
	var body errorResponse
	msg := resp.Status
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error.Message != "" {
		msg = body.Error.Message
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrConflict, msg)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrBadRequest, msg)
	default:
		return fmt.Errorf("server error: %s", msg)
	}
}
