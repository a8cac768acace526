package httpapi

import (
	"net/http"
	"time"
)

// setRefreshTokenCookie stores the refresh token as an HttpOnly cookie
// scoped to the refresh/logout endpoints.
func (s *Server) setRefreshTokenCookie(w http.ResponseWriter, refreshToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.RefreshTokenCookieName,
		Value:    refreshToken,
		Path:     "/api/v1/auth",
		MaxAge:   int(s.config.RefreshTokenValidityDuration / time.Second),
		HttpOnly: true,
		Secure:   s.config.RefreshTokenCookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) deleteRefreshTokenCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.RefreshTokenCookieName,
		Value:    "",
		Path:     "/api/v1/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.config.RefreshTokenCookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// refreshTokenFromCookie returns the refresh token carried by the request,
// or "" when the cookie is absent.
func (s *Server) refreshTokenFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(s.config.RefreshTokenCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
