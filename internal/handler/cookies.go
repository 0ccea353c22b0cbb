package handler

import (
	"net/http"
	"time"

	"github.com/vitrinehq/vitrine/internal/server/middleware"
	"github.com/vitrinehq/vitrine/internal/service"
)

// refreshCookiePath limits the refresh cookie to the auth endpoints.
const refreshCookiePath = "/api/v1/auth"

// CookieConfig controls how session cookies are written.
type CookieConfig struct {
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func (c CookieConfig) setSession(w http.ResponseWriter, pair *service.TokenPair) {
	http.SetCookie(w, c.cookie(middleware.AccessCookie, pair.AccessToken, "/", c.AccessTTL))
	http.SetCookie(w, c.cookie(middleware.RefreshCookie, pair.RefreshToken, refreshCookiePath, c.RefreshTTL))
}

func (c CookieConfig) clearSession(w http.ResponseWriter) {
	access := c.cookie(middleware.AccessCookie, "", "/", 0)
	access.MaxAge = -1
	refresh := c.cookie(middleware.RefreshCookie, "", refreshCookiePath, 0)
	refresh.MaxAge = -1
	http.SetCookie(w, access)
	http.SetCookie(w, refresh)
}

func (c CookieConfig) cookie(name, value, path string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}
