package handlers

import (
	"net/http"
	"time"

	"github.com/nkiryanov/schoolauth/internal/models"
)

const (
	DefaultRefreshCookieName = "refreshtoken"
	DefaultRefreshCookiePath = "/api/auth"
)

// Refresh token cookie settings
type CookieConfig struct {
	Name   string
	Path   string
	Secure bool
	MaxAge time.Duration // refresh token TTL if zero
}

func (c CookieConfig) withDefaults(refreshTTL time.Duration) CookieConfig {
	if c.Name == "" {
		c.Name = DefaultRefreshCookieName
	}
	if c.Path == "" {
		c.Path = DefaultRefreshCookiePath
	}
	if c.MaxAge == 0 {
		c.MaxAge = refreshTTL
	}
	return c
}

func (c CookieConfig) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    value,
		Path:     c.Path,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

func (c CookieConfig) read(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(c.Name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

func (c CookieConfig) clear(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie("", -1))
}

// Set access token to Authorization header and refresh token to the cookie
func setTokens(w http.ResponseWriter, c CookieConfig, pair models.TokenPair) {
	w.Header().Set("Authorization", "Bearer "+pair.Access.Value)
	http.SetCookie(w, c.cookie(pair.Refresh.Value, int(c.MaxAge.Seconds())))
}
