package handlers

import (
	"net/http"
	"time"

	"github.com/vidtube/backend/internal/models"
)

const (
	accessCookieName  = "accessToken"
	refreshCookieName = "refreshToken"
)

// CookiePolicy controls the attributes of the session cookies.
type CookiePolicy struct {
	Secure bool
	Domain string
	Now    func() time.Time
}

func (p CookiePolicy) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p CookiePolicy) cookie(name, value string, expires time.Time) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   p.Domain,
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if !expires.IsZero() {
		c.Expires = expires
		if maxAge := int(expires.Sub(p.now()).Seconds()); maxAge > 0 {
			c.MaxAge = maxAge
		}
	}
	return c
}

func (p CookiePolicy) setSession(w http.ResponseWriter, tokens models.SessionTokens) {
	http.SetCookie(w, p.cookie(accessCookieName, tokens.AccessToken, tokens.AccessExpiresAt))
	http.SetCookie(w, p.cookie(refreshCookieName, tokens.RefreshToken, tokens.RefreshExpiresAt))
}

func (p CookiePolicy) clearSession(w http.ResponseWriter) {
	for _, name := range []string{accessCookieName, refreshCookieName} {
		c := p.cookie(name, "", time.Time{})
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		http.SetCookie(w, c)
	}
}
