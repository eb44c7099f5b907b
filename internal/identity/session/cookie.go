// Package session moves the visitor token between HTTP and the resolver.
// The token itself is opaque; this package only owns the cookie transport.
package session

import (
	"net/http"
)

const (
	// CookieName is the session cookie carrying the visitor token.
	CookieName = "visitorId"

	// MaxAge is the token's validity window for the transport layer,
	// refreshed on every successful resolution: 7 days in seconds.
	MaxAge = 7 * 24 * 3600
)

// CookieOptions defines how visitor cookies are issued.
type CookieOptions struct {
	Path     string
	Secure   bool
	SameSite http.SameSite
}

// normalize applies safe defaults without breaking callers.
func (o CookieOptions) normalize() CookieOptions {
	if o.Path == "" {
		o.Path = "/"
	}
	if o.SameSite == 0 {
		o.SameSite = http.SameSiteLaxMode
	}
	return o
}

// ReadToken extracts the visitor token from the request cookie. Absent or
// unparseable cookies yield "", never an error; the resolver treats that
// as "no token".
func ReadToken(r *http.Request) string {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// WriteToken (re-)attaches the visitor token to the outbound response,
// refreshing its validity window.
func WriteToken(w http.ResponseWriter, token string, opts CookieOptions) {
	opts = opts.normalize()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     opts.Path,
		MaxAge:   MaxAge,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})
}
