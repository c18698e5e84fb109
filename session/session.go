// Package session acquires and carries the authenticated platform session.
//
// A Session is an immutable bearer of cookies: it is created once by the
// Provider and shared read-only by every component that issues requests.
// Cookies are never serialized in plaintext; persistence goes through the
// encrypted vault.
package session

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"
)

// Session holds the authentication state for one platform origin.
type Session struct {
	origin  string
	cookies []*http.Cookie
}

// New creates a session for the origin from a captured cookie set.
func New(origin string, cookies []*http.Cookie) *Session {
	copied := make([]*http.Cookie, len(cookies))
	for i, c := range cookies {
		clone := *c
		copied[i] = &clone
	}
	return &Session{origin: origin, cookies: copied}
}

// Origin returns the platform base URL the session belongs to.
func (s *Session) Origin() string {
	return s.origin
}

// Cookies returns a copy of the session cookie set.
func (s *Session) Cookies() []*http.Cookie {
	copied := make([]*http.Cookie, len(s.cookies))
	for i, c := range s.cookies {
		clone := *c
		copied[i] = &clone
	}
	return copied
}

// Jar builds a cookie jar scoped to the session origin, for use in HTTP
// clients. Each caller gets its own jar; the session itself stays immutable.
func (s *Session) Jar() (http.CookieJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	u, err := url.Parse(s.origin)
	if err != nil {
		return nil, fmt.Errorf("parse origin: %w", err)
	}
	jar.SetCookies(u, s.Cookies())
	return jar, nil
}

// ExpiresAt returns the earliest cookie expiry as a hint for session
// lifetime. The second return is false when every cookie is session-scoped.
func (s *Session) ExpiresAt() (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, c := range s.cookies {
		if c.Expires.IsZero() {
			continue
		}
		if !found || c.Expires.Before(earliest) {
			earliest = c.Expires
			found = true
		}
	}
	return earliest, found
}
