package http

import (
	"errors"
	"fmt"
)

// HTTPError indicates a non-success HTTP response.
type HTTPError struct {
	// StatusCode is the HTTP status code
	StatusCode int
	// Body is the response body
	Body []byte
}

// Error returns a string representation of the HTTP error.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error: status %d", e.StatusCode)
}

// RedirectError indicates the server answered with a redirect. The client
// never follows redirects for API calls; a redirect to a login host is how
// the platform signals an expired session.
type RedirectError struct {
	// StatusCode is the 3xx status code
	StatusCode int
	// Location is the target of the redirect
	Location string
}

// Error returns a string representation of the redirect error.
func (e *RedirectError) Error() string {
	return fmt.Sprintf("http redirect: status %d to %s", e.StatusCode, e.Location)
}

// Sentinel errors for HTTP operations.
var (
	// ErrUnavailable indicates the host is considered unreachable after
	// repeated transport failures.
	ErrUnavailable = errors.New("http: host unavailable")

	// ErrNoResponse indicates no response was received from the server.
	ErrNoResponse = errors.New("http: no response received")
)
