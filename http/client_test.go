package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"echosync/retry"
)

func testClientConfig() *Config {
	return &Config{
		Timeout: 5 * time.Second,
		Retry: retry.Config{
			MaxRetries:     2,
			InitialBackoff: 5 * time.Millisecond,
			MaxBackoff:     20 * time.Millisecond,
			Multiplier:     2.0,
		},
		UserAgent:         "echosync-test",
		RequestsPerSecond: 0,
		Breaker:           BreakerConfig{Threshold: 3, Cooldown: 50 * time.Millisecond},
	}
}

func TestDo_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "echosync-test" {
			t.Errorf("User-Agent = %q, want echosync-test", got)
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c := New(testClientConfig(), nil)
	resp, err := c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if string(resp.Body) != `{"status":"ok"}` {
		t.Errorf("Body = %q", resp.Body)
	}
}

func TestDo_RetriesTransient(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New(testClientConfig(), nil)
	resp, err := c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("server saw %d requests, want 2", got)
	}
}

func TestDo_RedirectNotFollowedNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Location", "https://login.example.org/login")
		w.WriteHeader(http.StatusFound)
	}))
	defer srv.Close()

	c := New(testClientConfig(), nil)
	_, err := c.Get(context.Background(), srv.URL)

	var redirect *RedirectError
	if !errors.As(err, &redirect) {
		t.Fatalf("Get() error = %v, want *RedirectError", err)
	}
	if redirect.Location != "https://login.example.org/login" {
		t.Errorf("Location = %q", redirect.Location)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("server saw %d requests, want 1 (no retry on redirect)", got)
	}
}

func TestDo_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(testClientConfig(), nil)
	_, err := c.Get(context.Background(), srv.URL)

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("Get() error = %v, want *HTTPError", err)
	}
	if httpErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", httpErr.StatusCode)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("server saw %d requests, want 1", got)
	}
}

func TestDo_BreakerTripsOnTransportFailures(t *testing.T) {
	// Server that is immediately closed: all requests fail at transport level.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	cfg := testClientConfig()
	cfg.Retry.MaxRetries = 0
	c := New(cfg, nil)

	for i := 0; i < cfg.Breaker.Threshold; i++ {
		if _, err := c.Get(context.Background(), url); err == nil {
			t.Fatal("Get() succeeded against closed server")
		}
	}

	_, err := c.Get(context.Background(), url)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Get() after %d failures error = %v, want ErrUnavailable", cfg.Breaker.Threshold, err)
	}
}

func TestBreaker_HalfOpenAfterCooldown(t *testing.T) {
	b := NewBreaker(BreakerConfig{Threshold: 2, Cooldown: 10 * time.Millisecond})

	b.RecordFailure("host")
	b.RecordFailure("host")
	if err := b.Allow("host"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Allow() = %v, want ErrUnavailable", err)
	}

	time.Sleep(15 * time.Millisecond)
	if err := b.Allow("host"); err != nil {
		t.Errorf("Allow() after cooldown = %v, want nil", err)
	}

	// A success closes the breaker fully.
	b.RecordSuccess("host")
	b.RecordFailure("host")
	if err := b.Allow("host"); err != nil {
		t.Errorf("Allow() after reset = %v, want nil", err)
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	for i := 0; i < 100; i++ {
		if err := rl.Wait(ctx, "https://example.org/x"); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
}

func TestExtractHost(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://echo360.org.uk/section/x/syllabus", "echo360.org.uk"},
		{"http://localhost:8080/lesson", "localhost"},
		{"::bad::", "unknown"},
	}
	for _, tt := range tests {
		if got := extractHost(tt.url); got != tt.want {
			t.Errorf("extractHost(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}
