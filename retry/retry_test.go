package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDo_Success(t *testing.T) {
	attempts := 0

	err := Do(context.Background(), testConfig(), nil, func(ctx context.Context) error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("Do() returned error = %v, want nil", err)
	}
	if attempts != 1 {
		t.Errorf("Do() made %d attempts, want 1", attempts)
	}
}

func TestDo_PermanentError(t *testing.T) {
	attempts := 0

	err := Do(context.Background(), testConfig(), IsRetryable, func(ctx context.Context) error {
		attempts++
		return ErrAuth
	})

	if !errors.Is(err, ErrAuth) {
		t.Errorf("Do() returned error = %v, want %v", err, ErrAuth)
	}
	if attempts != 1 {
		t.Errorf("Do() made %d attempts, want 1", attempts)
	}
}

func TestDo_RetryableError(t *testing.T) {
	attempts := 0
	tempErr := errors.New("temporary")
	successAfter := 2

	err := Do(context.Background(), testConfig(), IsRetryable, func(ctx context.Context) error {
		attempts++
		if attempts < successAfter {
			return tempErr
		}
		return nil
	})

	if err != nil {
		t.Errorf("Do() returned error = %v, want nil", err)
	}
	if attempts != successAfter {
		t.Errorf("Do() made %d attempts, want %d", attempts, successAfter)
	}
}

func TestDo_MaxRetriesExceeded(t *testing.T) {
	attempts := 0
	tempErr := errors.New("temporary")
	cfg := testConfig()

	err := Do(context.Background(), cfg, IsRetryable, func(ctx context.Context) error {
		attempts++
		return tempErr
	})

	if !errors.Is(err, tempErr) {
		t.Errorf("Do() returned error = %v, want wrapped %v", err, tempErr)
	}
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Do() returned %T, want *ExhaustedError", err)
	}
	if exhausted.Attempts != cfg.MaxRetries+1 {
		t.Errorf("ExhaustedError.Attempts = %d, want %d", exhausted.Attempts, cfg.MaxRetries+1)
	}
	if attempts != cfg.MaxRetries+1 {
		t.Errorf("Do() made %d attempts, want %d", attempts, cfg.MaxRetries+1)
	}
}

func TestDo_BackoffElapsed(t *testing.T) {
	attempts := 0
	tempErr := errors.New("temporary")
	cfg := Config{
		MaxRetries:     2,
		InitialBackoff: 20 * time.Millisecond,
		MaxBackoff:     100 * time.Millisecond,
		Multiplier:     2.0,
	}

	start := time.Now()
	err := Do(context.Background(), cfg, IsRetryable, func(ctx context.Context) error {
		attempts++
		if attempts < 2 {
			return tempErr
		}
		return nil
	})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Do() returned error = %v, want nil", err)
	}
	if elapsed < cfg.InitialBackoff {
		t.Errorf("Do() returned after %v, want at least %v of backoff", elapsed, cfg.InitialBackoff)
	}
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tempErr := errors.New("temporary")

	err := Do(ctx, testConfig(), IsRetryable, func(ctx context.Context) error {
		cancel()
		return tempErr
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() returned error = %v, want context.Canceled", err)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"auth", ErrAuth, false},
		{"invalid url", ErrInvalidURL, false},
		{"generic", errors.New("connection reset"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
