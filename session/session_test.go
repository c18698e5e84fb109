package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xhttp "echosync/http"
	"echosync/retry"
	"echosync/vault"
)

func fastHTTPConfig() *xhttp.Config {
	cfg := xhttp.DefaultConfig()
	cfg.Retry = retry.Config{MaxRetries: 0, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 2}
	cfg.RequestsPerSecond = 0
	return cfg
}

func TestSession_Immutable(t *testing.T) {
	original := []*http.Cookie{{Name: "a", Value: "1"}}
	sess := New("https://echo360.org.uk", original)

	original[0].Value = "mutated"
	assert.Equal(t, "1", sess.Cookies()[0].Value)

	got := sess.Cookies()
	got[0].Value = "mutated"
	assert.Equal(t, "1", sess.Cookies()[0].Value)
}

func TestSession_ExpiresAt(t *testing.T) {
	soon := time.Now().Add(time.Hour).UTC()
	later := time.Now().Add(48 * time.Hour).UTC()

	sess := New("https://echo360.org.uk", []*http.Cookie{
		{Name: "a", Value: "1", Expires: later},
		{Name: "b", Value: "2", Expires: soon},
		{Name: "c", Value: "3"}, // session-scoped
	})

	got, ok := sess.ExpiresAt()
	require.True(t, ok)
	assert.True(t, got.Equal(soon))

	_, ok = New("x", []*http.Cookie{{Name: "c"}}).ExpiresAt()
	assert.False(t, ok)
}

func TestAcquire_VaultSessionStillValid(t *testing.T) {
	var sawCookie bool
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("PLAY_SESSION"); err == nil && c.Value == "valid" {
			sawCookie = true
			w.Write([]byte(`{"status":"ok","data":[]}`))
			return
		}
		w.Header().Set("Location", srv.URL+"/login")
		w.WriteHeader(http.StatusFound)
	}))
	defer srv.Close()

	v := vault.NewWithFs(afero.NewMemMapFs(), "/s.vault")
	require.NoError(t, v.Save([]*http.Cookie{{Name: "PLAY_SESSION", Value: "valid"}}, "pw"))

	p := &Provider{
		Vault:      v,
		Passphrase: func(ctx context.Context) (string, error) { return "pw", nil },
		Login: func(ctx context.Context, loginURL string, creds Credentials) ([]*http.Cookie, error) {
			t.Fatal("login must not run when the vault session is valid")
			return nil, nil
		},
		HTTP: fastHTTPConfig(),
	}

	sess, err := p.Acquire(context.Background(), srv.URL, srv.URL+"/probe", srv.URL+"/home")
	require.NoError(t, err)
	assert.True(t, sawCookie)
	assert.Equal(t, srv.URL, sess.Origin())
}

func TestAcquire_StaleVaultFallsThroughToLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "https://login.example.org/login")
		w.WriteHeader(http.StatusFound)
	}))
	defer srv.Close()

	v := vault.NewWithFs(afero.NewMemMapFs(), "/s.vault")
	require.NoError(t, v.Save([]*http.Cookie{{Name: "PLAY_SESSION", Value: "stale"}}, "pw"))

	loginCalled := false
	p := &Provider{
		Vault:      v,
		Passphrase: func(ctx context.Context) (string, error) { return "pw", nil },
		Credentials: func(ctx context.Context) (Credentials, error) {
			return Credentials{Username: "u", Password: "p"}, nil
		},
		Login: func(ctx context.Context, loginURL string, creds Credentials) ([]*http.Cookie, error) {
			loginCalled = true
			assert.Equal(t, "u", creds.Username)
			return []*http.Cookie{{Name: "PLAY_SESSION", Value: "fresh"}}, nil
		},
		HTTP: fastHTTPConfig(),
	}

	sess, err := p.Acquire(context.Background(), srv.URL, srv.URL+"/probe", srv.URL+"/home")
	require.NoError(t, err)
	assert.True(t, loginCalled)
	assert.Equal(t, "fresh", sess.Cookies()[0].Value)
}

func TestAcquire_WrongPassphraseFallsThroughToLogin(t *testing.T) {
	v := vault.NewWithFs(afero.NewMemMapFs(), "/s.vault")
	require.NoError(t, v.Save([]*http.Cookie{{Name: "PLAY_SESSION", Value: "x"}}, "right"))

	loginCalled := false
	p := &Provider{
		Vault:      v,
		Passphrase: func(ctx context.Context) (string, error) { return "wrong", nil },
		Login: func(ctx context.Context, loginURL string, creds Credentials) ([]*http.Cookie, error) {
			loginCalled = true
			return []*http.Cookie{{Name: "PLAY_SESSION", Value: "fresh"}}, nil
		},
		HTTP: fastHTTPConfig(),
	}

	_, err := p.Acquire(context.Background(), "https://echo360.org.uk", "https://echo360.org.uk/probe", "https://echo360.org.uk/home")
	require.NoError(t, err)
	assert.True(t, loginCalled)
}

func TestAcquire_NoLoginConfigured(t *testing.T) {
	p := &Provider{HTTP: fastHTTPConfig()}

	_, err := p.Acquire(context.Background(), "https://x", "https://x/probe", "https://x/home")
	assert.ErrorIs(t, err, ErrNoLogin)
}

func TestAcquire_LoginFailure(t *testing.T) {
	p := &Provider{
		Login: func(ctx context.Context, loginURL string, creds Credentials) ([]*http.Cookie, error) {
			return nil, errors.New("2fa timeout")
		},
		HTTP: fastHTTPConfig(),
	}

	_, err := p.Acquire(context.Background(), "https://x", "https://x/probe", "https://x/home")
	assert.ErrorIs(t, err, ErrLoginFailed)
}

func TestPersist_RoundTrip(t *testing.T) {
	v := vault.NewWithFs(afero.NewMemMapFs(), "/s.vault")
	p := &Provider{Vault: v}

	sess := New("https://echo360.org.uk", []*http.Cookie{{Name: "PLAY_SESSION", Value: "abc"}})
	require.NoError(t, p.Persist(sess, "pw"))

	cookies, err := v.Load("pw")
	require.NoError(t, err)
	assert.Equal(t, "abc", cookies[0].Value)
}
