package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hashicorp/go-hclog"

	xhttp "echosync/http"
	"echosync/vault"
)

// Sentinel errors for session acquisition.
var (
	// ErrLoginFailed indicates the interactive login capability could not
	// produce a session (bad credentials, canceled flow).
	ErrLoginFailed = errors.New("session: login failed")
	// ErrNoLogin indicates no login capability is configured and the vault
	// could not supply a valid session.
	ErrNoLogin = errors.New("session: no login capability configured")
)

// Credentials are the user's platform credentials. They pass through to the
// login capability and are never stored or logged.
type Credentials struct {
	Username string
	Password string
}

// LoginFunc is the interactive login capability. Given the login entry URL it
// drives the platform's login flow and returns the resulting cookie set once
// the post-login redirect is observed. It may block for the duration of human
// interaction (2FA approval); that suspension is expected.
type LoginFunc func(ctx context.Context, loginURL string, creds Credentials) ([]*http.Cookie, error)

// PassphraseFunc supplies the vault passphrase on demand.
type PassphraseFunc func(ctx context.Context) (string, error)

// CredentialsFunc supplies login credentials on demand.
type CredentialsFunc func(ctx context.Context) (Credentials, error)

// Provider obtains a valid authenticated session, preferring an encrypted
// vault over interactive login.
type Provider struct {
	// Vault is the encrypted cookie store; nil disables reuse/persistence.
	Vault *vault.Vault
	// Login is the interactive login capability.
	Login LoginFunc
	// Passphrase supplies the vault passphrase when one is needed.
	Passphrase PassphraseFunc
	// Credentials supplies login credentials when interactive login runs.
	Credentials CredentialsFunc
	// HTTP configures the probe client.
	HTTP *xhttp.Config
	// Logger receives acquisition progress; defaults to a noop logger.
	Logger hclog.Logger
}

func (p *Provider) logger() hclog.Logger {
	if p.Logger == nil {
		return hclog.NewNullLogger()
	}
	return p.Logger
}

// Acquire returns a valid session for the origin. It tries the vault first,
// validates the decrypted session with one probe request, and falls through
// to interactive login when the vault is missing, undecryptable, or stale.
func (p *Provider) Acquire(ctx context.Context, origin, probeURL, loginURL string) (*Session, error) {
	log := p.logger()

	if p.Vault != nil && p.Vault.Exists() && p.Passphrase != nil {
		sess, err := p.fromVault(ctx, origin, probeURL)
		if err == nil {
			log.Debug("reusing persisted session", "vault", p.Vault.Path())
			return sess, nil
		}
		if errors.Is(err, xhttp.ErrUnavailable) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		log.Warn("persisted session unusable, falling back to login", "reason", err)
	}

	if p.Login == nil {
		return nil, ErrNoLogin
	}

	creds := Credentials{}
	if p.Credentials != nil {
		var err error
		creds, err = p.Credentials(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoginFailed, err)
		}
	}

	log.Info("starting interactive login", "url", loginURL)
	cookies, err := p.Login(ctx, loginURL, creds)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}

	return New(origin, cookies), nil
}

// fromVault decrypts the persisted session and validates it with one probe.
func (p *Provider) fromVault(ctx context.Context, origin, probeURL string) (*Session, error) {
	passphrase, err := p.Passphrase(ctx)
	if err != nil {
		return nil, err
	}

	cookies, err := p.Vault.Load(passphrase)
	if err != nil {
		return nil, err
	}

	sess := New(origin, cookies)
	if err := p.Validate(ctx, sess, probeURL); err != nil {
		return nil, err
	}
	return sess, nil
}

// Validate issues one lightweight authenticated request and reports whether
// the platform still accepts the session. A redirect toward a login host or
// an auth status invalidates it.
func (p *Provider) Validate(ctx context.Context, sess *Session, probeURL string) error {
	jar, err := sess.Jar()
	if err != nil {
		return err
	}

	client := xhttp.New(p.HTTP, jar)
	defer client.Close()

	_, err = client.Get(ctx, probeURL)
	if err == nil {
		return nil
	}

	var redirect *xhttp.RedirectError
	if errors.As(err, &redirect) && strings.Contains(redirect.Location, "login") {
		return fmt.Errorf("session stale: %w", err)
	}
	var httpErr *xhttp.HTTPError
	if errors.As(err, &httpErr) && (httpErr.StatusCode == 401 || httpErr.StatusCode == 403) {
		return fmt.Errorf("session rejected: %w", err)
	}
	return err
}

// Persist encrypts the session into the vault. Callers decide whether to
// offer this; it is never forced.
func (p *Provider) Persist(sess *Session, passphrase string) error {
	if p.Vault == nil {
		return errors.New("session: no vault configured")
	}
	return p.Vault.Save(sess.Cookies(), passphrase)
}
