// Package vault encrypts a session cookie bundle with a passphrase for reuse
// across runs. The on-disk format is self-describing:
//
//	magic (4) | version (1) | salt (16) | nonce (12) | ciphertext
//
// The key is derived with Argon2id from the passphrase and the per-file salt;
// the ciphertext is AES-256-GCM, so a wrong passphrase or tampered file fails
// authentication instead of yielding garbage cookies.
package vault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/afero"
	"golang.org/x/crypto/argon2"
)

const (
	magic   = "ECSV"
	version = byte(1)

	saltSize  = 16
	nonceSize = 12
	keySize   = 32

	// Argon2id parameters
	argonTime    = 1
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4
)

// Sentinel errors for vault operations.
var (
	// ErrAuth indicates the passphrase is wrong or the vault was tampered with.
	ErrAuth = errors.New("vault: authentication failed")
	// ErrVersion indicates the vault was written by an incompatible version.
	ErrVersion = errors.New("vault: unsupported format version")
	// ErrCorrupt indicates the vault file is too short or malformed.
	ErrCorrupt = errors.New("vault: corrupt file")
	// ErrNotFound indicates no vault file exists at the configured path.
	ErrNotFound = errors.New("vault: not found")
)

// Encrypt serializes the cookie set and encrypts it under the passphrase.
// The passphrase is not retained.
func Encrypt(cookies []*http.Cookie, passphrase string) ([]byte, error) {
	plaintext, err := json.Marshal(cookies)
	if err != nil {
		return nil, fmt.Errorf("marshal cookies: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	aead, err := newAEAD(passphrase, salt)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(magic)+1+saltSize+nonceSize+len(plaintext)+aead.Overhead())
	out = append(out, magic...)
	out = append(out, version)
	out = append(out, salt...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plaintext, nil)
	return out, nil
}

// Decrypt authenticates and decrypts an encrypted cookie bundle. It returns
// ErrAuth for a wrong passphrase or tampered data, and ErrVersion for a
// vault written by an incompatible version.
func Decrypt(data []byte, passphrase string) ([]*http.Cookie, error) {
	headerSize := len(magic) + 1 + saltSize + nonceSize
	if len(data) < headerSize {
		return nil, ErrCorrupt
	}
	if !bytes.Equal(data[:len(magic)], []byte(magic)) {
		return nil, ErrCorrupt
	}
	if data[len(magic)] != version {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersion, data[len(magic)], version)
	}

	salt := data[len(magic)+1 : len(magic)+1+saltSize]
	nonce := data[len(magic)+1+saltSize : headerSize]
	ciphertext := data[headerSize:]

	aead, err := newAEAD(passphrase, salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuth
	}

	var cookies []*http.Cookie
	if err := json.Unmarshal(plaintext, &cookies); err != nil {
		return nil, fmt.Errorf("unmarshal cookies: %w", err)
	}
	return cookies, nil
}

func newAEAD(passphrase string, salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, keySize)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return aead, nil
}

// Vault reads and writes one encrypted cookie file.
type Vault struct {
	fs   afero.Fs
	path string
}

// New creates a vault bound to a file path on the OS filesystem.
func New(path string) *Vault {
	return NewWithFs(afero.NewOsFs(), path)
}

// NewWithFs creates a vault on the given filesystem, for tests.
func NewWithFs(fs afero.Fs, path string) *Vault {
	return &Vault{fs: fs, path: path}
}

// Path returns the vault file path.
func (v *Vault) Path() string {
	return v.path
}

// Exists reports whether a vault file is present.
func (v *Vault) Exists() bool {
	ok, err := afero.Exists(v.fs, v.path)
	return err == nil && ok
}

// Save encrypts the cookies and writes the vault file with owner-only
// permissions.
func (v *Vault) Save(cookies []*http.Cookie, passphrase string) error {
	data, err := Encrypt(cookies, passphrase)
	if err != nil {
		return err
	}
	if err := afero.WriteFile(v.fs, v.path, data, 0600); err != nil {
		return fmt.Errorf("write vault: %w", err)
	}
	return nil
}

// Load reads and decrypts the vault file.
func (v *Vault) Load(passphrase string) ([]*http.Cookie, error) {
	data, err := afero.ReadFile(v.fs, v.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read vault: %w", err)
	}
	return Decrypt(data, passphrase)
}
