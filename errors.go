package echosync

import (
	"echosync/download"
	"echosync/echo360"
	"echosync/retry"
	"echosync/session"
	"echosync/storage"
	"echosync/vault"
)

// Error handling types exported for library users.
//
// All error types support the standard error handling patterns:
//
// Using errors.Is() for sentinel errors:
//
//	if errors.Is(err, echosync.ErrSessionExpired) {
//		fmt.Println("Session expired, log in again")
//	}
//
// Using errors.As() for wrapped errors:
//
//	var integrity *echosync.IntegrityError
//	if errors.As(err, &integrity) {
//		fmt.Printf("Incomplete download at %s: %d of %d bytes\n",
//			integrity.Path, integrity.Actual, integrity.Expected)
//	}

// Type aliases for convenient error handling.
type (
	// SchemaError indicates the platform returned JSON in an unexpected shape.
	SchemaError = echo360.SchemaError
	// InputError indicates an unparseable lecture selection expression.
	InputError = echo360.InputError
	// IntegrityError indicates a download ended with a size mismatch.
	IntegrityError = download.IntegrityError
	// StorageError wraps errors during history storage operations.
	StorageError = storage.StorageError
	// ExhaustedError wraps errors that persisted after retries were exhausted.
	ExhaustedError = retry.ExhaustedError
)

// Sentinel errors exported from sub-packages.
var (
	// ErrInvalidCourseURL indicates a course URL without a section id.
	ErrInvalidCourseURL = echo360.ErrInvalidCourseURL
	// ErrSessionExpired indicates the platform no longer accepts the session.
	ErrSessionExpired = echo360.ErrSessionExpired

	// ErrLoginFailed indicates interactive login could not produce a session.
	ErrLoginFailed = session.ErrLoginFailed
	// ErrNoLogin indicates no login capability is configured.
	ErrNoLogin = session.ErrNoLogin

	// Vault errors
	// ErrVaultAuth indicates the vault passphrase is wrong or the vault was tampered with.
	ErrVaultAuth = vault.ErrAuth
	// ErrVaultNotFound indicates no vault exists at the configured path.
	ErrVaultNotFound = vault.ErrNotFound
	// ErrVaultCorrupt indicates the vault file is structurally damaged.
	ErrVaultCorrupt = vault.ErrCorrupt

	// Storage errors
	// ErrHistoryCorrupt indicates the history file cannot be parsed.
	ErrHistoryCorrupt = storage.ErrCorrupt
	// ErrLockTimeout indicates a timeout acquiring the history file lock.
	ErrLockTimeout = storage.ErrLockTimeout
)

// IsRetryable determines if an error should be retried.
// It returns false for permanent errors like authentication failures
// and context cancellation.
func IsRetryable(err error) bool {
	return retry.IsRetryable(err)
}
