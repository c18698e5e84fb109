// Package echosync provides a library for downloading lecture-capture
// recordings from Echo360 instances.
//
// It automates the full pipeline: authenticating against the platform,
// resolving a course page into its list of recorded lectures, picking the
// best video rendition per lecture, and downloading the selected recordings
// with resume support.
//
// Overview
//
// The Orchestrator ties the pipeline together:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	provider := &session.Provider{
//		Vault:      vault.New(cfg.VaultPath),
//		Passphrase: promptPassphrase,
//		Login:      browserLogin,
//	}
//
//	orch := echosync.NewOrchestrator(cfg, provider, nil, nil, logger)
//	results, err := orch.Run(ctx, courseURLs, echo360.SelectAll())
//
// Lecture selection uses 1-based ordinals matching the course page:
//
//	sel, err := echo360.ParseSelection("1,3,5-8")
//
// Configuration
//
// echosync uses a configuration system that loads settings from multiple
// sources:
//
//   1. Environment variables (highest priority)
//   2. Config file (echosync.json or ~/.config/echosync/echosync.json)
//   3. Default values (lowest priority)
//
// Environment variables:
//
//   - ECHOSYNC_ORIGIN: Base URL of the lecture platform
//   - ECHOSYNC_DESTINATION: Download directory
//   - ECHOSYNC_VAULT_PATH: Encrypted session vault path
//   - ECHOSYNC_HISTORY_PATH: Download history path
//   - ECHOSYNC_RESOLVER_CONCURRENCY: Concurrent metadata fetches
//   - ECHOSYNC_DOWNLOAD_CONCURRENCY: Concurrent video transfers
//   - ECHOSYNC_REQUEST_TIMEOUT: Timeout for metadata requests
//   - ECHOSYNC_REQUESTS_PER_SECOND: Per-host request rate cap
//   - ECHOSYNC_MAX_RETRIES: Maximum retry attempts
//   - ECHOSYNC_INITIAL_BACKOFF: Initial retry backoff duration
//   - ECHOSYNC_MAX_BACKOFF: Maximum retry backoff duration
//
// Error Handling
//
// All operations return errors that implement standard Go error handling:
//
//	if errors.Is(err, echosync.ErrSessionExpired) {
//		fmt.Println("Log in again")
//	}
//
//	var schemaErr *echosync.SchemaError
//	if errors.As(err, &schemaErr) {
//		fmt.Printf("Platform changed its %s format: %v\n", schemaErr.Stage, schemaErr.Err)
//	}
//
// Sessions
//
// Authenticated sessions are cookie sets. They can be persisted between runs
// in a passphrase-encrypted vault; the passphrase and the cookies never
// appear in logs or on disk unencrypted. When the vault is missing, stale,
// or undecryptable, the session provider falls through to the configured
// interactive login.
//
// Advanced Usage
//
// For more control, use the sub-packages directly:
//
//   - echo360: Course parsing, metadata resolution, and lecture selection
//   - session: Session acquisition, validation, and persistence
//   - vault: Passphrase-encrypted cookie storage
//   - download: Bounded-concurrency resumable downloads
//   - storage: Download history persistence
//   - config: Configuration management
//   - retry: Exponential backoff retry logic
//
package echosync
