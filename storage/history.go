package storage

import (
	"encoding/json"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/spf13/afero"
)

const (
	schemaVersion = "1.0"
	lockTimeout   = 5 * time.Second
)

// Record is one completed download.
type Record struct {
	// MediaID is the platform media identifier.
	MediaID string `json:"media_id"`
	// Track is the camera feed ("primary" or "secondary").
	Track string `json:"track"`
	// URL is the stream URL that was fetched.
	URL string `json:"url"`
	// Path is where the file landed.
	Path string `json:"path"`
	// Size is the final byte count.
	Size int64 `json:"size"`
	// DownloadedAt is when the download finished.
	DownloadedAt time.Time `json:"downloaded_at"`
}

// historyData is the top-level JSON structure.
type historyData struct {
	Version   string             `json:"version"`
	UpdatedAt time.Time          `json:"updated_at"`
	Records   map[string]*Record `json:"records"` // media_id/track -> record
}

// History tracks which media a previous run already downloaded, so repeat
// runs skip them without touching the destination files. It is keyed by
// media id and track rather than destination path: renaming or moving the
// output does not trigger a re-download.
type History struct {
	fs   afero.Fs
	path string
	lock *FileLock
	data *historyData
	mu   sync.RWMutex
}

// OpenHistory opens (or creates) the history file at path on the OS
// filesystem, holding an advisory lock until Close.
func OpenHistory(path string) (*History, error) {
	h := &History{
		fs:   afero.NewOsFs(),
		path: path,
		lock: NewFileLock(path),
	}

	if err := h.lock.Lock(lockTimeout); err != nil {
		return nil, err
	}

	if err := h.load(); err != nil {
		h.lock.Unlock()
		return nil, err
	}
	return h, nil
}

// OpenHistoryWithFs opens a history on the given filesystem, without file
// locking, for tests.
func OpenHistoryWithFs(fs afero.Fs, path string) (*History, error) {
	h := &History{fs: fs, path: path}
	if err := h.load(); err != nil {
		return nil, err
	}
	return h, nil
}

// load reads the JSON file into memory. Creates empty data if file doesn't exist.
func (h *History) load() error {
	data, err := afero.ReadFile(h.fs, h.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			h.data = &historyData{
				Version:   schemaVersion,
				UpdatedAt: time.Now(),
				Records:   make(map[string]*Record),
			}
			// Save immediately to catch permission errors early
			return h.save()
		}
		return &StorageError{Op: "read", Path: h.path, Err: err}
	}

	h.data = &historyData{}
	if err := json.Unmarshal(data, h.data); err != nil {
		return &StorageError{Op: "read", Path: h.path, Err: ErrCorrupt}
	}
	if h.data.Records == nil {
		h.data.Records = make(map[string]*Record)
	}
	return nil
}

// save persists the data to disk atomically.
func (h *History) save() error {
	h.data.UpdatedAt = time.Now()

	writer, err := NewAtomicWriter(h.fs, h.path)
	if err != nil {
		return &StorageError{Op: "write", Path: h.path, Err: err}
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(h.data); err != nil {
		writer.Abort()
		return &StorageError{Op: "write", Path: h.path, Err: err}
	}

	if err := writer.Commit(); err != nil {
		return &StorageError{Op: "write", Path: h.path, Err: err}
	}
	return nil
}

func recordKey(mediaID, track string) string {
	return mediaID + "/" + track
}

// Contains reports whether the media/track pair was already downloaded.
func (h *History) Contains(mediaID, track string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.data.Records[recordKey(mediaID, track)]
	return ok
}

// Add records a completed download and persists immediately, so a crash
// later in the run cannot lose it.
func (h *History) Add(rec Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if rec.DownloadedAt.IsZero() {
		rec.DownloadedAt = time.Now()
	}
	h.data.Records[recordKey(rec.MediaID, rec.Track)] = &rec

	return h.save()
}

// Len returns the number of recorded downloads.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.data.Records)
}

// Close releases the file lock, if one is held.
func (h *History) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lock == nil {
		return nil
	}
	return h.lock.Unlock()
}
