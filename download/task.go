// Package download fetches resolved video streams to disk with bounded
// concurrency, resumable range requests, and per-task retry. Partial output
// lives in a ".part" file that is renamed only after the transfer is
// complete and size-checked, so an interrupted run never leaves a file that
// looks finished.
package download

import (
	"fmt"

	"github.com/google/uuid"
)

// Task describes one stream to fetch. The destination path is unique per
// task; the manager renames colliding paths deterministically rather than
// letting two writers share one file.
type Task struct {
	// ID identifies the task in progress events.
	ID string
	// URL is the stream source.
	URL string
	// Path is the final destination path.
	Path string
	// ExpectedSize is the byte size reported by the platform, 0 if unknown.
	ExpectedSize int64
	// Label names the task for humans, e.g. "2024-01-10 Lecture 3".
	Label string
}

// NewTask creates a task with a generated id.
func NewTask(url, path string, expectedSize int64, label string) Task {
	return Task{
		ID:           uuid.NewString(),
		URL:          url,
		Path:         path,
		ExpectedSize: expectedSize,
		Label:        label,
	}
}

// Status is the terminal state of a task.
type Status int

const (
	// StatusCompleted means the file was fully transferred and renamed.
	StatusCompleted Status = iota
	// StatusSkipped means the destination already existed.
	StatusSkipped
	// StatusPartial means the transfer stopped (cancellation) with a
	// resumable partial file on disk.
	StatusPartial
	// StatusFailed means the task gave up; any partial file is retained.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusSkipped:
		return "skipped"
	case StatusPartial:
		return "partial"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the per-task result of a download run.
type Outcome struct {
	Task         Task
	Status       Status
	BytesWritten int64
	Err          error
}

// IntegrityError indicates a transfer ended with a byte count that does not
// match the platform-reported size. The partial file is kept for retry.
type IntegrityError struct {
	Path     string
	Expected int64
	Actual   int64
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("download: size mismatch for %s: got %d bytes, want %d", e.Path, e.Actual, e.Expected)
}

// ProgressSink receives task lifecycle and byte-count events. Implementations
// must be safe for concurrent use; the manager calls them from its workers.
type ProgressSink interface {
	// TaskStarted fires once per attempt chain, with the resume offset.
	TaskStarted(task Task, resumeOffset, total int64)
	// TaskProgress fires as bytes reach disk.
	TaskProgress(task Task, transferred, total int64)
	// TaskFinished fires with the terminal outcome.
	TaskFinished(task Task, outcome Outcome)
}

type nopSink struct{}

func (nopSink) TaskStarted(Task, int64, int64)  {}
func (nopSink) TaskProgress(Task, int64, int64) {}
func (nopSink) TaskFinished(Task, Outcome)      {}
