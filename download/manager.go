package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"echosync/retry"
)

const (
	partSuffix     = ".part"
	copyBufferSize = 32 * 1024
)

// Config holds download manager configuration.
type Config struct {
	// Concurrency caps simultaneous in-flight transfers.
	Concurrency int
	// Retry is the per-task retry schedule for transient failures.
	Retry retry.Config
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Concurrency: 3,
		Retry:       retry.DefaultConfig(),
	}
}

// Manager downloads tasks through a bounded worker pool. The HTTP client
// carries the authenticated session cookie jar and must not have a timeout
// set (transfers are long-lived; cancellation goes through the context).
type Manager struct {
	client *http.Client
	fs     afero.Fs
	config *Config
	sink   ProgressSink
	log    hclog.Logger
}

// NewManager creates a manager writing to the OS filesystem.
func NewManager(client *http.Client, cfg *Config, sink ProgressSink, logger hclog.Logger) *Manager {
	return newManager(client, afero.NewOsFs(), cfg, sink, logger)
}

// NewManagerWithFs creates a manager on the given filesystem, for tests.
func NewManagerWithFs(client *http.Client, fs afero.Fs, cfg *Config, sink ProgressSink, logger hclog.Logger) *Manager {
	return newManager(client, fs, cfg, sink, logger)
}

func newManager(client *http.Client, fs afero.Fs, cfg *Config, sink ProgressSink, logger hclog.Logger) *Manager {
	if client == nil {
		client = &http.Client{}
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	if sink == nil {
		sink = nopSink{}
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Manager{client: client, fs: fs, config: cfg, sink: sink, log: logger}
}

// Download fetches every task and returns one outcome per task, in task
// order. Failures are isolated: a failed task never aborts its siblings.
// Cancellation stops in-flight transfers, leaving resumable partial files.
func (m *Manager) Download(ctx context.Context, tasks []Task) []Outcome {
	tasks = m.assignPaths(tasks)
	outcomes := make([]Outcome, len(tasks))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.config.Concurrency)

	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			outcomes[i] = m.runTask(ctx, task)
			// Never propagate: sibling tasks keep running.
			return nil
		})
	}
	g.Wait()

	return outcomes
}

// assignPaths resolves destination collisions within the batch by suffixing
// later tasks deterministically, so there is at most one writer per path.
func (m *Manager) assignPaths(tasks []Task) []Task {
	claimed := make(map[string]bool, len(tasks))
	out := make([]Task, len(tasks))
	for i, task := range tasks {
		path := task.Path
		for n := 1; claimed[path]; n++ {
			path = numberedPath(task.Path, n)
		}
		claimed[path] = true
		task.Path = path
		out[i] = task
	}
	return out
}

// numberedPath inserts " (n)" before the extension.
func numberedPath(path string, n int) string {
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s (%d)%s", strings.TrimSuffix(path, ext), n, ext)
}

func (m *Manager) runTask(ctx context.Context, task Task) Outcome {
	log := m.log.With("task", task.ID, "path", task.Path)

	if exists, _ := afero.Exists(m.fs, task.Path); exists {
		log.Debug("destination exists, skipping")
		outcome := Outcome{Task: task, Status: StatusSkipped}
		m.sink.TaskFinished(task, outcome)
		return outcome
	}

	if dir := filepath.Dir(task.Path); dir != "." {
		if err := m.fs.MkdirAll(dir, 0755); err != nil {
			outcome := Outcome{Task: task, Status: StatusFailed, Err: fmt.Errorf("create directory: %w", err)}
			m.sink.TaskFinished(task, outcome)
			return outcome
		}
	}

	partPath := task.Path + partSuffix
	started := false

	err := retry.Do(ctx, m.config.Retry, isRetryableTransfer, func(ctx context.Context) error {
		return m.transfer(ctx, task, partPath, &started)
	})

	written := m.partSize(partPath)
	var outcome Outcome
	switch {
	case err == nil:
		outcome = Outcome{Task: task, Status: StatusCompleted, BytesWritten: m.finalSize(task.Path)}
		log.Debug("download complete", "bytes", outcome.BytesWritten)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		outcome = Outcome{Task: task, Status: StatusPartial, BytesWritten: written, Err: err}
		log.Debug("download interrupted, partial file retained", "bytes", written)
	default:
		outcome = Outcome{Task: task, Status: StatusFailed, BytesWritten: written, Err: err}
		log.Warn("download failed", "bytes", written, "error", err)
	}

	m.sink.TaskFinished(task, outcome)
	return outcome
}

// statusError is a non-2xx response during transfer.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("download: unexpected status %d", e.code)
}

// isRetryableTransfer retries transport failures and server-side statuses;
// integrity mismatches and client errors are permanent.
func isRetryableTransfer(err error) bool {
	if !retry.IsRetryable(err) {
		return false
	}
	var integrity *IntegrityError
	if errors.As(err, &integrity) {
		return false
	}
	var status *statusError
	if errors.As(err, &status) {
		// 416 restarts from zero on the next attempt
		return status.code >= 500 ||
			status.code == http.StatusTooManyRequests ||
			status.code == http.StatusRequestedRangeNotSatisfiable
	}
	return true
}

// transfer performs one attempt: resume from the current partial size, stream
// the body to disk, and finalize when the byte count checks out. The resume
// offset is re-read from disk each attempt, so a failed attempt resumes from
// whatever actually reached the file.
func (m *Manager) transfer(ctx context.Context, task Task, partPath string, started *bool) error {
	offset := m.partSize(partPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, task.URL, nil)
	if err != nil {
		return err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	f, err := m.fs.OpenFile(partPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open partial file: %w", err)
	}
	defer f.Close()

	switch {
	case resp.StatusCode == http.StatusPartialContent:
		// Server honored the range; append from offset.
	case resp.StatusCode == http.StatusOK:
		// Server ignored the range; restart from zero.
		if offset > 0 {
			m.log.Debug("server ignored range request, restarting", "task", task.ID)
			if err := f.Truncate(0); err != nil {
				return fmt.Errorf("truncate partial file: %w", err)
			}
			offset = 0
		}
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		// Offset is beyond what the server has; restart from zero.
		if err := f.Truncate(0); err != nil {
			return fmt.Errorf("truncate partial file: %w", err)
		}
		return &statusError{code: resp.StatusCode}
	default:
		return &statusError{code: resp.StatusCode}
	}

	total := task.ExpectedSize
	if total == 0 && resp.ContentLength > 0 {
		total = offset + resp.ContentLength
	}

	if !*started {
		*started = true
		m.sink.TaskStarted(task, offset, total)
	}

	buf := make([]byte, copyBufferSize)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return fmt.Errorf("write chunk: %w", werr)
			}
			offset += int64(n)
			m.sink.TaskProgress(task, offset, total)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read response body: %w", rerr)
		}
	}

	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync partial file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close partial file: %w", err)
	}

	// A short or long body must never be promoted to a finished file.
	if task.ExpectedSize > 0 && offset != task.ExpectedSize {
		return &IntegrityError{Path: task.Path, Expected: task.ExpectedSize, Actual: offset}
	}

	if err := m.fs.Rename(partPath, task.Path); err != nil {
		return fmt.Errorf("finalize download: %w", err)
	}
	return nil
}

func (m *Manager) partSize(partPath string) int64 {
	if fi, err := m.fs.Stat(partPath); err == nil {
		return fi.Size()
	}
	return 0
}

func (m *Manager) finalSize(path string) int64 {
	if fi, err := m.fs.Stat(path); err == nil {
		return fi.Size()
	}
	return 0
}
