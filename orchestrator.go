package echosync

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"

	"echosync/config"
	"echosync/download"
	"echosync/echo360"
	xhttp "echosync/http"
	"echosync/session"
	"echosync/storage"
)

// CourseResult is the outcome of processing one course URL.
type CourseResult struct {
	// Course is the parsed course, zero when the URL did not parse.
	Course echo360.Course
	// Title is the course display title, best-effort.
	Title string
	// Catalog is the resolved lecture catalog.
	Catalog echo360.Catalog
	// Outcomes holds one entry per download task, in task order.
	Outcomes []download.Outcome
	// SkippedHistory counts streams skipped because a previous run
	// already downloaded them.
	SkippedHistory int
	// SkippedNoVideo counts selected lectures with no downloadable
	// recording.
	SkippedNoVideo int
	// OutOfRange lists selected ordinals beyond the catalog.
	OutOfRange []int
	// Err is set when the course failed as a whole; per-task failures
	// live in Outcomes instead.
	Err error
}

// Orchestrator runs the full pipeline for a set of courses: acquire a
// session, resolve each course's catalog, apply the lecture selection, and
// download the selected streams. Courses fail independently; one broken
// course never stops the others.
type Orchestrator struct {
	config   *config.Config
	provider *session.Provider
	resolver *echo360.Resolver
	history  *storage.History
	sink     download.ProgressSink
	fs       afero.Fs
	log      hclog.Logger

	// sessions caches one acquired session per origin within a run.
	sessions map[string]*session.Session
}

// NewOrchestrator wires an orchestrator from configuration. The history and
// sink are optional; nil disables skip-by-history and progress reporting.
func NewOrchestrator(cfg *config.Config, provider *session.Provider, history *storage.History, sink download.ProgressSink, logger hclog.Logger) *Orchestrator {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Orchestrator{
		config:   cfg,
		provider: provider,
		resolver: &echo360.Resolver{
			Concurrency: cfg.ResolverConcurrency,
			HTTP:        httpConfig(cfg),
			Logger:      logger.Named("resolver"),
		},
		history:  history,
		sink:     sink,
		fs:       afero.NewOsFs(),
		log:      logger,
	}
}

// Run processes every course URL and returns one result per URL, in input
// order. The returned error is non-nil only when the run as a whole was cut
// short (context cancellation); everything else is reported per course.
func (o *Orchestrator) Run(ctx context.Context, courseURLs []string, sel echo360.Selection) ([]CourseResult, error) {
	o.sessions = make(map[string]*session.Session)
	results := make([]CourseResult, len(courseURLs))

	for i, raw := range courseURLs {
		results[i] = o.runCourse(ctx, raw, sel)
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
	}
	return results, nil
}

// Resolve fetches a course catalog without downloading anything, for
// listing lectures or printing stream URLs.
func (o *Orchestrator) Resolve(ctx context.Context, courseURL string) (echo360.Catalog, error) {
	course, err := echo360.ParseCourseURL(courseURL)
	if err != nil {
		return nil, err
	}
	sess, err := o.acquire(ctx, course)
	if err != nil {
		return nil, err
	}
	return o.resolver.Resolve(ctx, course, sess)
}

func (o *Orchestrator) runCourse(ctx context.Context, courseURL string, sel echo360.Selection) CourseResult {
	course, err := echo360.ParseCourseURL(courseURL)
	if err != nil {
		return CourseResult{Err: err}
	}
	result := CourseResult{Course: course}
	log := o.log.With("section", course.SectionID)

	sess, err := o.acquire(ctx, course)
	if err != nil {
		result.Err = fmt.Errorf("acquire session: %w", err)
		return result
	}

	catalog, err := o.resolver.Resolve(ctx, course, sess)
	if err != nil {
		result.Err = fmt.Errorf("resolve catalog: %w", err)
		return result
	}
	result.Catalog = catalog
	result.Title = courseTitle(course, catalog)

	selected, outOfRange := sel.Apply(catalog)
	result.OutOfRange = outOfRange
	if len(outOfRange) > 0 {
		log.Warn("selection exceeds catalog", "requested", outOfRange, "lectures", len(catalog))
	}

	tasks, metas, skipped, noVideo := o.buildTasks(result.Title, selected)
	result.SkippedHistory = skipped
	result.SkippedNoVideo = noVideo
	if len(tasks) == 0 {
		log.Info("nothing to download", "selected", len(selected), "already_downloaded", skipped, "without_video", noVideo)
		return result
	}

	jar, err := sess.Jar()
	if err != nil {
		result.Err = err
		return result
	}
	manager := download.NewManagerWithFs(downloadClient(jar), o.fs, &download.Config{
		Concurrency: o.config.DownloadConcurrency,
		Retry:       o.config.RetryConfig(),
	}, o.sink, log.Named("download"))

	result.Outcomes = manager.Download(ctx, tasks)

	o.recordOutcomes(result.Outcomes, metas)
	return result
}

// acquire returns the cached session for the course's origin, acquiring one
// on first use.
func (o *Orchestrator) acquire(ctx context.Context, course echo360.Course) (*session.Session, error) {
	if o.sessions == nil {
		o.sessions = make(map[string]*session.Session)
	}
	if sess, ok := o.sessions[course.Origin]; ok {
		return sess, nil
	}
	if o.provider == nil {
		return nil, session.ErrNoLogin
	}

	sess, err := o.provider.Acquire(ctx, course.Origin, course.SyllabusURL(), course.HomeURL())
	if err != nil {
		return nil, err
	}
	o.sessions[course.Origin] = sess
	return sess, nil
}

// taskMeta links a download task back to its history identity.
type taskMeta struct {
	mediaID string
	track   echo360.Track
}

// buildTasks turns selected catalog entries into download tasks: the best
// stream per track, named by capture date and media id, under a per-course
// directory. Streams already in the history are skipped up front; lectures
// without a recording are counted rather than silently dropped.
func (o *Orchestrator) buildTasks(title string, selected echo360.Catalog) ([]download.Task, []taskMeta, int, int) {
	var (
		tasks   []download.Task
		metas   []taskMeta
		skipped int
		noVideo int
	)

	dir := filepath.Join(o.config.Destination, sanitizeName(title))

	for _, entry := range selected {
		streams := entry.BestStreams()
		if len(streams) == 0 {
			noVideo++
			continue
		}
		for _, stream := range streams {
			if o.history != nil && o.history.Contains(entry.Manifest.MediaID, string(stream.Track)) {
				skipped++
				continue
			}

			name := fileName(entry, stream, len(streams) > 1)
			label := entry.Lecture.Title
			if label == "" {
				label = name
			}

			tasks = append(tasks, download.NewTask(stream.URL, filepath.Join(dir, name), stream.Size, label))
			metas = append(metas, taskMeta{mediaID: entry.Manifest.MediaID, track: stream.Track})
		}
	}
	return tasks, metas, skipped, noVideo
}

// recordOutcomes adds completed downloads to the history so later runs skip
// them. Skipped outcomes are recorded too: the file is already on disk.
func (o *Orchestrator) recordOutcomes(outcomes []download.Outcome, metas []taskMeta) {
	if o.history == nil {
		return
	}
	for i, outcome := range outcomes {
		if outcome.Status != download.StatusCompleted && outcome.Status != download.StatusSkipped {
			continue
		}
		err := o.history.Add(storage.Record{
			MediaID: metas[i].mediaID,
			Track:   string(metas[i].track),
			URL:     outcome.Task.URL,
			Path:    outcome.Task.Path,
			Size:    outcome.BytesWritten,
		})
		if err != nil {
			o.log.Warn("recording download history failed", "error", err)
		}
	}
}

// courseTitle picks a display title: the section title reported by any
// manifest, else the section id.
func courseTitle(course echo360.Course, catalog echo360.Catalog) string {
	for _, entry := range catalog {
		if entry.Manifest.CourseTitle != "" {
			return entry.Manifest.CourseTitle
		}
	}
	return course.SectionID
}

// fileName builds the output file name: capture date, media id, and the
// track when the lecture carries more than one feed.
func fileName(entry echo360.Entry, stream echo360.Stream, multiTrack bool) string {
	date := entry.Manifest.Captured
	if date.IsZero() {
		date = entry.Lecture.Date
	}

	var b strings.Builder
	if !date.IsZero() {
		b.WriteString(date.Format("2006-01-02"))
		b.WriteString("-")
	}
	b.WriteString(entry.Manifest.MediaID)
	if multiTrack {
		b.WriteString("-")
		b.WriteString(string(stream.Track))
	}
	b.WriteString(".mp4")
	return b.String()
}

// httpConfig derives the metadata client configuration.
func httpConfig(cfg *config.Config) *xhttp.Config {
	hc := xhttp.DefaultConfig()
	hc.Timeout = cfg.RequestTimeout
	hc.Retry = cfg.RetryConfig()
	hc.RequestsPerSecond = cfg.RequestsPerSecond
	return hc
}

// downloadClient builds the long-transfer client: it carries the session jar
// and has no timeout, since cancellation goes through the context.
func downloadClient(jar http.CookieJar) *http.Client {
	return &http.Client{Jar: jar}
}

// sanitizeName removes/replaces characters that are invalid in filenames.
func sanitizeName(s string) string {
	replacements := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := s
	for _, char := range replacements {
		result = strings.ReplaceAll(result, char, "_")
	}
	return strings.TrimSpace(result)
}
