package echo360

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	xhttp "echosync/http"
	"echosync/session"
)

// Resolver traverses a course into its downloadable catalog: one syllabus
// request, then one media request per recorded lecture, fanned out over a
// bounded worker pool. Results land in catalog order regardless of which
// fetch finishes first.
type Resolver struct {
	// Concurrency caps simultaneous media manifest fetches.
	Concurrency int
	// HTTP configures the platform client.
	HTTP *xhttp.Config
	// Logger receives resolution progress; defaults to a noop logger.
	Logger hclog.Logger
}

// DefaultResolver returns a resolver with default settings.
func DefaultResolver() *Resolver {
	return &Resolver{
		Concurrency: 4,
		HTTP:        xhttp.DefaultConfig(),
	}
}

func (r *Resolver) logger() hclog.Logger {
	if r.Logger == nil {
		return hclog.NewNullLogger()
	}
	return r.Logger
}

func (r *Resolver) concurrency() int {
	if r.Concurrency <= 0 {
		return 4
	}
	return r.Concurrency
}

// Resolve fetches the course catalog using the given session. A lecture whose
// manifest is malformed or unprocessed keeps its slot with an empty manifest;
// a rejected session aborts the whole course with ErrSessionExpired.
func (r *Resolver) Resolve(ctx context.Context, course Course, sess *session.Session) (Catalog, error) {
	log := r.logger().With("section", course.SectionID)

	jar, err := sess.Jar()
	if err != nil {
		return nil, err
	}
	client := xhttp.New(r.HTTP, jar)
	defer client.Close()

	resp, err := client.Get(ctx, course.SyllabusURL())
	if err != nil {
		if expired := classifyAuth(err); expired != nil {
			return nil, expired
		}
		return nil, fmt.Errorf("fetch syllabus: %w", err)
	}

	lectures, err := parseSyllabus(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(lectures) == 0 {
		log.Info("syllabus lists no lectures")
		return Catalog{}, nil
	}
	log.Debug("syllabus resolved", "lectures", len(lectures))

	// Each lecture owns one pre-assigned slot, so concurrent completion order
	// cannot reorder the catalog.
	catalog := make(Catalog, len(lectures))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency())

	for i, lecture := range lectures {
		catalog[i] = Entry{Lecture: lecture, Manifest: Manifest{LectureID: lecture.ID}}
		if !lecture.HasVideo {
			continue
		}

		i, lecture := i, lecture
		g.Go(func() error {
			manifest, err := r.fetchManifest(ctx, client, course, lecture)
			if err != nil {
				return err
			}
			catalog[i].Manifest = manifest
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return catalog, nil
}

// fetchManifest fetches and parses one lecture's media manifest. Schema
// problems degrade to an empty manifest; auth rejection escalates, since
// every remaining request would fail the same way.
func (r *Resolver) fetchManifest(ctx context.Context, client *xhttp.Client, course Course, lecture Lecture) (Manifest, error) {
	log := r.logger().With("lecture", lecture.ID)

	resp, err := client.Get(ctx, course.MediaURL(lecture.ID))
	if err != nil {
		if expired := classifyAuth(err); expired != nil {
			return Manifest{}, expired
		}
		log.Warn("media fetch failed, lecture skipped", "error", err)
		return Manifest{LectureID: lecture.ID}, nil
	}

	manifest, err := parseManifest(lecture.ID, resp.Body)
	if err != nil {
		var schema *SchemaError
		if errors.As(err, &schema) {
			log.Warn("media response unreadable, lecture skipped", "error", err)
			return Manifest{LectureID: lecture.ID}, nil
		}
		return Manifest{}, err
	}

	if manifest.Empty() {
		log.Debug("lecture has no processed recording")
	}
	return manifest, nil
}

// classifyAuth maps a platform response to ErrSessionExpired when it signals
// that the session is no longer accepted: a redirect toward the login host,
// or an explicit auth status. Returns nil for everything else.
func classifyAuth(err error) error {
	var redirect *xhttp.RedirectError
	if errors.As(err, &redirect) && strings.Contains(redirect.Location, "login") {
		return fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}
	var httpErr *xhttp.HTTPError
	if errors.As(err, &httpErr) && (httpErr.StatusCode == 401 || httpErr.StatusCode == 403) {
		return fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}
	return nil
}
