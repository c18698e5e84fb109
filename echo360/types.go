// Package echo360 resolves lecture-capture course metadata into downloadable
// video streams. It performs the platform's three-stage traversal: course URL
// to syllabus, syllabus to lecture list, lecture to media manifest. All
// knowledge of the platform's JSON shapes lives in this package.
package echo360

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for metadata resolution.
var (
	// ErrInvalidCourseURL indicates the course URL does not contain a section id.
	ErrInvalidCourseURL = errors.New("echo360: invalid course URL")
	// ErrSessionExpired indicates the platform no longer accepts the session.
	// It aborts the whole course, since every subsequent request would fail
	// the same way.
	ErrSessionExpired = errors.New("echo360: session expired")
)

// SchemaError indicates the platform returned JSON in an unexpected shape.
// The affected lecture (or course) is skipped; the run continues.
type SchemaError struct {
	// Stage is the traversal stage: "syllabus" or "media".
	Stage string
	// LectureID identifies the lecture for media-stage errors.
	LectureID string
	// Err is the underlying cause.
	Err error
}

func (e *SchemaError) Error() string {
	if e.LectureID != "" {
		return fmt.Sprintf("echo360: unexpected %s response for lecture %s: %v", e.Stage, e.LectureID, e.Err)
	}
	return fmt.Sprintf("echo360: unexpected %s response: %v", e.Stage, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

var sectionPattern = regexp.MustCompile(`/section/([A-Za-z0-9-]+)(/.*)?$`)

// Course identifies one course section on the platform. Immutable once parsed.
type Course struct {
	// Origin is the platform base URL, e.g. https://echo360.org.uk.
	Origin string
	// SectionID is the platform-assigned section UUID.
	SectionID string
}

// ParseCourseURL extracts the origin and section id from any course page URL
// of the form {origin}/section/{uuid}/... .
func ParseCourseURL(raw string) (Course, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Course{}, fmt.Errorf("%w: %q", ErrInvalidCourseURL, raw)
	}

	m := sectionPattern.FindStringSubmatch(u.Path)
	if m == nil {
		return Course{}, fmt.Errorf("%w: %q has no /section/<id> component", ErrInvalidCourseURL, raw)
	}
	if _, err := uuid.Parse(m[1]); err != nil {
		return Course{}, fmt.Errorf("%w: section id %q is not a UUID", ErrInvalidCourseURL, m[1])
	}

	return Course{
		Origin:    u.Scheme + "://" + u.Host,
		SectionID: m[1],
	}, nil
}

// SyllabusURL returns the JSON syllabus endpoint for the course.
func (c Course) SyllabusURL() string {
	return fmt.Sprintf("%s/section/%s/syllabus", c.Origin, c.SectionID)
}

// HomeURL returns the course home page.
func (c Course) HomeURL() string {
	return fmt.Sprintf("%s/section/%s/home", c.Origin, c.SectionID)
}

// MediaURL returns the media manifest endpoint for a lecture.
func (c Course) MediaURL(lectureID string) string {
	return fmt.Sprintf("%s/lesson/%s/media", c.Origin, lectureID)
}

// Lecture is one recorded class meeting, as listed by the syllabus.
// Insertion order equals the chronological order reported by the platform.
type Lecture struct {
	// ID is the platform lesson id.
	ID string
	// Title is the display name.
	Title string
	// Index is the 1-based ordinal position in the syllabus.
	Index int
	// Date is the capture date, when the platform reports one.
	Date time.Time
	// HasVideo reports whether the syllabus claims a processed recording.
	HasVideo bool
}

// Track identifies which camera feed a stream belongs to.
type Track string

const (
	TrackPrimary   Track = "primary"
	TrackSecondary Track = "secondary"
)

// Stream is one downloadable rendition of a lecture video.
type Stream struct {
	// URL is the direct content URL.
	URL string
	// Height is the vertical resolution in pixels.
	Height int
	// Size is the byte size reported by the platform, 0 if unknown.
	Size int64
	// Track is the camera feed this stream belongs to.
	Track Track
}

// Label returns the display resolution label, e.g. "720p".
func (s Stream) Label() string {
	return fmt.Sprintf("%dp", s.Height)
}

// Manifest lists the available streams for one lecture. A lecture without a
// processed recording has an empty manifest; it keeps its catalog slot so
// ordinal selection stays stable.
type Manifest struct {
	// LectureID is the lesson the manifest belongs to.
	LectureID string
	// MediaID is the platform media identifier, used in file naming.
	MediaID string
	// CourseTitle is the section number/title reported alongside the media.
	CourseTitle string
	// Captured is the media creation timestamp.
	Captured time.Time
	// Streams are the available renditions, possibly empty.
	Streams []Stream
}

// Empty reports whether the lecture has nothing downloadable.
func (m Manifest) Empty() bool {
	return len(m.Streams) == 0
}

// Entry pairs a lecture with its resolved manifest.
type Entry struct {
	Lecture  Lecture
	Manifest Manifest
}

// Catalog is the ordered list of a course's lectures with their manifests.
type Catalog []Entry

// StreamURLs returns the best stream URL per track for every non-empty entry,
// in catalog order.
func (c Catalog) StreamURLs() []string {
	var urls []string
	for _, e := range c {
		for _, s := range e.BestStreams() {
			urls = append(urls, s.URL)
		}
	}
	return urls
}
