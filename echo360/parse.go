package echo360

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// The platform reports every response with an envelope status; anything but
// "ok" means the payload cannot be trusted.
const statusOK = "ok"

type syllabusResponse struct {
	Status string `json:"status"`
	Data   []struct {
		Type   string `json:"type"`
		Lesson *struct {
			IsPast       bool              `json:"isPast"`
			HasContent   bool              `json:"hasContent"`
			HasVideo     bool              `json:"hasVideo"`
			StartTimeUTC string            `json:"startTimeUTC"`
			Medias       []json.RawMessage `json:"medias"`
			Lesson       *struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"lesson"`
		} `json:"lesson"`
	} `json:"data"`
}

// parseSyllabus turns the syllabus document into an ordered lecture list.
// Entries that are not lesson records (section groupings, placeholders) are
// dropped; lessons without video keep their slot with HasVideo=false.
func parseSyllabus(data []byte) ([]Lecture, error) {
	var resp syllabusResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &SchemaError{Stage: "syllabus", Err: err}
	}
	if resp.Status != statusOK {
		return nil, &SchemaError{Stage: "syllabus", Err: fmt.Errorf("status %q", resp.Status)}
	}

	var lectures []Lecture
	for _, item := range resp.Data {
		if item.Type != "SyllabusLessonType" || item.Lesson == nil || item.Lesson.Lesson == nil || item.Lesson.Lesson.ID == "" {
			continue
		}
		l := item.Lesson

		var date time.Time
		if l.StartTimeUTC != "" {
			if t, err := time.Parse(time.RFC3339, l.StartTimeUTC); err == nil {
				date = t
			}
		}

		lectures = append(lectures, Lecture{
			ID:       l.Lesson.ID,
			Title:    l.Lesson.Name,
			Index:    len(lectures) + 1,
			Date:     date,
			HasVideo: l.IsPast && l.HasContent && l.HasVideo && len(l.Medias) > 0,
		})
	}
	return lectures, nil
}

type mediaFile struct {
	S3URL  string `json:"s3Url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Size   int64  `json:"size"`
}

type mediaResponse struct {
	Status string `json:"status"`
	Data   []struct {
		UserSection *struct {
			SectionNumber string `json:"sectionNumber"`
		} `json:"userSection"`
		Video *struct {
			Media *struct {
				Name      string `json:"name"`
				CreatedAt string `json:"createdAt"`
				Status    string `json:"status"`
				Media     *struct {
					Current *struct {
						MediaID        string      `json:"mediaId"`
						PrimaryFiles   []mediaFile `json:"primaryFiles"`
						SecondaryFiles []mediaFile `json:"secondaryFiles"`
					} `json:"current"`
				} `json:"media"`
			} `json:"media"`
		} `json:"video"`
	} `json:"data"`
}

// parseManifest turns a lesson media document into a Manifest. A lesson whose
// recording is unprocessed or absent yields an empty manifest and no error;
// only an unreadable envelope is a SchemaError.
func parseManifest(lectureID string, data []byte) (Manifest, error) {
	manifest := Manifest{LectureID: lectureID}

	var resp mediaResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return manifest, &SchemaError{Stage: "media", LectureID: lectureID, Err: err}
	}
	if resp.Status != statusOK {
		return manifest, &SchemaError{Stage: "media", LectureID: lectureID, Err: fmt.Errorf("status %q", resp.Status)}
	}

	if len(resp.Data) == 0 {
		return manifest, nil
	}
	item := resp.Data[0]
	if item.Video == nil || item.Video.Media == nil || item.Video.Media.Media == nil || item.Video.Media.Media.Current == nil {
		return manifest, nil
	}
	media := item.Video.Media
	if media.Status != "Processed" {
		return manifest, nil
	}

	if item.UserSection != nil {
		manifest.CourseTitle = item.UserSection.SectionNumber
	}
	if media.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339, media.CreatedAt); err == nil {
			manifest.Captured = t
		}
	}

	current := media.Media.Current
	// The media id carries suffixed variants; the bare id is the first segment.
	manifest.MediaID, _, _ = strings.Cut(current.MediaID, "-")

	manifest.Streams = append(manifest.Streams,
		toStreams(current.PrimaryFiles, TrackPrimary)...)
	manifest.Streams = append(manifest.Streams,
		toStreams(current.SecondaryFiles, TrackSecondary)...)

	return manifest, nil
}

// toStreams converts platform media files into streams, best rendition first
// (height descending, byte size breaking ties).
func toStreams(files []mediaFile, track Track) []Stream {
	streams := make([]Stream, 0, len(files))
	for _, f := range files {
		if f.S3URL == "" {
			continue
		}
		streams = append(streams, Stream{
			URL:    f.S3URL,
			Height: f.Height,
			Size:   f.Size,
			Track:  track,
		})
	}
	sort.SliceStable(streams, func(i, j int) bool {
		if streams[i].Height != streams[j].Height {
			return streams[i].Height > streams[j].Height
		}
		return streams[i].Size > streams[j].Size
	})
	return streams
}
