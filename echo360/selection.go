package echo360

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// InputError indicates a selection expression the user typed cannot be
// understood. It never aborts a run on its own; callers re-prompt or reject.
type InputError struct {
	// Input is the offending expression, verbatim.
	Input string
	// Reason says what is wrong with it.
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("echo360: bad selection %q: %s", e.Input, e.Reason)
}

// Selection is a parsed lecture selection: either everything, or a set of
// 1-based ordinals. Ordinals refer to catalog positions, so a lecture keeps
// the same number across runs even when earlier lectures have no video.
type Selection struct {
	all     bool
	indices []int
}

// SelectAll returns the selection covering every lecture.
func SelectAll() Selection {
	return Selection{all: true}
}

// ParseSelection parses a selection expression: the word "all", or a list of
// 1-based ordinals and inclusive ranges separated by spaces or commas, e.g.
// "1 3 5-8" or "1,3,5-8". Duplicates and overlapping ranges collapse.
func ParseSelection(raw string) (Selection, error) {
	expr := strings.TrimSpace(raw)
	if expr == "" {
		return Selection{}, &InputError{Input: raw, Reason: "empty expression"}
	}
	if strings.EqualFold(expr, "all") {
		return SelectAll(), nil
	}

	parts := strings.FieldsFunc(expr, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(parts) == 0 {
		return Selection{}, &InputError{Input: raw, Reason: "empty expression"}
	}

	seen := make(map[int]bool)
	for _, part := range parts {
		lo, hi, err := parseItem(part)
		if err != nil {
			return Selection{}, &InputError{Input: raw, Reason: err.Error()}
		}
		for i := lo; i <= hi; i++ {
			seen[i] = true
		}
	}

	indices := make([]int, 0, len(seen))
	for i := range seen {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	return Selection{indices: indices}, nil
}

// parseItem parses one list item: a single ordinal or an "a-b" range.
func parseItem(part string) (lo, hi int, err error) {
	if from, to, isRange := strings.Cut(part, "-"); isRange {
		lo, err = parseOrdinal(from)
		if err != nil {
			return 0, 0, err
		}
		hi, err = parseOrdinal(to)
		if err != nil {
			return 0, 0, err
		}
		if hi < lo {
			return 0, 0, fmt.Errorf("range %q is reversed", part)
		}
		return lo, hi, nil
	}

	lo, err = parseOrdinal(part)
	return lo, lo, err
}

func parseOrdinal(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", strings.TrimSpace(s))
	}
	if n < 1 {
		return 0, fmt.Errorf("ordinal %d is out of range, numbering starts at 1", n)
	}
	return n, nil
}

// All reports whether the selection covers every lecture.
func (s Selection) All() bool { return s.all }

// Indices returns the selected ordinals in ascending order, nil for "all".
func (s Selection) Indices() []int {
	out := make([]int, len(s.indices))
	copy(out, s.indices)
	if len(out) == 0 {
		return nil
	}
	return out
}

// Apply filters the catalog down to the selected entries, preserving catalog
// order. Ordinals beyond the catalog are reported in outOfRange rather than
// failing the whole selection.
func (s Selection) Apply(catalog Catalog) (selected Catalog, outOfRange []int) {
	if s.all {
		selected = make(Catalog, len(catalog))
		copy(selected, catalog)
		return selected, nil
	}

	for _, i := range s.indices {
		if i > len(catalog) {
			outOfRange = append(outOfRange, i)
			continue
		}
		selected = append(selected, catalog[i-1])
	}
	return selected, outOfRange
}

// BestStream returns the single best stream for the entry: the highest
// resolution available, preferring the primary camera feed on ties. The
// second return is false when the lecture has nothing downloadable.
func (e Entry) BestStream() (Stream, bool) {
	best, ok := Stream{}, false
	for _, s := range e.Manifest.Streams {
		if !ok || betterStream(s, best) {
			best, ok = s, true
		}
	}
	return best, ok
}

// BestStreams returns the best stream of each track present, primary first.
func (e Entry) BestStreams() []Stream {
	var out []Stream
	for _, track := range []Track{TrackPrimary, TrackSecondary} {
		var best Stream
		ok := false
		for _, s := range e.Manifest.Streams {
			if s.Track != track {
				continue
			}
			if !ok || betterStream(s, best) {
				best, ok = s, true
			}
		}
		if ok {
			out = append(out, best)
		}
	}
	return out
}

// betterStream ranks a over b by height, then size, then primary track.
func betterStream(a, b Stream) bool {
	if a.Height != b.Height {
		return a.Height > b.Height
	}
	if a.Size != b.Size {
		return a.Size > b.Size
	}
	return a.Track == TrackPrimary && b.Track == TrackSecondary
}
