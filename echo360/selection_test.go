package echo360

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSelection(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		want    []int
		all     bool
		wantErr bool
	}{
		{name: "all keyword", expr: "all", all: true},
		{name: "all uppercase", expr: "ALL", all: true},
		{name: "single", expr: "3", want: []int{3}},
		{name: "list", expr: "1,3,5", want: []int{1, 3, 5}},
		{name: "range", expr: "2-5", want: []int{2, 3, 4, 5}},
		{name: "mixed with whitespace", expr: " 1, 4-6 ,2 ", want: []int{1, 2, 4, 5, 6}},
		{name: "space separated", expr: "2 4 7-8", want: []int{2, 4, 7, 8}},
		{name: "duplicates collapse", expr: "3,3,2-4", want: []int{2, 3, 4}},
		{name: "single element range", expr: "4-4", want: []int{4}},
		{name: "trailing comma tolerated", expr: "1,2,", want: []int{1, 2}},
		{name: "empty", expr: "", wantErr: true},
		{name: "not a number", expr: "1,two", wantErr: true},
		{name: "zero ordinal", expr: "0", wantErr: true},
		{name: "negative", expr: "-2", wantErr: true},
		{name: "reversed range", expr: "5-2", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := ParseSelection(tt.expr)
			if tt.wantErr {
				var input *InputError
				assert.ErrorAs(t, err, &input)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.all, sel.All())
			assert.Equal(t, tt.want, sel.Indices())
		})
	}
}

func testCatalog(n int) Catalog {
	c := make(Catalog, n)
	for i := range c {
		c[i] = Entry{Lecture: Lecture{ID: string(rune('a' + i)), Index: i + 1}}
	}
	return c
}

func TestSelection_Apply(t *testing.T) {
	catalog := testCatalog(5)

	sel, err := ParseSelection("2,4")
	require.NoError(t, err)

	got, outOfRange := sel.Apply(catalog)
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].Lecture.Index)
	assert.Equal(t, 4, got[1].Lecture.Index)
	assert.Empty(t, outOfRange)
}

func TestSelection_ApplyAll(t *testing.T) {
	catalog := testCatalog(3)

	got, outOfRange := SelectAll().Apply(catalog)
	assert.Equal(t, catalog, got)
	assert.Empty(t, outOfRange)
}

func TestSelection_ApplyOutOfRange(t *testing.T) {
	catalog := testCatalog(3)

	sel, err := ParseSelection("2,7,9")
	require.NoError(t, err)

	got, outOfRange := sel.Apply(catalog)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Lecture.Index)
	assert.Equal(t, []int{7, 9}, outOfRange)
}

func TestEntry_BestStream(t *testing.T) {
	entry := Entry{Manifest: Manifest{Streams: []Stream{
		{URL: "s-720", Height: 720, Size: 90, Track: TrackSecondary},
		{URL: "p-480", Height: 480, Size: 100, Track: TrackPrimary},
		{URL: "p-720", Height: 720, Size: 90, Track: TrackPrimary},
	}}}

	best, ok := entry.BestStream()
	require.True(t, ok)
	assert.Equal(t, "p-720", best.URL, "primary wins on equal height and size")

	_, ok = Entry{}.BestStream()
	assert.False(t, ok)
}

func TestEntry_BestStream_SizeBreaksTies(t *testing.T) {
	entry := Entry{Manifest: Manifest{Streams: []Stream{
		{URL: "small", Height: 720, Size: 50, Track: TrackPrimary},
		{URL: "large", Height: 720, Size: 200, Track: TrackPrimary},
	}}}

	best, ok := entry.BestStream()
	require.True(t, ok)
	assert.Equal(t, "large", best.URL)
}

func TestEntry_BestStreams(t *testing.T) {
	entry := Entry{Manifest: Manifest{Streams: []Stream{
		{URL: "s-1080", Height: 1080, Track: TrackSecondary},
		{URL: "p-720", Height: 720, Track: TrackPrimary},
		{URL: "p-480", Height: 480, Track: TrackPrimary},
		{URL: "s-480", Height: 480, Track: TrackSecondary},
	}}}

	got := entry.BestStreams()
	require.Len(t, got, 2)
	assert.Equal(t, "p-720", got[0].URL, "primary track listed first")
	assert.Equal(t, "s-1080", got[1].URL)

	assert.Empty(t, Entry{}.BestStreams())
}

func TestCatalog_StreamURLs(t *testing.T) {
	catalog := Catalog{
		{Manifest: Manifest{Streams: []Stream{{URL: "a-p", Height: 720, Track: TrackPrimary}}}},
		{}, // lecture without a recording keeps its slot
		{Manifest: Manifest{Streams: []Stream{
			{URL: "c-p", Height: 480, Track: TrackPrimary},
			{URL: "c-s", Height: 480, Track: TrackSecondary},
		}}},
	}

	assert.Equal(t, []string{"a-p", "c-p", "c-s"}, catalog.StreamURLs())
}
