package batch

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Format
	}{
		{"object", `{"IMG1": {"brand": "Acme"}}`, FormatDocument},
		{"array", `[{"IMG1": {}}]`, FormatDocument},
		{"padded object", "\n  {\"IMG1\": {}}\n", FormatDocument},
		{"json lines", "{\"IMG1\": {}}\n{\"IMG2\": {}}\n", FormatLines},
		{"truncated object", `{"IMG1": {`, FormatLines},
		{"empty", ``, FormatLines},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectFormat([]byte(tt.input)))
		})
	}
}

func ids(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestDecode_ObjectKeepsDocumentOrder(t *testing.T) {
	input := `{
  "zeta": {"brand": "Z", "image_metadata": {"zeta": {"height": 1, "width": 2, "path": "z.jpg"}}},
  "alpha": {"brand": "A", "model_year": 2001},
  "mid": {"item_keywords": ["k"]}
}`
	entries, stats, err := Decode([]byte(input))
	require.NoError(t, err)
	assert.Equal(t, FormatDocument, stats.Format)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, ids(entries))

	assert.Equal(t, "Z", entries[0].Record.Brand)
	img, ok := entries[0].Record.ImageMetadata.Get("zeta")
	require.True(t, ok)
	assert.Equal(t, "z.jpg", img.Path)
	require.NotNil(t, entries[1].Record.ModelYear)
	assert.Equal(t, 2001, *entries[1].Record.ModelYear)
	assert.JSONEq(t, `{"brand": "A", "model_year": 2001}`, string(entries[1].Raw))
}

func TestDecode_Array(t *testing.T) {
	input := `[{"IMG1": {"brand": "A"}}, 42, {}, {"IMG2": {"brand": "B"}}]`
	entries, stats, err := Decode([]byte(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"IMG1", "IMG2"}, ids(entries))
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 2, stats.Entries)
}

func TestDecode_Lines(t *testing.T) {
	input := "{\"IMG1\": {\"brand\": \"A\"}}\nnot json at all\n\n{\"IMG2\": {\"brand\": \"B\"}}\n"
	entries, stats, err := Decode([]byte(input))
	require.NoError(t, err)
	assert.Equal(t, FormatLines, stats.Format)
	assert.Equal(t, []string{"IMG1", "IMG2"}, ids(entries))
	assert.Equal(t, 1, stats.Skipped)
}

func TestDecode_BadRecordInObject(t *testing.T) {
	input := `{"IMG1": {"brand": "A"}, "IMG2": {"model_year": "2020"}, "IMG3": {"brand": "C"}, "IMG4": 42}`
	entries, stats, err := Decode([]byte(input))
	require.NoError(t, err)
	assert.Equal(t, FormatDocument, stats.Format)
	assert.Equal(t, []string{"IMG1", "IMG3"}, ids(entries))
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 2, stats.Entries)
}

func TestDecode_BadRecordInArray(t *testing.T) {
	input := `[{"IMG1": {"brand": "A"}}, {"IMG2": {"model_year": "2020"}}, {"IMG3": {"brand": "C"}}]`
	entries, stats, err := Decode([]byte(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"IMG1", "IMG3"}, ids(entries))
	assert.Equal(t, 1, stats.Skipped)
}

func makeEntries(n int) []Entry {
	entries := make([]Entry, n)
	for i := range entries {
		entries[i] = Entry{ID: fmt.Sprintf("IMG%d", i)}
	}
	return entries
}

func TestSelect(t *testing.T) {
	entries := makeEntries(10)

	tests := []struct {
		name      string
		start     int
		end       int
		wantIDs   []string
		wantRange Range
		wantErr   bool
	}{
		{name: "clamps end", start: 8, end: 20, wantIDs: []string{"IMG8", "IMG9"}, wantRange: Range{8, 10}},
		{name: "clamps start", start: -5, end: 2, wantIDs: []string{"IMG0", "IMG1"}, wantRange: Range{0, 2}},
		{name: "negative end selects to the end", start: 9, end: -1, wantIDs: []string{"IMG9"}, wantRange: Range{9, 10}},
		{name: "start equals end", start: 3, end: 3, wantErr: true, wantRange: Range{3, 3}},
		{name: "start past end", start: 12, end: 20, wantErr: true, wantRange: Range{12, 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, r, err := Select(entries, tt.start, tt.end)
			assert.Equal(t, tt.wantRange, r)
			if tt.wantErr {
				var rangeErr *InvalidRangeError
				require.True(t, errors.As(err, &rangeErr))
				assert.True(t, strings.HasPrefix(err.Error(), "invalid range"))
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantIDs, ids(got))
		})
	}
}

func TestSelect_Empty(t *testing.T) {
	_, _, err := Select(nil, 0, -1)
	var rangeErr *InvalidRangeError
	assert.ErrorAs(t, err, &rangeErr)
}
