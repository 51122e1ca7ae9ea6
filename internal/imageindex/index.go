package imageindex

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/lehigh-university-libraries/vqaset/internal/listing"
)

// Row is one image table row before validation
type Row struct {
	Line    int
	ImageID string
	Height  string
	Width   string
	Path    string
}

// Index maps image ids to their metadata. It is built once and only read afterwards.
type Index struct {
	images map[string]listing.ImageRecord
}

// MalformedRowError reports an image table row whose dimensions are not integers
type MalformedRowError struct {
	Line    int
	ImageID string
	Err     error
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("malformed image row %d (%s): %v", e.Line, e.ImageID, e.Err)
}

func (e *MalformedRowError) Unwrap() error {
	return e.Err
}

// Build indexes rows by image id. The last row for a duplicated id wins.
// Malformed rows are skipped and returned as errors.
func Build(rows []Row) (Index, []error) {
	idx := Index{images: make(map[string]listing.ImageRecord, len(rows))}
	var errs []error

	for _, row := range rows {
		rec, err := parseRow(row)
		if err != nil {
			slog.Warn("Skipping malformed image row", "line", row.Line, "image_id", row.ImageID, "error", err)
			errs = append(errs, err)
			continue
		}
		idx.images[rec.ImageID] = rec
	}

	return idx, errs
}

// FromRecords builds an index from already validated records
func FromRecords(records ...listing.ImageRecord) Index {
	idx := Index{images: make(map[string]listing.ImageRecord, len(records))}
	for _, r := range records {
		idx.images[r.ImageID] = r
	}
	return idx
}

func parseRow(row Row) (listing.ImageRecord, error) {
	id := strings.TrimSpace(row.ImageID)
	if id == "" {
		return listing.ImageRecord{}, &MalformedRowError{Line: row.Line, Err: fmt.Errorf("empty image_id")}
	}
	height, err := strconv.Atoi(strings.TrimSpace(row.Height))
	if err != nil {
		return listing.ImageRecord{}, &MalformedRowError{Line: row.Line, ImageID: id, Err: fmt.Errorf("height: %w", err)}
	}
	width, err := strconv.Atoi(strings.TrimSpace(row.Width))
	if err != nil {
		return listing.ImageRecord{}, &MalformedRowError{Line: row.Line, ImageID: id, Err: fmt.Errorf("width: %w", err)}
	}
	return listing.ImageRecord{
		ImageID: id,
		Height:  height,
		Width:   width,
		Path:    row.Path,
	}, nil
}

// Lookup returns the metadata for an image id
func (i Index) Lookup(imageID string) (listing.ImageRecord, bool) {
	rec, ok := i.images[imageID]
	return rec, ok
}

// Len returns the number of indexed images
func (i Index) Len() int {
	return len(i.images)
}
