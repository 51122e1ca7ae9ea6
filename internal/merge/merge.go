package merge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/lehigh-university-libraries/vqaset/internal/listing"
	"github.com/lehigh-university-libraries/vqaset/internal/storage"
)

// Increase buffer size for large listing lines
const maxLineSize = 10 * 1024 * 1024

// Stats counts what happened to each input line
type Stats struct {
	Lines       int
	Merged      int
	Skipped     int
	ParseErrors int
	FieldErrors int
	Overwritten int
}

// ParseError reports a listing line that is not a JSON object
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse listing at line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Run normalizes every listing read from r and collects the records keyed by
// main image id. Bad lines and bad fields are logged and counted; only a read
// failure of r itself is returned as an error.
func Run(ctx context.Context, r io.Reader, images listing.ImageLookup, normalizer *listing.Normalizer) (*Collection, Stats, error) {
	collection := NewCollection()
	var stats Stats

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNum := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		lineNum++

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		stats.Lines++

		var raw listing.RawListing
		if err := json.Unmarshal(line, &raw); err != nil {
			perr := &ParseError{Line: lineNum, Err: err}
			slog.Warn("Skipping listing", "error", perr)
			stats.ParseErrors++
			continue
		}

		rec, fieldErrs := normalizer.Normalize(raw, images)
		for _, ferr := range fieldErrs {
			slog.Debug("Dropped listing field", "line", lineNum, "error", ferr)
		}
		stats.FieldErrors += len(fieldErrs)

		if rec == nil {
			stats.Skipped++
			continue
		}

		if collection.Put(raw.MainImageID(), rec) {
			stats.Overwritten++
		}
		stats.Merged++

		// Log progress every 10000 listings
		if lineNum%10000 == 0 {
			slog.Debug("Reading listings", "lines_read", lineNum, "records", collection.Len())
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, stats, fmt.Errorf("error reading listings: %w", err)
	}

	return collection, stats, nil
}

// OpenListings reads a listings file from store, decompressing .gz files.
// Callers must close the returned reader.
func OpenListings(ctx context.Context, store storage.Store, location string) (io.ReadCloser, error) {
	data, err := store.Read(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to read listings: %w", err)
	}
	if !strings.HasSuffix(strings.ToLower(location), ".gz") {
		return io.NopCloser(bytes.NewReader(data)), nil
	}

	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip listings: %w", err)
	}
	return zr, nil
}
