package batch

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lehigh-university-libraries/vqaset/internal/listing"
)

// Format is the shape of a merged collection document
type Format int

const (
	// FormatDocument is a single JSON value: an object keyed by image id or an
	// array of single-entry objects.
	FormatDocument Format = iota
	// FormatLines is line-delimited JSON, one single-entry object per line.
	FormatLines
)

func (f Format) String() string {
	switch f {
	case FormatDocument:
		return "document"
	case FormatLines:
		return "lines"
	default:
		return "unknown"
	}
}

// Entry is one selectable record of the merged collection
type Entry struct {
	ID     string
	Record listing.NormalizedRecord
	// Raw is the record exactly as loaded
	Raw json.RawMessage
}

// DecodeStats counts entries that could not be decoded
type DecodeStats struct {
	Format  Format
	Entries int
	Skipped int
}

// Range is the effective [Start, End) window after clamping
type Range struct {
	Start int
	End   int
}

// InvalidRangeError is returned when the clamped range is empty
type InvalidRangeError struct {
	Start int
	End   int
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range: start (%d) must be less than end (%d)", e.Start, e.End)
}

var errNoEntry = errors.New("expected an object keyed by image id")

// DetectFormat checks the document form first and falls back to lines
func DetectFormat(data []byte) Format {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') && json.Valid(trimmed) {
		return FormatDocument
	}
	return FormatLines
}

// Decode turns a merged collection into ordered entries. Object keys keep their
// document order. Malformed records, array elements and lines are skipped and
// counted.
func Decode(data []byte) ([]Entry, DecodeStats, error) {
	stats := DecodeStats{Format: DetectFormat(data)}

	var entries []Entry
	var err error
	switch stats.Format {
	case FormatDocument:
		trimmed := bytes.TrimSpace(data)
		if trimmed[0] == '{' {
			entries, stats.Skipped, err = decodeObject(trimmed)
		} else {
			entries, stats.Skipped, err = decodeArray(trimmed)
		}
	case FormatLines:
		entries, stats.Skipped, err = decodeLines(data)
	}
	if err != nil {
		return nil, stats, err
	}

	stats.Entries = len(entries)
	return entries, stats, nil
}

func newEntry(id string, raw json.RawMessage) (Entry, error) {
	e := Entry{ID: id, Raw: raw}
	if err := json.Unmarshal(raw, &e.Record); err != nil {
		return Entry{}, fmt.Errorf("record %s: %w", id, err)
	}
	return e, nil
}

type keyedRecord struct {
	id  string
	raw json.RawMessage
}

// objectRecords walks the top-level object token by token so key order survives
func objectRecords(data []byte) ([]keyedRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to read collection: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("expected a JSON object")
	}

	var records []keyedRecord
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to read collection key: %w", err)
		}
		id, _ := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to read record %s: %w", id, err)
		}
		records = append(records, keyedRecord{id: id, raw: raw})
	}
	return records, nil
}

func decodeObject(data []byte) ([]Entry, int, error) {
	records, err := objectRecords(data)
	if err != nil {
		return nil, 0, err
	}

	var entries []Entry
	skipped := 0
	for _, r := range records {
		e, err := newEntry(r.id, r.raw)
		if err != nil {
			slog.Warn("Skipping collection record", "id", r.id, "error", err)
			skipped++
			continue
		}
		entries = append(entries, e)
	}
	return entries, skipped, nil
}

func decodeArray(data []byte) ([]Entry, int, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, 0, fmt.Errorf("failed to read collection: %w", err)
	}

	var entries []Entry
	skipped := 0
	for i, item := range items {
		e, err := singleEntry(item)
		if err != nil {
			slog.Warn("Skipping collection element", "index", i, "error", err)
			skipped++
			continue
		}
		entries = append(entries, e)
	}
	return entries, skipped, nil
}

func decodeLines(data []byte) ([]Entry, int, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	var entries []Entry
	skipped := 0
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		e, err := singleEntry(line)
		if err != nil {
			slog.Warn("Error parsing line", "line", lineNum, "error", err)
			skipped++
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("failed to read collection lines: %w", err)
	}
	return entries, skipped, nil
}

// singleEntry decodes {"<image id>": {record}}. Extra keys are ignored; the
// first one names the entry.
func singleEntry(data []byte) (Entry, error) {
	records, err := objectRecords(data)
	if err != nil {
		return Entry{}, err
	}
	if len(records) == 0 {
		return Entry{}, errNoEntry
	}
	return newEntry(records[0].id, records[0].raw)
}

// Select returns entries[start:end] after clamping start to >= 0 and end to
// <= len(entries). A negative end selects through the last entry.
func Select(entries []Entry, start, end int) ([]Entry, Range, error) {
	if end < 0 || end > len(entries) {
		end = len(entries)
	}
	if start < 0 {
		start = 0
	}
	r := Range{Start: start, End: end}
	if start >= end {
		return nil, r, &InvalidRangeError{Start: start, End: end}
	}
	return entries[start:end], r, nil
}
