package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lehigh-university-libraries/vqaset/internal/storage"
	"github.com/lehigh-university-libraries/vqaset/internal/vqa"
)

// Mode selects how new results meet an existing destination
type Mode int

const (
	// ModeAppend keeps what the destination already holds and adds to its end
	ModeAppend Mode = iota
	// ModeOverwrite replaces the destination with only the new results
	ModeOverwrite
)

func (m Mode) String() string {
	if m == ModeOverwrite {
		return "overwrite"
	}
	return "append"
}

// ParseMode maps a flag value to a Mode
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "append":
		return ModeAppend, nil
	case "overwrite":
		return ModeOverwrite, nil
	default:
		return ModeAppend, fmt.Errorf("unknown write mode %q (want append or overwrite)", s)
	}
}

// PersistenceError is returned when the destination cannot be read for
// appending or cannot be written
type PersistenceError struct {
	Dest string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist results to %s: %v", e.Dest, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Writer saves result sets as a pretty-printed JSON array
type Writer struct {
	store storage.Store
}

func NewWriter(store storage.Store) *Writer {
	return &Writer{store: store}
}

// LoadExisting returns the elements already at dest. A missing or corrupt
// destination yields an empty sequence, and a valid JSON value that is not an
// array becomes a one-element sequence. Any other read failure is returned as
// a *PersistenceError so the existing file is never replaced blindly.
func (w *Writer) LoadExisting(ctx context.Context, dest string) ([]json.RawMessage, error) {
	data, err := w.store.Read(ctx, dest)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return []json.RawMessage{}, nil
		}
		return nil, &PersistenceError{Dest: dest, Err: err}
	}

	if !json.Valid(data) {
		slog.Warn("Existing results are not valid JSON, starting fresh", "dest", dest)
		return []json.RawMessage{}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err == nil {
		if items == nil {
			return []json.RawMessage{}, nil
		}
		return items, nil
	}

	slog.Warn("Existing results are not a JSON array, keeping the value as the first element", "dest", dest)
	return []json.RawMessage{json.RawMessage(data)}, nil
}

// Persist writes results to dest and returns the number of elements stored
func (w *Writer) Persist(ctx context.Context, results []vqa.Result, dest string, mode Mode) (int, error) {
	var items []json.RawMessage
	if mode == ModeAppend {
		var err error
		if items, err = w.LoadExisting(ctx, dest); err != nil {
			return 0, err
		}
	} else {
		items = make([]json.RawMessage, 0, len(results))
	}

	for _, r := range results {
		data, err := json.Marshal(r)
		if err != nil {
			return 0, &PersistenceError{Dest: dest, Err: err}
		}
		items = append(items, data)
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return 0, &PersistenceError{Dest: dest, Err: err}
	}
	data = append(data, '\n')

	if err := w.store.Write(ctx, dest, data); err != nil {
		return 0, &PersistenceError{Dest: dest, Err: err}
	}

	slog.Info("Results saved", "dest", dest, "mode", mode, "new", len(results), "total", len(items))
	return len(items), nil
}

// Load reads a results file back into typed results
func Load(ctx context.Context, store storage.Store, dest string) ([]vqa.Result, error) {
	data, err := store.Read(ctx, dest)
	if err != nil {
		return nil, err
	}
	var results []vqa.Result
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("failed to parse results %s: %w", dest, err)
	}
	return results, nil
}
