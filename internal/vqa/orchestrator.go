package vqa

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/lehigh-university-libraries/vqaset/internal/batch"
	"github.com/lehigh-university-libraries/vqaset/internal/metrics"
	"github.com/lehigh-university-libraries/vqaset/internal/providers"
)

const defaultMIMEType = "image/jpeg"

// Outcome is the terminal state of one record
type Outcome int

const (
	OutcomeDone Outcome = iota
	OutcomeFailed
	OutcomeImageUnreadable
	OutcomeNoImage
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDone:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeImageUnreadable:
		return "image_unreadable"
	case OutcomeNoImage:
		return "no_image"
	default:
		return "unknown"
	}
}

// Options holds the fixed request parameters and pacing of a run
type Options struct {
	Model           string
	ImageDir        string
	RetryAttempts   int
	RetryDelay      time.Duration
	RecordDelay     time.Duration
	Temperature     float32
	MaxOutputTokens int32
}

// DefaultOptions returns the settings used when nothing is configured
func DefaultOptions() Options {
	return Options{
		RetryAttempts:   3,
		RetryDelay:      3 * time.Second,
		RecordDelay:     3 * time.Second,
		Temperature:     0.4,
		MaxOutputTokens: 1024,
	}
}

// Summary counts record outcomes for one run
type Summary struct {
	Selected        int
	Succeeded       int
	Failed          int
	Skipped         int
	ImageUnreadable int
	Attempts        int
	Failures        []Failure
}

// Failure records why a record produced no result
type Failure struct {
	ImageID string
	Outcome Outcome
	Error   string
}

// Orchestrator drives the provider one record at a time
type Orchestrator struct {
	provider  providers.Provider
	opts      Options
	sleep     func(ctx context.Context, d time.Duration) error
	readImage func(path string) ([]byte, error)
	metrics   *metrics.Recorder
}

// OrchestratorOption customizes an Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithSleeper replaces the wait used for retry backoff and record pacing
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) OrchestratorOption {
	return func(o *Orchestrator) {
		o.sleep = fn
	}
}

// WithImageReader replaces how image bytes are loaded
func WithImageReader(fn func(path string) ([]byte, error)) OrchestratorOption {
	return func(o *Orchestrator) {
		o.readImage = fn
	}
}

func WithMetrics(m *metrics.Recorder) OrchestratorOption {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func New(provider providers.Provider, opts Options, options ...OrchestratorOption) *Orchestrator {
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = 1
	}
	o := &Orchestrator{
		provider:  provider,
		opts:      opts,
		sleep:     sleepContext,
		readImage: os.ReadFile,
	}
	for _, fn := range options {
		fn(o)
	}
	return o
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// MaxBackoff caps the exponential wait between attempts
const MaxBackoff = 10 * time.Minute

// Backoff returns delay * 2^attempt for a zero-based attempt number, capped at
// MaxBackoff
func Backoff(delay time.Duration, attempt int) time.Duration {
	if delay <= 0 {
		return 0
	}
	d := delay
	for i := 0; i < attempt; i++ {
		if d >= MaxBackoff/2 {
			return MaxBackoff
		}
		d *= 2
	}
	return min(d, MaxBackoff)
}

// ImagePath resolves the main image of an entry under imageDir
func ImagePath(entry batch.Entry, imageDir string) (string, bool) {
	img, ok := entry.Record.ImageMetadata.Get(entry.ID)
	if !ok || img.Path == "" {
		return "", false
	}
	return filepath.Join(imageDir, img.Path), true
}

// Generate produces the question set for one record. An unreadable image ends
// the record without calling the provider.
func (o *Orchestrator) Generate(ctx context.Context, entry batch.Entry, imagePath string) (*Result, Outcome, error) {
	result, outcome, _, err := o.generate(ctx, entry, imagePath)
	return result, outcome, err
}

func (o *Orchestrator) generate(ctx context.Context, entry batch.Entry, imagePath string) (*Result, Outcome, int, error) {
	image, err := o.readImage(imagePath)
	if err != nil {
		return nil, OutcomeImageUnreadable, 0, fmt.Errorf("%w: %s: %v", ErrImageUnreadable, imagePath, err)
	}

	req := providers.Request{
		Model:           o.opts.Model,
		Prompt:          BuildPrompt(entry),
		Image:           image,
		MIMEType:        detectMIMEType(image),
		Temperature:     o.opts.Temperature,
		MaxOutputTokens: o.opts.MaxOutputTokens,
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt < o.opts.RetryAttempts; attempt++ {
		attempts++
		var wait time.Duration

		text, err := o.provider.Generate(ctx, req)
		if err == nil {
			result, perr := ExtractJSON(text)
			if perr == nil {
				o.metrics.Attempt("success")
				result.ImageID = entry.ID
				return result, OutcomeDone, attempts, nil
			}
			slog.Warn("Failed to parse JSON response", "id", entry.ID, "attempt", attempt+1, "error", perr, "response", preview(text))
			o.metrics.Attempt("unparseable")
			lastErr = perr
			wait = o.opts.RetryDelay
		} else {
			if ctx.Err() != nil {
				return nil, OutcomeFailed, attempts, ctx.Err()
			}
			kind := providers.Classify(err)
			o.metrics.Attempt(kind.String())
			lastErr = err
			switch kind {
			case providers.KindRateLimited, providers.KindUnavailable:
				slog.Warn("API limit exceeded or service unavailable", "id", entry.ID, "attempt", attempt+1, "error", err)
				wait = Backoff(o.opts.RetryDelay, attempt)
			default:
				slog.Warn("Error calling provider", "id", entry.ID, "attempt", attempt+1, "error", err)
				wait = o.opts.RetryDelay
			}
		}

		if attempt == o.opts.RetryAttempts-1 {
			break
		}
		slog.Info("Retrying", "id", entry.ID, "in", wait)
		o.metrics.RetryWait(wait)
		if err := o.sleep(ctx, wait); err != nil {
			return nil, OutcomeFailed, attempts, err
		}
	}

	slog.Warn("Maximum retry attempts reached", "id", entry.ID, "attempts", attempts)
	return nil, OutcomeFailed, attempts, fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, attempts, lastErr)
}

// Run processes entries in order and returns the results gathered. Per-record
// failures are counted in the summary; only cancellation of ctx stops the run
// early, in which case the results so far are returned with ctx's error.
func (o *Orchestrator) Run(ctx context.Context, entries []batch.Entry) ([]Result, Summary, error) {
	summary := Summary{Selected: len(entries)}
	results := make([]Result, 0, len(entries))

	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return results, summary, err
		}

		imagePath, ok := ImagePath(entry, o.opts.ImageDir)
		if !ok {
			slog.Warn("Image metadata not found for item", "id", entry.ID)
			summary.Skipped++
			summary.Failures = append(summary.Failures, Failure{ImageID: entry.ID, Outcome: OutcomeNoImage, Error: "no image metadata for main image"})
			o.metrics.Records("generate", OutcomeNoImage.String(), 1)
			continue
		}

		slog.Info("Processing item", "id", entry.ID, "progress", fmt.Sprintf("%d/%d", i+1, len(entries)))

		start := time.Now()
		result, outcome, attempts, err := o.generate(ctx, entry, imagePath)
		o.metrics.RecordDuration(time.Since(start))
		o.metrics.Records("generate", outcome.String(), 1)
		summary.Attempts += attempts

		switch outcome {
		case OutcomeDone:
			summary.Succeeded++
			results = append(results, *result)
		case OutcomeImageUnreadable:
			slog.Error("Error reading image", "id", entry.ID, "error", err)
			summary.ImageUnreadable++
			summary.Failures = append(summary.Failures, Failure{ImageID: entry.ID, Outcome: outcome, Error: err.Error()})
			continue
		default:
			if ctx.Err() != nil {
				return results, summary, ctx.Err()
			}
			slog.Error("Failed to generate questions", "id", entry.ID, "error", err)
			summary.Failed++
			summary.Failures = append(summary.Failures, Failure{ImageID: entry.ID, Outcome: outcome, Error: err.Error()})
		}

		if i < len(entries)-1 {
			if err := o.sleep(ctx, o.opts.RecordDelay); err != nil {
				return results, summary, err
			}
		}
	}

	return results, summary, nil
}

func detectMIMEType(data []byte) string {
	mt := mimetype.Detect(data).String()
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	if !strings.HasPrefix(mt, "image/") {
		return defaultMIMEType
	}
	return mt
}

func preview(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
