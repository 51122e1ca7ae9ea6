package report

import (
	"context"
	"fmt"
	"time"

	"github.com/lehigh-university-libraries/vqaset/internal/batch"
	"github.com/lehigh-university-libraries/vqaset/internal/storage"
	"github.com/lehigh-university-libraries/vqaset/internal/vqa"
	"gopkg.in/yaml.v3"
)

// RunConfig represents the configuration section of the report
type RunConfig struct {
	Provider      string  `yaml:"provider"`
	Model         string  `yaml:"model"`
	Temperature   float32 `yaml:"temperature"`
	Input         string  `yaml:"input"`
	Output        string  `yaml:"output"`
	Mode          string  `yaml:"mode"`
	Start         int     `yaml:"start"`
	End           int     `yaml:"end"`
	RetryAttempts int     `yaml:"retryattempts"`
	RetryDelay    string  `yaml:"retrydelay"`
	RecordDelay   string  `yaml:"recorddelay"`
	Timestamp     string  `yaml:"timestamp"`
}

// RunSummary holds the per-outcome counts
type RunSummary struct {
	Selected        int    `yaml:"selected"`
	Succeeded       int    `yaml:"succeeded"`
	Failed          int    `yaml:"failed"`
	Skipped         int    `yaml:"skipped"`
	ImageUnreadable int    `yaml:"imageunreadable"`
	Attempts        int    `yaml:"attempts"`
	Persisted       int    `yaml:"persisted"`
	Duration        string `yaml:"duration"`
	Interrupted     bool   `yaml:"interrupted,omitempty"`
}

// RunFailure is one record that produced no result
type RunFailure struct {
	ImageID string `yaml:"imageid"`
	Outcome string `yaml:"outcome"`
	Error   string `yaml:"error"`
}

// Report is the complete YAML document for one generate run
type Report struct {
	Config   RunConfig    `yaml:"config"`
	Summary  RunSummary   `yaml:"summary"`
	Failures []RunFailure `yaml:"failures,omitempty"`
}

// Run describes a finished generate run
type Run struct {
	Provider  string
	Input     string
	Output    string
	Mode      string
	Range     batch.Range
	Options   vqa.Options
	Summary   vqa.Summary
	Persisted int
	Started   time.Time
	Finished  time.Time
	Err       error
}

// FromRun converts a finished run into its report
func FromRun(run Run) *Report {
	r := &Report{
		Config: RunConfig{
			Provider:      run.Provider,
			Model:         run.Options.Model,
			Temperature:   run.Options.Temperature,
			Input:         run.Input,
			Output:        run.Output,
			Mode:          run.Mode,
			Start:         run.Range.Start,
			End:           run.Range.End,
			RetryAttempts: run.Options.RetryAttempts,
			RetryDelay:    run.Options.RetryDelay.String(),
			RecordDelay:   run.Options.RecordDelay.String(),
			Timestamp:     run.Started.Format(time.RFC3339),
		},
		Summary: RunSummary{
			Selected:        run.Summary.Selected,
			Succeeded:       run.Summary.Succeeded,
			Failed:          run.Summary.Failed,
			Skipped:         run.Summary.Skipped,
			ImageUnreadable: run.Summary.ImageUnreadable,
			Attempts:        run.Summary.Attempts,
			Persisted:       run.Persisted,
			Duration:        run.Finished.Sub(run.Started).Round(time.Millisecond).String(),
			Interrupted:     run.Err != nil,
		},
	}

	for _, f := range run.Summary.Failures {
		r.Failures = append(r.Failures, RunFailure{
			ImageID: f.ImageID,
			Outcome: f.Outcome.String(),
			Error:   f.Error,
		})
	}
	return r
}

// DefaultLocation returns reports/<model>-<timestamp>.yaml
func DefaultLocation(model string, at time.Time) string {
	if model == "" {
		model = "default"
	}
	return fmt.Sprintf("reports/%s-%s.yaml", model, at.Format("2006-01-02_15-04-05"))
}

// Save writes the report as YAML to location
func Save(ctx context.Context, store storage.Store, location string, r *Report) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	if err := store.Write(ctx, location, data); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
