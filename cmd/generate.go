package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lehigh-university-libraries/vqaset/internal/batch"
	"github.com/lehigh-university-libraries/vqaset/internal/checkpoint"
	"github.com/lehigh-university-libraries/vqaset/internal/config"
	"github.com/lehigh-university-libraries/vqaset/internal/metrics"
	"github.com/lehigh-university-libraries/vqaset/internal/report"
	"github.com/lehigh-university-libraries/vqaset/internal/storage"
	"github.com/lehigh-university-libraries/vqaset/internal/vqa"
	"github.com/spf13/cobra"
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate VQA question/answer pairs for a range of merged records",
		Long: `Load a merged collection, select the records in [start, end) and ask a
vision-language model for 2-3 short question/answer pairs about each main image.

Records are processed one at a time with a fixed pause between them. Rate limit
and availability errors are retried with exponential backoff, other failures with
a flat delay. Results are appended to (or replace) a JSON array at --out, also
when the run is interrupted.

Credentials are read from GEMINI_API_KEY or OPENAI_API_KEY; Ollama uses
OLLAMA_URL. A .env file in the working directory is loaded first.`,
		Example: `  # Process records 3078..4499 with Gemini, appending to the dataset
  vqaset generate --in merged.json --out vqa.json --start 3078 --end 4500

  # Use a local Ollama model and start a fresh output file
  vqaset generate --provider ollama --model llava:13b --append=false

  # Keep under 15 requests per minute and write a run report
  vqaset generate --rpm 15 --report reports/run.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configFile, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(cmd.Flags(), configFile, "generate.output")
			if err != nil {
				return err
			}
			return executeGenerate(cmd.Context(), cfg)
		},
	}

	defaults := vqa.DefaultOptions()
	cmd.Flags().String("in", "cleaned_vqa_metadata_with_images.json", "Merged collection (object, array or line-delimited JSON)")
	cmd.Flags().String("out", "vqa_training_data.json", "Output JSON array location")
	cmd.Flags().String("image-dir", "abo-images-small/images/small", "Root directory of the image paths")
	cmd.Flags().Int("start", 0, "First record index (inclusive)")
	cmd.Flags().Int("end", -1, "Last record index (exclusive, -1 for all)")
	cmd.Flags().Bool("append", true, "Append to existing results instead of overwriting")
	cmd.Flags().Int("retry-attempts", defaults.RetryAttempts, "Attempts per record")
	cmd.Flags().Duration("retry-delay", defaults.RetryDelay, "Base delay between attempts")
	cmd.Flags().Duration("record-delay", defaults.RecordDelay, "Pause between records")
	cmd.Flags().String("provider", "gemini", "LLM provider (gemini, openai, or ollama)")
	cmd.Flags().String("model", "", "Model name (defaults to provider's default)")
	cmd.Flags().String("base-url", "", "Provider base URL (OpenAI compatible or Ollama)")
	cmd.Flags().Float32("temperature", defaults.Temperature, "Sampling temperature")
	cmd.Flags().Int("max-output-tokens", int(defaults.MaxOutputTokens), "Maximum tokens per reply")
	cmd.Flags().Int("rpm", 0, "Maximum provider requests per minute (0 for no limit)")
	cmd.Flags().String("report", "", "Write a YAML run report to this location (auto for reports/<model>-<time>.yaml)")
	cmd.Flags().String("metrics-file", "", "Write Prometheus metrics in textfile format to this path")
	cmd.Flags().String("s3-region", "", "AWS region for s3:// locations")
	cmd.Flags().String("s3-endpoint", "", "Custom S3 endpoint (MinIO, LocalStack)")

	return cmd
}

func executeGenerate(ctx context.Context, cfg *config.Config) error {
	started := time.Now()
	g := cfg.Generate
	store := storage.NewRouter(storage.Options{
		S3Region:   cfg.Storage.S3Region,
		S3Endpoint: cfg.Storage.S3Endpoint,
	})

	slog.Info("Loading merged records", "input", g.Input)
	data, err := store.Read(ctx, g.Input)
	if err != nil {
		return fmt.Errorf("failed to load merged records: %w", err)
	}
	entries, decodeStats, err := batch.Decode(data)
	if err != nil {
		return err
	}
	slog.Info("Merged records loaded", "format", decodeStats.Format, "entries", decodeStats.Entries, "skipped", decodeStats.Skipped)

	selected, rng, err := batch.Select(entries, g.Start, g.End)
	if err != nil {
		return err
	}
	fmt.Printf("Processing items from index %d to %d (%d items)\n", rng.Start, rng.End-1, len(selected))

	provider, model, closeProvider, err := newProvider(ctx, cfg.Provider)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeProvider(); err != nil {
			slog.Warn("Failed to close provider", "error", err)
		}
	}()

	opts := vqa.Options{
		Model:           model,
		ImageDir:        g.ImageDir,
		RetryAttempts:   g.RetryAttempts,
		RetryDelay:      g.RetryDelay,
		RecordDelay:     g.RecordDelay,
		Temperature:     cfg.Provider.Temperature,
		MaxOutputTokens: int32(cfg.Provider.MaxOutputTokens),
	}
	rec := metrics.New()
	orchestrator := vqa.New(provider, opts, vqa.WithMetrics(rec))

	results, summary, runErr := orchestrator.Run(ctx, selected)
	if runErr != nil {
		slog.Warn("Run interrupted, saving partial results", "results", len(results), "error", runErr)
	}

	mode := checkpoint.ModeOverwrite
	if g.Append {
		mode = checkpoint.ModeAppend
	}
	// Persist even when ctx is done so an interrupted run keeps its results.
	persistCtx := context.WithoutCancel(ctx)
	total, err := checkpoint.NewWriter(store).Persist(persistCtx, results, g.Output, mode)
	if err != nil {
		return err
	}

	if cfg.Metrics.File != "" {
		if err := rec.WriteTextfile(cfg.Metrics.File); err != nil {
			slog.Warn("Failed to write metrics", "path", cfg.Metrics.File, "error", err)
		}
	}

	if g.Report != "" {
		location := g.Report
		if location == "auto" {
			location = report.DefaultLocation(model, started)
		}
		r := report.FromRun(report.Run{
			Provider:  cfg.Provider.Name,
			Input:     g.Input,
			Output:    g.Output,
			Mode:      mode.String(),
			Range:     rng,
			Options:   opts,
			Summary:   summary,
			Persisted: total,
			Started:   started,
			Finished:  time.Now(),
			Err:       runErr,
		})
		if err := report.Save(persistCtx, store, location, r); err != nil {
			slog.Warn("Failed to save run report", "location", location, "error", err)
		} else {
			fmt.Printf("Run report saved to: %s\n", location)
		}
	}

	printGenerateSummary(summary, len(results), total, g.Output)
	return runErr
}

func printGenerateSummary(summary vqa.Summary, saved, total int, output string) {
	fmt.Println("\n========================================")
	fmt.Println("Generation Summary")
	fmt.Println("========================================")
	fmt.Printf("Selected:           %d\n", summary.Selected)
	fmt.Printf("Processed:          %d\n", summary.Succeeded)
	fmt.Printf("Skipped:            %d\n", summary.Skipped)
	fmt.Printf("Failed:             %d\n", summary.Failed+summary.ImageUnreadable)
	fmt.Printf("  Image Unreadable: %d\n", summary.ImageUnreadable)
	fmt.Printf("Provider Calls:     %d\n", summary.Attempts)
	fmt.Println("========================================")
	fmt.Printf("\nSaved %d new results to %s (%d total)\n", saved, output, total)
}
