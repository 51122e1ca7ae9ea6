package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/lehigh-university-libraries/vqaset/internal/config"
	"github.com/lehigh-university-libraries/vqaset/internal/imageindex"
	"github.com/lehigh-university-libraries/vqaset/internal/listing"
	"github.com/lehigh-university-libraries/vqaset/internal/merge"
	"github.com/lehigh-university-libraries/vqaset/internal/metrics"
	"github.com/lehigh-university-libraries/vqaset/internal/storage"
	"github.com/spf13/cobra"
)

func newMergeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Normalize product listings and join them with image metadata",
		Long: `Read line-delimited product listings, keep the configured locale of every
language-tagged field, attach the image metadata of each record's images and
write one pretty-printed JSON object keyed by main image id.

Listings may be gzip compressed (.gz). The image table may be CSV, TSV, Excel
(.xlsx) or Parquet. Any location may be a local path or an s3://bucket/key URL.`,
		Example: `  # Merge the first listings shard
  vqaset merge --listings listings_0.json.gz --images images.csv.gz --out merged.json

  # Read from and write to S3 compatible storage
  vqaset merge --listings s3://abo/listings_0.json --images s3://abo/images.parquet --out s3://abo/merged.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configFile, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(cmd.Flags(), configFile, "merge.output")
			if err != nil {
				return err
			}
			return executeMerge(cmd, cfg)
		},
	}

	cmd.Flags().String("listings", "listings_0.json", "Line-delimited product listings (.json or .json.gz)")
	cmd.Flags().String("images", "images.csv", "Image metadata table (.csv, .tsv, .xlsx, .parquet, optionally .gz)")
	cmd.Flags().String("out", "cleaned_vqa_metadata_with_images.json", "Merged output location")
	cmd.Flags().String("locale-prefix", listing.DefaultLocalePrefix, "Language tag prefix to keep")
	cmd.Flags().String("metrics-file", "", "Write Prometheus metrics in textfile format to this path")
	cmd.Flags().String("s3-region", "", "AWS region for s3:// locations")
	cmd.Flags().String("s3-endpoint", "", "Custom S3 endpoint (MinIO, LocalStack)")

	return cmd
}

func executeMerge(cmd *cobra.Command, cfg *config.Config) error {
	ctx := cmd.Context()
	start := time.Now()
	store := storage.NewRouter(storage.Options{
		S3Region:   cfg.Storage.S3Region,
		S3Endpoint: cfg.Storage.S3Endpoint,
	})
	rec := metrics.New()

	slog.Info("Loading image metadata", "images", cfg.Merge.Images)
	index, loadStats, err := imageindex.Load(ctx, store, cfg.Merge.Images)
	if err != nil {
		return err
	}
	rec.Records("images", "indexed", loadStats.Indexed)
	rec.Records("images", "malformed", loadStats.Malformed)
	slog.Info("Image metadata loaded", "rows", loadStats.Rows, "indexed", loadStats.Indexed, "malformed", loadStats.Malformed)

	r, err := merge.OpenListings(ctx, store, cfg.Merge.Listings)
	if err != nil {
		return err
	}
	defer r.Close()

	normalizer := listing.NewNormalizer(listing.Options{LocalePrefix: cfg.Merge.LocalePrefix})
	collection, stats, err := merge.Run(ctx, r, index, normalizer)
	if err != nil {
		return err
	}
	rec.Records("merge", "merged", stats.Merged)
	rec.Records("merge", "skipped", stats.Skipped)
	rec.Records("merge", "parse_error", stats.ParseErrors)
	rec.Records("merge", "overwritten", stats.Overwritten)

	data, err := collection.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode merged records: %w", err)
	}
	if err := store.Write(ctx, cfg.Merge.Output, data); err != nil {
		return fmt.Errorf("failed to save merged records: %w", err)
	}

	if cfg.Metrics.File != "" {
		if err := rec.WriteTextfile(cfg.Metrics.File); err != nil {
			slog.Warn("Failed to write metrics", "path", cfg.Metrics.File, "error", err)
		}
	}

	printMergeSummary(stats, loadStats, collection.Len(), cfg.Merge.Output, time.Since(start))
	return nil
}

func printMergeSummary(stats merge.Stats, images imageindex.LoadStats, records int, output string, elapsed time.Duration) {
	fmt.Println("\n========================================")
	fmt.Println("Merge Summary")
	fmt.Println("========================================")
	fmt.Printf("Image Rows:         %d\n", images.Rows)
	fmt.Printf("Images Indexed:     %d\n", images.Indexed)
	fmt.Printf("Malformed Rows:     %d\n", images.Malformed)
	fmt.Println()
	fmt.Printf("Listing Lines:      %d\n", stats.Lines)
	fmt.Printf("Processed:          %d\n", stats.Merged)
	fmt.Printf("Skipped:            %d\n", stats.Skipped)
	fmt.Printf("Parse Errors:       %d\n", stats.ParseErrors)
	fmt.Printf("Field Errors:       %d\n", stats.FieldErrors)
	fmt.Printf("Overwritten:        %d\n", stats.Overwritten)
	fmt.Printf("Records Written:    %d\n", records)
	fmt.Printf("Execution Time:     %.2fs\n", elapsed.Seconds())
	fmt.Println("========================================")
	fmt.Printf("\nMerged records saved to: %s\n", output)
}
