package cmd

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "vqaset",
		Short: "Product listing merge and VQA training data generation",
		Long: `vqaset prepares visual question answering training data from product catalogs.

The merge command normalizes multilingual product listings and joins them with an image
metadata table. The generate command asks a vision-language model for question/answer
pairs about each product image and appends them to a JSON dataset.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	cmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Verbose logging")
	cmd.PersistentFlags().String("config", "", "Config file (default ./vqaset.yaml)")

	cmd.AddCommand(newMergeCmd())
	cmd.AddCommand(newGenerateCmd())

	return cmd
}
