package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Merge    MergeConfig    `mapstructure:"merge"`
	Generate GenerateConfig `mapstructure:"generate"`
	Provider ProviderConfig `mapstructure:"provider"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// MergeConfig holds the inputs and output of the merge stage
type MergeConfig struct {
	Listings     string `mapstructure:"listings"`
	Images       string `mapstructure:"images"`
	Output       string `mapstructure:"output"`
	LocalePrefix string `mapstructure:"locale_prefix"`
}

// GenerateConfig holds batch selection, pacing and output settings
type GenerateConfig struct {
	Input         string        `mapstructure:"input"`
	Output        string        `mapstructure:"output"`
	ImageDir      string        `mapstructure:"image_dir"`
	Start         int           `mapstructure:"start"`
	End           int           `mapstructure:"end"` // negative selects through the last record
	Append        bool          `mapstructure:"append"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	RecordDelay   time.Duration `mapstructure:"record_delay"`
	Report        string        `mapstructure:"report"`
}

// ProviderConfig selects and tunes the vision-language model
type ProviderConfig struct {
	Name              string  `mapstructure:"name"` // "gemini", "openai" or "ollama"
	Model             string  `mapstructure:"model"`
	BaseURL           string  `mapstructure:"base_url"`
	Temperature       float32 `mapstructure:"temperature"`
	MaxOutputTokens   int     `mapstructure:"max_output_tokens"`
	RequestsPerMinute int     `mapstructure:"requests_per_minute"`
}

// MetricsConfig holds where run metrics are written, if anywhere
type MetricsConfig struct {
	File string `mapstructure:"file"`
}

// StorageConfig holds settings for s3:// locations
type StorageConfig struct {
	S3Region   string `mapstructure:"s3_region"`
	S3Endpoint string `mapstructure:"s3_endpoint"`
}

// FlagKeys maps command line flag names to configuration keys
var FlagKeys = map[string]string{
	"listings":          "merge.listings",
	"images":            "merge.images",
	"locale-prefix":     "merge.locale_prefix",
	"in":                "generate.input",
	"image-dir":         "generate.image_dir",
	"start":             "generate.start",
	"end":               "generate.end",
	"append":            "generate.append",
	"retry-attempts":    "generate.retry_attempts",
	"retry-delay":       "generate.retry_delay",
	"record-delay":      "generate.record_delay",
	"report":            "generate.report",
	"metrics-file":      "metrics.file",
	"provider":          "provider.name",
	"model":             "provider.model",
	"base-url":          "provider.base_url",
	"temperature":       "provider.temperature",
	"max-output-tokens": "provider.max_output_tokens",
	"rpm":               "provider.requests_per_minute",
	"s3-region":         "storage.s3_region",
	"s3-endpoint":       "storage.s3_endpoint",
}

// Load merges defaults, the optional config file, VQASET_* environment
// variables and the flags present in flags, in increasing precedence.
// outputKey names the key the command's --out flag feeds, since merge and
// generate both write somewhere.
func Load(flags *pflag.FlagSet, configFile, outputKey string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("vqaset")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/vqaset")
	}

	v.SetEnvPrefix("VQASET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
		if f := flags.Lookup("out"); f != nil && outputKey != "" {
			if err := v.BindPFlag(outputKey, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag out: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("merge.listings", "listings_0.json")
	v.SetDefault("merge.images", "images.csv")
	v.SetDefault("merge.output", "cleaned_vqa_metadata_with_images.json")
	v.SetDefault("merge.locale_prefix", "en_")

	v.SetDefault("generate.input", "cleaned_vqa_metadata_with_images.json")
	v.SetDefault("generate.output", "vqa_training_data.json")
	v.SetDefault("generate.image_dir", "abo-images-small/images/small")
	v.SetDefault("generate.start", 0)
	v.SetDefault("generate.end", -1)
	v.SetDefault("generate.append", true)
	v.SetDefault("generate.retry_attempts", 3)
	v.SetDefault("generate.retry_delay", "3s")
	v.SetDefault("generate.record_delay", "3s")
	v.SetDefault("generate.report", "")

	v.SetDefault("provider.name", "gemini")
	v.SetDefault("provider.model", "")
	v.SetDefault("provider.base_url", "")
	v.SetDefault("provider.temperature", 0.4)
	v.SetDefault("provider.max_output_tokens", 1024)
	v.SetDefault("provider.requests_per_minute", 0)

	v.SetDefault("storage.s3_region", "")
	v.SetDefault("storage.s3_endpoint", "")

	v.SetDefault("metrics.file", "")
}

// Validate rejects settings no run could use
func (c *Config) Validate() error {
	switch c.Provider.Name {
	case "gemini", "openai", "ollama":
	default:
		return fmt.Errorf("provider must be 'gemini', 'openai' or 'ollama', got: %s", c.Provider.Name)
	}

	g := c.Generate
	if g.RetryAttempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1, got: %d", g.RetryAttempts)
	}
	if g.RetryDelay < 0 || g.RecordDelay < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	if g.End >= 0 && g.End < g.Start {
		return fmt.Errorf("end (%d) must not be below start (%d)", g.End, g.Start)
	}
	if c.Provider.MaxOutputTokens < 1 {
		return fmt.Errorf("max output tokens must be positive, got: %d", c.Provider.MaxOutputTokens)
	}
	if c.Provider.RequestsPerMinute < 0 {
		return fmt.Errorf("requests per minute must not be negative, got: %d", c.Provider.RequestsPerMinute)
	}
	return nil
}
