package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/lehigh-university-libraries/vqaset/internal/config"
	"github.com/lehigh-university-libraries/vqaset/internal/gemini"
	"github.com/lehigh-university-libraries/vqaset/internal/ollama"
	"github.com/lehigh-university-libraries/vqaset/internal/openai"
	"github.com/lehigh-university-libraries/vqaset/internal/providers"
)

// newProvider builds the configured provider, wrapped with the request rate
// limit, and resolves the model name. Credentials come from the environment.
func newProvider(ctx context.Context, cfg config.ProviderConfig) (providers.Provider, string, func() error, error) {
	noop := func() error { return nil }
	model := cfg.Model

	var p providers.Provider
	closeFn := noop
	switch cfg.Name {
	case "gemini":
		if model == "" {
			model = os.Getenv("GEMINI_MODEL")
		}
		if model == "" {
			model = gemini.DefaultModel
		}
		g, err := gemini.New(ctx, os.Getenv("GEMINI_API_KEY"))
		if err != nil {
			return nil, "", noop, err
		}
		p, closeFn = g, g.Close
	case "openai":
		if model == "" {
			model = os.Getenv("OPENAI_MODEL")
		}
		if model == "" {
			model = openai.DefaultModel
		}
		o, err := openai.New(os.Getenv("OPENAI_API_KEY"), cfg.BaseURL)
		if err != nil {
			return nil, "", noop, err
		}
		p = o
	case "ollama":
		if model == "" {
			model = os.Getenv("OLLAMA_MODEL")
		}
		if model == "" {
			model = ollama.DefaultModel
		}
		host := cfg.BaseURL
		if host == "" {
			host = os.Getenv("OLLAMA_URL")
		}
		if host == "" {
			host = os.Getenv("OLLAMA_HOST")
		}
		p = ollama.New(host)
	default:
		return nil, "", noop, fmt.Errorf("unknown provider: %s", cfg.Name)
	}

	return providers.WithRateLimit(p, cfg.RequestsPerMinute), model, closeFn, nil
}
