package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Request is one multimodal generation call
type Request struct {
	Model           string
	Prompt          string
	Image           []byte
	MIMEType        string
	Temperature     float32
	MaxOutputTokens int32
}

// Provider defines the interface for a vision-language model provider
type Provider interface {
	Generate(ctx context.Context, req Request) (string, error)
}

var (
	// ErrRateLimited is returned when the provider rejects a call for quota or rate reasons
	ErrRateLimited = errors.New("rate limited")

	// ErrUnavailable is returned when the provider is temporarily unavailable
	ErrUnavailable = errors.New("service unavailable")
)

// Kind classifies a provider error for retry purposes
type Kind int

const (
	KindOther Kind = iota
	KindRateLimited
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindUnavailable:
		return "unavailable"
	default:
		return "other"
	}
}

// Classify maps an error returned by a Provider onto a Kind
func Classify(err error) Kind {
	switch {
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrUnavailable):
		return KindUnavailable
	default:
		return KindOther
	}
}

// StatusError wraps a non-200 HTTP status so that 429 and 503 classify as
// rate limited and unavailable.
func StatusError(provider string, status int, body string) error {
	var kind error
	switch status {
	case http.StatusTooManyRequests:
		kind = ErrRateLimited
	case http.StatusServiceUnavailable:
		kind = ErrUnavailable
	}
	if kind != nil {
		return fmt.Errorf("%s API returned status %d: %w: %s", provider, status, kind, body)
	}
	return fmt.Errorf("%s API returned status %d: %s", provider, status, body)
}
