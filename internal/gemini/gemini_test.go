package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/lehigh-university-libraries/vqaset/internal/providers"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected providers.Kind
	}{
		{"grpc resource exhausted", status.Error(codes.ResourceExhausted, "quota"), providers.KindRateLimited},
		{"grpc unavailable", status.Error(codes.Unavailable, "overloaded"), providers.KindUnavailable},
		{"wrapped grpc unavailable", fmt.Errorf("call: %w", status.Error(codes.Unavailable, "x")), providers.KindUnavailable},
		{"grpc invalid argument", status.Error(codes.InvalidArgument, "bad"), providers.KindOther},
		{"http 429", &googleapi.Error{Code: http.StatusTooManyRequests}, providers.KindRateLimited},
		{"http 503", &googleapi.Error{Code: http.StatusServiceUnavailable}, providers.KindUnavailable},
		{"http 400", &googleapi.Error{Code: http.StatusBadRequest}, providers.KindOther},
		{"plain error", errors.New("boom"), providers.KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := providers.Classify(classify(tt.err))
			if got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestClassifyKeepsOriginal(t *testing.T) {
	orig := status.Error(codes.ResourceExhausted, "quota")
	if !errors.Is(classify(orig), orig) {
		t.Error("Expected classified error to wrap the original")
	}
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := New(context.Background(), ""); err == nil {
		t.Error("Expected error for empty API key")
	}
}
