package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lehigh-university-libraries/vqaset/internal/providers"
)

func TestGenerate(t *testing.T) {
	image := []byte{0xff, 0xd8, 0xff}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("Expected /api/generate, got %s", r.URL.Path)
		}
		var body struct {
			Model   string                 `json:"model"`
			Prompt  string                 `json:"prompt"`
			Stream  bool                   `json:"stream"`
			Images  []string               `json:"images"`
			Options map[string]interface{} `json:"options"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.Model != DefaultModel {
			t.Errorf("Expected default model, got %s", body.Model)
		}
		if body.Stream {
			t.Error("Expected stream=false")
		}
		if len(body.Images) != 1 || body.Images[0] != base64.StdEncoding.EncodeToString(image) {
			t.Errorf("Unexpected images payload: %v", body.Images)
		}
		if body.Options["num_predict"] != float64(512) {
			t.Errorf("Expected num_predict 512, got %v", body.Options["num_predict"])
		}
		_, _ = w.Write([]byte(`{"response":"hello"}`))
	}))
	defer server.Close()

	out, err := New(server.URL+"/").Generate(context.Background(), providers.Request{
		Prompt:          "describe",
		Image:           image,
		MIMEType:        "image/jpeg",
		MaxOutputTokens: 512,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != "hello" {
		t.Errorf("Expected hello, got %s", out)
	}
}

func TestGenerate_Unavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := New(server.URL).Generate(context.Background(), providers.Request{Prompt: "p"})
	if providers.Classify(err) != providers.KindUnavailable {
		t.Errorf("Expected unavailable, got %v", err)
	}
}
