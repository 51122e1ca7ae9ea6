package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lehigh-university-libraries/vqaset/internal/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body["model"])
		assert.InDelta(t, 0.4, body["temperature"], 0.0001)
		assert.EqualValues(t, 1024, body["max_tokens"])

		messages := body["messages"].([]interface{})
		content := messages[0].(map[string]interface{})["content"].([]interface{})
		require.Len(t, content, 2)
		image := content[1].(map[string]interface{})["image_url"].(map[string]interface{})
		assert.True(t, strings.HasPrefix(image["url"].(string), "data:image/png;base64,"))

		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"image_id\":\"x\"}"}}]}`))
	}))
	defer server.Close()

	p, err := New("test-key", server.URL)
	require.NoError(t, err)

	out, err := p.Generate(context.Background(), providers.Request{
		Model:           "gpt-4o-mini",
		Prompt:          "describe",
		Image:           []byte{0x89, 'P', 'N', 'G'},
		MIMEType:        "image/png",
		Temperature:     0.4,
		MaxOutputTokens: 1024,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"image_id":"x"}`, out)
}

func TestGenerate_StatusClassification(t *testing.T) {
	tests := []struct {
		status int
		kind   providers.Kind
	}{
		{http.StatusTooManyRequests, providers.KindRateLimited},
		{http.StatusServiceUnavailable, providers.KindUnavailable},
		{http.StatusBadRequest, providers.KindOther},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer server.Close()

			p, err := New("k", server.URL)
			require.NoError(t, err)

			_, err = p.Generate(context.Background(), providers.Request{Prompt: "p"})
			require.Error(t, err)
			assert.Equal(t, tt.kind, providers.Classify(err))
		})
	}
}

func TestGenerate_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	p, err := New("k", server.URL)
	require.NoError(t, err)
	_, err = p.Generate(context.Background(), providers.Request{Prompt: "p"})
	assert.ErrorContains(t, err, "no choices")
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New("", "")
	assert.Error(t, err)
}
