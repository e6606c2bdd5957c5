package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/config"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/models"
)

func newTestOpenRouter(t *testing.T, handler http.HandlerFunc) *OpenRouter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	o := NewOpenRouter("test-key", "test/model", 5*time.Second)
	o.endpoint = srv.URL
	return o
}

func TestOpenRouterGenerateText(t *testing.T) {
	var captured map[string]any

	o := newTestOpenRouter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"overall_score\": 71}"}}]}`))
	})

	out, err := o.Generate(context.Background(), &Request{System: "be precise", Prompt: "analyse this"})
	require.NoError(t, err)
	assert.Equal(t, `{"overall_score": 71}`, out)

	assert.Equal(t, "test/model", captured["model"])
	assert.Equal(t, map[string]any{"type": "json_object"}, captured["response_format"])

	msgs := captured["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "analyse this", msgs[1].(map[string]any)["content"])
}

func TestOpenRouterGenerateWithImage(t *testing.T) {
	var raw string
	o := newTestOpenRouter(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		raw = string(body)
		w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}]}`))
	})

	_, err := o.Generate(context.Background(), &Request{
		Prompt: "look",
		Image:  &Image{Data: []byte{0xff, 0xd8, 0xff}, MIMEType: "image/jpeg"},
	})
	require.NoError(t, err)
	assert.Contains(t, raw, `"type":"image_url"`)
	assert.Contains(t, raw, "data:image/jpeg;base64,/9j/")
}

func TestOpenRouterErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"http error", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, "401"},
		{"api error", http.StatusOK, `{"error":{"message":"model overloaded","code":503}}`, "model overloaded"},
		{"no choices", http.StatusOK, `{"choices":[]}`, "no response"},
		{"not json", http.StatusOK, `<html>`, "failed to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOpenRouter(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := o.Generate(context.Background(), &Request{Prompt: "x"})
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), "error %q should mention %q", err, tt.wantErr)
		})
	}
}

func TestOpenRouterMissingKey(t *testing.T) {
	o := NewOpenRouter("", "m", time.Second)
	_, err := o.Generate(context.Background(), &Request{Prompt: "x"})
	assert.Error(t, err)
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New(context.Background(), &config.Config{LLMProvider: "mystery"})
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ErrConfiguration))
}

func TestNewOpenRouterProvider(t *testing.T) {
	p, err := New(context.Background(), &config.Config{
		LLMProvider:      config.ProviderOpenRouter,
		OpenRouterAPIKey: "k",
		OpenRouterModel:  "some/model",
		LLMTimeout:       time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "openrouter", p.Name())
	assert.Equal(t, "some/model", p.Model())
}
