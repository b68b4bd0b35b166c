package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quill/internal/config"
)

func newOllamaServer(t *testing.T) (*httptest.Server, *ollamaChatRequest) {
	t.Helper()
	var got ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.Write([]byte(`{"models":[{"name":"llama3"},{"name":"mistral:7b"}]}`))
		case "/api/chat":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.Write([]byte(`{"message":{"role":"assistant","content":"local answer"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestOllamaChat(t *testing.T) {
	srv, got := newOllamaServer(t)

	p := NewOllamaProvider(nil)
	p.LoadConfig(config.ProviderSettings{
		"api_base":  srv.URL,
		"api_model": "llama3",
	})

	result, err := p.GetResponse(context.Background(), "be brief", "the text", Options{})
	require.NoError(t, err)

	assert.Equal(t, "local answer", result.Text)
	assert.Equal(t, "llama3", got.Model)
	assert.False(t, got.Stream, "responses are requested unstreamed")
	assert.Equal(t, "5m", got.KeepAlive, "keep-alive minutes become a duration")
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
}

func TestOllamaMissingModel(t *testing.T) {
	srv, _ := newOllamaServer(t)

	p := NewOllamaProvider(nil)
	p.LoadConfig(config.ProviderSettings{"api_base": srv.URL})

	_, err := p.GetResponse(context.Background(), "", "text", Options{})
	assert.Equal(t, KindConfigurationInvalid, KindOf(err))
}

func TestListModels(t *testing.T) {
	srv, _ := newOllamaServer(t)

	models, err := ListModels(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3", "mistral:7b"}, models)
}

func TestProbeRuntime(t *testing.T) {
	t.Run("reachable runtime", func(t *testing.T) {
		srv, _ := newOllamaServer(t)
		ok := ProbeRuntime("ollama", config.ProviderSettings{"api_base": srv.URL})
		assert.True(t, ok)
	})

	t.Run("unreachable runtime", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		ok := ProbeRuntime("ollama", config.ProviderSettings{"api_base": url})
		assert.False(t, ok)
	})

	t.Run("other providers never probe", func(t *testing.T) {
		assert.False(t, ProbeRuntime("openai", config.ProviderSettings{}))
	})
}

func TestKeepAliveDuration(t *testing.T) {
	assert.Equal(t, "5m", keepAliveDuration("5"))
	assert.Equal(t, "", keepAliveDuration(""))
}
