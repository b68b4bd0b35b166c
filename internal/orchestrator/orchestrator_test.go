package orchestrator

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quill/internal/config"
	"quill/internal/provider"
)

// newFixture wires a store, registry and orchestrator against a fake
// OpenAI endpoint. The hold channel, when non-nil, keeps requests
// pending until closed or cancelled.
func newFixture(t *testing.T, hold chan struct{}) (*Orchestrator, *config.Store, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so a client disconnect cancels r.Context().
		io.Copy(io.Discard, r.Body)
		if hold != nil {
			select {
			case <-r.Context().Done():
				return
			case <-hold:
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"transformed"}}]}`))
	}))
	t.Cleanup(srv.Close)

	store := config.NewStore(t.TempDir(), config.ModeDev, nil)
	store.Load()
	require.NoError(t, store.SetProvider("openai"))
	require.NoError(t, store.UpdateProvider("openai", config.ProviderSettings{
		"api_key":   "sk-test",
		"api_base":  srv.URL,
		"api_model": "gpt-4o",
	}))

	orch := New(store, provider.NewRegistry(nil), nil)
	t.Cleanup(orch.Shutdown)
	return orch, store, srv
}

func TestRunTransformsText(t *testing.T) {
	orch, _, _ := newFixture(t, nil)

	result, err := orch.Run(context.Background(), "Proofread", "teh text", provider.Options{})
	require.NoError(t, err)
	assert.Equal(t, "transformed", result.Text)
	assert.False(t, result.Cancelled)
}

func TestRunResolvesLegacyActionNames(t *testing.T) {
	orch, _, _ := newFixture(t, nil)

	result, err := orch.Run(context.Background(), "Summarise", "long text", provider.Options{})
	require.NoError(t, err)
	assert.Equal(t, "transformed", result.Text)
}

func TestRunUnknownAction(t *testing.T) {
	orch, _, _ := newFixture(t, nil)

	_, err := orch.Run(context.Background(), "Nonexistent", "text", provider.Options{})
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestRunRejectsOverlap(t *testing.T) {
	hold := make(chan struct{})
	orch, _, _ := newFixture(t, hold)

	firstDone := make(chan error, 1)
	go func() {
		_, err := orch.Run(context.Background(), "Proofread", "first", provider.Options{})
		firstDone <- err
	}()
	time.Sleep(100 * time.Millisecond)

	_, err := orch.Run(context.Background(), "Proofread", "second", provider.Options{})
	assert.ErrorIs(t, err, ErrBusy)

	close(hold)
	select {
	case err := <-firstDone:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("first request did not settle")
	}
}

func TestCancelActive(t *testing.T) {
	orch, _, _ := newFixture(t, make(chan struct{}))

	done := make(chan provider.Result, 1)
	go func() {
		r, _ := orch.Run(context.Background(), "Proofread", "text", provider.Options{})
		done <- r
	}()
	time.Sleep(100 * time.Millisecond)

	orch.CancelActive()

	select {
	case r := <-done:
		assert.True(t, r.Cancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled request did not settle")
	}
}

func TestActiveProviderFollowsSelection(t *testing.T) {
	orch, store, _ := newFixture(t, nil)

	p, err := orch.ActiveProvider()
	require.NoError(t, err)
	assert.Equal(t, "openai", p.ID())

	require.NoError(t, store.SetProvider("anthropic"))
	require.NoError(t, store.UpdateProvider("anthropic", config.ProviderSettings{"api_key": "sk-ant"}))

	p, err = orch.ActiveProvider()
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.ID())
}

func TestRebuildPicksUpNewSettings(t *testing.T) {
	orch, store, _ := newFixture(t, nil)

	// Bind once against the original endpoint.
	_, err := orch.Run(context.Background(), "Proofread", "text", provider.Options{})
	require.NoError(t, err)

	replacement := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"from replacement"}}]}`))
	}))
	t.Cleanup(replacement.Close)

	require.NoError(t, store.UpdateProvider("openai", config.ProviderSettings{
		"api_key":   "sk-test",
		"api_base":  replacement.URL,
		"api_model": "gpt-4o",
	}))
	orch.Rebuild()

	result, err := orch.Run(context.Background(), "Proofread", "text", provider.Options{})
	require.NoError(t, err)
	assert.Equal(t, "from replacement", result.Text)
}

func TestRunFailsWithoutRegisteredProvider(t *testing.T) {
	orch, store, _ := newFixture(t, nil)
	require.NoError(t, store.SetProvider("exotic"))

	_, err := orch.Run(context.Background(), "Proofread", "text", provider.Options{})
	assert.ErrorIs(t, err, provider.ErrUnknownProvider)
}
