package provider

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quill/internal/config"
)

const chatFixture = `{"choices":[{"message":{"content":"fixed text"}}]}`

// newChatServer returns a server answering the OpenAI chat shape. The
// hold channel, when non-nil, blocks the handler until the request
// context is cancelled or the channel is closed.
func newChatServer(t *testing.T, hold chan struct{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body first: the server only notices a client
		// disconnect (and cancels r.Context()) once the body is read.
		io.Copy(io.Discard, r.Body)
		if hold != nil {
			select {
			case <-r.Context().Done():
				return
			case <-hold:
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chatFixture))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestOpenAI(t *testing.T, baseURL string) *OpenAIProvider {
	t.Helper()
	p := NewOpenAIProvider(nil)
	p.LoadConfig(config.ProviderSettings{
		"api_key":   "sk-test",
		"api_base":  baseURL,
		"api_model": "gpt-4o",
	})
	return p
}

func TestGetResponseResetsStaleCancellation(t *testing.T) {
	srv := newChatServer(t, nil)
	p := newTestOpenAI(t, srv.URL)

	// A cancel with nothing in flight must not poison the next request.
	p.Cancel()

	result, err := p.GetResponse(context.Background(), "fix grammar", "teh text", Options{})
	require.NoError(t, err)
	assert.False(t, result.Cancelled)
	assert.Equal(t, "fixed text", result.Text)
}

func TestCancelDuringRequest(t *testing.T) {
	srv := newChatServer(t, make(chan struct{}))
	p := newTestOpenAI(t, srv.URL)

	type outcome struct {
		result Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := p.GetResponse(context.Background(), "", "text", Options{})
		done <- outcome{r, err}
	}()

	// Let the request reach the server before cancelling.
	time.Sleep(100 * time.Millisecond)
	p.Cancel()

	select {
	case out := <-done:
		require.NoError(t, out.err, "cancellation is an outcome, not an error")
		assert.True(t, out.result.Cancelled)
		assert.Empty(t, out.result.Text)
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled request did not settle")
	}
}

func TestConcurrentCancelsAreSafe(t *testing.T) {
	srv := newChatServer(t, make(chan struct{}))
	p := newTestOpenAI(t, srv.URL)

	done := make(chan Result, 1)
	go func() {
		r, _ := p.GetResponse(context.Background(), "", "text", Options{})
		done <- r
	}()
	time.Sleep(50 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Cancel()
		}()
	}
	wg.Wait()

	select {
	case r := <-done:
		assert.True(t, r.Cancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("request did not settle under concurrent cancels")
	}
}

func TestOverlappingRequestRejected(t *testing.T) {
	hold := make(chan struct{})
	srv := newChatServer(t, hold)
	p := newTestOpenAI(t, srv.URL)

	firstDone := make(chan Result, 1)
	go func() {
		r, _ := p.GetResponse(context.Background(), "", "first", Options{})
		firstDone <- r
	}()
	time.Sleep(100 * time.Millisecond)

	_, err := p.GetResponse(context.Background(), "", "second", Options{})
	assert.ErrorIs(t, err, ErrRequestInFlight)

	close(hold)
	select {
	case r := <-firstDone:
		assert.Equal(t, "fixed text", r.Text, "rejection must not disturb the in-flight request")
	case <-time.After(5 * time.Second):
		t.Fatal("first request did not settle")
	}
}

func TestBeforeLoadDrainsInFlightRequest(t *testing.T) {
	srv := newChatServer(t, make(chan struct{}))
	p := newTestOpenAI(t, srv.URL)

	done := make(chan Result, 1)
	go func() {
		r, _ := p.GetResponse(context.Background(), "", "text", Options{})
		done <- r
	}()
	time.Sleep(100 * time.Millisecond)

	p.BeforeLoad()

	select {
	case r := <-done:
		assert.True(t, r.Cancelled, "teardown cancels rather than abandons the request")
	case <-time.After(time.Second):
		t.Fatal("BeforeLoad returned before the request settled")
	}
}

func TestLoadConfigIsRepeatable(t *testing.T) {
	srv := newChatServer(t, nil)
	p := newTestOpenAI(t, srv.URL)

	for i := 0; i < 3; i++ {
		p.LoadConfig(config.ProviderSettings{
			"api_key":   "sk-test",
			"api_base":  srv.URL,
			"api_model": "gpt-4o",
		})
	}

	result, err := p.GetResponse(context.Background(), "", "text", Options{})
	require.NoError(t, err)
	assert.Equal(t, "fixed text", result.Text)
}

func TestSinkDelivery(t *testing.T) {
	t.Run("completed output reaches the sink", func(t *testing.T) {
		srv := newChatServer(t, nil)
		p := newTestOpenAI(t, srv.URL)

		var got []string
		result, err := p.GetResponse(context.Background(), "", "text", Options{
			Sink: func(text string) { got = append(got, text) },
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"fixed text"}, got)
		assert.Equal(t, "fixed text", result.Text)
	})

	t.Run("cancelled request never reaches the sink", func(t *testing.T) {
		srv := newChatServer(t, make(chan struct{}))
		p := newTestOpenAI(t, srv.URL)

		sunk := make(chan string, 1)
		done := make(chan struct{})
		go func() {
			defer close(done)
			p.GetResponse(context.Background(), "", "text", Options{
				Sink: func(text string) { sunk <- text },
			})
		}()
		time.Sleep(100 * time.Millisecond)
		p.Cancel()
		<-done

		select {
		case text := <-sunk:
			t.Fatalf("sink received %q for a cancelled request", text)
		default:
		}
	})
}

func TestErrorKinds(t *testing.T) {
	t.Run("missing key is a configuration error", func(t *testing.T) {
		p := NewOpenAIProvider(nil)
		p.LoadConfig(config.ProviderSettings{})

		_, err := p.GetResponse(context.Background(), "", "text", Options{})
		assert.Equal(t, KindConfigurationInvalid, KindOf(err))
	})

	t.Run("unreachable endpoint is a transport error", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		p := newTestOpenAI(t, url)
		_, err := p.GetResponse(context.Background(), "", "text", Options{})
		assert.Equal(t, KindTransportUnreachable, KindOf(err))
	})

	t.Run("rejected request is an upstream error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":{"message":"invalid key"}}`, http.StatusUnauthorized)
		}))
		t.Cleanup(srv.Close)

		p := newTestOpenAI(t, srv.URL)
		_, err := p.GetResponse(context.Background(), "", "text", Options{})
		require.Equal(t, KindUpstreamRejected, KindOf(err))
		assert.Contains(t, err.Error(), "401")
	})

	t.Run("plain errors have no kind", func(t *testing.T) {
		assert.Equal(t, ErrorKind(0), KindOf(nil))
		assert.Equal(t, ErrorKind(0), KindOf(context.Canceled))
	})
}
