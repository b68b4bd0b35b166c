package provider

import (
	"context"
	"sync"
	"sync/atomic"

	"quill/internal/config"
)

// Result is the outcome of one generation request. Cancelled is an
// explicit discriminator: Text == "" with Cancelled == false means the
// backend genuinely returned nothing, while Cancelled == true means
// the caller aborted the request. Callers must check Cancelled instead
// of comparing Text against the empty string.
type Result struct {
	Text      string
	Cancelled bool
}

// Options controls result delivery for one request.
type Options struct {
	// Sink, when non-nil, receives the generated text as it becomes
	// available (push delivery for in-place replacement flows). The
	// sink is never invoked for a cancelled request. GetResponse
	// returns the accumulated text either way.
	Sink func(text string)
}

// Provider is the uniform capability set every backend implements.
//
// Lifecycle: idle → (LoadConfig: BeforeLoad, bind, AfterLoad) → ready
// → (GetResponse) → in-flight → ready. BeforeLoad may be invoked from
// ready or in-flight; it requests cancellation of any in-flight call
// and waits for it to settle before tearing the client down.
type Provider interface {
	// ID returns the internal provider name (the registry tag).
	ID() string

	// LoadConfig binds the instance to a settings snapshot. Callable
	// repeatedly and idempotent; it brackets the rebind with
	// BeforeLoad and AfterLoad so at most one live client exists.
	LoadConfig(settings config.ProviderSettings)

	// BeforeLoad tears down any existing client, draining an
	// in-flight request first.
	BeforeLoad()

	// AfterLoad constructs the client from the bound settings.
	AfterLoad()

	// GetResponse executes one generation request. At entry it
	// unconditionally resets any pending cancellation, so a cancel
	// issued during a previous request never suppresses a new one.
	// A request cancelled mid-flight yields Result{Cancelled: true}
	// and a nil error.
	GetResponse(ctx context.Context, systemInstruction, prompt string, opts Options) (Result, error)

	// Cancel requests cancellation of the current request. Safe to
	// call from any goroutine at any time; never blocks.
	Cancel()
}

// lifecycle carries the per-instance request/cancellation state shared
// by all backends. The cancellation flag is atomic so Cancel may race
// freely with an executing request.
type lifecycle struct {
	cancelled atomic.Bool

	mu    sync.Mutex
	done  chan struct{}      // non-nil while a request is in flight
	abort context.CancelFunc // aborts the in-flight request's context
}

// begin claims the single in-flight slot, resets the cancellation
// flag, and derives a request context that Cancel aborts. The returned
// end func releases the slot and must be deferred by the caller.
func (l *lifecycle) begin(ctx context.Context) (context.Context, func(), error) {
	l.mu.Lock()
	if l.done != nil {
		l.mu.Unlock()
		return nil, nil, ErrRequestInFlight
	}
	// Reset before anything else: a cancellation requested during a
	// previous request must never suppress this one.
	l.cancelled.Store(false)
	reqCtx, abort := context.WithCancel(ctx)
	done := make(chan struct{})
	l.done = done
	l.abort = abort
	l.mu.Unlock()

	end := func() {
		l.mu.Lock()
		l.done = nil
		l.abort = nil
		l.mu.Unlock()
		abort()
		close(done)
	}
	return reqCtx, end, nil
}

// Cancel sets the cancellation flag and aborts the in-flight request
// context, if any. The flag is set first so error paths observing the
// aborted context classify the outcome as cancelled.
func (l *lifecycle) Cancel() {
	l.cancelled.Store(true)
	l.mu.Lock()
	abort := l.abort
	l.mu.Unlock()
	if abort != nil {
		abort()
	}
}

func (l *lifecycle) cancelRequested() bool { return l.cancelled.Load() }

// drain requests cancellation and blocks until any in-flight request
// settles. BeforeLoad uses it so a client is never torn down under an
// active call.
func (l *lifecycle) drain() {
	l.mu.Lock()
	done := l.done
	abort := l.abort
	l.mu.Unlock()
	if done == nil {
		return
	}
	l.cancelled.Store(true)
	if abort != nil {
		abort()
	}
	<-done
}

// finish applies the trailing cancellation check and sink delivery
// shared by every backend: a cancel that lands after the backend
// answered still wins, and the sink only sees completed output.
func (l *lifecycle) finish(text string, opts Options) Result {
	if l.cancelRequested() {
		return Result{Cancelled: true}
	}
	if opts.Sink != nil {
		opts.Sink(text)
	}
	return Result{Text: text}
}
