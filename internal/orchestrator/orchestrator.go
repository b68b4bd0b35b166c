// Package orchestrator connects the settings store to the provider
// backends and runs text-transformation requests end to end.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quill/internal/config"
	"quill/internal/provider"
)

// ErrBusy is returned when a transformation is already running.
var ErrBusy = errors.New("a request is already running")

// ErrUnknownAction is returned when the named action is not configured.
var ErrUnknownAction = config.ErrUnknownAction

// Orchestrator owns the active provider instance. The instance is
// rebuilt lazily whenever the selected provider or its settings change,
// so configuration edits take effect on the next request without a
// restart.
type Orchestrator struct {
	log      *zap.Logger
	store    *config.Store
	registry *provider.Registry

	running atomic.Bool

	mu       sync.Mutex
	activeID string
	active   provider.Provider
}

func New(store *config.Store, registry *provider.Registry, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		log:      log.Named("orchestrator"),
		store:    store,
		registry: registry,
	}
}

// ActiveProvider returns the provider currently selected in settings,
// building or rebinding it as needed.
func (o *Orchestrator) ActiveProvider() (provider.Provider, error) {
	id := o.store.Provider()

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active != nil && o.activeID == id {
		return o.active, nil
	}
	if o.active != nil {
		// Selection changed; drain and drop the old instance.
		o.active.BeforeLoad()
		o.active = nil
		o.activeID = ""
	}

	settings, _ := o.store.ProviderConfig(id)
	p, err := o.registry.New(id, settings)
	if err != nil {
		return nil, err
	}
	o.log.Info("provider bound", zap.String("provider", id))
	o.active = p
	o.activeID = id
	return p, nil
}

// Rebuild rebinds the active provider to the store's current settings.
// Called when the settings file changes on disk.
func (o *Orchestrator) Rebuild() {
	o.mu.Lock()
	p, id := o.active, o.activeID
	o.mu.Unlock()
	if p == nil {
		return
	}
	if o.store.Provider() != id {
		// The selection itself changed; the next ActiveProvider call
		// builds the new backend.
		return
	}
	settings, _ := o.store.ProviderConfig(id)
	p.LoadConfig(settings)
	o.log.Info("provider settings reloaded", zap.String("provider", id))
}

// Run executes the named action against the given text and returns the
// transformed result. Only one request runs at a time; a second call
// while one is in flight returns ErrBusy.
func (o *Orchestrator) Run(ctx context.Context, action, text string, opts provider.Options) (provider.Result, error) {
	name := config.CanonicalActionName(action)
	cfg, ok := o.store.Action(name)
	if !ok {
		return provider.Result{}, fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}

	if !o.running.CompareAndSwap(false, true) {
		return provider.Result{}, ErrBusy
	}
	defer o.running.Store(false)

	p, err := o.ActiveProvider()
	if err != nil {
		return provider.Result{}, err
	}

	requestID := uuid.NewString()
	log := o.log.With(zap.String("request_id", requestID),
		zap.String("action", name), zap.String("provider", p.ID()))
	log.Info("request started", zap.Int("input_chars", len(text)))

	start := time.Now()
	result, err := p.GetResponse(ctx, cfg.Instruction, cfg.Prefix+text, opts)
	elapsed := time.Since(start)
	switch {
	case err != nil:
		log.Warn("request failed", zap.Duration("elapsed", elapsed), zap.Error(err))
	case result.Cancelled:
		log.Info("request cancelled", zap.Duration("elapsed", elapsed))
	default:
		log.Info("request completed", zap.Duration("elapsed", elapsed),
			zap.Int("output_chars", len(result.Text)))
	}
	return result, err
}

// CancelActive requests cancellation of the running request, if any.
// Safe to call from any goroutine.
func (o *Orchestrator) CancelActive() {
	o.mu.Lock()
	p := o.active
	o.mu.Unlock()
	if p != nil {
		p.Cancel()
	}
}

// Shutdown drains the active provider so no request is left in flight.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	p := o.active
	o.active = nil
	o.activeID = ""
	o.mu.Unlock()
	if p != nil {
		p.BeforeLoad()
	}
}
