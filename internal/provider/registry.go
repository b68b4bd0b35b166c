package provider

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"quill/internal/config"
)

// Factory builds an unbound provider instance.
type Factory func(log *zap.Logger) Provider

// Registry maps internal provider names to factories. The set is
// closed at construction; unknown names are a caller error, never a
// panic.
type Registry struct {
	log       *zap.Logger
	factories map[string]Factory
}

// NewRegistry returns a registry holding every built-in backend.
func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		log: log,
		factories: map[string]Factory{
			"gemini":    func(l *zap.Logger) Provider { return NewGeminiProvider(l) },
			"openai":    func(l *zap.Logger) Provider { return NewOpenAIProvider(l) },
			"anthropic": func(l *zap.Logger) Provider { return NewAnthropicProvider(l) },
			"mistral":   func(l *zap.Logger) Provider { return NewMistralProvider(l) },
			"ollama":    func(l *zap.Logger) Provider { return NewOllamaProvider(l) },
		},
	}
}

// New instantiates the named provider and binds it to the given
// settings snapshot.
func (r *Registry) New(id string, settings config.ProviderSettings) (Provider, error) {
	id = config.CanonicalProviderID(id)
	factory, ok := r.factories[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	p := factory(r.log)
	p.LoadConfig(settings)
	return p, nil
}

// Has reports whether the registry can build the named provider.
func (r *Registry) Has(id string) bool {
	_, ok := r.factories[config.CanonicalProviderID(id)]
	return ok
}

// IDs returns the registered provider names in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
