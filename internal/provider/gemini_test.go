package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"quill/internal/config"
)

func TestGeminiRebindAndTeardown(t *testing.T) {
	p := NewGeminiProvider(nil)

	// Rebinding replaces the SDK handle; the old one is just dropped.
	p.LoadConfig(config.ProviderSettings{"api_key": "g-key"})
	p.LoadConfig(config.ProviderSettings{"api_key": "other-key"})

	p.BeforeLoad()
	_, err := p.GetResponse(context.Background(), "", "text", Options{})
	assert.Equal(t, KindConfigurationInvalid, KindOf(err),
		"a torn-down instance reports the missing client, not a stale one")
}

func TestGeminiMissingKey(t *testing.T) {
	p := NewGeminiProvider(nil)
	p.LoadConfig(config.ProviderSettings{})

	_, err := p.GetResponse(context.Background(), "", "text", Options{})
	assert.Equal(t, KindConfigurationInvalid, KindOf(err))
}
