package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quill/internal/config"
)

func TestRegistryBuildsEveryKnownProvider(t *testing.T) {
	r := NewRegistry(nil)

	for _, id := range config.ProviderIDs() {
		p, err := r.New(id, config.ProviderSettings{})
		require.NoError(t, err, "provider %s", id)
		assert.Equal(t, id, p.ID())
	}
}

func TestRegistryIDsMatchSchemas(t *testing.T) {
	r := NewRegistry(nil)
	assert.Equal(t, config.ProviderIDs(), r.IDs(),
		"every schema-declared provider has a backend and vice versa")
}

func TestRegistryResolvesAliases(t *testing.T) {
	r := NewRegistry(nil)

	p, err := r.New("google", config.ProviderSettings{})
	require.NoError(t, err)
	assert.Equal(t, "gemini", p.ID())

	assert.True(t, r.Has("openai_compatible"))
}

func TestRegistryUnknownProvider(t *testing.T) {
	r := NewRegistry(nil)

	_, err := r.New("exotic", config.ProviderSettings{})
	assert.ErrorIs(t, err, ErrUnknownProvider)
	assert.False(t, r.Has("exotic"))
}
