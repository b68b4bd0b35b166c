package config

import "sort"

// SettingSpec declares one setting a provider understands.
type SettingSpec struct {
	Name     string
	Default  string
	Required bool
}

// ProviderSchema is a provider's declared configuration surface. The
// merger consults it to fill missing keys and drop undeclared ones.
type ProviderSchema struct {
	DisplayName string
	Settings    []SettingSpec

	// RequiresRuntime marks backends that depend on an external local
	// runtime; configuration alone is not enough to count as
	// configured, the runtime must answer.
	RequiresRuntime bool
}

// Spec returns the spec for a setting name, if declared.
func (s ProviderSchema) Spec(name string) (SettingSpec, bool) {
	for _, spec := range s.Settings {
		if spec.Name == name {
			return spec, true
		}
	}
	return SettingSpec{}, false
}

// Defaults returns a fresh ProviderSettings holding every declared
// setting at its default value.
func (s ProviderSchema) Defaults() ProviderSettings {
	out := make(ProviderSettings, len(s.Settings))
	for _, spec := range s.Settings {
		out[spec.Name] = spec.Default
	}
	return out
}

// Default models offered when a provider has been chosen but the user
// has not picked a model yet.
const (
	DefaultGeminiModel    = "gemini-2.0-flash"
	DefaultOpenAIModel    = "gpt-4o"
	DefaultAnthropicModel = "claude-3-5-sonnet-20241022"
	DefaultMistralModel   = "mistral-small-latest"
)

// providerSchemas is the closed set of known backends. The keys are
// internal names and double as the persistence keys, so UI-level
// renames of display names never invalidate stored configuration.
var providerSchemas = map[string]ProviderSchema{
	"gemini": {
		DisplayName: "Gemini (Recommended)",
		Settings: []SettingSpec{
			{Name: "api_key", Required: true},
			{Name: "model_name", Default: DefaultGeminiModel, Required: true},
		},
	},
	"openai": {
		DisplayName: "OpenAI Compatible (For Experts)",
		Settings: []SettingSpec{
			{Name: "api_key", Required: true},
			{Name: "api_base", Default: "https://api.openai.com/v1"},
			{Name: "api_organisation"},
			{Name: "api_project"},
			{Name: "api_model", Default: DefaultOpenAIModel, Required: true},
		},
	},
	"anthropic": {
		DisplayName: "Anthropic (Claude)",
		Settings: []SettingSpec{
			{Name: "api_key", Required: true},
			{Name: "api_model", Default: DefaultAnthropicModel, Required: true},
		},
	},
	"mistral": {
		DisplayName: "Mistral AI",
		Settings: []SettingSpec{
			{Name: "api_key", Required: true},
			{Name: "api_base", Default: "https://api.mistral.ai/v1"},
			{Name: "api_model", Default: DefaultMistralModel, Required: true},
		},
	},
	"ollama": {
		DisplayName: "Ollama (For Experts)",
		Settings: []SettingSpec{
			{Name: "api_base", Default: "http://localhost:11434", Required: true},
			{Name: "api_model", Required: true},
			{Name: "keep_alive", Default: "5"},
		},
		RequiresRuntime: true,
	},
}

// SchemaFor returns the declared schema for an internal provider name.
func SchemaFor(id string) (ProviderSchema, bool) {
	s, ok := providerSchemas[id]
	return s, ok
}

// ProviderIDs returns the internal names of all known providers,
// sorted for deterministic iteration.
func ProviderIDs() []string {
	ids := make([]string, 0, len(providerSchemas))
	for id := range providerSchemas {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
