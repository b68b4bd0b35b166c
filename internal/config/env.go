package config

import "os"

// envKeyVars maps provider IDs to the environment variable that can
// supply the API key. Env keys apply at read time and are never
// written back to the settings file.
var envKeyVars = map[string]string{
	"gemini":    "GEMINI_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"mistral":   "MISTRAL_API_KEY",
}

// applyEnvOverrides overlays a provider's API key from the environment
// onto the given settings copy. A set variable wins over the persisted
// value.
func applyEnvOverrides(id string, settings ProviderSettings) ProviderSettings {
	name, ok := envKeyVars[id]
	if !ok {
		return settings
	}
	if value := os.Getenv(name); value != "" {
		settings["api_key"] = value
	}
	return settings
}
