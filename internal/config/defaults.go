package config

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed actions.yaml
var defaultActionsYAML []byte

type actionDocument struct {
	Prefix       string `yaml:"prefix"`
	Instruction  string `yaml:"instruction"`
	Icon         string `yaml:"icon"`
	OpenInWindow bool   `yaml:"open_in_window"`
}

// DefaultSystem returns the default system configuration.
func DefaultSystem() SystemConfig {
	return SystemConfig{
		Provider:   "gemini",
		Hotkey:     "ctrl+space",
		Theme:      "gradient",
		ColorMode:  "auto",
		Language:   "en",
		RunMode:    ModeDev,
		AutoUpdate: true,
	}
}

// DefaultActions returns a fresh copy of the canonical built-in action
// set. The set is declared in actions.yaml and embedded at build time.
func DefaultActions() map[string]ActionConfig {
	var doc map[string]actionDocument
	if err := yaml.Unmarshal(defaultActionsYAML, &doc); err != nil {
		// The embedded document is part of the binary; failing to parse
		// it is a build defect, not a runtime condition.
		panic(fmt.Sprintf("config: embedded action defaults are invalid: %v", err))
	}

	actions := make(map[string]ActionConfig, len(doc))
	for name, a := range doc {
		actions[name] = ActionConfig{
			Prefix:       a.Prefix,
			Instruction:  a.Instruction,
			Icon:         a.Icon,
			OpenInWindow: a.OpenInWindow,
		}
	}
	return actions
}

// DefaultProviders returns every registered provider's settings at
// their declared defaults.
func DefaultProviders() map[string]ProviderSettings {
	providers := make(map[string]ProviderSettings, len(providerSchemas))
	for id, schema := range providerSchemas {
		providers[id] = schema.Defaults()
	}
	return providers
}

// Defaults returns the complete canonical default configuration.
func Defaults() UnifiedSettings {
	return UnifiedSettings{
		System:    DefaultSystem(),
		Actions:   DefaultActions(),
		Providers: DefaultProviders(),
	}
}
