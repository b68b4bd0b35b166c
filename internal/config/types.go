// Package config owns the unified settings model: canonical defaults,
// reconciliation of persisted user data against those defaults, and the
// durable settings store the rest of the application reads through.
package config

// SystemConfig holds the global, provider-independent options.
type SystemConfig struct {
	// Provider is the internal ID of the selected backend. It must name
	// a registered provider; anything else leaves the application in
	// the unconfigured state.
	Provider string `json:"provider"`

	Hotkey    string `json:"hotkey"`
	Theme     string `json:"theme"`
	ColorMode string `json:"color_mode"` // auto, light, dark
	Language  string `json:"language"`

	// RunMode is the execution-mode marker. It is stamped by the store
	// at load time and is not a user-editable field.
	RunMode string `json:"run_mode"`

	AutoUpdate  bool `json:"auto_update"`
	StartOnBoot bool `json:"start_on_boot"`
}

// ActionConfig describes one user-invokable text operation.
type ActionConfig struct {
	// Prefix is prepended to the selected text to form the prompt.
	Prefix string `json:"prefix"`
	// Instruction is the system instruction sent alongside the prompt.
	Instruction string `json:"instruction"`
	// Icon is a cosmetic reference resolved by the UI layer.
	Icon string `json:"icon"`
	// OpenInWindow marks actions whose result is shown in a window
	// instead of replacing the selection.
	OpenInWindow bool `json:"open_in_window"`
}

// ProviderSettings maps a provider's setting names to their values.
// After reconciliation every key the provider's schema declares is
// present, possibly empty.
type ProviderSettings map[string]string

// UnifiedSettings aggregates all configuration. It is the sole unit of
// persistence and the sole object the Store owns.
type UnifiedSettings struct {
	System    SystemConfig                `json:"system"`
	Actions   map[string]ActionConfig     `json:"actions"`
	Providers map[string]ProviderSettings `json:"providers"`
}

// Clone returns a deep copy. Accessors hand out clones so callers can
// never alias the store's live maps.
func (u UnifiedSettings) Clone() UnifiedSettings {
	out := UnifiedSettings{
		System:    u.System,
		Actions:   make(map[string]ActionConfig, len(u.Actions)),
		Providers: make(map[string]ProviderSettings, len(u.Providers)),
	}
	for name, a := range u.Actions {
		out.Actions[name] = a
	}
	for id, p := range u.Providers {
		cp := make(ProviderSettings, len(p))
		for k, v := range p {
			cp[k] = v
		}
		out.Providers[id] = cp
	}
	return out
}
