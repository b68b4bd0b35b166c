package config

import (
	"encoding/json"
	"sort"

	"go.uber.org/zap"
)

// Merger reconciles persisted user data against the canonical
// defaults. Reconciliation never fails: whatever shape the persisted
// blob is in, the result is a complete UnifiedSettings where every
// declared system field, provider setting, and canonical action is
// present.
type Merger struct {
	log *zap.Logger
}

// NewMerger returns a Merger. A nil logger disables warning output.
func NewMerger(log *zap.Logger) *Merger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Merger{log: log.Named("merge")}
}

// rawDocument is the loosely-typed shape of the persisted file. Values
// stay untyped so malformed scalars can be detected and replaced
// instead of failing the whole decode.
type rawDocument struct {
	System    map[string]any            `json:"system"`
	Actions   map[string]map[string]any `json:"actions"`
	Providers map[string]map[string]any `json:"providers"`
}

// Reconcile merges a persisted blob (possibly empty or nil) with the
// given defaults and returns a fully populated UnifiedSettings.
//
// The merge is idempotent: reconciling the serialized result of a
// reconcile yields the same settings.
func (m *Merger) Reconcile(persisted []byte, defaults UnifiedSettings) UnifiedSettings {
	result := defaults.Clone()

	if len(persisted) == 0 {
		return result
	}

	var raw rawDocument
	if err := json.Unmarshal(persisted, &raw); err != nil {
		m.log.Warn("persisted settings are not valid JSON, using defaults",
			zap.Error(err))
		return result
	}

	result.System = m.mergeSystem(raw.System, result.System)
	result.Actions = m.mergeActions(raw.Actions, result.Actions)
	result.Providers = m.mergeProviders(raw.Providers, result.Providers)
	return result
}

// mergeSystem overlays persisted scalar fields onto the default system
// config. Unknown fields are dropped; fields of the wrong type keep
// their default and produce a warning.
func (m *Merger) mergeSystem(raw map[string]any, base SystemConfig) SystemConfig {
	if raw == nil {
		return base
	}

	m.overlayString(raw, "provider", "system", &base.Provider)
	m.overlayString(raw, "hotkey", "system", &base.Hotkey)
	m.overlayString(raw, "theme", "system", &base.Theme)
	m.overlayString(raw, "color_mode", "system", &base.ColorMode)
	m.overlayString(raw, "language", "system", &base.Language)
	m.overlayString(raw, "run_mode", "system", &base.RunMode)
	m.overlayBool(raw, "auto_update", "system", &base.AutoUpdate)
	m.overlayBool(raw, "start_on_boot", "system", &base.StartOnBoot)

	base.Provider = CanonicalProviderID(base.Provider)
	return base
}

// mergeActions migrates legacy action names, overlays persisted fields
// onto canonical actions, and appends custom actions. Canonical action
// names are identities; a merge never renames them.
func (m *Merger) mergeActions(raw map[string]map[string]any, base map[string]ActionConfig) map[string]ActionConfig {
	if raw == nil {
		return base
	}

	// Sorted iteration keeps the result deterministic when several
	// persisted aliases collapse onto one canonical name.
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, persistedName := range names {
		fields := raw[persistedName]
		if fields == nil {
			continue
		}

		name := CanonicalActionName(persistedName)
		if name != persistedName {
			m.log.Info("migrated legacy action name",
				zap.String("from", persistedName),
				zap.String("to", name))
		}

		action := base[name] // zero value for custom actions
		m.overlayString(fields, "prefix", "action "+name, &action.Prefix)
		m.overlayString(fields, "instruction", "action "+name, &action.Instruction)
		m.overlayString(fields, "icon", "action "+name, &action.Icon)
		m.overlayBool(fields, "open_in_window", "action "+name, &action.OpenInWindow)
		base[name] = action
	}
	return base
}

// mergeProviders overlays persisted values onto each registered
// provider's declared defaults. Keys a provider does not declare are
// dropped. Persisted providers with no registry entry are preserved
// verbatim so unconfigured or experimental providers round-trip, but
// they are never treated as configured.
func (m *Merger) mergeProviders(raw map[string]map[string]any, base map[string]ProviderSettings) map[string]ProviderSettings {
	if raw == nil {
		return base
	}

	ids := make([]string, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, persistedID := range ids {
		values := raw[persistedID]
		if values == nil {
			continue
		}

		id := CanonicalProviderID(persistedID)
		schema, known := providerSchemas[id]
		if !known {
			// Unknown provider: round-trip untouched.
			kept := make(ProviderSettings, len(values))
			for k, v := range values {
				if s, ok := v.(string); ok {
					kept[k] = s
				} else {
					m.log.Warn("dropping non-string value of unknown provider",
						zap.String("provider", persistedID),
						zap.String("key", k))
				}
			}
			base[persistedID] = kept
			continue
		}

		merged := base[id]
		if merged == nil {
			merged = schema.Defaults()
		}
		for key, value := range values {
			spec, declared := schema.Spec(key)
			if !declared {
				continue // forward-compatible ignore
			}
			s, ok := value.(string)
			if !ok {
				m.log.Warn("replacing malformed provider setting with default",
					zap.String("provider", id),
					zap.String("key", key))
				s = spec.Default
			}
			merged[key] = s
		}
		base[id] = merged
	}
	return base
}

func (m *Merger) overlayString(raw map[string]any, key, scope string, dst *string) {
	value, present := raw[key]
	if !present {
		return
	}
	s, ok := value.(string)
	if !ok {
		m.log.Warn("replacing malformed setting with default",
			zap.String("scope", scope),
			zap.String("key", key))
		return
	}
	*dst = s
}

func (m *Merger) overlayBool(raw map[string]any, key, scope string, dst *bool) {
	value, present := raw[key]
	if !present {
		return
	}
	b, ok := value.(bool)
	if !ok {
		m.log.Warn("replacing malformed setting with default",
			zap.String("scope", scope),
			zap.String("key", key))
		return
	}
	*dst = b
}
