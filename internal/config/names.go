package config

// Display-name handling. Internal names are the persistence keys;
// display names exist only for the UI. The mapping is total in both
// directions over the registered provider set.

// DisplayName returns the display name for an internal provider name.
// Unknown names map to themselves so the translation is total.
func DisplayName(internal string) string {
	if s, ok := providerSchemas[internal]; ok {
		return s.DisplayName
	}
	return internal
}

// InternalName returns the internal name for a provider display name.
// Unknown display names map to themselves.
func InternalName(display string) string {
	for id, s := range providerSchemas {
		if s.DisplayName == display {
			return id
		}
	}
	return display
}

// providerAliases maps identifiers earlier releases persisted to the
// current internal names.
var providerAliases = map[string]string{
	"google":            "gemini",
	"openai_compatible": "openai",
}

// CanonicalProviderID resolves legacy provider identifiers to their
// current internal name. Unknown IDs pass through unchanged.
func CanonicalProviderID(id string) string {
	if canonical, ok := providerAliases[id]; ok {
		return canonical
	}
	return id
}

// actionAliases maps action names persisted by earlier releases to the
// canonical built-in names. Migration runs before merge so an aliased
// entry overlays the canonical action instead of duplicating it.
var actionAliases = map[string]string{
	"Summarise":         "Summary",
	"Summarize":         "Summary",
	"Keypoints":         "Key Points",
	"Key points":        "Key Points",
	"Make Friendly":     "Friendly",
	"Make Professional": "Professional",
}

// CanonicalActionName resolves legacy action names to their canonical
// form. Names without an alias pass through unchanged.
func CanonicalActionName(name string) string {
	if canonical, ok := actionAliases[name]; ok {
		return canonical
	}
	return name
}
