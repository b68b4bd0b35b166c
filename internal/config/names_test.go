package config

import "testing"

func TestNameTranslationIsTotal(t *testing.T) {
	for _, id := range ProviderIDs() {
		display := DisplayName(id)
		if display == "" {
			t.Errorf("provider %q has no display name", id)
		}
		if back := InternalName(display); back != id {
			t.Errorf("InternalName(DisplayName(%q)) = %q, want identity", id, back)
		}
	}
}

func TestNameTranslationUnknownPassthrough(t *testing.T) {
	if got := DisplayName("exotic"); got != "exotic" {
		t.Errorf("DisplayName(exotic) = %q, want passthrough", got)
	}
	if got := InternalName("Exotic Cloud"); got != "Exotic Cloud" {
		t.Errorf("InternalName(Exotic Cloud) = %q, want passthrough", got)
	}
}

func TestCanonicalProviderID(t *testing.T) {
	cases := map[string]string{
		"google":            "gemini",
		"openai_compatible": "openai",
		"gemini":            "gemini",
		"exotic":            "exotic",
	}
	for in, want := range cases {
		if got := CanonicalProviderID(in); got != want {
			t.Errorf("CanonicalProviderID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCanonicalActionName(t *testing.T) {
	cases := map[string]string{
		"Summarise":         "Summary",
		"Summarize":         "Summary",
		"Keypoints":         "Key Points",
		"Key points":        "Key Points",
		"Make Friendly":     "Friendly",
		"Make Professional": "Professional",
		"Proofread":         "Proofread",
		"Shorten":           "Shorten",
	}
	for in, want := range cases {
		if got := CanonicalActionName(in); got != want {
			t.Errorf("CanonicalActionName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCanonicalActionNamesAreFixpoints(t *testing.T) {
	for name := range DefaultActions() {
		if got := CanonicalActionName(name); got != name {
			t.Errorf("canonical name %q is not a fixpoint (maps to %q)", name, got)
		}
	}
}
