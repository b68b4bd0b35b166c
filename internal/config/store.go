package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Execution modes. The mode is supplied by the caller at construction
// and fixes the storage namespace for the process lifetime.
const (
	ModeDev        = "dev"
	ModeBuildDev   = "build-dev"
	ModeBuildFinal = "build-final"
)

// Data file names per execution-mode namespace.
const (
	dataFile    = "data.json"
	dataDevFile = "data_dev.json"
)

// ErrUnknownAction is returned when a mutator names an action that
// does not exist.
var ErrUnknownAction = errors.New("unknown action")

// RuntimeProbe reports whether a provider's external runtime is
// reachable. Used for backends that need a local service (ollama)
// before they count as configured.
type RuntimeProbe func(id string, settings ProviderSettings) bool

// Store owns the reconciled UnifiedSettings for the process lifetime.
//
// All mutators update memory first and then persist; a failed save is
// logged and reported but never rolls the in-memory state back, so the
// live session keeps working when the disk does not.
type Store struct {
	log    *zap.Logger
	merger *Merger
	mode   string
	file   string
	probe  RuntimeProbe

	mu       sync.Mutex
	settings UnifiedSettings
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithRuntimeProbe installs the probe used by HasProvidersConfigured
// for runtime-backed providers.
func WithRuntimeProbe(probe RuntimeProbe) StoreOption {
	return func(s *Store) { s.probe = probe }
}

// NewStore creates a store rooted at baseDir for the given execution
// mode. Unknown modes fall back to the dev namespace.
func NewStore(baseDir, mode string, log *zap.Logger, opts ...StoreOption) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("store")

	name := dataDevFile
	if mode == ModeBuildFinal {
		name = dataFile
	}
	if mode != ModeDev && mode != ModeBuildDev && mode != ModeBuildFinal {
		log.Warn("unknown execution mode, using dev namespace", zap.String("mode", mode))
		mode = ModeDev
	}

	s := &Store{
		log:      log,
		merger:   NewMerger(log),
		mode:     mode,
		file:     filepath.Join(baseDir, name),
		settings: Defaults(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DataFile returns the path of the persisted settings document.
func (s *Store) DataFile() string { return s.file }

// Mode returns the execution mode fixed at construction.
func (s *Store) Mode() string { return s.mode }

// Load reads the persisted blob (absent on first run), reconciles it
// against the defaults, and caches the result. Load never fails hard:
// an unreadable or malformed file degrades to defaults with a warning.
func (s *Store) Load() UnifiedSettings {
	var persisted []byte
	data, err := os.ReadFile(s.file)
	switch {
	case err == nil:
		persisted = data
	case os.IsNotExist(err):
		s.log.Debug("no settings file, using defaults", zap.String("path", s.file))
	default:
		s.log.Warn("could not read settings file, using defaults",
			zap.String("path", s.file), zap.Error(err))
	}

	settings := s.merger.Reconcile(persisted, Defaults())
	settings.System.RunMode = s.mode

	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	return settings.Clone()
}

// Reload re-reads the persisted file. Used when the file changed
// outside this process.
func (s *Store) Reload() UnifiedSettings { return s.Load() }

// Save serializes the current settings and writes them atomically:
// the document goes to a temp file in the same directory and is
// renamed over the previous one, so a crash mid-write never corrupts
// the last valid file. The in-memory state stays authoritative whether
// or not the write succeeds.
func (s *Store) Save() error {
	s.mu.Lock()
	s.settings.System.RunMode = s.mode
	data, err := json.MarshalIndent(s.settings, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	dir := filepath.Dir(s.file)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".data-*.json")
	if err != nil {
		return fmt.Errorf("create temp settings file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close settings file: %w", err)
	}
	if err := os.Rename(tmpName, s.file); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace settings file: %w", err)
	}
	return nil
}

// saveAfterMutation persists and downgrades a failure to a warning;
// durability is best effort, session correctness is not.
func (s *Store) saveAfterMutation(what string) error {
	if err := s.Save(); err != nil {
		s.log.Warn("settings mutation applied in memory but not persisted",
			zap.String("mutation", what), zap.Error(err))
		return err
	}
	return nil
}

// Settings returns a snapshot of the full settings.
func (s *Store) Settings() UnifiedSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.Clone()
}

//
// System accessors
//

// Provider returns the selected provider's internal name.
func (s *Store) Provider() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.System.Provider
}

// SetProvider selects a provider and persists the change.
func (s *Store) SetProvider(id string) error {
	s.mu.Lock()
	s.settings.System.Provider = CanonicalProviderID(id)
	s.mu.Unlock()
	return s.saveAfterMutation("set provider")
}

func (s *Store) Hotkey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.System.Hotkey
}

func (s *Store) SetHotkey(hotkey string) error {
	s.mu.Lock()
	s.settings.System.Hotkey = hotkey
	s.mu.Unlock()
	return s.saveAfterMutation("set hotkey")
}

func (s *Store) Theme() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.System.Theme
}

func (s *Store) SetTheme(theme string) error {
	s.mu.Lock()
	s.settings.System.Theme = theme
	s.mu.Unlock()
	return s.saveAfterMutation("set theme")
}

func (s *Store) ColorMode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.System.ColorMode
}

func (s *Store) SetColorMode(mode string) error {
	s.mu.Lock()
	s.settings.System.ColorMode = mode
	s.mu.Unlock()
	return s.saveAfterMutation("set color mode")
}

func (s *Store) Language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.System.Language
}

func (s *Store) SetLanguage(lang string) error {
	s.mu.Lock()
	s.settings.System.Language = lang
	s.mu.Unlock()
	return s.saveAfterMutation("set language")
}

func (s *Store) AutoUpdate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.System.AutoUpdate
}

func (s *Store) SetAutoUpdate(on bool) error {
	s.mu.Lock()
	s.settings.System.AutoUpdate = on
	s.mu.Unlock()
	return s.saveAfterMutation("set auto update")
}

func (s *Store) StartOnBoot() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.System.StartOnBoot
}

func (s *Store) SetStartOnBoot(on bool) error {
	s.mu.Lock()
	s.settings.System.StartOnBoot = on
	s.mu.Unlock()
	return s.saveAfterMutation("set start on boot")
}

//
// Action accessors
//

// Actions returns a copy of the action map.
func (s *Store) Actions() map[string]ActionConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]ActionConfig, len(s.settings.Actions))
	for name, a := range s.settings.Actions {
		out[name] = a
	}
	return out
}

// Action returns one action by name.
func (s *Store) Action(name string) (ActionConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.settings.Actions[name]
	return a, ok
}

// UpdateAction adds or replaces an action, then persists.
func (s *Store) UpdateAction(name string, action ActionConfig) error {
	s.mu.Lock()
	s.settings.Actions[CanonicalActionName(name)] = action
	s.mu.Unlock()
	return s.saveAfterMutation("update action " + name)
}

// RemoveAction deletes an action, then persists. Removing an action
// that does not exist returns ErrUnknownAction.
func (s *Store) RemoveAction(name string) error {
	name = CanonicalActionName(name)
	s.mu.Lock()
	if _, ok := s.settings.Actions[name]; !ok {
		s.mu.Unlock()
		s.log.Warn("action not found", zap.String("action", name))
		return fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}
	delete(s.settings.Actions, name)
	s.mu.Unlock()
	return s.saveAfterMutation("remove action " + name)
}

//
// Provider accessors
//

// ProviderConfig returns a copy of one provider's settings with any
// environment-supplied API key overlaid.
func (s *Store) ProviderConfig(id string) (ProviderSettings, bool) {
	raw, ok := s.RawProviderConfig(id)
	if !ok {
		return nil, false
	}
	return applyEnvOverrides(id, raw), true
}

// RawProviderConfig returns a copy of one provider's settings exactly
// as persisted, without the environment overlay. Read-modify-write
// flows must seed from this form so an environment-supplied secret is
// never written back to the settings file.
func (s *Store) RawProviderConfig(id string) (ProviderSettings, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.settings.Providers[id]
	if !ok {
		return nil, false
	}
	out := make(ProviderSettings, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out, true
}

// UpdateProvider replaces one provider's settings, then persists.
// Undeclared keys are dropped for registered providers, mirroring the
// merge rules.
func (s *Store) UpdateProvider(id string, settings ProviderSettings) error {
	id = CanonicalProviderID(id)
	cleaned := make(ProviderSettings, len(settings))
	if schema, known := providerSchemas[id]; known {
		for k, v := range schema.Defaults() {
			cleaned[k] = v
		}
		for k, v := range settings {
			if _, declared := schema.Spec(k); declared {
				cleaned[k] = v
			}
		}
	} else {
		for k, v := range settings {
			cleaned[k] = v
		}
	}

	s.mu.Lock()
	s.settings.Providers[id] = cleaned
	s.mu.Unlock()
	return s.saveAfterMutation("update provider " + id)
}

// HasProvidersConfigured reports whether the selected provider has all
// required settings non-empty and, for runtime-backed providers, the
// runtime confirmed reachable. This predicate gates first-run setup.
func (s *Store) HasProvidersConfigured() bool {
	s.mu.Lock()
	id := s.settings.System.Provider
	s.mu.Unlock()

	schema, known := providerSchemas[id]
	if !known {
		return false
	}
	settings, ok := s.ProviderConfig(id)
	if !ok {
		return false
	}
	for _, spec := range schema.Settings {
		if spec.Required && settings[spec.Name] == "" {
			return false
		}
	}
	if schema.RequiresRuntime {
		if s.probe == nil {
			return false
		}
		return s.probe(id, settings)
	}
	return true
}
