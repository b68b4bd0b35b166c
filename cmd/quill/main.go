package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quill/internal/config"
	"quill/internal/logging"
	"quill/internal/orchestrator"
	"quill/internal/provider"
)

var (
	// Global flags
	debug   bool
	mode    string
	dataDir string

	logger *zap.Logger
	store  *config.Store
	orch   *orchestrator.Orchestrator
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "quill",
	Short: "quill - AI writing actions from the command line",
	Long: `quill transforms text through configurable writing actions
(proofread, rewrite, summarize, ...) backed by a pluggable set of
AI providers.

Settings live in a single JSON document per execution mode and are
reconciled against built-in defaults on every load, so upgrades and
hand edits never leave the file in a broken state.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		dir, err := resolveDataDir()
		if err != nil {
			return err
		}

		logger, err = logging.New(dir, debug)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		store = config.NewStore(dir, mode, logger,
			config.WithRuntimeProbe(provider.ProbeRuntime))
		store.Load()

		registry := provider.NewRegistry(logger)
		orch = orchestrator.New(store, registry, logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if orch != nil {
			orch.Shutdown()
		}
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// transformCmd runs one action over stdin
var transformCmd = &cobra.Command{
	Use:   "transform [action]",
	Short: "Transform stdin text with the named action",
	Long: `Reads text from stdin, runs it through the named writing action
using the selected provider, and prints the result to stdout.

Ctrl-C cancels the in-flight request cleanly.

Example:
  echo "their going too the store" | quill transform Proofread`,
	Args: cobra.ExactArgs(1),
	RunE: runTransform,
}

// actionsCmd manages writing actions
var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "List and edit writing actions",
}

var actionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured actions",
	RunE:  listActions,
}

var actionsSetCmd = &cobra.Command{
	Use:   "set [name]",
	Short: "Add or update an action",
	Args:  cobra.ExactArgs(1),
	RunE:  setAction,
}

var actionsRemoveCmd = &cobra.Command{
	Use:   "remove [name]",
	Short: "Remove an action",
	Args:  cobra.ExactArgs(1),
	RunE:  removeAction,
}

// providersCmd manages provider configuration
var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List and configure AI providers",
}

var providersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available providers and their status",
	RunE:  listProviders,
}

var providersSelectCmd = &cobra.Command{
	Use:   "select [provider]",
	Short: "Select the active provider",
	Args:  cobra.ExactArgs(1),
	RunE:  selectProvider,
}

var providersSetCmd = &cobra.Command{
	Use:   "set [provider] [key=value]...",
	Short: "Set a provider's settings",
	Long: `Replaces the named provider's settings. Keys not declared by the
provider are dropped; omitted declared keys fall back to defaults.

Example:
  quill providers set openai api_key=sk-... api_model=gpt-4o`,
	Args: cobra.MinimumNArgs(2),
	RunE: setProvider,
}

var providersModelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models installed in the local ollama runtime",
	RunE:  listModels,
}

// configCmd inspects the settings document
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the settings document",
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the settings file path for the current mode",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(store.DataFile())
		return nil
	},
}

// watchCmd follows external edits to the settings file
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the settings file and reload on change",
	Long: `Runs until interrupted, reloading settings whenever the file is
modified outside this process and rebinding the active provider.`,
	RunE: runWatch,
}

var (
	// actions set flags
	actionPrefix      string
	actionInstruction string
	actionIcon        string
	actionInWindow    bool
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&mode, "mode", config.ModeDev, "Execution mode (dev, build-dev, build-final)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Settings directory (default: user config dir)")

	actionsSetCmd.Flags().StringVar(&actionPrefix, "prefix", "", "Text prepended to the input")
	actionsSetCmd.Flags().StringVar(&actionInstruction, "instruction", "", "System instruction for the provider")
	actionsSetCmd.Flags().StringVar(&actionIcon, "icon", "", "Icon name")
	actionsSetCmd.Flags().BoolVar(&actionInWindow, "open-in-window", false, "Show the result in a window instead of replacing")

	actionsCmd.AddCommand(actionsListCmd)
	actionsCmd.AddCommand(actionsSetCmd)
	actionsCmd.AddCommand(actionsRemoveCmd)

	providersCmd.AddCommand(providersListCmd)
	providersCmd.AddCommand(providersSelectCmd)
	providersCmd.AddCommand(providersSetCmd)
	providersCmd.AddCommand(providersModelsCmd)

	configCmd.AddCommand(configPathCmd)

	rootCmd.AddCommand(transformCmd)
	rootCmd.AddCommand(actionsCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func resolveDataDir() (string, error) {
	if dataDir != "" {
		return dataDir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve config directory: %w", err)
	}
	return filepath.Join(base, "quill"), nil
}

func runTransform(cmd *cobra.Command, args []string) error {
	if !store.HasProvidersConfigured() {
		fmt.Fprintf(os.Stderr, "provider %q is not configured; run: quill providers set %s ...\n",
			store.Provider(), store.Provider())
		return errors.New("no provider configured")
	}

	text, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("failed to read stdin: %w", err)
	}
	if len(strings.TrimSpace(string(text))) == 0 {
		return errors.New("no input text")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		orch.CancelActive()
	}()

	result, err := orch.Run(ctx, args[0], string(text), provider.Options{})
	if err != nil {
		return err
	}
	if result.Cancelled {
		fmt.Fprintln(os.Stderr, "cancelled")
		return nil
	}
	fmt.Println(result.Text)
	return nil
}

func listActions(cmd *cobra.Command, args []string) error {
	actions := store.Actions()
	names := make([]string, 0, len(actions))
	for name := range actions {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		a := actions[name]
		marker := ""
		if a.OpenInWindow {
			marker = " (window)"
		}
		fmt.Printf("%-14s %s%s\n", name, firstLine(a.Instruction), marker)
	}
	return nil
}

func setAction(cmd *cobra.Command, args []string) error {
	name := args[0]
	action, _ := store.Action(config.CanonicalActionName(name))
	if cmd.Flags().Changed("prefix") {
		action.Prefix = actionPrefix
	}
	if cmd.Flags().Changed("instruction") {
		action.Instruction = actionInstruction
	}
	if cmd.Flags().Changed("icon") {
		action.Icon = actionIcon
	}
	if cmd.Flags().Changed("open-in-window") {
		action.OpenInWindow = actionInWindow
	}
	return store.UpdateAction(name, action)
}

func removeAction(cmd *cobra.Command, args []string) error {
	return store.RemoveAction(args[0])
}

func listProviders(cmd *cobra.Command, args []string) error {
	selected := store.Provider()
	for _, id := range config.ProviderIDs() {
		schema, _ := config.SchemaFor(id)
		marker := " "
		if id == selected {
			marker = "*"
		}
		status := "not configured"
		if providerConfigured(id) {
			status = "configured"
		}
		fmt.Printf("%s %-10s %-16s %s\n", marker, id, schema.DisplayName, status)
	}
	return nil
}

// providerConfigured mirrors the store's readiness predicate for an
// arbitrary provider, not just the selected one.
func providerConfigured(id string) bool {
	schema, known := config.SchemaFor(id)
	if !known {
		return false
	}
	settings, ok := store.ProviderConfig(id)
	if !ok {
		return false
	}
	for _, spec := range schema.Settings {
		if spec.Required && settings[spec.Name] == "" {
			return false
		}
	}
	if schema.RequiresRuntime {
		return provider.ProbeRuntime(id, settings)
	}
	return true
}

func selectProvider(cmd *cobra.Command, args []string) error {
	id := config.CanonicalProviderID(args[0])
	if _, known := config.SchemaFor(id); !known {
		return fmt.Errorf("unknown provider: %s", args[0])
	}
	return store.SetProvider(id)
}

func setProvider(cmd *cobra.Command, args []string) error {
	id := args[0]
	// Seed from the persisted values, not ProviderConfig: the env
	// overlay must never end up written to the settings file.
	settings, _ := store.RawProviderConfig(config.CanonicalProviderID(id))
	if settings == nil {
		settings = config.ProviderSettings{}
	}
	for _, pair := range args[1:] {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			return fmt.Errorf("expected key=value, got %q", pair)
		}
		settings[key] = value
	}
	return store.UpdateProvider(id, settings)
}

func listModels(cmd *cobra.Command, args []string) error {
	settings, _ := store.ProviderConfig("ollama")
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	models, err := provider.ListModels(ctx, settings["api_base"])
	if err != nil {
		return err
	}
	for _, m := range models {
		fmt.Println(m)
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	watcher, err := config.NewWatcher(store, logger, func(settings config.UnifiedSettings) {
		logger.Info("settings changed on disk",
			zap.String("provider", settings.System.Provider))
		orch.Rebuild()
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := watcher.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "watching %s\n", store.DataFile())
	<-ctx.Done()
	watcher.Stop()
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 60 {
		s = s[:57] + "..."
	}
	return s
}
