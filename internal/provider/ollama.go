package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"quill/internal/config"
)

// OllamaProvider talks to a locally running Ollama server. Unlike the
// cloud backends it needs no API key; being configured means the
// runtime answers its models-list endpoint.
type OllamaProvider struct {
	lifecycle
	log *zap.Logger

	mu        sync.Mutex
	baseURL   string
	model     string
	keepAlive string
	client    *http.Client
}

func NewOllamaProvider(log *zap.Logger) *OllamaProvider {
	if log == nil {
		log = zap.NewNop()
	}
	return &OllamaProvider{log: log.Named("ollama")}
}

func (p *OllamaProvider) ID() string { return "ollama" }

func (p *OllamaProvider) LoadConfig(settings config.ProviderSettings) {
	p.BeforeLoad()

	schema, _ := config.SchemaFor(p.ID())
	bound := schema.Defaults()
	for k, v := range settings {
		if _, declared := schema.Spec(k); declared {
			bound[k] = strings.TrimSpace(v)
		}
	}

	p.mu.Lock()
	p.baseURL = strings.TrimRight(bound["api_base"], "/")
	p.model = bound["api_model"]
	p.keepAlive = bound["keep_alive"]
	p.mu.Unlock()

	p.AfterLoad()
}

func (p *OllamaProvider) BeforeLoad() {
	p.drain()
	p.mu.Lock()
	p.client = nil
	p.mu.Unlock()
}

func (p *OllamaProvider) AfterLoad() {
	p.mu.Lock()
	p.client = &http.Client{Timeout: defaultHTTPTimeout}
	p.mu.Unlock()
}

type ollamaChatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	Stream    bool          `json:"stream"`
	KeepAlive string        `json:"keep_alive,omitempty"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Error string `json:"error,omitempty"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func (p *OllamaProvider) GetResponse(ctx context.Context, systemInstruction, prompt string, opts Options) (Result, error) {
	reqCtx, end, err := p.begin(ctx)
	if err != nil {
		return Result{}, err
	}
	defer end()

	p.mu.Lock()
	baseURL, model, keepAlive, client := p.baseURL, p.model, p.keepAlive, p.client
	p.mu.Unlock()

	if client == nil || baseURL == "" {
		return Result{}, configErr(p.ID(), "server URL not configured")
	}
	if model == "" {
		return Result{}, configErr(p.ID(), "model not selected")
	}
	if p.cancelRequested() {
		return Result{Cancelled: true}, nil
	}

	messages := make([]chatMessage, 0, 2)
	if systemInstruction != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemInstruction})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(ollamaChatRequest{
		Model:     model,
		Messages:  messages,
		Stream:    false,
		KeepAlive: keepAliveDuration(keepAlive),
	})
	if err != nil {
		return Result{}, upstreamErr(p.ID(), "failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return Result{}, transportErr(p.ID(), err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		if p.cancelRequested() {
			return Result{Cancelled: true}, nil
		}
		return Result{}, transportErr(p.ID(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if p.cancelRequested() {
			return Result{Cancelled: true}, nil
		}
		return Result{}, transportErr(p.ID(), err)
	}

	if resp.StatusCode != http.StatusOK {
		p.log.Warn("runtime rejected request",
			zap.Int("status", resp.StatusCode), zap.String("model", model))
		return Result{}, upstreamErr(p.ID(),
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))), nil)
	}

	var parsed ollamaChatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Result{}, upstreamErr(p.ID(), "failed to parse response", err)
	}
	if parsed.Error != "" {
		return Result{}, upstreamErr(p.ID(), parsed.Error, nil)
	}

	return p.finish(strings.TrimSpace(parsed.Message.Content), opts), nil
}

// keepAliveDuration converts the persisted keep-alive value (minutes)
// into the duration string the runtime expects.
func keepAliveDuration(minutes string) string {
	if minutes == "" {
		return ""
	}
	return minutes + "m"
}

// ListModels asks the runtime for its installed models.
func ListModels(ctx context.Context, baseURL string) ([]string, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return nil, transportErr("ollama", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, transportErr("ollama", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportErr("ollama", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, upstreamErr("ollama",
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))), nil)
	}

	var parsed ollamaTagsResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, upstreamErr("ollama", "failed to parse models list", err)
	}

	names := make([]string, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// ProbeRuntime is the config.RuntimeProbe for runtime-backed
// providers: the ollama runtime counts as reachable when its
// models-list endpoint answers.
func ProbeRuntime(id string, settings config.ProviderSettings) bool {
	if id != "ollama" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err := ListModels(ctx, settings["api_base"])
	return err == nil
}
