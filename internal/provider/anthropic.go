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

	"go.uber.org/zap"

	"quill/internal/config"
)

const (
	anthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"
)

// AnthropicProvider talks to the Anthropic messages API.
type AnthropicProvider struct {
	lifecycle
	log *zap.Logger

	mu      sync.Mutex
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewAnthropicProvider(log *zap.Logger) *AnthropicProvider {
	if log == nil {
		log = zap.NewNop()
	}
	return &AnthropicProvider{log: log.Named("anthropic"), baseURL: anthropicBaseURL}
}

func (p *AnthropicProvider) ID() string { return "anthropic" }

func (p *AnthropicProvider) LoadConfig(settings config.ProviderSettings) {
	p.BeforeLoad()

	schema, _ := config.SchemaFor(p.ID())
	bound := schema.Defaults()
	for k, v := range settings {
		if _, declared := schema.Spec(k); declared {
			bound[k] = strings.TrimSpace(v)
		}
	}

	p.mu.Lock()
	p.apiKey = bound["api_key"]
	p.model = bound["api_model"]
	p.mu.Unlock()

	p.AfterLoad()
}

func (p *AnthropicProvider) BeforeLoad() {
	p.drain()
	p.mu.Lock()
	p.client = nil
	p.mu.Unlock()
}

func (p *AnthropicProvider) AfterLoad() {
	p.mu.Lock()
	p.client = &http.Client{Timeout: defaultHTTPTimeout}
	p.mu.Unlock()
}

type anthropicRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system,omitempty"`
	Messages  []chatMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *AnthropicProvider) GetResponse(ctx context.Context, systemInstruction, prompt string, opts Options) (Result, error) {
	reqCtx, end, err := p.begin(ctx)
	if err != nil {
		return Result{}, err
	}
	defer end()

	p.mu.Lock()
	apiKey, model, baseURL, client := p.apiKey, p.model, p.baseURL, p.client
	p.mu.Unlock()

	if client == nil || apiKey == "" {
		return Result{}, configErr(p.ID(), "API key not configured")
	}
	if model == "" {
		return Result{}, configErr(p.ID(), "model not selected")
	}
	if p.cancelRequested() {
		return Result{Cancelled: true}, nil
	}

	body, err := json.Marshal(anthropicRequest{
		Model:     model,
		MaxTokens: 4000,
		System:    systemInstruction,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return Result{}, upstreamErr(p.ID(), "failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return Result{}, transportErr(p.ID(), err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

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
		p.log.Warn("upstream rejected request",
			zap.Int("status", resp.StatusCode), zap.String("model", model))
		return Result{}, upstreamErr(p.ID(),
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))), nil)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Result{}, upstreamErr(p.ID(), "failed to parse response", err)
	}
	if parsed.Error != nil {
		return Result{}, upstreamErr(p.ID(), parsed.Error.Message, nil)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return p.finish(strings.TrimSpace(text.String()), opts), nil
}
