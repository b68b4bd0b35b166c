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

// MistralProvider talks to the Mistral chat completions API. The wire
// shape is OpenAI-compatible but the endpoint, auth handling and
// request tuning are Mistral's own.
type MistralProvider struct {
	lifecycle
	log *zap.Logger

	mu      sync.Mutex
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func NewMistralProvider(log *zap.Logger) *MistralProvider {
	if log == nil {
		log = zap.NewNop()
	}
	return &MistralProvider{log: log.Named("mistral")}
}

func (p *MistralProvider) ID() string { return "mistral" }

func (p *MistralProvider) LoadConfig(settings config.ProviderSettings) {
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
	p.baseURL = strings.TrimRight(bound["api_base"], "/")
	p.model = bound["api_model"]
	p.mu.Unlock()

	p.AfterLoad()
}

func (p *MistralProvider) BeforeLoad() {
	p.drain()
	p.mu.Lock()
	p.client = nil
	p.mu.Unlock()
}

func (p *MistralProvider) AfterLoad() {
	p.mu.Lock()
	p.client = &http.Client{Timeout: defaultHTTPTimeout}
	p.mu.Unlock()
}

func (p *MistralProvider) GetResponse(ctx context.Context, systemInstruction, prompt string, opts Options) (Result, error) {
	reqCtx, end, err := p.begin(ctx)
	if err != nil {
		return Result{}, err
	}
	defer end()

	p.mu.Lock()
	apiKey, baseURL, model, client := p.apiKey, p.baseURL, p.model, p.client
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

	messages := make([]chatMessage, 0, 2)
	if systemInstruction != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemInstruction})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   4000,
		Temperature: 0.7,
		Stream:      false,
	})
	if err != nil {
		return Result{}, upstreamErr(p.ID(), "failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Result{}, transportErr(p.ID(), err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

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

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Result{}, upstreamErr(p.ID(), "failed to parse response", err)
	}
	if parsed.Error != nil {
		return Result{}, upstreamErr(p.ID(), parsed.Error.Message, nil)
	}
	if len(parsed.Choices) == 0 {
		return p.finish("", opts), nil
	}

	return p.finish(strings.TrimSpace(parsed.Choices[0].Message.Content), opts), nil
}
