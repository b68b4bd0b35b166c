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

const defaultHTTPTimeout = 120 * time.Second

// OpenAIProvider talks to any OpenAI-compatible /chat/completions
// endpoint with bearer-key authentication.
type OpenAIProvider struct {
	lifecycle
	log *zap.Logger

	mu           sync.Mutex
	apiKey       string
	baseURL      string
	organisation string
	project      string
	model        string
	client       *http.Client
}

// NewOpenAIProvider returns an unbound instance; LoadConfig makes it
// ready.
func NewOpenAIProvider(log *zap.Logger) *OpenAIProvider {
	if log == nil {
		log = zap.NewNop()
	}
	return &OpenAIProvider{log: log.Named("openai")}
}

func (p *OpenAIProvider) ID() string { return "openai" }

func (p *OpenAIProvider) LoadConfig(settings config.ProviderSettings) {
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
	p.organisation = bound["api_organisation"]
	p.project = bound["api_project"]
	p.model = bound["api_model"]
	p.mu.Unlock()

	p.AfterLoad()
}

func (p *OpenAIProvider) BeforeLoad() {
	p.drain()
	p.mu.Lock()
	p.client = nil
	p.mu.Unlock()
}

func (p *OpenAIProvider) AfterLoad() {
	p.mu.Lock()
	p.client = &http.Client{Timeout: defaultHTTPTimeout}
	p.mu.Unlock()
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (p *OpenAIProvider) GetResponse(ctx context.Context, systemInstruction, prompt string, opts Options) (Result, error) {
	reqCtx, end, err := p.begin(ctx)
	if err != nil {
		return Result{}, err
	}
	defer end()

	// Snapshot the config binding before blocking I/O.
	p.mu.Lock()
	apiKey, baseURL, model := p.apiKey, p.baseURL, p.model
	organisation, project := p.organisation, p.project
	client := p.client
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
		Temperature: 0.5,
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
	if organisation != "" {
		req.Header.Set("OpenAI-Organization", organisation)
	}
	if project != "" {
		req.Header.Set("OpenAI-Project", project)
	}

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
