package provider

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"quill/internal/config"
)

// GeminiProvider talks to the Gemini API through the official SDK.
type GeminiProvider struct {
	lifecycle
	log *zap.Logger

	mu        sync.Mutex
	apiKey    string
	model     string
	client    *genai.Client
	clientErr error
}

func NewGeminiProvider(log *zap.Logger) *GeminiProvider {
	if log == nil {
		log = zap.NewNop()
	}
	return &GeminiProvider{log: log.Named("gemini")}
}

func (p *GeminiProvider) ID() string { return "gemini" }

func (p *GeminiProvider) LoadConfig(settings config.ProviderSettings) {
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
	p.model = bound["model_name"]
	p.mu.Unlock()

	p.AfterLoad()
}

func (p *GeminiProvider) BeforeLoad() {
	p.drain()
	p.mu.Lock()
	// The SDK client holds no resources needing explicit teardown;
	// dropping the reference after the drain is the whole teardown.
	p.client = nil
	p.clientErr = nil
	p.mu.Unlock()
}

func (p *GeminiProvider) AfterLoad() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.apiKey == "" {
		p.clientErr = errors.New("API key not configured")
		return
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: p.apiKey,
	})
	if err != nil {
		p.log.Warn("failed to create client", zap.Error(err))
		p.clientErr = err
		return
	}
	p.client = client
}

func (p *GeminiProvider) GetResponse(ctx context.Context, systemInstruction, prompt string, opts Options) (Result, error) {
	reqCtx, end, err := p.begin(ctx)
	if err != nil {
		return Result{}, err
	}
	defer end()

	p.mu.Lock()
	client, clientErr, model := p.client, p.clientErr, p.model
	p.mu.Unlock()

	if clientErr != nil {
		return Result{}, configErr(p.ID(), clientErr.Error())
	}
	if client == nil {
		return Result{}, configErr(p.ID(), "API key not configured")
	}
	if model == "" {
		return Result{}, configErr(p.ID(), "model not selected")
	}
	if p.cancelRequested() {
		return Result{Cancelled: true}, nil
	}

	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(0.5)),
		MaxOutputTokens: 1000,
	}
	if systemInstruction != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(systemInstruction, genai.RoleUser)
	}

	resp, err := client.Models.GenerateContent(reqCtx, model, genai.Text(prompt), genCfg)
	if err != nil {
		if p.cancelRequested() {
			return Result{Cancelled: true}, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Result{}, transportErr(p.ID(), err)
		}
		return Result{}, upstreamErr(p.ID(), "generation failed", err)
	}

	return p.finish(strings.TrimSpace(resp.Text()), opts), nil
}
