package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

type Gemini struct {
	client      *genai.Client
	model       string
	maxTokens   int
	temperature float64
}

func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY is required for provider gemini", ErrNoProvider)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	return &Gemini{
		client:      client,
		model:       model,
		maxTokens:   orDefault(cfg.MaxTokens, defaultMaxTokens),
		temperature: cfg.Temperature,
	}, nil
}

func (g *Gemini) Provider() string { return ProviderGemini }

func (g *Gemini) Complete(ctx context.Context, req Request) (*Response, error) {
	temp := req.Temperature
	if temp <= 0 {
		temp = g.temperature
	}
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(temp)),
		MaxOutputTokens: int32(orDefault(req.MaxTokens, g.maxTokens)),
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini completion failed: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, fmt.Errorf("empty response from gemini")
	}
	return &Response{Text: text, Model: g.model}, nil
}
