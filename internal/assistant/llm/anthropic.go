package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultAnthropicModel = "claude-sonnet-4-5"
	defaultMaxTokens      = 1024
)

type Anthropic struct {
	client      anthropic.Client
	model       string
	maxTokens   int
	temperature float64
}

func NewAnthropic(cfg Config) (*Anthropic, error) {
	if cfg.AnthropicAPIKey == "" {
		return nil, fmt.Errorf("%w: ANTHROPIC_API_KEY is required for provider anthropic", ErrNoProvider)
	}
	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.AnthropicAPIKey)}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &Anthropic{
		client:      anthropic.NewClient(opts...),
		model:       model,
		maxTokens:   orDefault(cfg.MaxTokens, defaultMaxTokens),
		temperature: cfg.Temperature,
	}, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (a *Anthropic) Provider() string { return ProviderAnthropic }

func (a *Anthropic) Complete(ctx context.Context, req Request) (*Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: int64(orDefault(req.MaxTokens, a.maxTokens)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	temp := req.Temperature
	if temp <= 0 {
		temp = a.temperature
	}
	if temp > 0 {
		params.Temperature = anthropic.Float(temp)
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	start := time.Now()
	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic completion failed after %s: %w", time.Since(start).Round(time.Millisecond), err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("empty response from anthropic")
	}
	return &Response{Text: text.String(), Model: a.model}, nil
}
