// Package llm wraps the completion providers used to phrase answers.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Providers.
const (
	ProviderAnthropic  = "anthropic"
	ProviderGemini     = "gemini"
	ProviderExtractive = "extractive"
)

// ErrNoProvider is returned when a remote provider is selected without
// credentials.
var ErrNoProvider = errors.New("llm provider not configured")

// Block is one numbered piece of retrieved context.
type Block struct {
	Index int
	Title string
	Text  string
}

// Request carries both the rendered prompt, used by remote providers, and
// the question with its context blocks, used by the extractive provider.
type Request struct {
	System      string
	Prompt      string
	Question    string
	Blocks      []Block
	MaxTokens   int
	Temperature float64
}

type Response struct {
	Text  string
	Model string
}

type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	// Provider names the backend for logs and metrics.
	Provider() string
}

type Config struct {
	Provider        string
	Model           string
	AnthropicAPIKey string
	GeminiAPIKey    string
	MaxTokens       int
	Temperature     float64
	Timeout         time.Duration
	// RPS throttles remote providers; 0 disables throttling.
	RPS float64
}

// New builds the configured client. An empty provider selects extractive.
func New(ctx context.Context, cfg Config) (Client, error) {
	var c Client
	var err error
	switch cfg.Provider {
	case ProviderExtractive, "":
		return NewExtractive(), nil
	case ProviderAnthropic:
		c, err = NewAnthropic(cfg)
	case ProviderGemini:
		c, err = NewGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s (use anthropic, gemini or extractive)", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if cfg.RPS > 0 {
		c = NewRateLimited(c, rate.Limit(cfg.RPS), 1)
	}
	return c, nil
}

// RateLimited throttles calls to a remote provider.
type RateLimited struct {
	Client
	limiter *rate.Limiter
}

func NewRateLimited(c Client, limit rate.Limit, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{Client: c, limiter: rate.NewLimiter(limit, burst)}
}

func (r *RateLimited) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.Client.Complete(ctx, req)
}
