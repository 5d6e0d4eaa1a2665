// Package embedding turns text into vectors for semantic search over
// clinical notes. Engines: a local feature-hashing engine, Google GenAI and
// Ollama, optionally wrapped with a rate limiter and a persistent cache.
package embedding

import (
	"context"
	"fmt"
	"math"
	"sort"

	"golang.org/x/time/rate"
)

// Engine generates vector embeddings for text. Embed is used for queries,
// EmbedBatch for documents being indexed.
type Engine interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	// Name identifies the model and dimensionality; vectors from engines
	// with different names are never compared.
	Name() string
}

// Providers.
const (
	ProviderHash   = "hash"
	ProviderGenAI  = "genai"
	ProviderOllama = "ollama"
)

type Config struct {
	Provider   string
	Model      string
	Dimensions int
	// RPS throttles remote providers; 0 disables throttling.
	RPS float64
	// CacheDir holds the badger cache. Empty keeps the cache in memory.
	CacheDir string
	NoCache  bool

	OllamaURL    string
	GeminiAPIKey string
}

// NewEngine builds the configured engine. Remote engines are rate limited
// and cached; the caller closes the result when it implements io.Closer.
func NewEngine(ctx context.Context, cfg Config, opts ...CacheOption) (Engine, error) {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}

	var base Engine
	var err error
	switch cfg.Provider {
	case ProviderHash, "":
		return NewHashEngine(cfg.Dimensions), nil
	case ProviderGenAI:
		base, err = NewGenAIEngine(ctx, cfg.GeminiAPIKey, cfg.Model, cfg.Dimensions)
	case ProviderOllama:
		base, err = NewOllamaEngine(cfg.OllamaURL, cfg.Model, cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (use hash, genai or ollama)", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RPS > 0 {
		base = NewRateLimited(base, rate.Limit(cfg.RPS), 1)
	}
	if cfg.NoCache {
		return base, nil
	}
	return NewCachedEngine(base, cfg.CacheDir, opts...)
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when either is the zero vector.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

type SimilarityResult struct {
	Index      int
	Similarity float64
}

// TopK ranks corpus by similarity to query. Vectors of a different length
// are skipped.
func TopK(query []float32, corpus [][]float32, k int) []SimilarityResult {
	if k <= 0 {
		k = 10
	}
	results := make([]SimilarityResult, 0, len(corpus))
	for i, v := range corpus {
		s, err := CosineSimilarity(query, v)
		if err != nil {
			continue
		}
		results = append(results, SimilarityResult{Index: i, Similarity: s})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })
	if len(results) > k {
		results = results[:k]
	}
	return results
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
}
