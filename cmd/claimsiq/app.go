package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/claimsiq/claimsiq/internal/assistant"
	"github.com/claimsiq/claimsiq/internal/assistant/llm"
	"github.com/claimsiq/claimsiq/internal/config"
	"github.com/claimsiq/claimsiq/internal/domain/claims"
	"github.com/claimsiq/claimsiq/internal/platform/db"
	"github.com/claimsiq/claimsiq/internal/platform/logging"
	"github.com/claimsiq/claimsiq/internal/platform/metrics"
	"github.com/claimsiq/claimsiq/internal/rag/embedding"
	"github.com/claimsiq/claimsiq/internal/rag/vectorstore"
	"github.com/claimsiq/claimsiq/internal/reporting"
	"github.com/claimsiq/claimsiq/migrations"
)

// app carries the shared dependencies of one command invocation.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	metrics *metrics.Metrics
	pool    *pgxpool.Pool

	engine  embedding.Engine
	closers []io.Closer
}

type appOptions struct {
	// logTo overrides stdout, e.g. stderr for the stdio MCP server.
	logTo io.Writer
	noDB  bool
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	w := opts.logTo
	if w == nil {
		w = os.Stdout
	}
	a := &app{
		cfg:     cfg,
		logger:  logging.NewWithWriter(w, cfg.Env, cfg.LogLevel),
		metrics: metrics.New(),
	}
	if opts.noDB {
		return a, nil
	}

	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a.pool = pool
	a.metrics.RegisterPool(pool)
	a.logger.Debug().Msg("connected to database")
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn().Err(err).Msg("close failed")
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

// migrationsFS prefers an on-disk migrations directory and falls back to
// the embedded files.
func migrationsFS(dir string) fs.FS {
	if dir != "" {
		if st, err := os.Stat(dir); err == nil && st.IsDir() {
			return os.DirFS(dir)
		}
	}
	return migrations.FS
}

func (a *app) migrator() *db.Migrator {
	return db.NewMigrator(a.pool, migrationsFS(a.cfg.MigrationsDir))
}

// embeddingEngine builds the configured engine once per app.
func (a *app) embeddingEngine(ctx context.Context) (embedding.Engine, error) {
	if a.engine != nil {
		return a.engine, nil
	}
	e, err := embedding.NewEngine(ctx, embedding.Config{
		Provider:     a.cfg.EmbedProvider,
		Model:        a.cfg.EmbedModel,
		Dimensions:   a.cfg.EmbedDimensions,
		RPS:          a.cfg.EmbedRPS,
		CacheDir:     a.cfg.EmbedCacheDir,
		OllamaURL:    a.cfg.OllamaURL,
		GeminiAPIKey: a.cfg.GeminiAPIKey,
	}, embedding.WithCacheObserver(a.metrics.EmbedCacheLookup))
	if err != nil {
		return nil, fmt.Errorf("embedding engine: %w", err)
	}
	if c, ok := e.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	a.logger.Info().Str("engine", e.Name()).Msg("embedding engine ready")
	a.engine = e
	return e, nil
}

func (a *app) vectorStore() vectorstore.Store {
	return vectorstore.NewPGStore(a.pool)
}

func (a *app) claimsService() *claims.Service {
	return claims.NewService(claims.NewRepoPG(a.pool))
}

func (a *app) reportingService() *reporting.Service {
	return reporting.NewService(a.pool)
}

func (a *app) llmClient(ctx context.Context) (llm.Client, error) {
	client, err := llm.New(ctx, llm.Config{
		Provider:        a.cfg.LLMProvider,
		Model:           a.cfg.LLMModel,
		AnthropicAPIKey: a.cfg.AnthropicAPIKey,
		GeminiAPIKey:    a.cfg.GeminiAPIKey,
		MaxTokens:       a.cfg.LLMMaxTokens,
		Temperature:     a.cfg.LLMTemperature,
		Timeout:         a.cfg.LLMTimeout,
		RPS:             a.cfg.LLMRPS,
	})
	if err != nil {
		return nil, fmt.Errorf("llm client: %w", err)
	}
	return client, nil
}

func (a *app) assistant(ctx context.Context) (*assistant.Assistant, error) {
	engine, err := a.embeddingEngine(ctx)
	if err != nil {
		return nil, err
	}
	client, err := a.llmClient(ctx)
	if err != nil {
		return nil, err
	}
	return assistant.New(a.claimsService(), a.reportingService(), a.vectorStore(), engine, client,
		a.logger, a.metrics, assistant.Options{
			Timeout:     a.cfg.LLMTimeout,
			MaxTokens:   a.cfg.LLMMaxTokens,
			Temperature: a.cfg.LLMTemperature,
		}), nil
}

// resolveSigningKey decodes the hex AUTH_SIGNING_KEY. Empty means JWKS.
func resolveSigningKey(value string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid AUTH_SIGNING_KEY hex value: %w", err)
	}
	if len(key) < 32 {
		return nil, fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes, got %d", len(key))
	}
	return key, nil
}
