package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/claimsiq/claimsiq/internal/assistant"
	"github.com/claimsiq/claimsiq/internal/config"
	"github.com/claimsiq/claimsiq/internal/domain/claims"
	"github.com/claimsiq/claimsiq/internal/domain/denials"
	"github.com/claimsiq/claimsiq/internal/pipeline"
	"github.com/claimsiq/claimsiq/internal/platform/auth"
	"github.com/claimsiq/claimsiq/internal/platform/db"
	"github.com/claimsiq/claimsiq/internal/platform/metrics"
	"github.com/claimsiq/claimsiq/internal/platform/middleware"
	"github.com/claimsiq/claimsiq/internal/reporting"
)

const (
	version         = "0.1.0"
	bodyLimit       = "1M"
	shutdownTimeout = 10 * time.Second
)

func serveCmd() *cobra.Command {
	var schedule bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the claims API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), schedule)
		},
	}
	cmd.Flags().BoolVar(&schedule, "schedule", false, "Also run the pipeline on its cron schedule")
	return cmd
}

// routeDeps are the handlers mounted under /api/v1.
type routeDeps struct {
	claims    *claims.Handler
	denials   *denials.Handler
	reports   *reporting.Handler
	assistant *assistant.Handler
	dbHealth  echo.HandlerFunc
}

func authMiddleware(cfg *config.Config) (echo.MiddlewareFunc, error) {
	if cfg.IsDev() && cfg.AuthIssuer == "" && cfg.AuthSigningKey == "" {
		return auth.DevAuthMiddleware(), nil
	}
	key, err := resolveSigningKey(cfg.AuthSigningKey)
	if err != nil {
		return nil, err
	}
	return auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: key,
	}), nil
}

// newServer builds the echo instance with global middleware and routes.
func newServer(cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics, deps routeDeps) (*echo.Echo, error) {
	authMW, err := authMiddleware(cfg)
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(m.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.BodyLimit(bodyLimit))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if deps.dbHealth != nil {
		e.GET("/health/db", deps.dbHealth)
	}
	e.GET("/metrics", m.Handler())

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	apiV1 := e.Group("/api/v1", authMW, middleware.RateLimit(rateLimitCfg))
	// LLM calls carry their own deadline; leave headroom for retrieval.
	apiV1.Use(middleware.RequestTimeout(cfg.LLMTimeout + 30*time.Second))

	if deps.claims != nil {
		deps.claims.RegisterRoutes(apiV1)
	}
	if deps.denials != nil {
		deps.denials.RegisterRoutes(apiV1)
	}
	if deps.reports != nil {
		deps.reports.RegisterRoutes(apiV1)
	}
	if deps.assistant != nil {
		deps.assistant.RegisterRoutes(apiV1)
	}
	return e, nil
}

func runServer(ctx context.Context, schedule bool) error {
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	asst, err := a.assistant(ctx)
	if err != nil {
		return err
	}
	claimSvc := a.claimsService()
	e, err := newServer(a.cfg, a.logger, a.metrics, routeDeps{
		claims:    claims.NewHandler(claimSvc),
		denials:   denials.NewHandler(claimSvc),
		reports:   reporting.NewHandler(a.reportingService()),
		assistant: assistant.NewHandler(asst),
		dbHealth:  db.HealthHandler(a.pool, db.VectorExtensionCheck(a.pool)),
	})
	if err != nil {
		return err
	}

	var sched *pipeline.Scheduler
	if schedule {
		runner, err := a.pipelineRunner()
		if err != nil {
			return err
		}
		def := runner.Definition()
		if sched, err = pipeline.NewScheduler(runner, def.Schedule, a.logger); err != nil {
			return err
		}
		if err := sched.Start(ctx); err != nil {
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + a.cfg.Port
		a.logger.Info().Str("addr", addr).Str("env", a.cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
	case err := <-errCh:
		a.logger.Error().Err(err).Msg("server error")
		if sched != nil {
			sched.Stop()
		}
		return err
	}

	a.logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if sched != nil {
		sched.Stop()
	}
	a.logger.Info().Msg("server stopped")
	return nil
}
