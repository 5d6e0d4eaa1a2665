// Package metrics exposes Prometheus instrumentation for the HTTP API, the
// ingestion and indexing jobs, and the question-answering workflow.
//
// All recording methods are safe on a nil *Metrics so components can run
// uninstrumented in tests and one-shot CLI commands.
package metrics

import (
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "claimsiq"

type Metrics struct {
	reg *prometheus.Registry

	httpDuration  *prometheus.HistogramVec
	httpActive    prometheus.Gauge
	stepDuration  *prometheus.HistogramVec
	rowsLoaded    *prometheus.CounterVec
	chunksIndexed *prometheus.CounterVec
	questions     *prometheus.CounterVec
	llmErrors     *prometheus.CounterVec
	embedCache    *prometheus.CounterVec
}

// New creates a registry with process and Go runtime collectors plus the
// application metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		reg: reg,
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		httpActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "active_requests",
			Help:      "In-flight HTTP requests.",
		}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "step_duration_seconds",
			Help:      "Pipeline step duration.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"pipeline", "step", "status"}),
		rowsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "rows_loaded_total",
			Help:      "Rows copied into raw tables.",
		}, []string{"table"}),
		chunksIndexed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "chunks_indexed_total",
			Help:      "Note chunks embedded and stored.",
		}, []string{"model"}),
		questions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assistant",
			Name:      "questions_answered_total",
			Help:      "Questions answered by intent.",
		}, []string{"intent"}),
		llmErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assistant",
			Name:      "llm_errors_total",
			Help:      "Failed LLM completions by provider.",
		}, []string{"provider"}),
		embedCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "embedding_cache_lookups_total",
			Help:      "Embedding cache lookups by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.httpDuration, m.httpActive, m.stepDuration, m.rowsLoaded,
		m.chunksIndexed, m.questions, m.llmErrors, m.embedCache)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// RegisterPool exposes connection pool gauges read at scrape time.
func (m *Metrics) RegisterPool(pool *pgxpool.Pool) {
	if m == nil || pool == nil {
		return
	}
	gauge := func(name, help string, fn func(*pgxpool.Stat) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db_pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return fn(pool.Stat()) })
	}
	m.reg.MustRegister(
		gauge("total_conns", "Open connections.", func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }),
		gauge("idle_conns", "Idle connections.", func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }),
		gauge("acquired_conns", "Connections in use.", func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }),
	)
}

// Middleware records request latency keyed by the route pattern rather than
// the concrete path.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			m.httpActive.Inc()
			start := time.Now()

			err := next(c)

			m.httpActive.Dec()
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.httpDuration.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	h := promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
	return echo.WrapHandler(h)
}

func (m *Metrics) ObserveStep(pipeline, step string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(pipeline, step, outcome(err)).Observe(d.Seconds())
}

func (m *Metrics) AddRowsLoaded(table string, n int64) {
	if m == nil {
		return
	}
	m.rowsLoaded.WithLabelValues(table).Add(float64(n))
}

func (m *Metrics) AddChunksIndexed(model string, n int) {
	if m == nil {
		return
	}
	m.chunksIndexed.WithLabelValues(model).Add(float64(n))
}

func (m *Metrics) QuestionAnswered(intent string) {
	if m == nil {
		return
	}
	m.questions.WithLabelValues(intent).Inc()
}

func (m *Metrics) LLMError(provider string) {
	if m == nil {
		return
	}
	m.llmErrors.WithLabelValues(provider).Inc()
}

func (m *Metrics) EmbedCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.embedCache.WithLabelValues(result).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
