package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.AddRowsLoaded("raw_claims", 10)
	m.AddChunksIndexed("hash-768", 3)
	m.QuestionAnswered("analytics")
	m.LLMError("anthropic")
	m.EmbedCacheLookup(true)
	m.ObserveStep("daily", "ingest", nil, time.Second)
	m.RegisterPool(nil)

	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	if err := m.Middleware()(func(c echo.Context) error { return nil })(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCounters(t *testing.T) {
	m := New()
	m.AddRowsLoaded("raw_claims", 120)
	m.AddRowsLoaded("raw_claims", 30)
	m.QuestionAnswered("claim_lookup")
	m.EmbedCacheLookup(false)
	m.ObserveStep("daily", "transform", errors.New("boom"), 2*time.Second)

	if got := testutil.ToFloat64(m.rowsLoaded.WithLabelValues("raw_claims")); got != 150 {
		t.Errorf("rows loaded = %v, want 150", got)
	}
	if got := testutil.ToFloat64(m.questions.WithLabelValues("claim_lookup")); got != 1 {
		t.Errorf("questions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.embedCache.WithLabelValues("miss")); got != 1 {
		t.Errorf("cache misses = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.stepDuration); n != 1 {
		t.Errorf("expected one step series, got %d", n)
	}
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := New()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/v1/claims/:id", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "claim not found")
	})
	e.GET("/metrics", m.Handler())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/claims/CLM1", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	want := `claimsiq_http_request_duration_seconds_count{method="GET",route="/api/v1/claims/:id",status="404"} 1`
	if !strings.Contains(body, want) {
		t.Errorf("metrics output missing %q", want)
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Error("expected Go runtime collector output")
	}
}
