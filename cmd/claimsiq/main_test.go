package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/claimsiq/claimsiq/internal/assistant"
	"github.com/claimsiq/claimsiq/internal/assistant/llm"
	"github.com/claimsiq/claimsiq/internal/config"
	"github.com/claimsiq/claimsiq/internal/ingestion/export"
	"github.com/claimsiq/claimsiq/internal/pipeline"
	"github.com/claimsiq/claimsiq/internal/platform/metrics"
	"github.com/claimsiq/claimsiq/internal/reporting"
	"github.com/claimsiq/claimsiq/internal/transform"
)

func TestRootCmd_Subcommands(t *testing.T) {
	var got []string
	for _, c := range rootCmd().Commands() {
		got = append(got, c.Name())
	}
	sort.Strings(got)
	want := []string{"ask", "generate", "index", "ingest", "mcp", "migrate", "pipeline", "report", "serve", "transform"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("subcommands mismatch (-want +got):\n%s", diff)
	}
}

func TestTransformCmd_Status(t *testing.T) {
	status, _, err := transformCmd().Find([]string{"status"})
	if err != nil || status.Name() != "status" {
		t.Fatalf("expected a transform status subcommand, got %v", err)
	}

	var buf bytes.Buffer
	finished := time.Date(2026, 10, 17, 2, 0, 0, 0, time.UTC)
	err = writeModelRuns(&buf, []transform.ModelResult{
		{Model: "fct_claims", Status: "success", RowsAffected: 42, TestsPassed: 3, FinishedAt: finished},
		{Model: "stg_notes", Status: "error", Error: "relation missing", FinishedAt: finished},
	})
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "MODEL") {
		t.Fatalf("unexpected table:\n%s", buf.String())
	}
	if f := strings.Fields(lines[1]); len(f) != 5 || f[0] != "fct_claims" || f[2] != "42" || f[4] != "2026-10-17T02:00:00Z" {
		t.Errorf("unexpected row %q", lines[1])
	}
	if !strings.HasSuffix(lines[2], "relation missing") {
		t.Errorf("expected error column, got %q", lines[2])
	}
}

func TestGeneratorOptions(t *testing.T) {
	g := generatorOptions(pipeline.Options{"patients": 10, "seed": 0, "as_of": "2025-06-30", "providers": "3"})
	if g.Patients != 10 || g.Providers != 3 || g.Seed != 0 {
		t.Errorf("unexpected options: %+v", g)
	}
	if want := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC); !g.AsOf.Equal(want) {
		t.Errorf("as_of = %v, want %v", g.AsOf, want)
	}

	d := generatorOptions(nil)
	if d.Seed != 42 || d.Patients != 1000 {
		t.Errorf("expected generator defaults, got %+v", d)
	}
}

func TestResolveSigningKey(t *testing.T) {
	key, err := resolveSigningKey("")
	if err != nil || key != nil {
		t.Errorf("empty value: got %v, %v", key, err)
	}

	raw := bytes.Repeat([]byte{0xab}, 32)
	key, err = resolveSigningKey(hex.EncodeToString(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(key, raw) {
		t.Error("decoded key mismatch")
	}

	if _, err := resolveSigningKey("not-hex"); err == nil {
		t.Error("expected error for invalid hex")
	}
	if _, err := resolveSigningKey("abcd"); err == nil {
		t.Error("expected error for short key")
	}
}

func TestMigrationsFS(t *testing.T) {
	names := func(fsys fs.FS) []string {
		entries, err := fs.ReadDir(fsys, ".")
		if err != nil {
			t.Fatal(err)
		}
		var out []string
		for _, e := range entries {
			out = append(out, e.Name())
		}
		return out
	}

	embedded := names(migrationsFS(filepath.Join(t.TempDir(), "missing")))
	if len(embedded) == 0 || !strings.HasSuffix(embedded[0], ".sql") {
		t.Errorf("expected embedded migrations, got %v", embedded)
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "900_extra.sql"), []byte("SELECT 1;"), 0o644); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"900_extra.sql"}, names(migrationsFS(dir))); diff != "" {
		t.Errorf("on-disk migrations mismatch (-want +got):\n%s", diff)
	}
}

func TestLLMClient_RateLimited(t *testing.T) {
	cfg := &config.Config{LLMProvider: "anthropic", AnthropicAPIKey: "sk-test", LLMTimeout: time.Second, LLMRPS: 2}
	a := &app{cfg: cfg, logger: zerolog.Nop()}
	c, err := a.llmClient(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := c.(*llm.RateLimited); !ok {
		t.Errorf("LLM_RPS should throttle the client, got %T", c)
	}

	cfg.LLMRPS = 0
	if c, err = a.llmClient(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := c.(*llm.RateLimited); ok {
		t.Error("LLM_RPS 0 should leave the client unthrottled")
	}
}

func TestGenerateStep(t *testing.T) {
	dir := t.TempDir()
	a := &app{cfg: &config.Config{DataDir: dir}, logger: zerolog.Nop()}

	details, err := a.generateStep(context.Background(), pipeline.Options{
		"patients": 5, "providers": 2, "claims_per_patient": 2, "notes_per_claim": 1, "seed": 7,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if details["claims"] != 10 || details["notes"] != 10 || details["data_dir"] != dir {
		t.Errorf("unexpected details: %v", details)
	}
	for _, name := range []string{"raw_claims.csv", "raw_notes.csv", export.MetadataFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}
	meta, err := export.ReadMetadata(dir)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Seed != 7 || meta.Counts.Patients != 5 {
		t.Errorf("unexpected metadata: %+v", meta)
	}
}

type stubEvaluator struct{}

func (stubEvaluator) Evaluate(_ context.Context, id string, _ map[string]string) (*reporting.MeasureReport, error) {
	return &reporting.MeasureReport{MeasureID: id}, nil
}

func testConfig(env string) *config.Config {
	return &config.Config{
		Env:            env,
		CORSOrigins:    []string{"*"},
		RateLimitRPS:   100,
		RateLimitBurst: 100,
		LLMTimeout:     time.Second,
	}
}

func TestNewServer_HealthAndMetrics(t *testing.T) {
	e, err := newServer(testConfig("development"), zerolog.Nop(), metrics.New(), routeDeps{
		reports: reporting.NewHandler(stubEvaluator{}),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("health: %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reports/measures", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("dev auth should admit the request, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "claimsiq_http_request_duration_seconds") {
		t.Errorf("metrics: %d", rec.Code)
	}
}

func TestNewServer_ProductionRequiresToken(t *testing.T) {
	cfg := testConfig("production")
	cfg.AuthSigningKey = hex.EncodeToString(bytes.Repeat([]byte{1}, 32))
	e, err := newServer(cfg, zerolog.Nop(), metrics.New(), routeDeps{
		reports: reporting.NewHandler(stubEvaluator{}),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reports/measures", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without a token, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health should stay public, got %d", rec.Code)
	}
}

func TestNewServer_InvalidSigningKey(t *testing.T) {
	cfg := testConfig("production")
	cfg.AuthSigningKey = "zz"
	if _, err := newServer(cfg, zerolog.Nop(), nil, routeDeps{}); err == nil {
		t.Fatal("expected error for invalid signing key")
	}
}

func TestWriteAnswer(t *testing.T) {
	var buf bytes.Buffer
	writeAnswer(&buf, &assistant.Answer{
		Text:    "Denied for missing authorization [1].",
		Intent:  assistant.IntentClaimLookup,
		Model:   "extractive",
		Latency: 1500 * time.Microsecond,
		Citations: []assistant.Citation{
			{Index: 1, Kind: assistant.KindNote, Ref: "NOTE100000#0", Score: 0.75},
		},
	})
	out := buf.String()
	for _, want := range []string{"Denied for missing authorization [1].", "[1] note NOTE100000#0 (score 0.750)", "claim_lookup, extractive, 2ms"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}
}
