package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/claimsiq/claimsiq/internal/platform/metrics"
)

type memRecorder struct {
	started  []Run
	finished []Run
	err      error
}

func (m *memRecorder) Start(_ context.Context, run *Run) error {
	m.started = append(m.started, *run)
	return m.err
}

func (m *memRecorder) Finish(_ context.Context, run *Run) error {
	m.finished = append(m.finished, *run)
	return m.err
}

// stepLog builds step funcs that append their name to calls.
func stepLog(calls *[]string, fail map[string]error) map[string]StepFunc {
	out := map[string]StepFunc{}
	for _, name := range KnownSteps {
		name := name
		out[name] = func(_ context.Context, opts Options) (Details, error) {
			*calls = append(*calls, name)
			if err := fail[name]; err != nil {
				return nil, err
			}
			return Details{"seed": opts.Int("seed", 0)}, nil
		}
	}
	return out
}

func statuses(run *Run) []string {
	var out []string
	for _, s := range run.Steps {
		out = append(out, s.Name+"="+s.Status)
	}
	return out
}

func TestRunner_Success(t *testing.T) {
	def := DefaultDefinition()
	def.Steps[0].Options = Options{"seed": 9}

	var calls []string
	rec := &memRecorder{}
	m := metrics.New()
	r, err := NewRunner(def, stepLog(&calls, nil), rec, zerolog.New(io.Discard), m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	run, err := r.Run(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(KnownSteps, calls); diff != "" {
		t.Errorf("step order mismatch (-want +got):\n%s", diff)
	}
	if run.Status != StatusSuccess || run.TriggeredBy != TriggerManual || run.FinishedAt == nil {
		t.Errorf("unexpected run: %+v", run)
	}
	if got := run.Steps[0].Details["seed"]; got != 9 {
		t.Errorf("generate details seed = %v, want 9", got)
	}

	if len(rec.started) != 1 || rec.started[0].Status != StatusRunning {
		t.Errorf("expected one running start record, got %+v", rec.started)
	}
	if len(rec.finished) != 1 || rec.finished[0].ID != run.ID || len(rec.finished[0].Steps) != 4 {
		t.Errorf("unexpected finish record: %+v", rec.finished)
	}

	n, err := testutil.GatherAndCount(m.Registry(), "claimsiq_pipeline_step_duration_seconds")
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("expected 4 step series, got %d", n)
	}
}

func TestRunner_FailingStepStopsRun(t *testing.T) {
	var calls []string
	rec := &memRecorder{}
	steps := stepLog(&calls, map[string]error{StepIngest: errors.New("copy raw_claims: connection reset")})
	r, err := NewRunner(DefaultDefinition(), steps, rec, zerolog.New(io.Discard), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	run, err := r.Run(context.Background(), TriggerSchedule)
	if err == nil || !strings.Contains(err.Error(), "step ingest") {
		t.Fatalf("expected ingest failure, got %v", err)
	}
	if diff := cmp.Diff([]string{StepGenerate, StepIngest}, calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	want := []string{"generate=success", "ingest=failed", "transform=skipped", "index=skipped"}
	if diff := cmp.Diff(want, statuses(run)); diff != "" {
		t.Errorf("statuses mismatch (-want +got):\n%s", diff)
	}
	if run.Status != StatusFailed || !strings.Contains(run.Error, "connection reset") {
		t.Errorf("unexpected run: %+v", run)
	}
	if rec.finished[0].Status != StatusFailed {
		t.Errorf("expected failed run recorded, got %s", rec.finished[0].Status)
	}
}

func TestRunner_CancelledContext(t *testing.T) {
	var calls []string
	r, err := NewRunner(DefaultDefinition(), stepLog(&calls, nil), nil, zerolog.New(io.Discard), nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := r.Run(ctx, TriggerManual)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(calls) != 0 {
		t.Errorf("expected no steps to run, got %v", calls)
	}
	if run.Status != StatusFailed {
		t.Errorf("expected failed run, got %s", run.Status)
	}
}

func TestRunner_RecorderErrorDoesNotFailRun(t *testing.T) {
	var calls []string
	rec := &memRecorder{err: errors.New("pipeline_runs does not exist")}
	r, err := NewRunner(DefaultDefinition(), stepLog(&calls, nil), rec, zerolog.New(io.Discard), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Run(context.Background(), TriggerManual); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewRunner_MissingStep(t *testing.T) {
	var calls []string
	steps := stepLog(&calls, nil)
	delete(steps, StepIndex)
	_, err := NewRunner(DefaultDefinition(), steps, nil, zerolog.New(io.Discard), nil)
	if err == nil || !strings.Contains(err.Error(), `"index"`) {
		t.Fatalf("expected missing implementation error, got %v", err)
	}
}
