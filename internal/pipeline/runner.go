package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/claimsiq/claimsiq/internal/platform/db"
	"github.com/claimsiq/claimsiq/internal/platform/logging"
	"github.com/claimsiq/claimsiq/internal/platform/metrics"
)

// Run and step statuses.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Triggers.
const (
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
)

// Details is the free-form summary a step reports, e.g. rows loaded.
type Details map[string]any

// StepFunc executes one step with its configured options.
type StepFunc func(ctx context.Context, opts Options) (Details, error)

type StepResult struct {
	Name       string        `json:"name"`
	Status     string        `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration_ns"`
	Details    Details       `json:"details,omitempty"`
	Error      string        `json:"error,omitempty"`
}

type Run struct {
	ID          uuid.UUID    `json:"run_id"`
	Pipeline    string       `json:"pipeline"`
	TriggeredBy string       `json:"triggered_by"`
	Status      string       `json:"status"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`
	Error       string       `json:"error,omitempty"`
	Steps       []StepResult `json:"steps"`
}

// RunRecorder persists run history.
type RunRecorder interface {
	Start(ctx context.Context, run *Run) error
	Finish(ctx context.Context, run *Run) error
}

type Runner struct {
	def      Definition
	steps    map[string]StepFunc
	recorder RunRecorder
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu sync.Mutex
}

// NewRunner checks that every step of def has an implementation.
func NewRunner(def Definition, steps map[string]StepFunc, recorder RunRecorder, logger zerolog.Logger, m *metrics.Metrics) (*Runner, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	for _, s := range def.Steps {
		if steps[s.Name] == nil {
			return nil, fmt.Errorf("pipeline %s: no implementation for step %q", def.Name, s.Name)
		}
	}
	return &Runner{
		def:      def,
		steps:    steps,
		recorder: recorder,
		logger:   logging.Component(logger, "pipeline"),
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *Runner) Definition() Definition { return r.def }

// Run executes the steps in order. The first failing step stops the run and
// the remaining steps are reported as skipped. Runs on one Runner never
// overlap; a second caller waits.
func (r *Runner) Run(ctx context.Context, trigger string) (*Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if trigger == "" {
		trigger = TriggerManual
	}
	run := &Run{
		ID:          uuid.New(),
		Pipeline:    r.def.Name,
		TriggeredBy: trigger,
		Status:      StatusRunning,
		StartedAt:   r.now(),
	}
	log := r.logger.With().Str("run_id", run.ID.String()).Str("pipeline", run.Pipeline).Logger()
	log.Info().Str("triggered_by", trigger).Int("steps", len(r.def.Steps)).Msg("pipeline run started")
	r.record(ctx, log, run, true)

	var runErr error
	for _, cfg := range r.def.Steps {
		if runErr != nil {
			run.Steps = append(run.Steps, StepResult{Name: cfg.Name, Status: StatusSkipped})
			continue
		}
		if err := ctx.Err(); err != nil {
			runErr = err
			run.Steps = append(run.Steps, StepResult{Name: cfg.Name, Status: StatusSkipped, Error: err.Error()})
			continue
		}

		res := r.runStep(ctx, log, cfg)
		run.Steps = append(run.Steps, res)
		if res.Status == StatusFailed {
			runErr = fmt.Errorf("step %s: %s", cfg.Name, res.Error)
		}
	}

	finished := r.now()
	run.FinishedAt = &finished
	run.Status = StatusSuccess
	if runErr != nil {
		run.Status = StatusFailed
		run.Error = runErr.Error()
	}
	// The caller's context may already be cancelled; history is still written.
	r.record(context.WithoutCancel(ctx), log, run, false)

	ev := log.Info()
	if runErr != nil {
		ev = log.Error().Str("error", run.Error)
	}
	ev.Str("status", run.Status).Dur("duration", finished.Sub(run.StartedAt)).Msg("pipeline run finished")
	return run, runErr
}

func (r *Runner) runStep(ctx context.Context, log zerolog.Logger, cfg StepConfig) StepResult {
	res := StepResult{Name: cfg.Name, StartedAt: r.now()}
	log.Info().Str("step", cfg.Name).Msg("step started")

	start := time.Now()
	details, err := r.steps[cfg.Name](ctx, cfg.Options)
	res.Duration = time.Since(start)
	res.FinishedAt = r.now()
	res.Details = details
	r.metrics.ObserveStep(r.def.Name, cfg.Name, err, res.Duration)

	if err != nil {
		res.Status, res.Error = StatusFailed, err.Error()
		log.Error().Err(err).Str("step", cfg.Name).Dur("duration", res.Duration).Msg("step failed")
		return res
	}
	res.Status = StatusSuccess
	log.Info().Str("step", cfg.Name).Dur("duration", res.Duration).Interface("details", details).Msg("step finished")
	return res
}

func (r *Runner) record(ctx context.Context, log zerolog.Logger, run *Run, start bool) {
	if r.recorder == nil {
		return
	}
	var err error
	if start {
		err = r.recorder.Start(ctx, run)
	} else {
		err = r.recorder.Finish(ctx, run)
	}
	if err != nil {
		log.Warn().Err(err).Msg("failed to record pipeline run")
	}
}

// PGRecorder writes runs to pipeline_runs.
type PGRecorder struct {
	pool db.Queryable
}

func NewPGRecorder(pool db.Queryable) *PGRecorder {
	return &PGRecorder{pool: pool}
}

func (p *PGRecorder) Start(ctx context.Context, run *Run) error {
	_, err := db.Conn(ctx, p.pool).Exec(ctx, `
		INSERT INTO pipeline_runs (run_id, pipeline, triggered_by, status, started_at)
		VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.Pipeline, run.TriggeredBy, run.Status, run.StartedAt)
	return err
}

func (p *PGRecorder) Finish(ctx context.Context, run *Run) error {
	steps, err := json.Marshal(run.Steps)
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}
	var errText *string
	if run.Error != "" {
		errText = &run.Error
	}
	_, err = db.Conn(ctx, p.pool).Exec(ctx, `
		UPDATE pipeline_runs SET status = $2, finished_at = $3, error = $4, steps = $5::jsonb
		WHERE run_id = $1`,
		run.ID, run.Status, run.FinishedAt, errText, string(steps))
	return err
}

// Recent returns the latest runs, newest first.
func (p *PGRecorder) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.Conn(ctx, p.pool).Query(ctx, `
		SELECT run_id, pipeline, triggered_by, status, started_at, finished_at, COALESCE(error, ''), steps::text
		FROM pipeline_runs
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			run   Run
			steps string
		)
		if err := rows.Scan(&run.ID, &run.Pipeline, &run.TriggeredBy, &run.Status, &run.StartedAt, &run.FinishedAt, &run.Error, &steps); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(steps), &run.Steps); err != nil {
			return nil, fmt.Errorf("decode steps of run %s: %w", run.ID, err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}
