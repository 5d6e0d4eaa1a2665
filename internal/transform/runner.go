package transform

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/claimsiq/claimsiq/internal/platform/db"
)

// Model statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

var errTestsFailed = errors.New("schema tests failed")

// DB is satisfied by *pgxpool.Pool.
type DB interface {
	db.Beginner
	db.Queryable
}

type TestFailure struct {
	Test     string `json:"test"`
	Failures int64  `json:"failures"`
}

type ModelResult struct {
	Model        string        `json:"model"`
	Status       string        `json:"status"`
	Incremental  bool          `json:"incremental,omitempty"`
	RowsAffected int64         `json:"rows_affected"`
	TestsPassed  int           `json:"tests_passed"`
	TestsFailed  []TestFailure `json:"tests_failed,omitempty"`
	Error        string        `json:"error,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
}

type RunResult struct {
	RunID  uuid.UUID     `json:"run_id"`
	Models []ModelResult `json:"models"`
}

func (r *RunResult) Failed() bool {
	for _, m := range r.Models {
		if m.Status == StatusError {
			return true
		}
	}
	return false
}

// RunRecorder persists per-model results.
type RunRecorder interface {
	RecordModel(ctx context.Context, runID uuid.UUID, res ModelResult) error
}

type RunOptions struct {
	Select []string
	// FullRefresh rebuilds incremental models from scratch.
	FullRefresh bool
}

type Runner struct {
	pool     DB
	graph    *Graph
	recorder RunRecorder
	logger   zerolog.Logger
}

func NewRunner(pool DB, graph *Graph, recorder RunRecorder, logger zerolog.Logger) *Runner {
	return &Runner{
		pool:     pool,
		graph:    graph,
		recorder: recorder,
		logger:   logger.With().Str("component", "transform").Logger(),
	}
}

// Run builds the selected models in dependency order. Each model is rebuilt
// and tested in its own transaction; a model whose tests fail is rolled back
// and every model downstream of it is skipped. The returned error covers
// selection and recording problems only; model failures are reported in
// the result.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	names, err := r.graph.Select(opts.Select)
	if err != nil {
		return nil, err
	}

	result := &RunResult{RunID: uuid.New()}
	failed := map[string]bool{}
	r.logger.Info().Str("run_id", result.RunID.String()).Strs("models", names).Msg("transform run started")

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		m, _ := r.graph.Model(name)

		var res ModelResult
		if blocked := r.blockedBy(m, failed); blocked != "" {
			now := time.Now().UTC()
			res = ModelResult{Model: name, Status: StatusSkipped, Error: "upstream " + blocked + " failed", StartedAt: now, FinishedAt: now}
			failed[name] = true
		} else {
			res = r.runModel(ctx, m, opts.FullRefresh)
			if res.Status == StatusError {
				failed[name] = true
			}
		}

		ev := r.logger.Info()
		if res.Status != StatusSuccess {
			ev = r.logger.Warn().Str("error", res.Error)
		}
		ev.Str("model", name).Str("status", res.Status).Int64("rows", res.RowsAffected).
			Int("tests_passed", res.TestsPassed).Int("tests_failed", len(res.TestsFailed)).Msg("model finished")

		result.Models = append(result.Models, res)
		if r.recorder != nil {
			if err := r.recorder.RecordModel(ctx, result.RunID, res); err != nil {
				return result, fmt.Errorf("record %s: %w", name, err)
			}
		}
	}
	return result, nil
}

func (r *Runner) blockedBy(m Model, failed map[string]bool) string {
	for _, dep := range m.DependsOn {
		if failed[dep] {
			return dep
		}
	}
	return ""
}

func (r *Runner) runModel(ctx context.Context, m Model, fullRefresh bool) ModelResult {
	res := ModelResult{Model: m.Name, StartedAt: time.Now().UTC()}

	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		q := db.Conn(ctx, r.pool)

		incremental := false
		if m.Incremental && !fullRefresh {
			exists, err := relationExists(ctx, q, m.Name)
			if err != nil {
				return err
			}
			incremental = exists
		}
		res.Incremental = incremental

		stmts := buildStatements(m)
		if incremental {
			stmts = incrementalStatements(m)
		}
		for _, stmt := range stmts {
			tag, err := q.Exec(ctx, stmt)
			if err != nil {
				return fmt.Errorf("build %s: %w", m.Name, err)
			}
			if incremental {
				res.RowsAffected += tag.RowsAffected()
			} else {
				res.RowsAffected = tag.RowsAffected()
			}
		}

		for _, t := range m.Tests {
			var n int64
			if err := q.QueryRow(ctx, testQuery(m.Name, t)).Scan(&n); err != nil {
				return fmt.Errorf("test %s on %s: %w", t.Name(), m.Name, err)
			}
			if n > 0 {
				res.TestsFailed = append(res.TestsFailed, TestFailure{Test: t.Name(), Failures: n})
			} else {
				res.TestsPassed++
			}
		}
		if len(res.TestsFailed) > 0 {
			return errTestsFailed
		}
		return nil
	})

	res.FinishedAt = time.Now().UTC()
	switch {
	case errors.Is(err, errTestsFailed):
		res.Status = StatusError
		failures := make([]string, len(res.TestsFailed))
		for i, f := range res.TestsFailed {
			failures[i] = fmt.Sprintf("%s: %d rows", f.Test, f.Failures)
		}
		res.Error = "schema tests failed: " + strings.Join(failures, "; ")
	case err != nil:
		res.Status = StatusError
		res.Error = err.Error()
	default:
		res.Status = StatusSuccess
	}
	return res
}

func relationExists(ctx context.Context, q db.Queryable, name string) (bool, error) {
	var exists bool
	if err := q.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", name).Scan(&exists); err != nil {
		return false, fmt.Errorf("check %s exists: %w", name, err)
	}
	return exists, nil
}

// PGRecorder writes model results to transform_runs.
type PGRecorder struct {
	pool db.Queryable
}

func NewPGRecorder(pool db.Queryable) *PGRecorder {
	return &PGRecorder{pool: pool}
}

func (p *PGRecorder) RecordModel(ctx context.Context, runID uuid.UUID, res ModelResult) error {
	var errText *string
	if res.Error != "" {
		errText = &res.Error
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO transform_runs (run_id, model, status, rows_affected, tests_passed, tests_failed, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		runID, res.Model, res.Status, res.RowsAffected, res.TestsPassed, len(res.TestsFailed), errText,
		res.StartedAt, res.FinishedAt)
	return err
}

// LastRuns returns the most recent result per model.
func (p *PGRecorder) LastRuns(ctx context.Context) ([]ModelResult, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT DISTINCT ON (model) model, status, rows_affected, tests_passed, COALESCE(error, ''), started_at, finished_at
		FROM transform_runs
		ORDER BY model, started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ModelResult
	for rows.Next() {
		var m ModelResult
		if err := rows.Scan(&m.Model, &m.Status, &m.RowsAffected, &m.TestsPassed, &m.Error, &m.StartedAt, &m.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
