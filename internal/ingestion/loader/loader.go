// Package loader copies raw-layer CSV files into the raw_* tables.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/claimsiq/claimsiq/internal/ingestion/export"
	"github.com/claimsiq/claimsiq/internal/platform/db"
	"github.com/claimsiq/claimsiq/internal/platform/metrics"
)

const DefaultChunkSize = 10000

// Tables lists the raw tables in foreign-key order.
var Tables = []string{"raw_icd10", "raw_cpt", "raw_patients", "raw_providers", "raw_claims", "raw_notes"}

// Result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusSkipped = "skipped"

	ReasonFileNotFound = "file_not_found"
)

// DB is satisfied by *pgxpool.Pool.
type DB interface {
	db.Beginner
	db.Queryable
}

type Migrator interface {
	Up(ctx context.Context) (int, error)
}

type Loader struct {
	pool      DB
	migrator  Migrator
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	ChunkSize int
}

func New(pool DB, migrator Migrator, logger zerolog.Logger, m *metrics.Metrics) *Loader {
	return &Loader{
		pool:      pool,
		migrator:  migrator,
		logger:    logger.With().Str("component", "loader").Logger(),
		metrics:   m,
		ChunkSize: DefaultChunkSize,
	}
}

// CreateRawTables applies pending migrations, which own the raw DDL.
func (l *Loader) CreateRawTables(ctx context.Context) error {
	n, err := l.migrator.Up(ctx)
	if err != nil {
		return fmt.Errorf("create raw tables: %w", err)
	}
	l.logger.Info().Int("applied", n).Msg("raw layer tables ready")
	return nil
}

func knownTable(table string) bool {
	for _, t := range Tables {
		if t == table {
			return true
		}
	}
	return false
}

// LoadTable replaces the contents of table with csvPath. The truncate and
// every copied chunk share one transaction, so a failed load leaves the
// previous contents in place.
func (l *Loader) LoadTable(ctx context.Context, csvPath, table string) (int64, error) {
	if !knownTable(table) {
		return 0, fmt.Errorf("load: unknown table %q", table)
	}
	if _, err := os.Stat(csvPath); err != nil {
		return 0, fmt.Errorf("load %s: %w", table, err)
	}

	l.logger.Info().Str("file", filepath.Base(csvPath)).Str("table", table).Msg("loading csv")

	var total int64
	err := db.WithTx(ctx, l.pool, func(ctx context.Context) error {
		tx := db.TxFromContext(ctx)
		// CASCADE empties dependent tables too; LoadAll refills them afterwards
		// because it walks Tables in foreign-key order.
		if _, err := tx.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", pgx.Identifier{table}.Sanitize())); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}

		r, err := export.OpenTable(csvPath)
		if err != nil {
			return err
		}
		defer r.Close()

		n, err := l.copyChunks(ctx, tx, table, r)
		total = n
		return err
	})
	if err != nil {
		return 0, err
	}

	l.metrics.AddRowsLoaded(table, total)
	l.logger.Info().Str("table", table).Int64("rows", total).Msg("table loaded")
	return total, nil
}

func (l *Loader) copyChunks(ctx context.Context, tx pgx.Tx, table string, r *export.Reader) (int64, error) {
	header := r.Header()
	size := l.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}

	var total int64
	line := 1
	for {
		chunk := make([][]any, 0, size)
		var readErr error
		for len(chunk) < size {
			row, err := r.Next()
			if err != nil {
				readErr = err
				break
			}
			line++
			values, err := convertRow(header, row)
			if err != nil {
				return total, fmt.Errorf("%s line %d: %w", table, line, err)
			}
			chunk = append(chunk, values)
		}
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return total, fmt.Errorf("read %s: %w", table, readErr)
		}

		if len(chunk) > 0 {
			n, err := tx.CopyFrom(ctx, pgx.Identifier{table}, header, pgx.CopyFromRows(chunk))
			if err != nil {
				return total, fmt.Errorf("copy into %s: %w", table, err)
			}
			total += n
			l.logger.Debug().Str("table", table).Int64("rows", n).Int64("total", total).Msg("chunk copied")
		}
		if readErr != nil {
			return total, nil
		}
	}
}

// Result is the per-table outcome of LoadAll.
type Result struct {
	Table      string `json:"table"`
	Status     string `json:"status"`
	RowsLoaded int64  `json:"rows_loaded,omitempty"`
	Error      string `json:"error,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

type Results []Result

// Failed reports whether any table errored. Skipped tables are not failures.
func (rs Results) Failed() bool {
	for _, r := range rs {
		if r.Status == StatusError {
			return true
		}
	}
	return false
}

func (rs Results) Rows() int64 {
	var n int64
	for _, r := range rs {
		n += r.RowsLoaded
	}
	return n
}

// LoadAll creates the raw tables and loads every {table}.csv found in dir.
// A failing table is reported and the remaining tables are still attempted.
func (l *Loader) LoadAll(ctx context.Context, dir string) (Results, error) {
	l.logger.Info().Str("data_dir", dir).Msg("starting raw data ingestion")
	if err := l.CreateRawTables(ctx); err != nil {
		return nil, err
	}

	results := make(Results, 0, len(Tables))
	for _, table := range Tables {
		path := filepath.Join(dir, table+".csv")
		res := Result{Table: table}

		n, err := l.LoadTable(ctx, path, table)
		switch {
		case errors.Is(err, os.ErrNotExist):
			l.logger.Warn().Str("file", filepath.Base(path)).Msg("csv file not found")
			res.Status, res.Reason = StatusSkipped, ReasonFileNotFound
		case err != nil:
			l.logger.Error().Err(err).Str("table", table).Msg("load failed")
			res.Status, res.Error = StatusError, err.Error()
		default:
			res.Status, res.RowsLoaded = StatusSuccess, n
		}
		results = append(results, res)
	}

	l.logger.Info().Int64("rows", results.Rows()).Bool("failed", results.Failed()).Msg("raw data ingestion completed")
	return results, nil
}

// Verify counts the rows of every raw table concurrently.
func (l *Loader) Verify(ctx context.Context) (map[string]int64, error) {
	counts := make([]int64, len(Tables))
	g, gctx := errgroup.WithContext(ctx)
	for i, table := range Tables {
		g.Go(func() error {
			q := fmt.Sprintf("SELECT COUNT(*) FROM %s", pgx.Identifier{table}.Sanitize())
			if err := l.pool.QueryRow(gctx, q).Scan(&counts[i]); err != nil {
				return fmt.Errorf("count %s: %w", table, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(Tables))
	for i, table := range Tables {
		out[table] = counts[i]
		l.logger.Info().Str("table", table).Int64("rows", counts[i]).Msg("verified")
	}
	return out, nil
}

type kind int

const (
	kindText kind = iota
	kindDate
	kindTimestamp
	kindNumeric
	kindBool
)

var columnKinds = map[string]kind{
	"date_of_birth":  kindDate,
	"claim_date":     kindDate,
	"admission_date": kindDate,
	"discharge_date": kindDate,
	"created_at":     kindTimestamp,
	"total_charge":   kindNumeric,
	"total_paid":     kindNumeric,
	"is_valid":       kindBool,
}

var timestampLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05", export.DateLayout}

func convertRow(header, row []string) ([]any, error) {
	out := make([]any, len(row))
	for i, raw := range row {
		v, err := convert(header[i], raw)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// convert turns one CSV field into the value bound to its column. Empty
// fields become NULL.
func convert(column, raw string) (any, error) {
	if raw == "" {
		return nil, nil
	}
	switch columnKinds[column] {
	case kindDate:
		t, err := time.Parse(export.DateLayout, raw)
		if err != nil {
			if t, err = parseTimestamp(raw); err != nil {
				return nil, fmt.Errorf("column %s: invalid date %q", column, raw)
			}
			y, m, d := t.Date()
			t = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		}
		return t, nil
	case kindTimestamp:
		t, err := parseTimestamp(raw)
		if err != nil {
			return nil, fmt.Errorf("column %s: invalid timestamp %q", column, raw)
		}
		return t, nil
	case kindNumeric:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("column %s: invalid number %q", column, raw)
		}
		return f, nil
	case kindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("column %s: invalid boolean %q", column, raw)
		}
		return b, nil
	default:
		return raw, nil
	}
}

func parseTimestamp(raw string) (time.Time, error) {
	var err error
	for _, layout := range timestampLayouts {
		var t time.Time
		if t, err = time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, err
}
