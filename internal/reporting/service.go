package reporting

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/claimsiq/claimsiq/internal/platform/db"
)

var (
	ErrUnknownMeasure   = errors.New("measure not found")
	ErrInvalidParameter = errors.New("invalid measure parameter")
)

const dateLayout = "2006-01-02"

// MeasureReport holds the results of evaluating a measure.
type MeasureReport struct {
	MeasureID   string                   `json:"measure_id"`
	MeasureName string                   `json:"measure_name"`
	GeneratedAt time.Time                `json:"generated_at"`
	Columns     []string                 `json:"columns"`
	Results     []map[string]interface{} `json:"results"`
	Parameters  map[string]string        `json:"parameters,omitempty"`
}

type Service struct {
	pool db.Queryable
	now  func() time.Time
}

func NewService(pool db.Queryable) *Service {
	return &Service{pool: pool, now: time.Now}
}

// windowArgs turns the from/to parameters into nullable date arguments.
func windowArgs(params map[string]string) ([]interface{}, error) {
	args := make([]interface{}, 0, len(windowParams))
	for _, name := range windowParams {
		v := strings.TrimSpace(params[name])
		if v == "" {
			args = append(args, nil)
			continue
		}
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be YYYY-MM-DD", ErrInvalidParameter, name)
		}
		args = append(args, t)
	}
	return args, nil
}

// Evaluate runs one measure. Unknown parameters are ignored.
func (s *Service) Evaluate(ctx context.Context, id string, params map[string]string) (*MeasureReport, error) {
	def := FindMeasure(id)
	if def == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMeasure, id)
	}
	args, err := windowArgs(params)
	if err != nil {
		return nil, err
	}

	used := map[string]string{}
	for _, p := range def.Parameters {
		if v := params[p]; v != "" {
			used[p] = v
		}
	}

	cols, results, err := s.executeSQL(ctx, def.SQL, args...)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", id, err)
	}
	return &MeasureReport{
		MeasureID:   def.ID,
		MeasureName: def.Name,
		GeneratedAt: s.now().UTC(),
		Columns:     cols,
		Results:     results,
		Parameters:  used,
	}, nil
}

// EvaluateAll runs every predefined measure in catalog order.
func (s *Service) EvaluateAll(ctx context.Context, params map[string]string) ([]*MeasureReport, error) {
	out := make([]*MeasureReport, 0, len(PredefinedMeasures))
	for _, def := range PredefinedMeasures {
		r, err := s.Evaluate(ctx, def.ID, params)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// executeSQL runs a query and returns its column names and rows as maps.
func (s *Service) executeSQL(ctx context.Context, sql string, args ...interface{}) ([]string, []map[string]interface{}, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	cols := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		cols[i] = fd.Name
	}

	results := []map[string]interface{}{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, nil, err
		}
		row := make(map[string]interface{}, len(cols))
		for i, c := range cols {
			row[c] = plainValue(values[i])
		}
		results = append(results, row)
	}
	return cols, results, rows.Err()
}

// plainValue converts driver types into JSON friendly values.
func plainValue(v interface{}) interface{} {
	switch x := v.(type) {
	case pgtype.Numeric:
		if !x.Valid {
			return nil
		}
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format(dateLayout)
		}
		return x.UTC().Format(time.RFC3339)
	case []byte:
		return string(x)
	}
	return v
}

// FormatValue renders a result cell for text and PDF output.
func FormatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case string:
		return x
	}
	return fmt.Sprint(v)
}

// Text renders the report as a plain text table of at most maxRows rows.
func (r *MeasureReport) Text(maxRows int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", r.MeasureName, r.MeasureID)
	b.WriteString(strings.Join(r.Columns, " | "))
	b.WriteByte('\n')
	for i, row := range r.Results {
		if maxRows > 0 && i == maxRows {
			fmt.Fprintf(&b, "... %d more rows\n", len(r.Results)-maxRows)
			break
		}
		cells := make([]string, len(r.Columns))
		for j, c := range r.Columns {
			cells[j] = FormatValue(row[c])
		}
		b.WriteString(strings.Join(cells, " | "))
		b.WriteByte('\n')
	}
	if len(r.Results) == 0 {
		b.WriteString("(no rows)\n")
	}
	return b.String()
}
