package reporting

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// fakeRows serves fixed values through the pgx.Rows interface.
type fakeRows struct {
	cols []string
	data [][]interface{}
	i    int
}

func (r *fakeRows) Close() {}
func (r *fakeRows) Err() error { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription {
	out := make([]pgconn.FieldDescription, len(r.cols))
	for i, c := range r.cols {
		out[i] = pgconn.FieldDescription{Name: c}
	}
	return out
}
func (r *fakeRows) Next() bool {
	r.i++
	return r.i <= len(r.data)
}
func (r *fakeRows) Scan(...interface{}) error { return errors.New("not supported") }
func (r *fakeRows) Values() ([]interface{}, error) { return r.data[r.i-1], nil }
func (r *fakeRows) RawValues() [][]byte { return nil }
func (r *fakeRows) Conn() *pgx.Conn { return nil }

type fakeDB struct {
	rows  *fakeRows
	err   error
	sql   string
	args  []interface{}
	calls int
}

func (f *fakeDB) Query(_ context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	f.calls++
	f.sql, f.args = sql, args
	if f.err != nil {
		return nil, f.err
	}
	f.rows.i = 0
	return f.rows, nil
}

func (f *fakeDB) QueryRow(context.Context, string, ...interface{}) pgx.Row { return nil }

func (f *fakeDB) Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func numeric(t *testing.T, s string) pgtype.Numeric {
	t.Helper()
	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestService_Evaluate(t *testing.T) {
	rows := &fakeRows{
		cols: []string{"claim_type", "claims", "denied_claims", "denial_rate"},
		data: [][]interface{}{
			{"INPATIENT", int64(100), int64(21), numeric(t, "0.2100")},
			{"EMERGENCY", int64(40), int64(2), numeric(t, "0.05")},
		},
	}
	fdb := &fakeDB{rows: rows}
	svc := NewService(fdb)
	svc.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

	report, err := svc.Evaluate(context.Background(), "denial-rate-by-claim-type", map[string]string{
		"from":    "2024-01-01",
		"ignored": "x",
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	want := &MeasureReport{
		MeasureID:   "denial-rate-by-claim-type",
		MeasureName: "Denial Rate by Claim Type",
		GeneratedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Columns:     rows.cols,
		Results: []map[string]interface{}{
			{"claim_type": "INPATIENT", "claims": int64(100), "denied_claims": int64(21), "denial_rate": 0.21},
			{"claim_type": "EMERGENCY", "claims": int64(40), "denied_claims": int64(2), "denial_rate": 0.05},
		},
		Parameters: map[string]string{"from": "2024-01-01"},
	}
	if diff := cmp.Diff(want, report); diff != "" {
		t.Errorf("report (-want +got):\n%s", diff)
	}
	if len(fdb.args) != 2 || fdb.args[1] != nil {
		t.Errorf("expected from bound and to NULL, got %v", fdb.args)
	}
	if from, ok := fdb.args[0].(time.Time); !ok || from.Format(dateLayout) != "2024-01-01" {
		t.Errorf("from argument = %v", fdb.args[0])
	}
}

func TestService_EvaluateErrors(t *testing.T) {
	fdb := &fakeDB{rows: &fakeRows{}}
	svc := NewService(fdb)
	ctx := context.Background()

	if _, err := svc.Evaluate(ctx, "nope", nil); !errors.Is(err, ErrUnknownMeasure) {
		t.Errorf("expected ErrUnknownMeasure, got %v", err)
	}
	if _, err := svc.Evaluate(ctx, "top-denial-reasons", map[string]string{"to": "01/02/2024"}); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter, got %v", err)
	}
	if fdb.calls != 0 {
		t.Error("invalid requests must not reach the database")
	}

	fdb.err = errors.New(`relation "fct_claims" does not exist`)
	_, err := svc.Evaluate(ctx, "top-denial-reasons", nil)
	if err == nil || !strings.Contains(err.Error(), "fct_claims") {
		t.Errorf("expected wrapped query error, got %v", err)
	}
}

func TestService_EvaluateAll(t *testing.T) {
	fdb := &fakeDB{rows: &fakeRows{cols: []string{"n"}}}
	reports, err := NewService(fdb).EvaluateAll(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != len(PredefinedMeasures) || fdb.calls != len(PredefinedMeasures) {
		t.Errorf("expected one report per measure, got %d", len(reports))
	}
	if reports[0].Results == nil {
		t.Error("empty results should encode as [] not null")
	}
}

func TestPlainValue(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	if got := plainValue(day); got != "2024-03-01" {
		t.Errorf("date = %v", got)
	}
	if got := plainValue(pgtype.Numeric{}); got != nil {
		t.Errorf("invalid numeric = %v", got)
	}
	if got := plainValue([]byte("x")); got != "x" {
		t.Errorf("bytes = %v", got)
	}
}

func TestMeasureReport_Text(t *testing.T) {
	r := &MeasureReport{
		MeasureID:   "top-denial-reasons",
		MeasureName: "Top Denial Reasons",
		Columns:     []string{"denial_reason", "denied_claims"},
		Results: []map[string]interface{}{
			{"denial_reason": "PRE_AUTH_REQUIRED", "denied_claims": int64(12)},
			{"denial_reason": "TIMELY_FILING", "denied_claims": int64(3)},
			{"denial_reason": "DUPLICATE_CLAIM", "denied_claims": int64(1)},
		},
	}
	got := r.Text(2)
	want := "Top Denial Reasons (top-denial-reasons)\n" +
		"denial_reason | denied_claims\n" +
		"PRE_AUTH_REQUIRED | 12\n" +
		"TIMELY_FILING | 3\n" +
		"... 1 more rows\n"
	if got != want {
		t.Errorf("Text =\n%s\nwant\n%s", got, want)
	}
}

func TestWritePDF(t *testing.T) {
	reports := []*MeasureReport{{
		MeasureID:   "inpatient-length-of-stay",
		MeasureName: "Inpatient Length of Stay",
		GeneratedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Columns:     []string{"diagnosis_category", "stays", "avg_length_of_stay"},
		Results: []map[string]interface{}{
			{"diagnosis_category": "Endocrine, nutritional and metabolic diseases", "stays": int64(9), "avg_length_of_stay": 7.25},
		},
		Parameters: map[string]string{"from": "2024-01-01"},
	}, {
		MeasureID:   "top-denial-reasons",
		MeasureName: "Top Denial Reasons",
		Columns:     []string{"denial_reason"},
		Results:     []map[string]interface{}{},
	}}

	var buf bytes.Buffer
	if err := WritePDF(&buf, reports); err != nil {
		t.Fatalf("WritePDF: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Error("output is not a PDF")
	}

	buf.Reset()
	if err := WritePDF(&buf, nil); err != nil || buf.Len() == 0 {
		t.Errorf("empty report set should still render: %v", err)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 30); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("Endocrine, nutritional and metabolic diseases", 17); got != "Endocri..." {
		t.Errorf("truncate = %q", got)
	}
}
