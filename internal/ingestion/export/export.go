// Package export writes generated datasets as raw-layer CSV files and reads
// them back as header-keyed records.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/claimsiq/claimsiq/internal/domain/claims"
	"github.com/claimsiq/claimsiq/internal/ingestion/generator"
)

const (
	DateLayout   = "2006-01-02"
	MetadataFile = "generation_metadata.json"
)

// Table is one raw-layer file. Name doubles as the target table name.
type Table struct {
	Name   string
	Header []string
	Rows   [][]string
}

func (t Table) FileName() string { return t.Name + ".csv" }

// Tables flattens a dataset in export order.
func Tables(ds *generator.Dataset) []Table {
	icd := Table{Name: "raw_icd10", Header: []string{"code", "description", "category", "is_valid"}}
	for _, c := range ds.ICD10 {
		icd.Rows = append(icd.Rows, []string{c.Code, c.Description, c.Category, strconv.FormatBool(c.IsValid)})
	}
	cpt := Table{Name: "raw_cpt", Header: []string{"code", "description", "category", "is_valid"}}
	for _, c := range ds.CPT {
		cpt.Rows = append(cpt.Rows, []string{c.Code, c.Description, c.Category, strconv.FormatBool(c.IsValid)})
	}

	patients := Table{Name: "raw_patients", Header: []string{"patient_id", "date_of_birth", "gender", "zip_code", "state", "created_at"}}
	for _, p := range ds.Patients {
		patients.Rows = append(patients.Rows, []string{
			p.PatientID, date(p.DateOfBirth), p.Gender, p.ZipCode, p.State, timestamp(p.CreatedAt),
		})
	}

	providers := Table{Name: "raw_providers", Header: []string{
		"provider_id", "npi", "provider_name", "provider_type", "specialty", "address", "city", "state", "zip_code", "created_at",
	}}
	for _, p := range ds.Providers {
		providers.Rows = append(providers.Rows, []string{
			p.ProviderID, p.NPI, p.ProviderName, p.ProviderType, opt(p.Specialty),
			p.Address, p.City, p.State, p.ZipCode, timestamp(p.CreatedAt),
		})
	}

	cl := Table{Name: "raw_claims", Header: []string{
		"claim_id", "patient_id", "provider_id", "claim_date", "admission_date", "discharge_date", "claim_type",
		"total_charge", "total_paid", "claim_status", "denial_reason", "primary_diagnosis_code",
		"primary_procedure_code", "created_at",
	}}
	for _, src := range ds.Claims {
		c := *src
		claims.NormalizeClaim(&c)
		cl.Rows = append(cl.Rows, []string{
			c.ClaimID, c.PatientID, c.ProviderID, date(c.ClaimDate), optDate(c.AdmissionDate), optDate(c.DischargeDate),
			c.ClaimType, amount(c.TotalCharge), amount(c.TotalPaid), c.ClaimStatus, opt(c.DenialReason),
			c.PrimaryDiagnosisCode, opt(c.PrimaryProcedureCode), timestamp(c.CreatedAt),
		})
	}

	notes := Table{Name: "raw_notes", Header: []string{"note_id", "claim_id", "note_type", "note_text", "created_at"}}
	for _, n := range ds.Notes {
		notes.Rows = append(notes.Rows, []string{n.NoteID, n.ClaimID, n.NoteType, n.NoteText, timestamp(n.CreatedAt)})
	}

	return []Table{icd, cpt, patients, providers, cl, notes}
}

// WriteDataset writes one CSV per non-empty table into dir and returns the
// written paths.
func WriteDataset(dir string, ds *generator.Dataset) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("export: create %s: %w", dir, err)
	}
	var written []string
	for _, t := range Tables(ds) {
		if len(t.Rows) == 0 {
			continue
		}
		path := filepath.Join(dir, t.FileName())
		if err := writeTable(path, t); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func writeTable(path string, t Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create %s: %w", path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("export %s: write header: %w", t.Name, err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("export %s: write rows: %w", t.Name, err)
	}
	return f.Close()
}

type Metadata struct {
	GenerationDate time.Time        `json:"generation_date"`
	Seed           uint64           `json:"seed"`
	Counts         generator.Counts `json:"counts"`
}

func NewMetadata(ds *generator.Dataset, seed uint64, now time.Time) Metadata {
	return Metadata{GenerationDate: now.UTC(), Seed: seed, Counts: ds.Counts()}
}

// WriteMetadata writes generation_metadata.json into dir.
func WriteMetadata(dir string, meta Metadata) (string, error) {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("export: marshal metadata: %w", err)
	}
	path := filepath.Join(dir, MetadataFile)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("export: write metadata: %w", err)
	}
	return path, nil
}

func ReadMetadata(dir string) (Metadata, error) {
	var meta Metadata
	data, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("export: decode metadata: %w", err)
	}
	return meta, nil
}

// Record is one CSV row keyed by header column.
type Record map[string]string

// Reader streams records of a raw-layer CSV file.
type Reader struct {
	f      *os.File
	r      *csv.Reader
	header []string
}

// OpenTable opens path and reads its header row. A missing file yields an
// error wrapping os.ErrNotExist.
func OpenTable(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}
	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		f.Close()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: missing header row", path)
		}
		return nil, fmt.Errorf("%s: read header: %w", path, err)
	}
	r.FieldsPerRecord = len(header)
	return &Reader{f: f, r: r, header: header}, nil
}

func (r *Reader) Header() []string { return r.header }

// Next returns the next row in header order, or io.EOF.
func (r *Reader) Next() ([]string, error) {
	return r.r.Read()
}

func (r *Reader) Close() error { return r.f.Close() }

// ReadTable calls fn for every record of path.
func ReadTable(path string, fn func(Record) error) error {
	r, err := OpenTable(path)
	if err != nil {
		return err
	}
	defer r.Close()

	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		rec := make(Record, len(row))
		for i, col := range r.header {
			rec[col] = row[i]
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

func date(t time.Time) string { return t.Format(DateLayout) }

func timestamp(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func amount(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

func opt(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return date(*t)
}
