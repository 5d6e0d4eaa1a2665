// Package generator synthesizes a coherent claims dataset: lookup tables,
// patients, providers, claims whose denials follow the denial ontology, and
// clinical notes that reference their claim.
package generator

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/claimsiq/claimsiq/internal/domain/claims"
)

type Options struct {
	Patients         int
	Providers        int
	ClaimsPerPatient int
	NotesPerClaim    int
	// Seed 0 selects a random seed.
	Seed uint64
	// AsOf anchors every relative date. Zero means today (UTC).
	AsOf time.Time
}

func DefaultOptions() Options {
	return Options{
		Patients:         1000,
		Providers:        100,
		ClaimsPerPatient: 3,
		NotesPerClaim:    1,
		Seed:             42,
	}
}

// ID bases.
const (
	patientIDBase  = 100000
	providerIDBase = 10000
	claimIDBase    = 1000000
	noteIDBase     = 100000
)

type Dataset struct {
	ICD10     []claims.ICD10Code
	CPT       []claims.CPTCode
	Patients  []*claims.Patient
	Providers []*claims.Provider
	Claims    []*claims.Claim
	Notes     []*claims.Note
}

// Counts is the per-table record count written to the generation metadata.
type Counts struct {
	Patients   int `json:"patients"`
	Providers  int `json:"providers"`
	Claims     int `json:"claims"`
	Notes      int `json:"notes"`
	ICD10Codes int `json:"icd10_codes"`
	CPTCodes   int `json:"cpt_codes"`
}

func (d *Dataset) Counts() Counts {
	return Counts{
		Patients:   len(d.Patients),
		Providers:  len(d.Providers),
		Claims:     len(d.Claims),
		Notes:      len(d.Notes),
		ICD10Codes: len(d.ICD10),
		CPTCodes:   len(d.CPT),
	}
}

func (o Options) validate() error {
	switch {
	case o.Patients < 0 || o.Providers < 0 || o.ClaimsPerPatient < 0 || o.NotesPerClaim < 0:
		return fmt.Errorf("generator: counts must not be negative")
	case o.Patients > 0 && o.ClaimsPerPatient > 0 && o.Providers == 0:
		return fmt.Errorf("generator: claims need at least one provider")
	}
	return nil
}

// Generate builds a dataset. Identical options produce an identical dataset.
func Generate(opts Options) (*Dataset, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	asOf := opts.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	asOf = day(asOf)

	// Each stage draws from its own stream so changing one count does not
	// reshuffle the records of the other stages.
	seed := opts.Seed
	if seed == 0 {
		seed = gofakeit.New(0).Uint64()
	}

	ds := &Dataset{ICD10: ICD10Codes(), CPT: CPTCodes()}
	ds.Patients = generatePatients(gofakeit.New(seed), opts.Patients, asOf)
	ds.Providers = generateProviders(gofakeit.New(seed+1), opts.Providers, asOf)
	ds.Claims = generateClaims(gofakeit.New(seed+2), ds, opts.ClaimsPerPatient, asOf)
	ds.Notes = generateNotes(gofakeit.New(seed+3), ds.Claims, opts.NotesPerClaim, asOf)

	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}

// Validate checks every record of the dataset.
func (d *Dataset) Validate() error {
	for i := range d.ICD10 {
		if err := claims.Validate(&d.ICD10[i]); err != nil {
			return fmt.Errorf("icd10 %s: %w", d.ICD10[i].Code, err)
		}
	}
	for i := range d.CPT {
		if err := claims.Validate(&d.CPT[i]); err != nil {
			return fmt.Errorf("cpt %s: %w", d.CPT[i].Code, err)
		}
	}
	for _, p := range d.Patients {
		if err := claims.Validate(p); err != nil {
			return fmt.Errorf("patient %s: %w", p.PatientID, err)
		}
	}
	for _, p := range d.Providers {
		if err := claims.Validate(p); err != nil {
			return fmt.Errorf("provider %s: %w", p.ProviderID, err)
		}
	}
	for _, c := range d.Claims {
		if err := claims.Validate(c); err != nil {
			return fmt.Errorf("claim %s: %w", c.ClaimID, err)
		}
	}
	for _, n := range d.Notes {
		if err := claims.Validate(n); err != nil {
			return fmt.Errorf("note %s: %w", n.NoteID, err)
		}
	}
	return nil
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// pick returns one of options according to weights.
func pick(f *gofakeit.Faker, options []string, weights []float32) string {
	opts := make([]any, len(options))
	for i, o := range options {
		opts[i] = o
	}
	v, err := f.Weighted(opts, weights)
	if err != nil {
		return options[0]
	}
	return v.(string)
}

func strPtr(s string) *string { return &s }
