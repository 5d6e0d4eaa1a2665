package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sampleDefinition = `
name: nightly
schedule: "30 1 * * *"
steps:
  - name: generate
    options:
      patients: 250
      seed: 7
  - name: ingest
  - name: transform
    options:
      select: [fct_claims+, dim_patients]
      full_refresh: true
  - name: index
    options:
      reindex: "yes"
`

func TestParse(t *testing.T) {
	d, err := Parse([]byte(sampleDefinition))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Name != "nightly" || d.Schedule != "30 1 * * *" {
		t.Errorf("unexpected header: %+v", d)
	}
	var names []string
	for _, s := range d.Steps {
		names = append(names, s.Name)
	}
	if diff := cmp.Diff(KnownSteps, names); diff != "" {
		t.Errorf("step order mismatch (-want +got):\n%s", diff)
	}

	gen := d.Steps[0].Options
	if got := gen.Int("patients", 0); got != 250 {
		t.Errorf("patients = %d, want 250", got)
	}
	if got := gen.Int("providers", 100); got != 100 {
		t.Errorf("providers default = %d, want 100", got)
	}

	tr := d.Steps[2].Options
	if diff := cmp.Diff([]string{"fct_claims+", "dim_patients"}, tr.Strings("select")); diff != "" {
		t.Errorf("select mismatch (-want +got):\n%s", diff)
	}
	if !tr.Bool("full_refresh", false) {
		t.Error("expected full_refresh")
	}
	// "yes" is not a boolean literal for strconv.
	if d.Steps[3].Options.Bool("reindex", false) {
		t.Error("expected unparsable reindex to fall back to default")
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no name", "steps: [{name: ingest}]", "name is required"},
		{"no steps", "name: x", "no steps"},
		{"unknown step", "name: x\nsteps: [{name: deploy}]", `unknown step "deploy"`},
		{"duplicate", "name: x\nsteps: [{name: index}, {name: index}]", "listed twice"},
		{"bad schedule", "name: x\nschedule: every day\nsteps: [{name: index}]", "invalid schedule"},
		{"bad yaml", "name: [", "parse pipeline definition"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	d, err := Load(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(DefaultDefinition(), d); diff != "" {
		t.Errorf("expected default definition (-want +got):\n%s", diff)
	}

	path := filepath.Join(dir, "pipeline.yaml")
	if err := os.WriteFile(path, []byte(sampleDefinition), 0o644); err != nil {
		t.Fatal(err)
	}
	d, err = Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Name != "nightly" || len(d.Steps) != 4 {
		t.Errorf("unexpected definition: %+v", d)
	}
}

func TestDefaultDefinition_Valid(t *testing.T) {
	if err := DefaultDefinition().Validate(); err != nil {
		t.Fatalf("default definition invalid: %v", err)
	}
}

func TestOptions_Strings(t *testing.T) {
	o := Options{"csv": " a, ,b ", "none": 3}
	if diff := cmp.Diff([]string{"a", "b"}, o.Strings("csv")); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if got := o.Strings("none"); len(got) != 0 {
		t.Errorf("expected no values, got %v", got)
	}
	if got := o.Strings("missing"); len(got) != 0 {
		t.Errorf("expected no values, got %v", got)
	}
}
