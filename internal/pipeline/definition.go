// Package pipeline chains the generate, ingest, transform and index steps
// into one recorded run, on demand or on a cron schedule.
package pipeline

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Step names.
const (
	StepGenerate  = "generate"
	StepIngest    = "ingest"
	StepTransform = "transform"
	StepIndex     = "index"
)

// KnownSteps lists the step names a definition may use, in canonical order.
var KnownSteps = []string{StepGenerate, StepIngest, StepTransform, StepIndex}

// Options carries per-step settings as decoded from YAML.
type Options map[string]any

// Int returns the integer option key, or def when absent or unparsable.
func (o Options) Int(key string, def int) int {
	switch v := o[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func (o Options) Bool(key string, def bool) bool {
	switch v := o[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

// Strings accepts either a YAML sequence or a comma separated string.
func (o Options) Strings(key string) []string {
	var raw []string
	switch v := o[key].(type) {
	case []any:
		for _, item := range v {
			raw = append(raw, fmt.Sprint(item))
		}
	case []string:
		raw = v
	case string:
		raw = strings.Split(v, ",")
	}
	out := raw[:0:0]
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

type StepConfig struct {
	Name    string  `yaml:"name" json:"name"`
	Options Options `yaml:"options,omitempty" json:"options,omitempty"`
}

// Definition is the YAML pipeline file.
type Definition struct {
	Name     string       `yaml:"name"`
	Schedule string       `yaml:"schedule,omitempty"`
	Steps    []StepConfig `yaml:"steps"`
}

// DefaultDefinition runs every step nightly at 02:00.
func DefaultDefinition() Definition {
	return Definition{
		Name:     "claimsiq",
		Schedule: "0 2 * * *",
		Steps: []StepConfig{
			{Name: StepGenerate},
			{Name: StepIngest},
			{Name: StepTransform},
			{Name: StepIndex},
		},
	}
}

func knownStep(name string) bool {
	for _, s := range KnownSteps {
		if s == name {
			return true
		}
	}
	return false
}

func (d Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("pipeline name is required")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("pipeline %s has no steps", d.Name)
	}
	seen := map[string]bool{}
	for _, s := range d.Steps {
		if !knownStep(s.Name) {
			return fmt.Errorf("pipeline %s: unknown step %q", d.Name, s.Name)
		}
		if seen[s.Name] {
			return fmt.Errorf("pipeline %s: step %q listed twice", d.Name, s.Name)
		}
		seen[s.Name] = true
	}
	if d.Schedule != "" {
		if _, err := cron.ParseStandard(d.Schedule); err != nil {
			return fmt.Errorf("pipeline %s: invalid schedule %q: %w", d.Name, d.Schedule, err)
		}
	}
	return nil
}

// Parse decodes and validates a YAML definition.
func Parse(data []byte) (Definition, error) {
	var d Definition
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Definition{}, fmt.Errorf("parse pipeline definition: %w", err)
	}
	if err := d.Validate(); err != nil {
		return Definition{}, err
	}
	return d, nil
}

// Load reads the definition at path. A missing file yields the default.
func Load(path string) (Definition, error) {
	if path == "" {
		return DefaultDefinition(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultDefinition(), nil
	}
	if err != nil {
		return Definition{}, fmt.Errorf("read pipeline definition: %w", err)
	}
	return Parse(data)
}
