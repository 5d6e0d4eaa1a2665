// Package transform builds the analytics layer (staging views, dimensions,
// facts and aggregates) from the raw tables, in dependency order, with
// schema tests and run history.
package transform

import (
	"fmt"
	"regexp"
)

type Materialization string

const (
	MaterializeView  Materialization = "view"
	MaterializeTable Materialization = "table"
)

// Schema test kinds.
const (
	TestNotNull        = "not_null"
	TestUnique         = "unique"
	TestAcceptedValues = "accepted_values"
	TestRelationships  = "relationships"
)

// SchemaTest asserts a property of one column. Values applies to
// accepted_values; To and Field to relationships.
type SchemaTest struct {
	Kind   string   `json:"kind" yaml:"kind"`
	Column string   `json:"column" yaml:"column"`
	Values []string `json:"values,omitempty" yaml:"values,omitempty"`
	To     string   `json:"to,omitempty" yaml:"to,omitempty"`
	Field  string   `json:"field,omitempty" yaml:"field,omitempty"`
}

func (t SchemaTest) Name() string {
	if t.Kind == TestRelationships {
		return fmt.Sprintf("%s(%s->%s.%s)", t.Kind, t.Column, t.To, t.Field)
	}
	return fmt.Sprintf("%s(%s)", t.Kind, t.Column)
}

type Model struct {
	Name            string
	Description     string
	Materialization Materialization
	SQL             string
	DependsOn       []string
	Tests           []SchemaTest
	// Incremental tables are merged by UniqueKey once the table exists:
	// changed and vanished rows are replaced or removed, new keys inserted.
	Incremental bool
	UniqueKey   string
}

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func (m Model) validate() error {
	if !identRe.MatchString(m.Name) {
		return fmt.Errorf("model %q: invalid name", m.Name)
	}
	switch m.Materialization {
	case MaterializeView, MaterializeTable:
	default:
		return fmt.Errorf("model %s: unknown materialization %q", m.Name, m.Materialization)
	}
	if m.SQL == "" {
		return fmt.Errorf("model %s: empty SQL", m.Name)
	}
	if m.Incremental {
		if m.Materialization != MaterializeTable {
			return fmt.Errorf("model %s: incremental models must be tables", m.Name)
		}
		if !identRe.MatchString(m.UniqueKey) {
			return fmt.Errorf("model %s: incremental model needs a unique_key", m.Name)
		}
	}
	for _, t := range m.Tests {
		if !identRe.MatchString(t.Column) {
			return fmt.Errorf("model %s: test %s has invalid column", m.Name, t.Kind)
		}
		switch t.Kind {
		case TestNotNull, TestUnique:
		case TestAcceptedValues:
			if len(t.Values) == 0 {
				return fmt.Errorf("model %s: accepted_values(%s) without values", m.Name, t.Column)
			}
		case TestRelationships:
			if !identRe.MatchString(t.To) || !identRe.MatchString(t.Field) {
				return fmt.Errorf("model %s: relationships(%s) needs to and field", m.Name, t.Column)
			}
		default:
			return fmt.Errorf("model %s: unknown test %q", m.Name, t.Kind)
		}
	}
	return nil
}

var (
	claimTypes    = []string{"INPATIENT", "OUTPATIENT", "EMERGENCY", "AMBULATORY", "PHYSICIAN"}
	claimStatuses = []string{"APPROVED", "DENIED", "PENDING", "PARTIAL", "REJECTED"}
	providerTypes = []string{"PHYSICIAN", "HOSPITAL", "CLINIC", "EMERGENCY", "AMBULATORY", "LABORATORY", "IMAGING"}
	ageBands      = []string{"0-17", "18-34", "35-49", "50-64", "65+"}
)

// DefaultModels is the built-in project.
func DefaultModels() []Model {
	return []Model{
		{
			Name:            "stg_claims",
			Description:     "Raw claims with normalized codes and non-null amounts.",
			Materialization: MaterializeView,
			SQL: `SELECT claim_id, patient_id, provider_id, claim_date, admission_date, discharge_date,
       UPPER(TRIM(claim_type)) AS claim_type,
       UPPER(TRIM(claim_status)) AS claim_status,
       NULLIF(TRIM(denial_reason), '') AS denial_reason,
       UPPER(TRIM(primary_diagnosis_code)) AS diagnosis_code,
       NULLIF(TRIM(primary_procedure_code), '') AS procedure_code,
       COALESCE(total_charge, 0)::numeric(12,2) AS total_charge,
       COALESCE(total_paid, 0)::numeric(12,2) AS total_paid,
       created_at
FROM raw_claims`,
			Tests: []SchemaTest{
				{Kind: TestNotNull, Column: "claim_id"},
				{Kind: TestUnique, Column: "claim_id"},
				{Kind: TestAcceptedValues, Column: "claim_type", Values: claimTypes},
				{Kind: TestAcceptedValues, Column: "claim_status", Values: claimStatuses},
			},
		},
		{
			Name:            "stg_patients",
			Description:     "Raw patients.",
			Materialization: MaterializeView,
			SQL: `SELECT patient_id, date_of_birth, UPPER(gender) AS gender, LEFT(zip_code, 3) AS zip3,
       UPPER(state) AS state, created_at
FROM raw_patients`,
			Tests: []SchemaTest{
				{Kind: TestNotNull, Column: "patient_id"},
				{Kind: TestUnique, Column: "patient_id"},
				{Kind: TestAcceptedValues, Column: "gender", Values: []string{"M", "F", "O", "U"}},
			},
		},
		{
			Name:            "stg_providers",
			Description:     "Raw providers.",
			Materialization: MaterializeView,
			SQL: `SELECT provider_id, npi, provider_name, UPPER(provider_type) AS provider_type,
       specialty, city, UPPER(state) AS state, created_at
FROM raw_providers`,
			Tests: []SchemaTest{
				{Kind: TestNotNull, Column: "provider_id"},
				{Kind: TestUnique, Column: "provider_id"},
				{Kind: TestAcceptedValues, Column: "provider_type", Values: providerTypes},
			},
		},
		{
			Name:            "dim_patient",
			Description:     "One row per patient with current age and age band.",
			Materialization: MaterializeTable,
			DependsOn:       []string{"stg_patients"},
			SQL: `SELECT patient_id, date_of_birth, gender, zip3, state, age,
       CASE WHEN age < 18 THEN '0-17'
            WHEN age < 35 THEN '18-34'
            WHEN age < 50 THEN '35-49'
            WHEN age < 65 THEN '50-64'
            ELSE '65+' END AS age_band
FROM (
    SELECT p.*, DATE_PART('year', AGE(CURRENT_DATE, p.date_of_birth))::int AS age
    FROM stg_patients p
) aged`,
			Tests: []SchemaTest{
				{Kind: TestUnique, Column: "patient_id"},
				{Kind: TestAcceptedValues, Column: "age_band", Values: ageBands},
			},
		},
		{
			Name:            "dim_provider",
			Description:     "One row per provider; facilities flagged.",
			Materialization: MaterializeTable,
			DependsOn:       []string{"stg_providers"},
			SQL: `SELECT provider_id, npi, provider_name, provider_type,
       COALESCE(specialty, 'N/A') AS specialty, city, state,
       provider_type IN ('HOSPITAL', 'EMERGENCY', 'AMBULATORY') AS is_facility
FROM stg_providers`,
			Tests: []SchemaTest{
				{Kind: TestUnique, Column: "provider_id"},
				{Kind: TestNotNull, Column: "provider_type"},
			},
		},
		{
			Name:            "fct_claims",
			Description:     "Claim facts joined with patient, provider and diagnosis context.",
			Materialization: MaterializeTable,
			DependsOn:       []string{"stg_claims", "dim_patient", "dim_provider"},
			Incremental:     true,
			UniqueKey:       "claim_id",
			SQL: `SELECT c.claim_id, c.patient_id, c.provider_id, c.claim_date,
       DATE_TRUNC('month', c.claim_date)::date AS claim_month,
       c.claim_type, c.claim_status, c.denial_reason,
       c.claim_status = 'DENIED' AS is_denied,
       c.diagnosis_code, COALESCE(i.category, 'Unknown') AS diagnosis_category,
       c.procedure_code,
       c.total_charge, c.total_paid,
       CASE WHEN c.total_charge > 0 THEN ROUND(c.total_paid / c.total_charge, 4) ELSE 0 END AS paid_ratio,
       CASE WHEN c.admission_date IS NOT NULL AND c.discharge_date IS NOT NULL
            THEN c.discharge_date - c.admission_date END AS length_of_stay,
       pr.provider_type, pa.age_band
FROM stg_claims c
LEFT JOIN raw_icd10 i ON i.code = c.diagnosis_code
LEFT JOIN dim_provider pr ON pr.provider_id = c.provider_id
LEFT JOIN dim_patient pa ON pa.patient_id = c.patient_id`,
			Tests: []SchemaTest{
				{Kind: TestNotNull, Column: "claim_id"},
				{Kind: TestUnique, Column: "claim_id"},
				{Kind: TestRelationships, Column: "patient_id", To: "dim_patient", Field: "patient_id"},
				{Kind: TestRelationships, Column: "provider_id", To: "dim_provider", Field: "provider_id"},
			},
		},
		{
			Name:            "agg_denials_by_reason",
			Description:     "Denied claims per denial reason.",
			Materialization: MaterializeTable,
			DependsOn:       []string{"fct_claims"},
			SQL: `SELECT denial_reason,
       COUNT(*) AS denied_claims,
       SUM(total_charge) AS denied_charges,
       ROUND(AVG(total_charge), 2) AS avg_charge,
       ROUND(COUNT(*)::numeric / SUM(COUNT(*)) OVER (), 4) AS share_of_denials
FROM fct_claims
WHERE is_denied
GROUP BY denial_reason`,
			Tests: []SchemaTest{
				{Kind: TestNotNull, Column: "denial_reason"},
				{Kind: TestUnique, Column: "denial_reason"},
			},
		},
		{
			Name:            "agg_claims_monthly",
			Description:     "Claim volume, denials and payments per month and claim type.",
			Materialization: MaterializeTable,
			DependsOn:       []string{"fct_claims"},
			SQL: `SELECT claim_month, claim_type,
       COUNT(*) AS claims,
       COUNT(*) FILTER (WHERE is_denied) AS denied_claims,
       ROUND(COUNT(*) FILTER (WHERE is_denied)::numeric / COUNT(*), 4) AS denial_rate,
       SUM(total_charge) AS total_charge,
       SUM(total_paid) AS total_paid
FROM fct_claims
GROUP BY claim_month, claim_type`,
			Tests: []SchemaTest{
				{Kind: TestNotNull, Column: "claim_month"},
				{Kind: TestAcceptedValues, Column: "claim_type", Values: claimTypes},
			},
		},
	}
}
