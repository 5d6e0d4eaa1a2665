// Package reporting evaluates predefined analytics measures over the claim
// facts built by the transform layer.
package reporting

import (
	"sort"
	"strings"
	"unicode"
)

// MeasureDefinition defines a reporting measure with its SQL query. The
// query receives $1 (from) and $2 (to) as nullable claim date bounds.
type MeasureDefinition struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	SQL         string   `json:"sql"`
	Parameters  []string `json:"parameters"`
	// Keywords route natural language questions to the measure.
	Keywords []string `json:"keywords,omitempty"`
}

const window = `($1::date IS NULL OR claim_date >= $1::date) AND ($2::date IS NULL OR claim_date <= $2::date)`

var windowParams = []string{"from", "to"}

// PredefinedMeasures is the list of available reporting measures.
var PredefinedMeasures = []MeasureDefinition{
	{
		ID:          "denial-rate-by-claim-type",
		Name:        "Denial Rate by Claim Type",
		Description: "Share of claims denied for each claim type",
		SQL: `SELECT claim_type, COUNT(*) AS claims,
       COUNT(*) FILTER (WHERE is_denied) AS denied_claims,
       ROUND(COUNT(*) FILTER (WHERE is_denied)::numeric / NULLIF(COUNT(*), 0), 4) AS denial_rate
FROM fct_claims
WHERE ` + window + `
GROUP BY claim_type
ORDER BY denial_rate DESC, claim_type`,
		Parameters: windowParams,
		Keywords:   []string{"denial rate", "denial rates", "deny rate", "rate of denial", "denied by type", "claim type", "claim types"},
	},
	{
		ID:          "top-denial-reasons",
		Name:        "Top Denial Reasons",
		Description: "Denied claims and charges per denial reason",
		SQL: `SELECT denial_reason, COUNT(*) AS denied_claims,
       SUM(total_charge) AS denied_charges,
       ROUND(COUNT(*)::numeric / SUM(COUNT(*)) OVER (), 4) AS share_of_denials
FROM fct_claims
WHERE is_denied AND ` + window + `
GROUP BY denial_reason
ORDER BY denied_claims DESC, denial_reason`,
		Parameters: windowParams,
		Keywords:   []string{"denial reason", "denial reasons", "reasons", "why denied", "top denial", "most common denial"},
	},
	{
		ID:          "paid-ratio-by-provider-type",
		Name:        "Paid Ratio by Provider Type",
		Description: "Average paid to charge ratio and totals for each provider type",
		SQL: `SELECT COALESCE(provider_type, 'UNKNOWN') AS provider_type, COUNT(*) AS claims,
       ROUND(AVG(paid_ratio), 4) AS avg_paid_ratio,
       SUM(total_charge) AS total_charge, SUM(total_paid) AS total_paid
FROM fct_claims
WHERE ` + window + `
GROUP BY 1
ORDER BY avg_paid_ratio DESC, provider_type`,
		Parameters: windowParams,
		Keywords:   []string{"paid ratio", "reimbursement", "payment rate", "provider type", "provider types", "paid"},
	},
	{
		ID:          "claims-volume-by-month",
		Name:        "Claims Volume by Month",
		Description: "Claims, denials and amounts per claim month",
		SQL: `SELECT claim_month, COUNT(*) AS claims,
       COUNT(*) FILTER (WHERE is_denied) AS denied_claims,
       SUM(total_charge) AS total_charge, SUM(total_paid) AS total_paid
FROM fct_claims
WHERE ` + window + `
GROUP BY claim_month
ORDER BY claim_month`,
		Parameters: windowParams,
		Keywords:   []string{"volume", "per month", "monthly", "by month", "trend", "how many claims", "over time"},
	},
	{
		ID:          "inpatient-length-of-stay",
		Name:        "Inpatient Length of Stay",
		Description: "Average and maximum inpatient stay per diagnosis category",
		SQL: `SELECT diagnosis_category, COUNT(*) AS stays,
       ROUND(AVG(length_of_stay), 2) AS avg_length_of_stay,
       MAX(length_of_stay) AS max_length_of_stay,
       COUNT(*) FILTER (WHERE length_of_stay > 10) AS long_stays
FROM fct_claims
WHERE claim_type = 'INPATIENT' AND ` + window + `
GROUP BY diagnosis_category
ORDER BY avg_length_of_stay DESC, diagnosis_category`,
		Parameters: windowParams,
		Keywords:   []string{"length of stay", "los", "stay", "stays", "inpatient days", "hospital days"},
	},
	{
		ID:          "denials-by-diagnosis-category",
		Name:        "Denials by Diagnosis Category",
		Description: "Claims, denials and denial rate per diagnosis category",
		SQL: `SELECT diagnosis_category, COUNT(*) AS claims,
       COUNT(*) FILTER (WHERE is_denied) AS denied_claims,
       ROUND(COUNT(*) FILTER (WHERE is_denied)::numeric / NULLIF(COUNT(*), 0), 4) AS denial_rate
FROM fct_claims
WHERE ` + window + `
GROUP BY diagnosis_category
ORDER BY denied_claims DESC, diagnosis_category`,
		Parameters: windowParams,
		Keywords:   []string{"diagnosis category", "diagnosis categories", "by diagnosis", "category", "categories", "condition"},
	},
}

// FindMeasure looks up a measure by ID.
func FindMeasure(id string) *MeasureDefinition {
	for i := range PredefinedMeasures {
		if PredefinedMeasures[i].ID == id {
			return &PredefinedMeasures[i]
		}
	}
	return nil
}

// normalizeText lowercases s and collapses everything but letters and
// digits into single spaces, padded so keywords match on word boundaries.
func normalizeText(s string) string {
	var b strings.Builder
	b.WriteByte(' ')
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	if !space {
		b.WriteByte(' ')
	}
	return b.String()
}

// MatchMeasures returns the measures whose keywords appear in text, best
// match first. Longer keyword matches weigh more.
func MatchMeasures(text string) []MeasureDefinition {
	norm := normalizeText(text)
	type scored struct {
		def   MeasureDefinition
		score int
	}
	var matches []scored
	for _, def := range PredefinedMeasures {
		score := 0
		for _, kw := range def.Keywords {
			if strings.Contains(norm, normalizeText(kw)) {
				score += len(strings.Fields(kw))
			}
		}
		if score > 0 {
			matches = append(matches, scored{def, score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })
	out := make([]MeasureDefinition, len(matches))
	for i, m := range matches {
		out[i] = m.def
	}
	return out
}
