package assistant

import (
	"strings"

	"github.com/claimsiq/claimsiq/internal/domain/claims"
	"github.com/claimsiq/claimsiq/internal/reporting"
)

type Intent string

const (
	IntentClaimLookup    Intent = "claim_lookup"
	IntentAnalytics      Intent = "analytics"
	IntentClinicalSearch Intent = "clinical_search"
)

// Classification is the routing decision for a question.
type Classification struct {
	Intent   Intent   `json:"intent"`
	ClaimIDs []string `json:"claim_ids,omitempty"`
	Measures []string `json:"measures,omitempty"`
}

// Classify routes a question: claim ids win, then measure keywords, and
// everything else is a clinical search.
func Classify(text string) Classification {
	var c Classification
	seen := map[string]bool{}
	for _, m := range claims.ClaimIDInText.FindAllString(text, -1) {
		id := strings.ToUpper(m)
		if !seen[id] {
			seen[id] = true
			c.ClaimIDs = append(c.ClaimIDs, id)
		}
	}
	for _, def := range reporting.MatchMeasures(text) {
		c.Measures = append(c.Measures, def.ID)
	}

	switch {
	case len(c.ClaimIDs) > 0:
		c.Intent = IntentClaimLookup
	case len(c.Measures) > 0:
		c.Intent = IntentAnalytics
	default:
		c.Intent = IntentClinicalSearch
	}
	return c
}
