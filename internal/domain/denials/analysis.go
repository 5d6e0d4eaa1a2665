package denials

import "github.com/claimsiq/claimsiq/internal/domain/claims"

// Analysis is the denial review of a single claim.
type Analysis struct {
	Claim            *claims.ClaimDetail `json:"claim"`
	Findings         []Finding           `json:"findings"`
	CandidateReasons []string            `json:"candidate_reasons"`
	Probability      float64             `json:"denial_probability"`
	Reason           *Reason             `json:"reason,omitempty"`
}

// Analyze evaluates the rules against a claim and attaches the ontology view.
func Analyze(d *claims.ClaimDetail) *Analysis {
	a := &Analysis{
		Claim:            d,
		Findings:         Evaluate(&d.Claim),
		CandidateReasons: CandidateReasons(d.PrimaryDiagnosisCode, d.ClaimType),
		Probability:      DenialProbability(d.ClaimType, d.PrimaryDiagnosisCode, d.TotalCharge),
	}
	if code := reasonOf(&d.Claim); code != "" {
		if r, ok := Lookup(code); ok {
			a.Reason = &r
		}
	}
	return a
}
