package denials

import (
	"sort"

	"github.com/claimsiq/claimsiq/internal/domain/claims"
)

// Denial reason codes.
const (
	InsufficientInfo      = "INSUFFICIENT_INFO"
	NotMedicallyNecessary = "NOT_MEDICALLY_NECESSARY"
	DuplicateClaim        = "DUPLICATE_CLAIM"
	AuthorizationRequired = "AUTHORIZATION_REQUIRED"
	PreAuthRequired       = "PRE_AUTH_REQUIRED"
	TimelyFiling          = "TIMELY_FILING"
)

// Reason categories.
const (
	CategoryDocumentation  = "documentation"
	CategoryClinical       = "clinical"
	CategoryAdministrative = "administrative"
)

// Reason describes one denial reason in the ontology.
type Reason struct {
	Code        string `json:"code"`
	Explanation string `json:"explanation"`
	Category    string `json:"category"`
	Appealable  bool   `json:"appealable"`
	Remediation string `json:"remediation"`
}

var catalog = map[string]Reason{
	InsufficientInfo: {
		Code:        InsufficientInfo,
		Explanation: "Claim denied due to missing or incomplete documentation required for processing.",
		Category:    CategoryDocumentation,
		Appealable:  true,
		Remediation: "Resubmit with the missing clinical documentation and complete coding.",
	},
	NotMedicallyNecessary: {
		Code:        NotMedicallyNecessary,
		Explanation: "Services were determined not to be medically necessary based on clinical guidelines.",
		Category:    CategoryClinical,
		Appealable:  true,
		Remediation: "Appeal with clinical notes that document medical necessity against payer guidelines.",
	},
	DuplicateClaim: {
		Code:        DuplicateClaim,
		Explanation: "Claim denied as duplicate of previously submitted claim.",
		Category:    CategoryAdministrative,
		Appealable:  false,
		Remediation: "Reconcile against the original submission; correct and void duplicates instead of appealing.",
	},
	AuthorizationRequired: {
		Code:        AuthorizationRequired,
		Explanation: "Prior authorization was required but not obtained before service delivery.",
		Category:    CategoryAdministrative,
		Appealable:  true,
		Remediation: "Request retroactive authorization where the payer allows it, then resubmit.",
	},
	PreAuthRequired: {
		Code:        PreAuthRequired,
		Explanation: "Pre-authorization was required but not obtained.",
		Category:    CategoryAdministrative,
		Appealable:  true,
		Remediation: "Obtain pre-authorization for the service and resubmit with the authorization number.",
	},
	TimelyFiling: {
		Code:        TimelyFiling,
		Explanation: "Claim submitted outside of timely filing window.",
		Category:    CategoryAdministrative,
		Appealable:  false,
		Remediation: "Appeal only with proof of timely original submission.",
	},
}

var defaultReasons = []string{InsufficientInfo, NotMedicallyNecessary}

var diagnosisReasons = map[string][]string{
	"E11.9":   {NotMedicallyNecessary, PreAuthRequired, InsufficientInfo},
	"E10.9":   {NotMedicallyNecessary, PreAuthRequired},
	"I10":     {NotMedicallyNecessary, InsufficientInfo},
	"M54.5":   {AuthorizationRequired, PreAuthRequired, NotMedicallyNecessary},
	"M25.561": {AuthorizationRequired, PreAuthRequired},
	"J44.1":   {InsufficientInfo, DuplicateClaim},
	"J18.9":   {InsufficientInfo, TimelyFiling},
	"F41.9":   {PreAuthRequired, AuthorizationRequired, NotMedicallyNecessary},
	"F32.9":   {PreAuthRequired, AuthorizationRequired},
}

var claimTypeReasons = map[string][]string{
	claims.TypeInpatient:  {AuthorizationRequired, PreAuthRequired, NotMedicallyNecessary},
	claims.TypeOutpatient: {NotMedicallyNecessary, InsufficientInfo, PreAuthRequired},
	claims.TypeEmergency:  {InsufficientInfo, TimelyFiling},
	claims.TypePhysician:  {NotMedicallyNecessary, InsufficientInfo},
	claims.TypeAmbulatory: {AuthorizationRequired, PreAuthRequired},
}

// HighRiskDiagnoses are diagnoses with an elevated denial rate.
var HighRiskDiagnoses = map[string]bool{
	"E11.9": true,
	"M54.5": true,
	"F41.9": true,
	"F32.9": true,
}

// Lookup returns the reason for a code.
func Lookup(code string) (Reason, bool) {
	r, ok := catalog[code]
	return r, ok
}

// Explain returns the explanation text for a reason code.
func Explain(code string) string {
	if r, ok := catalog[code]; ok {
		return r.Explanation
	}
	return "Claim was denied."
}

// Reasons returns the full catalog sorted by code.
func Reasons() []Reason {
	out := make([]Reason, 0, len(catalog))
	for _, r := range catalog {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// DiagnosisReasons returns the denial reasons associated with a diagnosis.
func DiagnosisReasons(diagnosis string) []string {
	if r, ok := diagnosisReasons[diagnosis]; ok {
		return r
	}
	return defaultReasons
}

// ClaimTypeReasons returns the denial reasons associated with a claim type.
func ClaimTypeReasons(claimType string) []string {
	if r, ok := claimTypeReasons[claimType]; ok {
		return r
	}
	return defaultReasons
}

// CandidateReasons returns reasons coherent with both the diagnosis and the
// claim type, in diagnosis order. When the two sets do not overlap the
// diagnosis reasons win.
func CandidateReasons(diagnosis, claimType string) []string {
	dx := DiagnosisReasons(diagnosis)
	byType := make(map[string]bool)
	for _, r := range ClaimTypeReasons(claimType) {
		byType[r] = true
	}
	var out []string
	for _, r := range dx {
		if byType[r] {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), dx...)
	}
	return out
}

// IsCoherent reports whether reason is among the candidate reasons for the
// diagnosis and claim type.
func IsCoherent(reason, diagnosis, claimType string) bool {
	for _, r := range CandidateReasons(diagnosis, claimType) {
		if r == reason {
			return true
		}
	}
	return false
}

// DenialProbability is the prior probability that a claim with these
// attributes is denied.
func DenialProbability(claimType, diagnosis string, charge float64) float64 {
	switch {
	case charge > 10000 && (claimType == claims.TypeInpatient || claimType == claims.TypeAmbulatory):
		return 0.25
	case HighRiskDiagnoses[diagnosis]:
		return 0.20
	case claimType == claims.TypeEmergency:
		return 0.05
	default:
		return 0.15
	}
}
