package denials

import (
	"fmt"

	"github.com/claimsiq/claimsiq/internal/domain/claims"
)

// Finding severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Finding is the outcome of one rule firing against a claim.
type Finding struct {
	RuleID   string `json:"rule_id"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// Rule inspects a claim and returns a finding when it applies.
type Rule struct {
	ID    string
	Check func(c *claims.Claim) *Finding
}

// paidBand is the expected paid/charge ratio window per status.
type paidBand struct{ min, max float64 }

var paidBands = map[string]paidBand{
	claims.StatusApproved: {0.70, 0.95},
	claims.StatusPartial:  {0.30, 0.60},
	claims.StatusDenied:   {0, 0},
	claims.StatusPending:  {0, 0},
	claims.StatusRejected: {0, 0},
}

// LongStayDays is the inpatient stay length flagged for review.
const LongStayDays = 10

// DefaultRules is the rule set applied by Evaluate, in reporting order.
var DefaultRules = []Rule{
	{ID: "denial-reason", Check: checkDenialReason},
	{ID: "reason-coherence", Check: checkCoherence},
	{ID: "appealability", Check: checkAppeal},
	{ID: "high-risk-diagnosis", Check: checkHighRiskDiagnosis},
	{ID: "high-charge-facility", Check: checkHighCharge},
	{ID: "long-inpatient-stay", Check: checkLongStay},
	{ID: "paid-ratio", Check: checkPaidRatio},
}

// Evaluate runs DefaultRules against a claim.
func Evaluate(c *claims.Claim) []Finding {
	return EvaluateRules(c, DefaultRules)
}

// EvaluateRules runs rules in order and returns their findings, each stamped
// with the id of the rule that produced it. The result is never nil.
func EvaluateRules(c *claims.Claim, rules []Rule) []Finding {
	findings := []Finding{}
	for _, r := range rules {
		if f := r.Check(c); f != nil {
			f.RuleID = r.ID
			findings = append(findings, *f)
		}
	}
	return findings
}

func reasonOf(c *claims.Claim) string {
	if c.DenialReason == nil {
		return ""
	}
	return *c.DenialReason
}

func checkDenialReason(c *claims.Claim) *Finding {
	if !c.IsDenied() {
		return nil
	}
	reason := reasonOf(c)
	if reason == "" {
		return &Finding{Severity: SeverityCritical, Message: "Claim is denied without a recorded denial reason."}
	}
	return &Finding{
		Severity: SeverityWarning,
		Message:  fmt.Sprintf("Denied for %s: %s", reason, Explain(reason)),
	}
}

func checkCoherence(c *claims.Claim) *Finding {
	reason := reasonOf(c)
	if !c.IsDenied() || reason == "" {
		return nil
	}
	if IsCoherent(reason, c.PrimaryDiagnosisCode, c.ClaimType) {
		return nil
	}
	return &Finding{
		Severity: SeverityWarning,
		Message: fmt.Sprintf("Denial reason %s is atypical for diagnosis %s on a %s claim; expected one of %v.",
			reason, c.PrimaryDiagnosisCode, c.ClaimType, CandidateReasons(c.PrimaryDiagnosisCode, c.ClaimType)),
	}
}

func checkAppeal(c *claims.Claim) *Finding {
	reason := reasonOf(c)
	if !c.IsDenied() || reason == "" {
		return nil
	}
	r, ok := Lookup(reason)
	if !ok {
		return nil
	}
	if r.Appealable {
		return &Finding{Severity: SeverityInfo, Message: "Appealable. " + r.Remediation}
	}
	return &Finding{Severity: SeverityInfo, Message: "Not normally appealable. " + r.Remediation}
}

func checkHighRiskDiagnosis(c *claims.Claim) *Finding {
	if !HighRiskDiagnoses[c.PrimaryDiagnosisCode] {
		return nil
	}
	return &Finding{
		Severity: SeverityInfo,
		Message:  fmt.Sprintf("Diagnosis %s carries an elevated denial rate; authorization and documentation are commonly required.", c.PrimaryDiagnosisCode),
	}
}

func checkHighCharge(c *claims.Claim) *Finding {
	if c.TotalCharge <= 10000 || (c.ClaimType != claims.TypeInpatient && c.ClaimType != claims.TypeAmbulatory) {
		return nil
	}
	return &Finding{
		Severity: SeverityWarning,
		Message:  fmt.Sprintf("High-charge %s claim ($%.2f) falls in the highest denial-risk band.", c.ClaimType, c.TotalCharge),
	}
}

func checkLongStay(c *claims.Claim) *Finding {
	if c.ClaimType != claims.TypeInpatient {
		return nil
	}
	if los := c.LengthOfStay(); los > LongStayDays {
		return &Finding{
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("Inpatient stay of %d days exceeds %d days and is likely to need concurrent review.", los, LongStayDays),
		}
	}
	return nil
}

func checkPaidRatio(c *claims.Claim) *Finding {
	band, ok := paidBands[c.ClaimStatus]
	if !ok {
		return nil
	}
	ratio := c.PaidRatio()
	const eps = 0.005
	if ratio >= band.min-eps && ratio <= band.max+eps {
		return nil
	}
	return &Finding{
		Severity: SeverityCritical,
		Message: fmt.Sprintf("Paid ratio %.2f is outside the expected %.2f-%.2f range for %s claims.",
			ratio, band.min, band.max, c.ClaimStatus),
	}
}
