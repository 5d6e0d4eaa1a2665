package denials

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/claimsiq/claimsiq/internal/domain/claims"
)

func strPtr(s string) *string { return &s }

func TestCandidateReasons(t *testing.T) {
	tests := []struct {
		diagnosis string
		claimType string
		want      []string
	}{
		// intersection keeps diagnosis order
		{"E11.9", claims.TypeOutpatient, []string{NotMedicallyNecessary, PreAuthRequired, InsufficientInfo}},
		{"E11.9", claims.TypeInpatient, []string{NotMedicallyNecessary, PreAuthRequired}},
		{"M54.5", claims.TypeAmbulatory, []string{AuthorizationRequired, PreAuthRequired}},
		// empty intersection falls back to diagnosis reasons
		{"J44.1", claims.TypeAmbulatory, []string{InsufficientInfo, DuplicateClaim}},
		{"J18.9", claims.TypeEmergency, []string{InsufficientInfo, TimelyFiling}},
		// unknown diagnosis uses the default list
		{"Z99.9", claims.TypePhysician, []string{InsufficientInfo, NotMedicallyNecessary}},
		{"Z99.9", "UNKNOWN", []string{InsufficientInfo, NotMedicallyNecessary}},
	}
	for _, tt := range tests {
		got := CandidateReasons(tt.diagnosis, tt.claimType)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("CandidateReasons(%s, %s) mismatch (-want +got):\n%s", tt.diagnosis, tt.claimType, diff)
		}
	}
}

func TestCandidateReasons_DoesNotAliasMaps(t *testing.T) {
	got := CandidateReasons("J44.1", claims.TypeAmbulatory)
	got[0] = "MUTATED"
	if DiagnosisReasons("J44.1")[0] == "MUTATED" {
		t.Fatal("CandidateReasons returned a slice aliasing the ontology map")
	}
}

func TestDenialProbability(t *testing.T) {
	tests := []struct {
		name      string
		claimType string
		diagnosis string
		charge    float64
		want      float64
	}{
		{"high charge inpatient", claims.TypeInpatient, "I10", 20000, 0.25},
		{"high charge ambulatory beats high risk dx", claims.TypeAmbulatory, "E11.9", 10000.01, 0.25},
		{"charge at threshold is not high", claims.TypeInpatient, "I10", 10000, 0.15},
		{"high risk diagnosis", claims.TypeOutpatient, "F32.9", 500, 0.20},
		{"emergency", claims.TypeEmergency, "J18.9", 1000, 0.05},
		{"high risk diagnosis beats emergency", claims.TypeEmergency, "M54.5", 1000, 0.20},
		{"baseline", claims.TypePhysician, "I10", 300, 0.15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DenialProbability(tt.claimType, tt.diagnosis, tt.charge); got != tt.want {
				t.Errorf("expected %.2f, got %.2f", tt.want, got)
			}
		})
	}
}

func TestExplainAndLookup(t *testing.T) {
	if got := Explain(TimelyFiling); got != "Claim submitted outside of timely filing window." {
		t.Errorf("unexpected explanation: %s", got)
	}
	if got := Explain("NOPE"); got != "Claim was denied." {
		t.Errorf("unexpected fallback explanation: %s", got)
	}
	r, ok := Lookup(DuplicateClaim)
	if !ok || r.Appealable {
		t.Errorf("expected duplicate claim to be a non-appealable reason, got %+v", r)
	}
	if len(Reasons()) != 6 {
		t.Errorf("expected 6 reasons, got %d", len(Reasons()))
	}
}

func findingIDs(fs []Finding) []string {
	ids := make([]string, 0, len(fs))
	for _, f := range fs {
		ids = append(ids, f.RuleID)
	}
	return ids
}

func TestEvaluate_DeniedCoherentClaim(t *testing.T) {
	c := &claims.Claim{
		ClaimID:              "CLM1000001",
		ClaimType:            claims.TypeOutpatient,
		ClaimStatus:          claims.StatusDenied,
		DenialReason:         strPtr(PreAuthRequired),
		PrimaryDiagnosisCode: "E11.9",
		TotalCharge:          850,
	}

	got := findingIDs(Evaluate(c))
	want := []string{"denial-reason", "appealability", "high-risk-diagnosis"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("findings mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluate_IncoherentReason(t *testing.T) {
	c := &claims.Claim{
		ClaimType:            claims.TypeEmergency,
		ClaimStatus:          claims.StatusDenied,
		DenialReason:         strPtr(PreAuthRequired),
		PrimaryDiagnosisCode: "J18.9",
		TotalCharge:          1200,
	}
	fs := Evaluate(c)
	var found bool
	for _, f := range fs {
		if f.RuleID == "reason-coherence" {
			found = true
			if !strings.Contains(f.Message, "atypical") {
				t.Errorf("unexpected message: %s", f.Message)
			}
		}
	}
	if !found {
		t.Errorf("expected reason-coherence finding, got %v", findingIDs(fs))
	}
}

func TestEvaluate_InpatientChecks(t *testing.T) {
	adm := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	dis := adm.AddDate(0, 0, 12)
	c := &claims.Claim{
		ClaimType:            claims.TypeInpatient,
		ClaimStatus:          claims.StatusApproved,
		ClaimDate:            adm,
		AdmissionDate:        &adm,
		DischargeDate:        &dis,
		PrimaryDiagnosisCode: "I50.9",
		TotalCharge:          40000,
		TotalPaid:            32000,
	}
	got := findingIDs(Evaluate(c))
	want := []string{"high-charge-facility", "long-inpatient-stay"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("findings mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluate_PaidRatioOutOfBand(t *testing.T) {
	c := &claims.Claim{
		ClaimType:            claims.TypePhysician,
		ClaimStatus:          claims.StatusPartial,
		PrimaryDiagnosisCode: "I10",
		TotalCharge:          1000,
		TotalPaid:            900,
	}
	fs := Evaluate(c)
	if len(fs) != 1 || fs[0].RuleID != "paid-ratio" || fs[0].Severity != SeverityCritical {
		t.Errorf("expected a single critical paid-ratio finding, got %+v", fs)
	}
}

func TestEvaluate_CleanClaim(t *testing.T) {
	c := &claims.Claim{
		ClaimType:            claims.TypePhysician,
		ClaimStatus:          claims.StatusApproved,
		PrimaryDiagnosisCode: "I10",
		TotalCharge:          1000,
		TotalPaid:            800,
	}
	if fs := Evaluate(c); len(fs) != 0 {
		t.Errorf("expected no findings, got %+v", fs)
	}
}

func TestEvaluateRules_StampsRuleIDs(t *testing.T) {
	rules := []Rule{
		{ID: "always", Check: func(*claims.Claim) *Finding { return &Finding{Severity: SeverityCritical, Message: "x", RuleID: "ignored"} }},
		{ID: "never", Check: func(*claims.Claim) *Finding { return nil }},
	}
	fs := EvaluateRules(&claims.Claim{}, rules)
	if len(fs) != 1 || fs[0].RuleID != "always" {
		t.Errorf("expected one finding from rule always, got %+v", fs)
	}
	if fs := EvaluateRules(&claims.Claim{}, nil); fs == nil || len(fs) != 0 {
		t.Errorf("expected an empty, non-nil slice, got %#v", fs)
	}
}
