package claims

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func validClaim() Claim {
	return Claim{
		ClaimID:              "CLM1000000",
		PatientID:            "PAT100000",
		ProviderID:           "PROV10000",
		ClaimDate:            time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
		ClaimType:            TypeOutpatient,
		TotalCharge:          1200.50,
		TotalPaid:            1000.00,
		ClaimStatus:          StatusApproved,
		PrimaryDiagnosisCode: "I10",
	}
}

func TestValidate_Patient(t *testing.T) {
	p := Patient{
		PatientID:   "PAT100000",
		DateOfBirth: time.Date(1970, 1, 2, 0, 0, 0, 0, time.UTC),
		Gender:      "F",
		ZipCode:     "941",
		State:       "CA",
	}
	if err := Validate(p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := p
	bad.Gender = "X"
	if err := Validate(bad); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("expected ErrInvalidRecord for bad gender, got %v", err)
	}

	bad = p
	bad.ZipCode = "9A1"
	if err := Validate(bad); err == nil {
		t.Error("expected error for non-numeric zip prefix")
	}
}

func TestNormalizePatient(t *testing.T) {
	p := &Patient{ZipCode: "94110"}
	NormalizePatient(p)
	if p.ZipCode != "941" {
		t.Errorf("expected 941, got %s", p.ZipCode)
	}
}

func TestValidate_ProviderNPI(t *testing.T) {
	p := Provider{
		ProviderID:   "PROV10000",
		NPI:          "1234567890",
		ProviderName: "Dr. Ada Lovelace",
		ProviderType: ProviderPhysician,
		Address:      "1 Main St",
		City:         "Austin",
		State:        "TX",
		ZipCode:      "73301",
	}
	if err := Validate(&p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, npi := range []string{"123456789", "3234567890", "12345678a0", ""} {
		p.NPI = npi
		if err := Validate(&p); err == nil {
			t.Errorf("expected NPI %q to be rejected", npi)
		}
	}
}

func TestValidate_ClaimRules(t *testing.T) {
	adm := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	dis := adm.AddDate(0, 0, 3)
	longDis := adm.AddDate(0, 0, 15)

	tests := []struct {
		name    string
		mutate  func(c *Claim)
		wantErr string
	}{
		{"valid", func(c *Claim) {}, ""},
		{"bad type", func(c *Claim) { c.ClaimType = "DENTAL" }, "ClaimType"},
		{"negative charge", func(c *Claim) { c.TotalCharge = -1 }, "TotalCharge"},
		{"paid above charge", func(c *Claim) { c.TotalPaid = 5000 }, "ltecharge"},
		{"denied without reason", func(c *Claim) { c.ClaimStatus = StatusDenied; c.TotalPaid = 0 }, "required_if_denied"},
		{"denied with payment", func(c *Claim) {
			c.ClaimStatus = StatusDenied
			c.DenialReason = strPtr("TIMELY_FILING")
		}, "zero_if_denied"},
		{"reason on approved claim", func(c *Claim) { c.DenialReason = strPtr("TIMELY_FILING") }, "excluded_unless_denied"},
		{"valid inpatient", func(c *Claim) {
			c.ClaimType = TypeInpatient
			c.AdmissionDate = &adm
			c.DischargeDate = &dis
		}, ""},
		{"inpatient without dates", func(c *Claim) { c.ClaimType = TypeInpatient }, "required_if_inpatient"},
		{"inpatient stay too long", func(c *Claim) {
			c.ClaimType = TypeInpatient
			c.AdmissionDate = &adm
			c.DischargeDate = &longDis
		}, "stay_1_14_days"},
		{"outpatient with dates", func(c *Claim) { c.AdmissionDate = &adm }, "excluded_unless_inpatient"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validClaim()
			tt.mutate(&c)
			err := Validate(&c)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestClaim_Derived(t *testing.T) {
	adm := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	dis := adm.AddDate(0, 0, 4)
	c := Claim{AdmissionDate: &adm, DischargeDate: &dis, TotalCharge: 200, TotalPaid: 150}
	if c.LengthOfStay() != 4 {
		t.Errorf("expected stay of 4 days, got %d", c.LengthOfStay())
	}
	if c.PaidRatio() != 0.75 {
		t.Errorf("expected paid ratio 0.75, got %f", c.PaidRatio())
	}
	if (&Claim{}).PaidRatio() != 0 {
		t.Error("expected zero paid ratio for zero charge")
	}
}

func TestNormalizeClaim(t *testing.T) {
	c := &Claim{TotalCharge: 123.456, TotalPaid: 99.994}
	NormalizeClaim(c)
	if c.TotalCharge != 123.46 || c.TotalPaid != 99.99 {
		t.Errorf("unexpected rounding: %v %v", c.TotalCharge, c.TotalPaid)
	}
}
