package claims

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidRecord wraps every validation failure.
var ErrInvalidRecord = errors.New("invalid record")

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("npi", validateNPI)
		_ = v.RegisterValidation("zip3", validateZip3)
		v.RegisterStructValidation(claimStructLevel, Claim{})
		validate = v
	})
	return validate
}

func validateNPI(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) != 10 || (s[0] != '1' && s[0] != '2') {
		return false
	}
	return isDigits(s)
}

func validateZip3(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return len(s) >= 3 && isDigits(s[:3])
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// claimStructLevel enforces the cross-field adjudication rules.
func claimStructLevel(sl validator.StructLevel) {
	c := sl.Current().Interface().(Claim)

	if c.TotalPaid > c.TotalCharge+0.005 {
		sl.ReportError(c.TotalPaid, "TotalPaid", "total_paid", "ltecharge", "")
	}
	denied := c.ClaimStatus == StatusDenied
	hasReason := c.DenialReason != nil && *c.DenialReason != ""
	if denied && !hasReason {
		sl.ReportError(c.DenialReason, "DenialReason", "denial_reason", "required_if_denied", "")
	}
	if !denied && hasReason {
		sl.ReportError(c.DenialReason, "DenialReason", "denial_reason", "excluded_unless_denied", "")
	}
	if denied && c.TotalPaid != 0 {
		sl.ReportError(c.TotalPaid, "TotalPaid", "total_paid", "zero_if_denied", "")
	}

	if c.ClaimType == TypeInpatient {
		if c.AdmissionDate == nil || c.DischargeDate == nil {
			sl.ReportError(c.AdmissionDate, "AdmissionDate", "admission_date", "required_if_inpatient", "")
			return
		}
		if !c.AdmissionDate.Equal(c.ClaimDate) {
			sl.ReportError(c.AdmissionDate, "AdmissionDate", "admission_date", "eq_claim_date", "")
		}
		if los := c.LengthOfStay(); los < 1 || los > 14 {
			sl.ReportError(c.DischargeDate, "DischargeDate", "discharge_date", "stay_1_14_days", "")
		}
	} else if c.AdmissionDate != nil || c.DischargeDate != nil {
		sl.ReportError(c.AdmissionDate, "AdmissionDate", "admission_date", "excluded_unless_inpatient", "")
	}
}

// Validate checks a record against its field and cross-field rules.
func Validate(record interface{}) error {
	if err := validatorInstance().Struct(record); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			parts := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidRecord, strings.Join(parts, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return nil
}

// NormalizePatient truncates the zip code to its three-digit prefix.
func NormalizePatient(p *Patient) {
	if len(p.ZipCode) > 3 {
		p.ZipCode = p.ZipCode[:3]
	}
}

// NormalizeClaim rounds amounts to cents.
func NormalizeClaim(c *Claim) {
	c.TotalCharge = RoundCents(c.TotalCharge)
	c.TotalPaid = RoundCents(c.TotalPaid)
}
