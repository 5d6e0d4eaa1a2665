package generator

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/claimsiq/claimsiq/internal/domain/claims"
	"github.com/claimsiq/claimsiq/internal/domain/denials"
)

var (
	claimTypes = []string{
		claims.TypeOutpatient, claims.TypePhysician, claims.TypeEmergency, claims.TypeInpatient, claims.TypeAmbulatory,
	}
	claimTypeWeights = []float32{0.50, 0.25, 0.10, 0.10, 0.05}

	nonDeniedStatuses = []string{claims.StatusApproved, claims.StatusPartial, claims.StatusPending, claims.StatusRejected}
	nonDeniedWeights  = []float32{0.80, 0.10, 0.08, 0.02}
)

type chargeRange struct{ min, max float64 }

var chargeRanges = map[string]chargeRange{
	claims.TypeInpatient:  {5000, 50000},
	claims.TypeEmergency:  {500, 5000},
	claims.TypeOutpatient: {200, 3000},
	claims.TypePhysician:  {100, 2000},
	claims.TypeAmbulatory: {300, 4000},
}

// procedureRate is the share of claims carrying a primary procedure.
const procedureRate = 0.7

func generateClaims(f *gofakeit.Faker, ds *Dataset, perPatient int, asOf time.Time) []*claims.Claim {
	if len(ds.Providers) == 0 || perPatient == 0 {
		return nil
	}
	dx := make([]string, len(ds.ICD10))
	for i, c := range ds.ICD10 {
		dx[i] = c.Code
	}
	px := make([]string, len(ds.CPT))
	for i, c := range ds.CPT {
		px[i] = c.Code
	}

	out := make([]*claims.Claim, 0, len(ds.Patients)*perPatient)
	from := asOf.AddDate(-2, 0, 0)
	n := 0
	for _, p := range ds.Patients {
		for j := 0; j < perPatient; j++ {
			prov := ds.Providers[f.IntN(len(ds.Providers))]
			c := &claims.Claim{
				ClaimID:              fmt.Sprintf("CLM%d", claimIDBase+n),
				PatientID:            p.PatientID,
				ProviderID:           prov.ProviderID,
				PrimaryDiagnosisCode: f.RandomString(dx),
				ClaimDate:            day(f.DateRange(from, asOf)),
				CreatedAt:            asOf,
			}
			if f.Float64() < procedureRate {
				c.PrimaryProcedureCode = strPtr(f.RandomString(px))
			}
			adjudicate(f, c)
			out = append(out, c)
			n++
		}
	}
	return out
}

// adjudicate fills type, stay, amounts and outcome. Denials follow the
// ontology's prior and draw a reason coherent with diagnosis and type.
func adjudicate(f *gofakeit.Faker, c *claims.Claim) {
	c.ClaimType = pick(f, claimTypes, claimTypeWeights)

	if c.ClaimType == claims.TypeInpatient {
		admit := c.ClaimDate
		discharge := admit.AddDate(0, 0, f.IntRange(1, 14))
		c.AdmissionDate = &admit
		c.DischargeDate = &discharge
	}

	r := chargeRanges[c.ClaimType]
	c.TotalCharge = f.Float64Range(r.min, r.max)

	if f.Float64() < denials.DenialProbability(c.ClaimType, c.PrimaryDiagnosisCode, c.TotalCharge) {
		c.ClaimStatus = claims.StatusDenied
		c.DenialReason = strPtr(f.RandomString(denials.CandidateReasons(c.PrimaryDiagnosisCode, c.ClaimType)))
	} else {
		c.ClaimStatus = pick(f, nonDeniedStatuses, nonDeniedWeights)
	}

	switch c.ClaimStatus {
	case claims.StatusApproved:
		c.TotalPaid = c.TotalCharge * f.Float64Range(0.70, 0.95)
	case claims.StatusPartial:
		c.TotalPaid = c.TotalCharge * f.Float64Range(0.30, 0.60)
	default:
		c.TotalPaid = 0
	}
	claims.NormalizeClaim(c)
}
