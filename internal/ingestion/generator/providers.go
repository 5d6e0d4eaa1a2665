package generator

import (
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/claimsiq/claimsiq/internal/domain/claims"
)

var (
	providerTypes = []string{
		claims.ProviderPhysician, claims.ProviderHospital, claims.ProviderClinic, claims.ProviderEmergency,
		claims.ProviderAmbulatory, claims.ProviderLaboratory, claims.ProviderImaging,
	}
	providerTypeWeights = []float32{0.40, 0.25, 0.15, 0.08, 0.07, 0.03, 0.02}
)

var specialties = []string{
	"CARDIOLOGY", "ONCOLOGY", "ORTHOPEDICS", "NEUROLOGY", "PEDIATRICS",
	"EMERGENCY MEDICINE", "FAMILY MEDICINE", "INTERNAL MEDICINE",
	"SURGERY", "RADIOLOGY", "PATHOLOGY", "ANESTHESIOLOGY", "PSYCHIATRY",
	"DERMATOLOGY", "OPHTHALMOLOGY", "UROLOGY", "GYNECOLOGY", "PULMONOLOGY",
}

var providerStates = []string{
	"CA", "TX", "FL", "NY", "PA", "IL", "OH", "GA", "NC", "MI",
	"NJ", "VA", "WA", "AZ", "MA", "TN", "IN", "MO", "MD", "WI",
}

// npi returns a 10-digit identifier starting with 1 (individual) or 2
// (organization).
func npi(f *gofakeit.Faker) string {
	var b strings.Builder
	b.WriteString(f.RandomString([]string{"1", "2"}))
	for i := 0; i < 9; i++ {
		b.WriteString(f.Digit())
	}
	return b.String()
}

func providerName(f *gofakeit.Faker, providerType string) string {
	switch providerType {
	case claims.ProviderHospital:
		return f.LastName() + " " + providerType
	case claims.ProviderPhysician:
		return "Dr. " + f.FirstName() + " " + f.LastName()
	default:
		return f.Company() + " " + providerType
	}
}

func generateProviders(f *gofakeit.Faker, n int, asOf time.Time) []*claims.Provider {
	out := make([]*claims.Provider, 0, n)
	for i := 0; i < n; i++ {
		typ := pick(f, providerTypes, providerTypeWeights)
		p := &claims.Provider{
			ProviderID:   fmt.Sprintf("PROV%d", providerIDBase+i),
			ProviderType: typ,
			ProviderName: providerName(f, typ),
			NPI:          npi(f),
			Address:      f.Street(),
			City:         f.City(),
			State:        f.RandomString(providerStates),
			ZipCode:      f.Zip(),
			CreatedAt:    asOf,
		}
		if typ == claims.ProviderPhysician || typ == claims.ProviderClinic {
			p.Specialty = strPtr(f.RandomString(specialties))
		}
		out = append(out, p)
	}
	return out
}
