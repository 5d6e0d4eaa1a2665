package generator

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/claimsiq/claimsiq/internal/domain/claims"
)

var patientStates = []string{
	"CA", "TX", "FL", "NY", "PA", "IL", "OH", "GA", "NC", "MI",
	"NJ", "VA", "WA", "AZ", "MA", "TN", "IN", "MO", "MD", "WI",
	"CO", "MN", "SC", "AL", "LA", "KY", "OR", "OK", "CT", "IA",
}

var (
	genders       = []string{"M", "F", "O", "U"}
	genderWeights = []float32{0.48, 0.50, 0.01, 0.01}
)

func generatePatients(f *gofakeit.Faker, n int, asOf time.Time) []*claims.Patient {
	out := make([]*claims.Patient, 0, n)
	oldest := asOf.AddDate(-100, 0, 0)
	for i := 0; i < n; i++ {
		p := &claims.Patient{
			PatientID:   fmt.Sprintf("PAT%d", patientIDBase+i),
			DateOfBirth: day(f.DateRange(oldest, asOf)),
			Gender:      pick(f, genders, genderWeights),
			ZipCode:     f.Zip(),
			State:       f.RandomString(patientStates),
			CreatedAt:   asOf,
		}
		claims.NormalizePatient(p)
		out = append(out, p)
	}
	return out
}
