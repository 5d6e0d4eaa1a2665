package generator

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/claimsiq/claimsiq/internal/domain/claims"
	"github.com/claimsiq/claimsiq/internal/domain/denials"
)

var diagnosisSymptoms = map[string][]string{
	"E11.9":   {"elevated blood glucose", "increased thirst", "frequent urination", "fatigue"},
	"E10.9":   {"elevated blood glucose", "weight loss", "increased thirst"},
	"I10":     {"elevated blood pressure", "headache", "dizziness"},
	"M54.5":   {"lower back pain", "radiating pain", "stiffness"},
	"M25.561": {"right knee pain", "swelling", "limited range of motion"},
	"J44.1":   {"shortness of breath", "chronic cough", "wheezing", "chest tightness"},
	"J18.9":   {"fever", "cough", "shortness of breath", "chest pain"},
	"F41.9":   {"anxiety", "restlessness", "difficulty concentrating", "sleep disturbances"},
	"F32.9":   {"depressed mood", "loss of interest", "fatigue", "sleep disturbances"},
}

var diagnosisTreatments = map[string][]string{
	"E11.9":   {"blood glucose monitoring", "diabetes medication", "dietary counseling"},
	"E10.9":   {"insulin therapy", "blood glucose monitoring", "diabetes education"},
	"I10":     {"antihypertensive medication", "blood pressure monitoring", "lifestyle counseling"},
	"M54.5":   {"pain management", "physical therapy", "imaging studies"},
	"M25.561": {"pain medication", "knee imaging", "orthopedic consultation"},
	"J44.1":   {"bronchodilator therapy", "oxygen therapy", "pulmonary function tests"},
	"J18.9":   {"antibiotic therapy", "chest imaging", "supportive care"},
	"F41.9":   {"anxiety medication", "counseling", "psychiatric evaluation"},
	"F32.9":   {"antidepressant medication", "psychotherapy", "psychiatric evaluation"},
}

var assessments = []string{
	"stable condition", "improving", "deteriorating", "critical", "guarded",
	"fair", "good", "poor", "acute", "chronic", "subacute",
}

// denialNoteRate is the share of denied claims whose note is the denial notice.
const denialNoteRate = 0.3

func symptoms(dx string) []string {
	if s, ok := diagnosisSymptoms[dx]; ok {
		return s
	}
	return []string{"generalized symptoms"}
}

func treatments(dx string) []string {
	if t, ok := diagnosisTreatments[dx]; ok {
		return t
	}
	return []string{"symptomatic treatment"}
}

type vitals struct {
	systolic, diastolic, hr, rr, o2 int
	temp                            float64
}

func randomVitals(f *gofakeit.Faker) vitals {
	return vitals{
		systolic:  f.IntRange(90, 160),
		diastolic: f.IntRange(60, 100),
		hr:        f.IntRange(60, 100),
		rr:        f.IntRange(12, 20),
		temp:      float64(int(f.Float64Range(97.0, 99.5)*10+0.5)) / 10,
		o2:        f.IntRange(95, 100),
	}
}

func (v vitals) tempF() string { return strconv.FormatFloat(v.temp, 'f', 1, 64) }

func (v vitals) full() string {
	return fmt.Sprintf("BP %d/%d, HR %d, RR %d, Temp %sF, O2 Sat %d%%", v.systolic, v.diastolic, v.hr, v.rr, v.tempF(), v.o2)
}

func (v vitals) brief() string {
	return fmt.Sprintf("Vitals: %d/%d mmHg, %d bpm, %sF", v.systolic, v.diastolic, v.hr, v.tempF())
}

const dateLayout = "2006-01-02"

func dateOr(t *time.Time, fallback time.Time) string {
	if t != nil {
		return t.Format(dateLayout)
	}
	return fallback.Format(dateLayout)
}

// denialContext is appended to notes of denied claims.
func denialContext(c *claims.Claim) string {
	if !c.IsDenied() || c.DenialReason == nil {
		return ""
	}
	return "\n\nCLAIM STATUS:\nThis claim was denied. Reason: " + denials.Explain(*c.DenialReason)
}

// noteType picks the note type for a claim.
func noteType(f *gofakeit.Faker, c *claims.Claim) string {
	switch {
	case c.IsDenied() && f.Float64() < denialNoteRate:
		return claims.NoteDiagnosis
	case c.ClaimType == claims.TypeInpatient:
		return f.RandomString([]string{claims.NoteAdmission, claims.NoteDischarge, claims.NoteProgress})
	case c.PrimaryProcedureCode != nil:
		return claims.NoteProcedure
	default:
		return claims.NoteProgress
	}
}

func noteText(f *gofakeit.Faker, typ string, c *claims.Claim) string {
	switch typ {
	case claims.NoteAdmission:
		return admissionNote(f, c)
	case claims.NoteDischarge:
		return dischargeNote(f, c)
	case claims.NoteProcedure:
		return procedureNote(f, c)
	case claims.NoteDiagnosis:
		if c.IsDenied() && c.DenialReason != nil {
			return denialNotice(c)
		}
	}
	return progressNote(f, c)
}

func admissionNote(f *gofakeit.Faker, c *claims.Claim) string {
	v := randomVitals(f)
	symptom := f.RandomString(symptoms(c.PrimaryDiagnosisCode))
	treatment := f.RandomString(treatments(c.PrimaryDiagnosisCode))
	assessment := f.RandomString(assessments)

	return fmt.Sprintf(`ADMISSION NOTE

Patient admitted on %s.

CHIEF COMPLAINT:
Patient presents with %s.

VITAL SIGNS:
%s

ASSESSMENT:
Patient is in %s condition. Primary diagnosis: %s.
%s

PLAN:
%s. Continue monitoring and reassess as needed.`,
		dateOr(c.AdmissionDate, c.ClaimDate), symptom, v.full(), assessment, c.PrimaryDiagnosisCode,
		denialContext(c), treatment)
}

func dischargeNote(f *gofakeit.Faker, c *claims.Claim) string {
	assessment := f.RandomString(assessments)
	treatment := f.RandomString(treatments(c.PrimaryDiagnosisCode))
	procedure := ""
	if c.PrimaryProcedureCode != nil {
		procedure = fmt.Sprintf(" Procedure performed: CPT %s.", *c.PrimaryProcedureCode)
	}

	return fmt.Sprintf(`DISCHARGE SUMMARY

Patient discharged on %s.

HOSPITAL COURSE:
Patient was admitted for treatment of %s.%s
During hospitalization, patient received %s and showed improvement.

DISCHARGE CONDITION:
Patient is in %s condition at time of discharge.%s

DISCHARGE INSTRUCTIONS:
Follow-up with primary care provider within 7-10 days. Continue medications as prescribed.
Return to emergency department if symptoms worsen.`,
		dateOr(c.DischargeDate, c.ClaimDate), c.PrimaryDiagnosisCode, procedure, treatment,
		assessment, denialContext(c))
}

func progressNote(f *gofakeit.Faker, c *claims.Claim) string {
	v := randomVitals(f)
	assessment := f.RandomString(assessments)
	status := "improvement"
	if f.Float64() <= 0.3 {
		status = "persistent " + f.RandomString(symptoms(c.PrimaryDiagnosisCode))
	}
	treatment := f.RandomString(treatments(c.PrimaryDiagnosisCode))

	return fmt.Sprintf(`PROGRESS NOTE - %s

SUBJECTIVE:
Patient reports %s in symptoms related to %s.

OBJECTIVE:
Vital signs: %s

ASSESSMENT:
Patient condition is %s. Diagnosis: %s.%s

PLAN:
Continue %s. Monitor response and reassess as needed.`,
		c.ClaimDate.Format(dateLayout), status, c.PrimaryDiagnosisCode, v.brief(),
		assessment, c.PrimaryDiagnosisCode, denialContext(c), treatment)
}

func procedureNote(f *gofakeit.Faker, c *claims.Claim) string {
	code := "N/A"
	if c.PrimaryProcedureCode != nil {
		code = *c.PrimaryProcedureCode
	}
	symptom := f.RandomString(symptoms(c.PrimaryDiagnosisCode))

	return fmt.Sprintf(`PROCEDURE NOTE - %s

PROCEDURE:
CPT Code: %s

INDICATION:
Procedure performed for diagnosis and treatment of %s.
Patient presented with %s.

PROCEDURE DESCRIPTION:
Procedure was performed successfully without complications. Patient tolerated procedure well.%s

POST-PROCEDURE:
Patient is stable. Monitor for any complications. Follow-up as indicated for %s.`,
		c.ClaimDate.Format(dateLayout), code, c.PrimaryDiagnosisCode, symptom, denialContext(c), c.PrimaryDiagnosisCode)
}

func denialNotice(c *claims.Claim) string {
	info := "Diagnosis: " + c.PrimaryDiagnosisCode
	if c.PrimaryProcedureCode != nil {
		info += ", Procedure: CPT " + *c.PrimaryProcedureCode
	}

	return fmt.Sprintf(`CLAIM DENIAL NOTICE - %s

CLAIM INFORMATION:
Claim ID: %s
%s
Claim Type: %s
Total Charge: $%s

DENIAL REASON:
%s

DETAILS:
This claim was reviewed and denied based on the above reason.
%s was submitted for this claim.

NEXT STEPS:
Provider may submit additional documentation or appeal this denial if additional
information is available that supports medical necessity or addresses the denial reason.`,
		c.ClaimDate.Format(dateLayout), c.ClaimID, info, c.ClaimType, formatUSD(c.TotalCharge),
		denials.Explain(*c.DenialReason), info)
}

// formatUSD renders an amount with thousands separators and two decimals.
func formatUSD(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	whole, frac, _ := strings.Cut(s, ".")
	neg := strings.HasPrefix(whole, "-")
	whole = strings.TrimPrefix(whole, "-")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String() + "." + frac
	if neg {
		out = "-" + out
	}
	return out
}

func generateNotes(f *gofakeit.Faker, cs []*claims.Claim, perClaim int, asOf time.Time) []*claims.Note {
	out := make([]*claims.Note, 0, len(cs)*perClaim)
	n := 0
	for _, c := range cs {
		for j := 0; j < perClaim; j++ {
			typ := noteType(f, c)
			out = append(out, &claims.Note{
				NoteID:    fmt.Sprintf("NOTE%d", noteIDBase+n),
				ClaimID:   c.ClaimID,
				NoteType:  typ,
				NoteText:  noteText(f, typ, c),
				CreatedAt: asOf,
			})
			n++
		}
	}
	return out
}
