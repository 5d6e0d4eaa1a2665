package claims

import (
	"math"
	"time"
)

// Claim types.
const (
	TypeInpatient  = "INPATIENT"
	TypeOutpatient = "OUTPATIENT"
	TypeEmergency  = "EMERGENCY"
	TypeAmbulatory = "AMBULATORY"
	TypePhysician  = "PHYSICIAN"
)

// Claim statuses.
const (
	StatusApproved = "APPROVED"
	StatusDenied   = "DENIED"
	StatusPending  = "PENDING"
	StatusPartial  = "PARTIAL"
	StatusRejected = "REJECTED"
)

// Note types. DIAGNOSIS notes carry the denial notice for denied claims.
const (
	NoteAdmission = "ADMISSION"
	NoteDischarge = "DISCHARGE"
	NoteProgress  = "PROGRESS"
	NoteProcedure = "PROCEDURE"
	NoteDiagnosis = "DIAGNOSIS"
)

// Provider types.
const (
	ProviderPhysician  = "PHYSICIAN"
	ProviderHospital   = "HOSPITAL"
	ProviderClinic     = "CLINIC"
	ProviderEmergency  = "EMERGENCY"
	ProviderAmbulatory = "AMBULATORY"
	ProviderLaboratory = "LABORATORY"
	ProviderImaging    = "IMAGING"
)

var (
	ClaimTypes    = []string{TypeInpatient, TypeOutpatient, TypeEmergency, TypeAmbulatory, TypePhysician}
	ClaimStatuses = []string{StatusApproved, StatusDenied, StatusPending, StatusPartial, StatusRejected}
	NoteTypes     = []string{NoteAdmission, NoteDischarge, NoteProgress, NoteProcedure, NoteDiagnosis}
	Genders       = []string{"M", "F", "O", "U"}
)

// Patient is a de-identified patient demographic record.
type Patient struct {
	PatientID   string    `db:"patient_id" json:"patient_id" validate:"required,startswith=PAT"`
	DateOfBirth time.Time `db:"date_of_birth" json:"date_of_birth" validate:"required"`
	Gender      string    `db:"gender" json:"gender" validate:"required,oneof=M F O U"`
	ZipCode     string    `db:"zip_code" json:"zip_code" validate:"required,zip3"`
	State       string    `db:"state" json:"state" validate:"required,len=2,uppercase"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Provider is a billing provider.
type Provider struct {
	ProviderID   string    `db:"provider_id" json:"provider_id" validate:"required,startswith=PROV"`
	NPI          string    `db:"npi" json:"npi" validate:"required,npi"`
	ProviderName string    `db:"provider_name" json:"provider_name" validate:"required"`
	ProviderType string    `db:"provider_type" json:"provider_type" validate:"required,oneof=PHYSICIAN HOSPITAL CLINIC EMERGENCY AMBULATORY LABORATORY IMAGING"`
	Specialty    *string   `db:"specialty" json:"specialty,omitempty"`
	Address      string    `db:"address" json:"address" validate:"required"`
	City         string    `db:"city" json:"city" validate:"required"`
	State        string    `db:"state" json:"state" validate:"required,len=2,uppercase"`
	ZipCode      string    `db:"zip_code" json:"zip_code" validate:"required"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Claim is a single adjudicated healthcare claim.
type Claim struct {
	ClaimID              string     `db:"claim_id" json:"claim_id" validate:"required,startswith=CLM"`
	PatientID            string     `db:"patient_id" json:"patient_id" validate:"required"`
	ProviderID           string     `db:"provider_id" json:"provider_id" validate:"required"`
	ClaimDate            time.Time  `db:"claim_date" json:"claim_date" validate:"required"`
	AdmissionDate        *time.Time `db:"admission_date" json:"admission_date,omitempty"`
	DischargeDate        *time.Time `db:"discharge_date" json:"discharge_date,omitempty"`
	ClaimType            string     `db:"claim_type" json:"claim_type" validate:"required,oneof=INPATIENT OUTPATIENT EMERGENCY AMBULATORY PHYSICIAN"`
	TotalCharge          float64    `db:"total_charge" json:"total_charge" validate:"gte=0"`
	TotalPaid            float64    `db:"total_paid" json:"total_paid" validate:"gte=0"`
	ClaimStatus          string     `db:"claim_status" json:"claim_status" validate:"required,oneof=APPROVED DENIED PENDING PARTIAL REJECTED"`
	DenialReason         *string    `db:"denial_reason" json:"denial_reason,omitempty"`
	PrimaryDiagnosisCode string     `db:"primary_diagnosis_code" json:"primary_diagnosis_code" validate:"required"`
	PrimaryProcedureCode *string    `db:"primary_procedure_code" json:"primary_procedure_code,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
}

// IsDenied reports whether the claim was denied.
func (c *Claim) IsDenied() bool { return c.ClaimStatus == StatusDenied }

// LengthOfStay returns the inpatient stay in days, or 0 when no stay is recorded.
func (c *Claim) LengthOfStay() int {
	if c.AdmissionDate == nil || c.DischargeDate == nil {
		return 0
	}
	return int(c.DischargeDate.Sub(*c.AdmissionDate).Hours() / 24)
}

// PaidRatio is total paid over total charge; 0 for zero-charge claims.
func (c *Claim) PaidRatio() float64 {
	if c.TotalCharge <= 0 {
		return 0
	}
	return c.TotalPaid / c.TotalCharge
}

// Note is a clinical note attached to a claim.
type Note struct {
	NoteID    string    `db:"note_id" json:"note_id" validate:"required,startswith=NOTE"`
	ClaimID   string    `db:"claim_id" json:"claim_id" validate:"required"`
	NoteType  string    `db:"note_type" json:"note_type" validate:"required,oneof=ADMISSION DISCHARGE PROGRESS PROCEDURE DIAGNOSIS"`
	NoteText  string    `db:"note_text" json:"note_text" validate:"required"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ICD10Code is a diagnosis code lookup entry.
type ICD10Code struct {
	Code        string `db:"code" json:"code" validate:"required"`
	Description string `db:"description" json:"description" validate:"required"`
	Category    string `db:"category" json:"category" validate:"required"`
	IsValid     bool   `db:"is_valid" json:"is_valid"`
}

// CPTCode is a procedure code lookup entry.
type CPTCode struct {
	Code        string `db:"code" json:"code" validate:"required"`
	Description string `db:"description" json:"description" validate:"required"`
	Category    string `db:"category" json:"category" validate:"required"`
	IsValid     bool   `db:"is_valid" json:"is_valid"`
}

// ClaimDetail is a claim joined with its patient, provider and code descriptions.
type ClaimDetail struct {
	Claim
	DiagnosisDescription string    `json:"diagnosis_description,omitempty"`
	DiagnosisCategory    string    `json:"diagnosis_category,omitempty"`
	ProcedureDescription string    `json:"procedure_description,omitempty"`
	Patient              *Patient  `json:"patient,omitempty"`
	Provider             *Provider `json:"provider,omitempty"`
}

// ClaimFilter narrows claim searches. Empty fields are ignored.
type ClaimFilter struct {
	PatientID     string
	ProviderID    string
	ClaimType     string
	ClaimStatus   string
	DenialReason  string
	DiagnosisCode string
	From          *time.Time
	To            *time.Time
}

// RoundCents rounds an amount to two decimals.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
