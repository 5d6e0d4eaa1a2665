package claims

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/claimsiq/claimsiq/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

const claimCols = `c.claim_id, c.patient_id, c.provider_id, c.claim_date, c.admission_date, c.discharge_date,
	c.claim_type, c.total_charge, c.total_paid, c.claim_status, c.denial_reason,
	c.primary_diagnosis_code, c.primary_procedure_code, c.created_at`

func scanClaim(row pgx.Row, extra ...interface{}) (*Claim, error) {
	var c Claim
	dest := []interface{}{&c.ClaimID, &c.PatientID, &c.ProviderID, &c.ClaimDate, &c.AdmissionDate, &c.DischargeDate,
		&c.ClaimType, &c.TotalCharge, &c.TotalPaid, &c.ClaimStatus, &c.DenialReason,
		&c.PrimaryDiagnosisCode, &c.PrimaryProcedureCode, &c.CreatedAt}
	err := row.Scan(append(dest, extra...)...)
	return &c, err
}

func (r *repoPG) GetClaim(ctx context.Context, claimID string) (*ClaimDetail, error) {
	var dxDesc, dxCat, pxDesc *string
	c, err := scanClaim(r.conn(ctx).QueryRow(ctx, `
		SELECT `+claimCols+`, d.description, d.category, p.description
		FROM raw_claims c
		LEFT JOIN raw_icd10 d ON d.code = c.primary_diagnosis_code
		LEFT JOIN raw_cpt p ON p.code = c.primary_procedure_code
		WHERE c.claim_id = $1`, claimID), &dxDesc, &dxCat, &pxDesc)
	if err != nil {
		return nil, notFound(err)
	}

	detail := &ClaimDetail{Claim: *c}
	detail.DiagnosisDescription = deref(dxDesc)
	detail.DiagnosisCategory = deref(dxCat)
	detail.ProcedureDescription = deref(pxDesc)

	if p, err := r.GetPatient(ctx, c.PatientID); err == nil {
		detail.Patient = p
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if p, err := r.GetProvider(ctx, c.ProviderID); err == nil {
		detail.Provider = p
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return detail, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// claimWhere renders the filter as a WHERE clause with positional args.
func claimWhere(f ClaimFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.PatientID != "" {
		add("c.patient_id = $%d", f.PatientID)
	}
	if f.ProviderID != "" {
		add("c.provider_id = $%d", f.ProviderID)
	}
	if f.ClaimType != "" {
		add("c.claim_type = $%d", f.ClaimType)
	}
	if f.ClaimStatus != "" {
		add("c.claim_status = $%d", f.ClaimStatus)
	}
	if f.DenialReason != "" {
		add("c.denial_reason = $%d", f.DenialReason)
	}
	if f.DiagnosisCode != "" {
		add("c.primary_diagnosis_code = $%d", f.DiagnosisCode)
	}
	if f.From != nil {
		add("c.claim_date >= $%d", *f.From)
	}
	if f.To != nil {
		add("c.claim_date <= $%d", *f.To)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *repoPG) SearchClaims(ctx context.Context, f ClaimFilter, limit, offset int) ([]*Claim, int, error) {
	where, args := claimWhere(f)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM raw_claims c`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM raw_claims c%s ORDER BY c.claim_date DESC, c.claim_id LIMIT $%d OFFSET $%d`,
		claimCols, where, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

const noteCols = `note_id, claim_id, note_type, note_text, created_at`

func scanNote(row pgx.Row) (*Note, error) {
	var n Note
	err := row.Scan(&n.NoteID, &n.ClaimID, &n.NoteType, &n.NoteText, &n.CreatedAt)
	return &n, err
}

func (r *repoPG) ListNotesByClaim(ctx context.Context, claimID string) ([]*Note, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+noteCols+` FROM raw_notes WHERE claim_id = $1 ORDER BY note_id`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

func (r *repoPG) GetNote(ctx context.Context, noteID string) (*Note, error) {
	n, err := scanNote(r.conn(ctx).QueryRow(ctx, `SELECT `+noteCols+` FROM raw_notes WHERE note_id = $1`, noteID))
	if err != nil {
		return nil, notFound(err)
	}
	return n, nil
}

func (r *repoPG) GetPatient(ctx context.Context, patientID string) (*Patient, error) {
	var p Patient
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT patient_id, date_of_birth, gender, zip_code, state, created_at
		FROM raw_patients WHERE patient_id = $1`, patientID).
		Scan(&p.PatientID, &p.DateOfBirth, &p.Gender, &p.ZipCode, &p.State, &p.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *repoPG) GetProvider(ctx context.Context, providerID string) (*Provider, error) {
	var p Provider
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT provider_id, npi, provider_name, provider_type, specialty, address, city, state, zip_code, created_at
		FROM raw_providers WHERE provider_id = $1`, providerID).
		Scan(&p.ProviderID, &p.NPI, &p.ProviderName, &p.ProviderType, &p.Specialty,
			&p.Address, &p.City, &p.State, &p.ZipCode, &p.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}
