package indexer

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/claimsiq/claimsiq/internal/platform/db"
)

// PGSource reads notes joined with their claims from the raw layer.
type PGSource struct {
	pool *pgxpool.Pool
}

func NewPGSource(pool *pgxpool.Pool) *PGSource { return &PGSource{pool: pool} }

func (s *PGSource) Documents(ctx context.Context) ([]Document, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx, `
		SELECT n.note_id, n.claim_id, n.note_type, n.note_text,
			COALESCE(c.claim_type, ''), COALESCE(c.claim_status, ''),
			COALESCE(c.denial_reason, ''), COALESCE(c.primary_diagnosis_code, '')
		FROM raw_notes n
		LEFT JOIN raw_claims c ON c.claim_id = n.claim_id
		ORDER BY n.note_id`)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.NoteID, &d.ClaimID, &d.NoteType, &d.NoteText,
			&d.ClaimType, &d.ClaimStatus, &d.DenialReason, &d.DiagnosisCode); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
