package vectorstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/claimsiq/claimsiq/internal/platform/db"
)

// PGStore keeps records in the note_chunks table and searches them with
// pgvector's cosine distance operator.
type PGStore struct {
	pool db.Queryable
}

func NewPGStore(pool *pgxpool.Pool) *PGStore { return &PGStore{pool: pool} }

// newPGStore is used by tests to run against a fake connection.
func newPGStore(q db.Queryable) *PGStore { return &PGStore{pool: q} }

func (s *PGStore) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, s.pool)
}

// VectorLiteral renders v in pgvector's text format, e.g. "[0.1,-0.2]".
func VectorLiteral(v []float32) string {
	var b strings.Builder
	b.Grow(len(v) * 10)
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

const upsertSQL = `
	INSERT INTO note_chunks (chunk_id, model, note_id, claim_id, chunk_index, note_type, claim_type,
		claim_status, denial_reason, diagnosis_code, content, embedding, content_hash, indexed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::text::vector, $13, NOW())
	ON CONFLICT (model, chunk_id) DO UPDATE SET
		note_id = EXCLUDED.note_id, claim_id = EXCLUDED.claim_id, chunk_index = EXCLUDED.chunk_index,
		note_type = EXCLUDED.note_type, claim_type = EXCLUDED.claim_type,
		claim_status = EXCLUDED.claim_status, denial_reason = EXCLUDED.denial_reason,
		diagnosis_code = EXCLUDED.diagnosis_code, content = EXCLUDED.content,
		embedding = EXCLUDED.embedding, content_hash = EXCLUDED.content_hash, indexed_at = NOW()`

// Upsert writes records in one batch round trip.
func (s *PGStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(upsertSQL, r.ChunkID, r.Model, r.NoteID, r.ClaimID, r.ChunkIndex,
			nullable(r.NoteType), nullable(r.ClaimType), nullable(r.ClaimStatus),
			nullable(r.DenialReason), nullable(r.DiagnosisCode), r.Content, VectorLiteral(r.Embedding), nullable(r.ContentHash))
	}

	sender, ok := s.conn(ctx).(interface {
		SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	})
	if !ok {
		for i, r := range records {
			if _, err := s.conn(ctx).Exec(ctx, upsertSQL, batch.QueuedQueries[i].Arguments...); err != nil {
				return fmt.Errorf("upsert chunk %s: %w", r.ChunkID, err)
			}
		}
		return nil
	}
	br := sender.SendBatch(ctx, batch)
	defer br.Close()
	for _, r := range records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", r.ChunkID, err)
		}
	}
	return br.Close()
}

// searchSQL builds the nearest neighbour query. $1 is the vector and $2 the
// model; filters follow.
func searchSQL(q Query) (string, []interface{}) {
	where := []string{"model = $2"}
	args := []interface{}{nil, q.Model}
	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("claim_id", q.Filters.ClaimID)
	add("claim_status", q.Filters.ClaimStatus)
	add("claim_type", q.Filters.ClaimType)
	add("denial_reason", q.Filters.DenialReason)
	add("diagnosis_code", q.Filters.DiagnosisCode)
	add("note_type", q.Filters.NoteType)

	score := "1 - (embedding <=> $1::text::vector)"
	if q.MinScore > 0 {
		args = append(args, q.MinScore)
		where = append(where, fmt.Sprintf("%s >= $%d", score, len(args)))
	}
	args = append(args, q.limit())

	sql := fmt.Sprintf(`
		SELECT chunk_id, model, note_id, claim_id, chunk_index,
			COALESCE(note_type, ''), COALESCE(claim_type, ''), COALESCE(claim_status, ''),
			COALESCE(denial_reason, ''), COALESCE(diagnosis_code, ''), content, indexed_at,
			%s AS score
		FROM note_chunks
		WHERE %s
		ORDER BY embedding <=> $1::text::vector, chunk_id
		LIMIT $%d`, score, strings.Join(where, " AND "), len(args))
	return sql, args
}

func (s *PGStore) Search(ctx context.Context, vector []float32, q Query) ([]Hit, error) {
	sql, args := searchSQL(q)
	args[0] = VectorLiteral(vector)

	rows, err := s.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ChunkID, &h.Model, &h.NoteID, &h.ClaimID, &h.ChunkIndex,
			&h.NoteType, &h.ClaimType, &h.ClaimStatus, &h.DenialReason, &h.DiagnosisCode,
			&h.Content, &h.IndexedAt, &h.Score); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		if strings.Contains(err.Error(), "different vector dimensions") {
			return nil, fmt.Errorf("%w: %v", ErrDimensionMismatch, err)
		}
		return nil, err
	}
	return hits, nil
}

// IndexedNotes reports an empty hash for chunks written before hashes were
// recorded, so those notes are re-embedded on the next run.
func (s *PGStore) IndexedNotes(ctx context.Context, model string) (map[string]string, error) {
	rows, err := s.conn(ctx).Query(ctx, `
		SELECT note_id, COALESCE(MIN(content_hash), '')
		FROM note_chunks WHERE model = $1
		GROUP BY note_id`, model)
	if err != nil {
		return nil, fmt.Errorf("list indexed notes: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, err
		}
		out[id] = hash
	}
	return out, rows.Err()
}

func (s *PGStore) DeleteNotes(ctx context.Context, model string, noteIDs []string) error {
	if len(noteIDs) == 0 {
		return nil
	}
	_, err := s.conn(ctx).Exec(ctx, `DELETE FROM note_chunks WHERE model = $1 AND note_id = ANY($2)`, model, noteIDs)
	if err != nil {
		return fmt.Errorf("delete note chunks: %w", err)
	}
	return nil
}

func (s *PGStore) Count(ctx context.Context, model string) (int, error) {
	var n int
	if err := s.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM note_chunks WHERE model = $1`, model).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}
