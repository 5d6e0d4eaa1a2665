// Package vectorstore persists embedded note chunks and answers nearest
// neighbour queries over them.
package vectorstore

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrDimensionMismatch is returned when a vector does not match the
// dimensionality already stored for its model.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Record is an embedded chunk together with the claim context used for
// filtering. Model names the engine that produced Embedding.
type Record struct {
	ChunkID       string    `json:"chunk_id"`
	Model         string    `json:"model"`
	NoteID        string    `json:"note_id"`
	ClaimID       string    `json:"claim_id"`
	ChunkIndex    int       `json:"chunk_index"`
	NoteType      string    `json:"note_type,omitempty"`
	ClaimType     string    `json:"claim_type,omitempty"`
	ClaimStatus   string    `json:"claim_status,omitempty"`
	DenialReason  string    `json:"denial_reason,omitempty"`
	DiagnosisCode string    `json:"diagnosis_code,omitempty"`
	Content       string    `json:"content"`
	// ContentHash fingerprints the note the chunk was cut from.
	ContentHash   string    `json:"content_hash,omitempty"`
	Embedding     []float32 `json:"-"`
	IndexedAt     time.Time `json:"indexed_at"`
}

// Filters narrow a search. Empty fields match everything.
type Filters struct {
	ClaimID       string `json:"claim_id,omitempty" query:"claim_id"`
	ClaimStatus   string `json:"claim_status,omitempty" query:"claim_status"`
	ClaimType     string `json:"claim_type,omitempty" query:"claim_type"`
	DenialReason  string `json:"denial_reason,omitempty" query:"denial_reason"`
	DiagnosisCode string `json:"diagnosis_code,omitempty" query:"diagnosis_code"`
	NoteType      string `json:"note_type,omitempty" query:"note_type"`
}

// Normalize trims every filter and upper-cases it to the stored code form,
// so "denied" matches DENIED.
func (f Filters) Normalize() Filters {
	norm := func(v string) string { return strings.ToUpper(strings.TrimSpace(v)) }
	return Filters{
		ClaimID:       norm(f.ClaimID),
		ClaimStatus:   norm(f.ClaimStatus),
		ClaimType:     norm(f.ClaimType),
		DenialReason:  norm(f.DenialReason),
		DiagnosisCode: norm(f.DiagnosisCode),
		NoteType:      norm(f.NoteType),
	}
}

func (f Filters) match(r *Record) bool {
	return (f.ClaimID == "" || f.ClaimID == r.ClaimID) &&
		(f.ClaimStatus == "" || f.ClaimStatus == r.ClaimStatus) &&
		(f.ClaimType == "" || f.ClaimType == r.ClaimType) &&
		(f.DenialReason == "" || f.DenialReason == r.DenialReason) &&
		(f.DiagnosisCode == "" || f.DiagnosisCode == r.DiagnosisCode) &&
		(f.NoteType == "" || f.NoteType == r.NoteType)
}

const DefaultTopK = 5

// Query is a nearest neighbour search within one model's vectors.
type Query struct {
	Model    string
	TopK     int
	Filters  Filters
	MinScore float64
}

func (q Query) limit() int {
	if q.TopK <= 0 {
		return DefaultTopK
	}
	return q.TopK
}

// Hit is a search result. Score is the cosine similarity.
type Hit struct {
	Record
	Score float64 `json:"score"`
}

type Store interface {
	// Upsert inserts or replaces records by (model, chunk id).
	Upsert(ctx context.Context, records []Record) error
	Search(ctx context.Context, vector []float32, q Query) ([]Hit, error)
	// IndexedNotes maps every note with chunks for model to the content
	// hash it was indexed with.
	IndexedNotes(ctx context.Context, model string) (map[string]string, error)
	// DeleteNotes drops every chunk of the given notes for model.
	DeleteNotes(ctx context.Context, model string, noteIDs []string) error
	Count(ctx context.Context, model string) (int, error)
}
