package claims

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

type Repository interface {
	GetClaim(ctx context.Context, claimID string) (*ClaimDetail, error)
	SearchClaims(ctx context.Context, f ClaimFilter, limit, offset int) ([]*Claim, int, error)
	ListNotesByClaim(ctx context.Context, claimID string) ([]*Note, error)
	GetNote(ctx context.Context, noteID string) (*Note, error)
	GetPatient(ctx context.Context, patientID string) (*Patient, error)
	GetProvider(ctx context.Context, providerID string) (*Provider, error)
}
