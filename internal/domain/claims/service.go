package claims

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidArgument marks malformed ids and filters.
var ErrInvalidArgument = errors.New("invalid argument")

var (
	claimIDPattern    = regexp.MustCompile(`^CLM\d+$`)
	patientIDPattern  = regexp.MustCompile(`^PAT\d+$`)
	providerIDPattern = regexp.MustCompile(`^PROV\d+$`)
	noteIDPattern     = regexp.MustCompile(`^NOTE\d+$`)

	// ClaimIDInText finds claim references inside free text, in any case.
	ClaimIDInText = regexp.MustCompile(`(?i)\bCLM\d+\b`)
)

var (
	validClaimTypes    = toSet(ClaimTypes)
	validClaimStatuses = toSet(ClaimStatuses)
)

func toSet(values []string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetClaim(ctx context.Context, claimID string) (*ClaimDetail, error) {
	if !claimIDPattern.MatchString(claimID) {
		return nil, fmt.Errorf("%w: claim id %q", ErrInvalidArgument, claimID)
	}
	return s.repo.GetClaim(ctx, claimID)
}

func (s *Service) SearchClaims(ctx context.Context, f ClaimFilter, limit, offset int) ([]*Claim, int, error) {
	if f.ClaimType != "" && !validClaimTypes[f.ClaimType] {
		return nil, 0, fmt.Errorf("%w: claim type %q", ErrInvalidArgument, f.ClaimType)
	}
	if f.ClaimStatus != "" && !validClaimStatuses[f.ClaimStatus] {
		return nil, 0, fmt.Errorf("%w: claim status %q", ErrInvalidArgument, f.ClaimStatus)
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, 0, fmt.Errorf("%w: date range end precedes start", ErrInvalidArgument)
	}
	return s.repo.SearchClaims(ctx, f, limit, offset)
}

func (s *Service) ListClaimNotes(ctx context.Context, claimID string) ([]*Note, error) {
	if !claimIDPattern.MatchString(claimID) {
		return nil, fmt.Errorf("%w: claim id %q", ErrInvalidArgument, claimID)
	}
	return s.repo.ListNotesByClaim(ctx, claimID)
}

func (s *Service) GetNote(ctx context.Context, noteID string) (*Note, error) {
	if !noteIDPattern.MatchString(noteID) {
		return nil, fmt.Errorf("%w: note id %q", ErrInvalidArgument, noteID)
	}
	return s.repo.GetNote(ctx, noteID)
}

func (s *Service) GetPatient(ctx context.Context, patientID string) (*Patient, error) {
	if !patientIDPattern.MatchString(patientID) {
		return nil, fmt.Errorf("%w: patient id %q", ErrInvalidArgument, patientID)
	}
	return s.repo.GetPatient(ctx, patientID)
}

func (s *Service) GetProvider(ctx context.Context, providerID string) (*Provider, error) {
	if !providerIDPattern.MatchString(providerID) {
		return nil, fmt.Errorf("%w: provider id %q", ErrInvalidArgument, providerID)
	}
	return s.repo.GetProvider(ctx, providerID)
}

// IsClaimID reports whether s is a well-formed claim id.
func IsClaimID(s string) bool { return claimIDPattern.MatchString(s) }
