package claims

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"
)

// -- Mock Repository --

type mockRepo struct {
	claims    map[string]*Claim
	notes     map[string]*Note
	patients  map[string]*Patient
	providers map[string]*Provider
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		claims:    make(map[string]*Claim),
		notes:     make(map[string]*Note),
		patients:  make(map[string]*Patient),
		providers: make(map[string]*Provider),
	}
}

func (m *mockRepo) GetClaim(_ context.Context, id string) (*ClaimDetail, error) {
	c, ok := m.claims[id]
	if !ok {
		return nil, ErrNotFound
	}
	d := &ClaimDetail{Claim: *c}
	d.Patient = m.patients[c.PatientID]
	d.Provider = m.providers[c.ProviderID]
	return d, nil
}

func (m *mockRepo) SearchClaims(_ context.Context, f ClaimFilter, limit, offset int) ([]*Claim, int, error) {
	var out []*Claim
	for _, c := range m.claims {
		if f.PatientID != "" && c.PatientID != f.PatientID {
			continue
		}
		if f.ClaimStatus != "" && c.ClaimStatus != f.ClaimStatus {
			continue
		}
		if f.ClaimType != "" && c.ClaimType != f.ClaimType {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClaimID < out[j].ClaimID })
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *mockRepo) ListNotesByClaim(_ context.Context, claimID string) ([]*Note, error) {
	var out []*Note
	for _, n := range m.notes {
		if n.ClaimID == claimID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *mockRepo) GetNote(_ context.Context, id string) (*Note, error) {
	n, ok := m.notes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return n, nil
}

func (m *mockRepo) GetPatient(_ context.Context, id string) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockRepo) GetProvider(_ context.Context, id string) (*Provider, error) {
	p, ok := m.providers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func seededRepo() *mockRepo {
	m := newMockRepo()
	m.patients["PAT100000"] = &Patient{PatientID: "PAT100000", Gender: "F", ZipCode: "941", State: "CA",
		DateOfBirth: time.Date(1980, 2, 3, 0, 0, 0, 0, time.UTC)}
	m.providers["PROV10000"] = &Provider{ProviderID: "PROV10000", NPI: "1234567890", ProviderName: "Dr. Jane Roe",
		ProviderType: ProviderPhysician}
	reason := "PRE_AUTH_REQUIRED"
	m.claims["CLM1000000"] = &Claim{ClaimID: "CLM1000000", PatientID: "PAT100000", ProviderID: "PROV10000",
		ClaimType: TypeOutpatient, ClaimStatus: StatusDenied, DenialReason: &reason,
		PrimaryDiagnosisCode: "E11.9", TotalCharge: 900}
	m.claims["CLM1000001"] = &Claim{ClaimID: "CLM1000001", PatientID: "PAT100000", ProviderID: "PROV10000",
		ClaimType: TypePhysician, ClaimStatus: StatusApproved, PrimaryDiagnosisCode: "I10",
		TotalCharge: 300, TotalPaid: 250}
	m.notes["NOTE100000"] = &Note{NoteID: "NOTE100000", ClaimID: "CLM1000000", NoteType: NoteProgress,
		NoteText: "PROGRESS NOTE"}
	return m
}

func newTestService() *Service {
	return NewService(seededRepo())
}

func TestService_GetClaim(t *testing.T) {
	svc := newTestService()
	d, err := svc.GetClaim(context.Background(), "CLM1000000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Patient == nil || d.Provider == nil {
		t.Error("expected patient and provider on claim detail")
	}
}

func TestService_GetClaim_InvalidID(t *testing.T) {
	svc := newTestService()
	for _, id := range []string{"", "1000000", "CLM", "clm1000000", "CLM12x"} {
		if _, err := svc.GetClaim(context.Background(), id); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for %q, got %v", id, err)
		}
	}
}

func TestService_GetClaim_NotFound(t *testing.T) {
	svc := newTestService()
	if _, err := svc.GetClaim(context.Background(), "CLM9999999"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_SearchClaims_Filters(t *testing.T) {
	svc := newTestService()
	items, total, err := svc.SearchClaims(context.Background(), ClaimFilter{ClaimStatus: StatusDenied}, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].ClaimID != "CLM1000000" {
		t.Errorf("expected only the denied claim, got total=%d items=%v", total, items)
	}
}

func TestService_SearchClaims_RejectsBadFilters(t *testing.T) {
	svc := newTestService()
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, -1, 0)

	bad := []ClaimFilter{
		{ClaimType: "DENTAL"},
		{ClaimStatus: "PAID"},
		{From: &from, To: &to},
	}
	for _, f := range bad {
		if _, _, err := svc.SearchClaims(context.Background(), f, 10, 0); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for %+v, got %v", f, err)
		}
	}
}

func TestService_ListClaimNotes(t *testing.T) {
	svc := newTestService()
	notes, err := svc.ListClaimNotes(context.Background(), "CLM1000000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notes) != 1 {
		t.Errorf("expected 1 note, got %d", len(notes))
	}
}

func TestIsClaimID(t *testing.T) {
	if !IsClaimID("CLM1000123") {
		t.Error("expected CLM1000123 to be a claim id")
	}
	if IsClaimID("PAT100000") {
		t.Error("expected PAT100000 not to be a claim id")
	}
	found := ClaimIDInText.FindAllString("compare CLM1000001 with clm1000002, not XCLM1", -1)
	if len(found) != 2 {
		t.Errorf("expected 2 claim ids in text, got %v", found)
	}
}
