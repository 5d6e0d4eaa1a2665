package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/claimsiq/claimsiq/internal/platform/metrics"
	"github.com/claimsiq/claimsiq/internal/rag/embedding"
	"github.com/claimsiq/claimsiq/internal/rag/vectorstore"
)

type staticSource struct {
	docs []Document
	err  error
}

func (s staticSource) Documents(context.Context) ([]Document, error) { return s.docs, s.err }

// countingEngine wraps the hash engine and counts batch calls.
type countingEngine struct {
	*embedding.HashEngine
	mu      sync.Mutex
	batches int
	failOn  string
}

func (c *countingEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.batches++
	c.mu.Unlock()
	for _, t := range texts {
		if c.failOn != "" && strings.Contains(t, c.failOn) {
			return nil, errors.New("provider unavailable")
		}
	}
	return c.HashEngine.EmbedBatch(ctx, texts)
}

func docs(n int) []Document {
	out := make([]Document, n)
	for i := range out {
		out[i] = Document{
			NoteID:        fmt.Sprintf("NOTE%d", 100000+i),
			ClaimID:       fmt.Sprintf("CLM%d", 1000000+i),
			NoteType:      "PROGRESS",
			NoteText:      fmt.Sprintf("PROGRESS NOTE - 2024-01-%02d\n\nASSESSMENT:\nPatient %d is stable.", i%28+1, i),
			ClaimType:     "OUTPATIENT",
			ClaimStatus:   "APPROVED",
			DiagnosisCode: "I10",
		}
	}
	return out
}

func TestIndex_EmbedsAndSkips(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemoryStore()
	engine := &countingEngine{HashEngine: embedding.NewHashEngine(32)}
	m := metrics.New()
	ix := New(staticSource{docs: docs(70)}, store, engine, zerolog.Nop(), m)

	stats, err := ix.Index(ctx, Options{BatchSize: 32})
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if stats.Notes != 70 || stats.Chunks != 70 || stats.Skipped != 0 || stats.Model != "hash-32" {
		t.Errorf("unexpected stats %+v", stats)
	}
	if engine.batches != 3 {
		t.Errorf("expected 3 batches of at most 32, got %d", engine.batches)
	}
	if n, _ := store.Count(ctx, "hash-32"); n != 70 {
		t.Errorf("store holds %d chunks, want 70", n)
	}
	expected := `
# HELP claimsiq_rag_chunks_indexed_total Note chunks embedded and stored.
# TYPE claimsiq_rag_chunks_indexed_total counter
claimsiq_rag_chunks_indexed_total{model="hash-32"} 70
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "claimsiq_rag_chunks_indexed_total"); err != nil {
		t.Errorf("chunks metric: %v", err)
	}

	stats, err = ix.Index(ctx, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Notes != 0 || stats.Skipped != 70 {
		t.Errorf("second run should skip everything: %+v", stats)
	}

	hits, err := store.Search(ctx, mustEmbed(t, engine, "patient 7 is stable"), vectorstore.Query{Model: "hash-32", TopK: 1})
	if err != nil || len(hits) != 1 {
		t.Fatalf("search after indexing: %v %v", hits, err)
	}
	if hits[0].ClaimID == "" || hits[0].DiagnosisCode != "I10" {
		t.Errorf("claim context not carried onto the chunk: %+v", hits[0].Record)
	}
}

func mustEmbed(t *testing.T, e embedding.Engine, text string) []float32 {
	t.Helper()
	v, err := e.Embed(context.Background(), text)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestIndex_Reindex(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemoryStore()
	engine := embedding.NewHashEngine(16)
	source := staticSource{docs: docs(3)}
	ix := New(source, store, engine, zerolog.Nop(), nil)

	if _, err := ix.Index(ctx, Options{MaxChars: 40}); err != nil {
		t.Fatal(err)
	}
	before, _ := store.Count(ctx, engine.Name())
	if before <= 3 {
		t.Fatalf("small MaxChars should produce several chunks per note, got %d", before)
	}

	stats, err := ix.Index(ctx, Options{Reindex: true})
	if err != nil {
		t.Fatal(err)
	}
	after, _ := store.Count(ctx, engine.Name())
	if stats.Notes != 3 || after != 3 {
		t.Errorf("reindex should replace stale chunks: notes=%d chunks=%d", stats.Notes, after)
	}
}

func TestIndex_RegeneratedNotes(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemoryStore()
	engine := embedding.NewHashEngine(16)

	first := docs(4)
	if _, err := New(staticSource{docs: first}, store, engine, zerolog.Nop(), nil).Index(ctx, Options{}); err != nil {
		t.Fatal(err)
	}

	// Same ids, new content: one note rewritten, one claim now denied, one
	// note gone from the source.
	second := docs(3)
	second[0].NoteText = "DISCHARGE SUMMARY - 2024-02-01\n\nDISPOSITION:\nDischarged home."
	second[1].ClaimStatus = "DENIED"
	second[1].DenialReason = "TIMELY_FILING"
	stats, err := New(staticSource{docs: second}, store, engine, zerolog.Nop(), nil).Index(ctx, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Notes != 2 || stats.Skipped != 1 || stats.Removed != 1 {
		t.Errorf("expected 2 re-embedded, 1 skipped, 1 removed, got %+v", stats)
	}

	notes, _ := store.IndexedNotes(ctx, engine.Name())
	want := map[string]string{}
	for _, d := range second {
		want[d.NoteID] = d.Hash()
	}
	if diff := cmp.Diff(want, notes); diff != "" {
		t.Errorf("indexed notes mismatch (-want +got):\n%s", diff)
	}

	hits, err := store.Search(ctx, mustEmbed(t, engine, "discharged home"), vectorstore.Query{
		Model: engine.Name(), TopK: 1, Filters: vectorstore.Filters{ClaimID: second[0].ClaimID},
	})
	if err != nil || len(hits) != 1 || !strings.Contains(hits[0].Content, "Discharged home") {
		t.Fatalf("expected the rewritten note text, got %+v %v", hits, err)
	}
	hits, _ = store.Search(ctx, mustEmbed(t, engine, "stable"), vectorstore.Query{
		Model: engine.Name(), Filters: vectorstore.Filters{ClaimStatus: "DENIED"},
	})
	if len(hits) != 1 || hits[0].DenialReason != "TIMELY_FILING" {
		t.Errorf("expected refreshed claim context on chunks, got %+v", hits)
	}

	stats, _ = New(staticSource{docs: second}, store, engine, zerolog.Nop(), nil).Index(ctx, Options{})
	if stats.Notes != 0 || stats.Skipped != 3 || stats.Removed != 0 {
		t.Errorf("unchanged notes must be skipped, got %+v", stats)
	}
}

func TestDocumentHash(t *testing.T) {
	d := docs(1)[0]
	changed := d
	changed.DiagnosisCode = "E11.9"
	if d.Hash() == changed.Hash() || d.Hash() != docs(1)[0].Hash() {
		t.Error("hash must be stable and cover the claim context")
	}
	// field boundaries are part of the hash
	a := Document{NoteText: "ab", ClaimID: "c"}
	b := Document{NoteText: "a", ClaimID: "bc"}
	if a.Hash() == b.Hash() {
		t.Error("hash must separate fields")
	}
}

func TestIndex_Limit(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	ix := New(staticSource{docs: docs(10)}, store, embedding.NewHashEngine(8), zerolog.Nop(), nil)
	stats, err := ix.Index(context.Background(), Options{Limit: 4})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Notes != 4 {
		t.Errorf("expected 4 notes, got %d", stats.Notes)
	}
}

func TestIndex_Errors(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemoryStore()

	ix := New(staticSource{err: errors.New("db down")}, store, embedding.NewHashEngine(8), zerolog.Nop(), nil)
	if _, err := ix.Index(ctx, Options{}); err == nil || !strings.Contains(err.Error(), "db down") {
		t.Errorf("expected source error, got %v", err)
	}

	engine := &countingEngine{HashEngine: embedding.NewHashEngine(8), failOn: "Patient 5 "}
	ix = New(staticSource{docs: docs(10)}, store, engine, zerolog.Nop(), nil)
	_, err := ix.Index(ctx, Options{BatchSize: 2, Workers: 1})
	if err == nil || !strings.Contains(err.Error(), "provider unavailable") {
		t.Errorf("expected embedding failure, got %v", err)
	}
}
