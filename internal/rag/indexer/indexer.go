// Package indexer chunks clinical notes, embeds them and writes them to the
// vector store.
package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/claimsiq/claimsiq/internal/platform/metrics"
	"github.com/claimsiq/claimsiq/internal/rag/chunk"
	"github.com/claimsiq/claimsiq/internal/rag/embedding"
	"github.com/claimsiq/claimsiq/internal/rag/vectorstore"
)

const (
	DefaultBatchSize = 32
	DefaultWorkers   = 4
)

// Document is a note joined with the claim fields used as search filters.
type Document struct {
	NoteID        string
	ClaimID       string
	NoteType      string
	NoteText      string
	ClaimType     string
	ClaimStatus   string
	DenialReason  string
	DiagnosisCode string
}

// Hash fingerprints the note text and the claim context copied onto its
// chunks. A changed hash means the indexed chunks are stale.
func (d Document) Hash() string {
	h := sha256.New()
	for _, f := range []string{d.NoteText, d.ClaimID, d.NoteType, d.ClaimType, d.ClaimStatus, d.DenialReason, d.DiagnosisCode} {
		h.Write([]byte(f))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Source lists the notes available for indexing.
type Source interface {
	Documents(ctx context.Context) ([]Document, error)
}

type Options struct {
	// Reindex re-embeds every note, even those whose chunks are current.
	Reindex   bool
	BatchSize int
	Workers   int
	MaxChars  int
	// Limit caps the number of notes indexed in one call; 0 means all.
	Limit int
}

type Stats struct {
	Notes    int           `json:"notes"`
	Chunks   int           `json:"chunks"`
	Skipped  int           `json:"skipped"`
	Removed  int           `json:"removed"`
	Model    string        `json:"model"`
	Duration time.Duration `json:"duration"`
}

type Indexer struct {
	source  Source
	store   vectorstore.Store
	engine  embedding.Engine
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func New(source Source, store vectorstore.Store, engine embedding.Engine, logger zerolog.Logger, m *metrics.Metrics) *Indexer {
	return &Indexer{
		source:  source,
		store:   store,
		engine:  engine,
		logger:  logger.With().Str("component", "indexer").Logger(),
		metrics: m,
	}
}

func (o *Options) defaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.MaxChars <= 0 {
		o.MaxChars = chunk.DefaultMaxChars
	}
}

// Index embeds every note whose chunks are missing or stale for the engine
// and drops chunks of notes the source no longer has. Batches are embedded
// and written concurrently; the first failure cancels the rest.
func (ix *Indexer) Index(ctx context.Context, opts Options) (Stats, error) {
	opts.defaults()
	start := time.Now()
	model := ix.engine.Name()
	stats := Stats{Model: model}

	docs, err := ix.source.Documents(ctx)
	if err != nil {
		return stats, fmt.Errorf("list notes: %w", err)
	}
	indexed, err := ix.store.IndexedNotes(ctx, model)
	if err != nil {
		return stats, err
	}

	var pending []Document
	hashes := make(map[string]string)
	var stale []string
	present := make(map[string]bool, len(docs))
	for _, d := range docs {
		present[d.NoteID] = true
		hash := d.Hash()
		prev, seen := indexed[d.NoteID]
		if seen && prev == hash && !opts.Reindex {
			stats.Skipped++
			continue
		}
		if opts.Limit > 0 && len(pending) >= opts.Limit {
			continue
		}
		if seen {
			stale = append(stale, d.NoteID)
		}
		hashes[d.NoteID] = hash
		pending = append(pending, d)
	}
	// notes no longer in the source
	var removed []string
	for id := range indexed {
		if !present[id] {
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	stats.Removed = len(removed)
	if err := ix.store.DeleteNotes(ctx, model, append(stale, removed...)); err != nil {
		return stats, err
	}

	var records []vectorstore.Record
	for _, d := range pending {
		for _, c := range chunk.Split(d.NoteID, d.NoteText, opts.MaxChars) {
			records = append(records, vectorstore.Record{
				ChunkID:       c.ID,
				Model:         model,
				NoteID:        d.NoteID,
				ClaimID:       d.ClaimID,
				ChunkIndex:    c.Index,
				NoteType:      d.NoteType,
				ClaimType:     d.ClaimType,
				ClaimStatus:   d.ClaimStatus,
				DenialReason:  d.DenialReason,
				DiagnosisCode: d.DiagnosisCode,
				Content:       c.Text,
				ContentHash:   hashes[d.NoteID],
			})
		}
	}
	stats.Notes = len(pending)

	var written atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i := 0; i < len(records); i += opts.BatchSize {
		batch := records[i:min(i+opts.BatchSize, len(records))]
		g.Go(func() error {
			n, err := ix.embedBatch(gctx, batch)
			written.Add(int64(n))
			return err
		})
	}
	err = g.Wait()
	stats.Chunks = int(written.Load())
	stats.Duration = time.Since(start)
	ix.metrics.AddChunksIndexed(model, stats.Chunks)
	if err != nil {
		return stats, err
	}

	ix.logger.Info().
		Str("model", model).
		Int("notes", stats.Notes).
		Int("chunks", stats.Chunks).
		Int("skipped", stats.Skipped).
		Int("removed", stats.Removed).
		Dur("duration", stats.Duration).
		Msg("indexing complete")
	return stats, nil
}

func (ix *Indexer) embedBatch(ctx context.Context, batch []vectorstore.Record) (int, error) {
	texts := make([]string, len(batch))
	for i, r := range batch {
		texts[i] = r.Content
	}
	vecs, err := ix.engine.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed chunks %s..%s: %w", batch[0].ChunkID, batch[len(batch)-1].ChunkID, err)
	}
	if len(vecs) != len(batch) {
		return 0, fmt.Errorf("engine returned %d embeddings for %d chunks", len(vecs), len(batch))
	}
	for i := range batch {
		batch[i].Embedding = vecs[i]
	}
	if err := ix.store.Upsert(ctx, batch); err != nil {
		return 0, err
	}
	ix.logger.Debug().Int("chunks", len(batch)).Str("first", batch[0].ChunkID).Msg("batch indexed")
	return len(batch), nil
}
