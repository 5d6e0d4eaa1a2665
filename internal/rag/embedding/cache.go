package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"github.com/dgraph-io/badger/v4"
)

// CachedEngine stores embeddings in badger keyed by engine name, request
// kind and the SHA-256 of the text, so re-indexing unchanged notes costs no
// provider calls.
type CachedEngine struct {
	Engine
	db      *badger.DB
	onCheck func(hit bool)
}

type CacheOption func(*CachedEngine)

// WithCacheObserver is called on every lookup; metrics hook in here.
func WithCacheObserver(fn func(hit bool)) CacheOption {
	return func(c *CachedEngine) { c.onCheck = fn }
}

// NewCachedEngine opens the cache in dir, or in memory when dir is empty.
func NewCachedEngine(e Engine, dir string, opts ...CacheOption) (*CachedEngine, error) {
	bopts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		bopts = bopts.WithInMemory(true)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	c := &CachedEngine{Engine: e, db: db}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *CachedEngine) Close() error { return c.db.Close() }

func (c *CachedEngine) key(kind, text string) []byte {
	sum := sha256.Sum256([]byte(text))
	return []byte(c.Engine.Name() + ":" + kind + ":" + hex.EncodeToString(sum[:]))
}

func (c *CachedEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	k := c.key("q", text)
	if v, ok := c.get(k); ok {
		return v, nil
	}
	v, err := c.Engine.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return v, c.put(map[string][]float32{string(k): v})
}

// EmbedBatch embeds only the texts missing from the cache.
func (c *CachedEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, t := range texts {
		if v, ok := c.get(c.key("d", t)); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.Engine.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("engine returned %d embeddings for %d texts", len(vecs), len(missTexts))
	}
	fresh := make(map[string][]float32, len(vecs))
	for j, i := range missIdx {
		out[i] = vecs[j]
		fresh[string(c.key("d", missTexts[j]))] = vecs[j]
	}
	return out, c.put(fresh)
}

func (c *CachedEngine) get(key []byte) ([]float32, bool) {
	var v []float32
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			v = decodeVector(val)
			return nil
		})
	})
	hit := err == nil && len(v) == c.Engine.Dimensions()
	if c.onCheck != nil {
		c.onCheck(hit)
	}
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false
	}
	return v, hit
}

func (c *CachedEngine) put(entries map[string][]float32) error {
	return c.db.Update(func(txn *badger.Txn) error {
		for k, v := range entries {
			if err := txn.Set([]byte(k), encodeVector(v)); err != nil {
				return fmt.Errorf("cache embedding: %w", err)
			}
		}
		return nil
	})
}

func encodeVector(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(x))
	}
	return b
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
