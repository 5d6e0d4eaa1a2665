package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

const DefaultDimensions = 768

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true, "by": true,
	"for": true, "from": true, "in": true, "is": true, "it": true, "of": true, "on": true, "or": true,
	"the": true, "this": true, "to": true, "was": true, "were": true, "with": true,
}

// HashEngine embeds text by feature hashing lowercased tokens and token
// bigrams into signed buckets. It needs no network and is deterministic, so
// it backs offline runs and tests.
type HashEngine struct {
	dims int
}

func NewHashEngine(dims int) *HashEngine {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &HashEngine{dims: dims}
}

func (e *HashEngine) Embed(_ context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

func (e *HashEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *HashEngine) Dimensions() int { return e.dims }

func (e *HashEngine) Name() string { return fmt.Sprintf("hash-%d", e.dims) }

func (e *HashEngine) vector(text string) []float32 {
	v := make([]float32, e.dims)
	tokens := Tokenize(text)
	for i, tok := range tokens {
		e.add(v, tok, 1)
		if i > 0 {
			e.add(v, tokens[i-1]+" "+tok, 0.5)
		}
	}
	normalize(v)
	return v
}

func (e *HashEngine) add(v []float32, feature string, weight float32) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dims))
	if sum>>63 == 1 {
		weight = -weight
	}
	v[idx] += weight
}

// Tokenize lowercases text and splits it into words, keeping dotted codes
// such as "e11.9" whole and dropping stopwords.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".")
		if f == "" || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}
