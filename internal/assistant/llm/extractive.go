package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/claimsiq/claimsiq/internal/rag/embedding"
)

const (
	extractiveModel = "extractive"
	maxSentences    = 4
)

// Extractive answers without a model: it quotes the context sentences that
// share the most terms with the question, each cited by block number.
type Extractive struct{}

func NewExtractive() *Extractive { return &Extractive{} }

func (e *Extractive) Provider() string { return ProviderExtractive }

type sentence struct {
	block int
	pos   int
	text  string
	score int
}

func (e *Extractive) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(req.Blocks) == 0 {
		return &Response{Text: "I could not find any claims, measures or notes relevant to this question.", Model: extractiveModel}, nil
	}

	terms := map[string]bool{}
	for _, t := range embedding.Tokenize(req.Question) {
		terms[t] = true
	}

	var candidates []sentence
	pos := 0
	for _, b := range req.Blocks {
		for _, s := range splitSentences(b.Text) {
			score := 0
			for _, t := range embedding.Tokenize(s) {
				if terms[t] {
					score++
				}
			}
			candidates = append(candidates, sentence{block: b.Index, pos: pos, text: s, score: score})
			pos++
		}
	}
	if len(candidates) == 0 {
		var b strings.Builder
		b.WriteString("The retrieved records contain no narrative text. Relevant sources:\n\n")
		for _, blk := range req.Blocks {
			fmt.Fprintf(&b, "- %s [%d]\n", blk.Title, blk.Index)
		}
		return &Response{Text: strings.TrimRight(b.String(), "\n"), Model: extractiveModel}, nil
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	picked := candidates[:min(maxSentences, len(candidates))]
	if picked[0].score == 0 {
		// nothing overlaps; lead with the first sentence of each block
		picked = picked[:0]
		seen := map[int]bool{}
		for _, c := range candidatesByPos(candidates) {
			if !seen[c.block] && len(picked) < maxSentences {
				seen[c.block] = true
				picked = append(picked, c)
			}
		}
	}
	picked = candidatesByPos(picked)

	var b strings.Builder
	b.WriteString("Based on the retrieved records:\n\n")
	for _, s := range picked {
		fmt.Fprintf(&b, "- %s [%d]\n", s.text, s.block)
	}
	return &Response{Text: strings.TrimRight(b.String(), "\n"), Model: extractiveModel}, nil
}

func candidatesByPos(in []sentence) []sentence {
	out := append([]sentence(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i].pos < out[j].pos })
	return out
}

// splitSentences breaks text on line ends and sentence punctuation,
// dropping section headers and fragments shorter than three words.
func splitSentences(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasSuffix(line, ":") {
			continue
		}
		start := 0
		for i := 0; i < len(line); i++ {
			if (line[i] == '.' || line[i] == '?' || line[i] == '!') && (i+1 == len(line) || line[i+1] == ' ') {
				out = appendSentence(out, line[start:i+1])
				start = i + 1
			}
		}
		out = appendSentence(out, line[start:])
	}
	return out
}

func appendSentence(out []string, s string) []string {
	s = strings.TrimSpace(s)
	if len(strings.Fields(s)) < 3 {
		return out
	}
	return append(out, s)
}
