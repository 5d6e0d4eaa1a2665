// Package assistant answers questions about claims by combining claim
// facts, denial rule findings, analytics measures and semantic search over
// clinical notes, then phrasing the answer with an LLM.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/claimsiq/claimsiq/internal/assistant/llm"
	"github.com/claimsiq/claimsiq/internal/domain/claims"
	"github.com/claimsiq/claimsiq/internal/domain/denials"
	"github.com/claimsiq/claimsiq/internal/platform/metrics"
	"github.com/claimsiq/claimsiq/internal/rag/embedding"
	"github.com/claimsiq/claimsiq/internal/rag/vectorstore"
	"github.com/claimsiq/claimsiq/internal/reporting"
)

var ErrEmptyQuestion = errors.New("question is empty")

const systemPrompt = `You are a healthcare claims analytics assistant. Answer the question using only the numbered context blocks.
Cite every statement with the block number in square brackets, for example [2].
When the context does not contain the answer, say that the records do not show it.
Never invent claim ids, amounts or denial reasons. Answer in concise Markdown.`

// ClaimLookup is satisfied by *claims.Service.
type ClaimLookup interface {
	GetClaim(ctx context.Context, claimID string) (*claims.ClaimDetail, error)
}

// MeasureEvaluator is satisfied by *reporting.Service.
type MeasureEvaluator interface {
	Evaluate(ctx context.Context, id string, params map[string]string) (*reporting.MeasureReport, error)
}

type Options struct {
	TopK           int
	MaxClaims      int
	MaxMeasures    int
	MaxMeasureRows int
	Timeout        time.Duration
	MaxTokens      int
	Temperature    float64
}

func (o *Options) defaults() {
	if o.TopK <= 0 {
		o.TopK = vectorstore.DefaultTopK
	}
	if o.MaxClaims <= 0 {
		o.MaxClaims = 3
	}
	if o.MaxMeasures <= 0 {
		o.MaxMeasures = 2
	}
	if o.MaxMeasureRows <= 0 {
		o.MaxMeasureRows = 12
	}
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
}

type Question struct {
	Text    string              `json:"question"`
	Filters vectorstore.Filters `json:"filters"`
	TopK    int                 `json:"top_k,omitempty"`
	// Format "html" also renders the answer as HTML.
	Format string `json:"format,omitempty"`
}

// Citation points at the context block an answer may cite as [Index].
type Citation struct {
	Index   int     `json:"index"`
	Kind    string  `json:"kind"`
	Ref     string  `json:"ref"`
	ClaimID string  `json:"claim_id,omitempty"`
	NoteID  string  `json:"note_id,omitempty"`
	Score   float64 `json:"score,omitempty"`
	Snippet string  `json:"snippet"`
}

// Citation kinds.
const (
	KindClaim   = "claim"
	KindMeasure = "measure"
	KindNote    = "note"
)

type Answer struct {
	Question  string                       `json:"question"`
	Intent    Intent                       `json:"intent"`
	Text      string                       `json:"answer"`
	HTML      string                       `json:"html,omitempty"`
	Citations []Citation                   `json:"citations"`
	Findings  map[string][]denials.Finding `json:"findings,omitempty"`
	Measures  []*reporting.MeasureReport   `json:"measures,omitempty"`
	Model     string                       `json:"model"`
	Latency   time.Duration                `json:"latency_ns"`
}

type Assistant struct {
	claims   ClaimLookup
	measures MeasureEvaluator
	store    vectorstore.Store
	engine   embedding.Engine
	llm      llm.Client
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	opts     Options
	now      func() time.Time
}

func New(claimLookup ClaimLookup, measures MeasureEvaluator, store vectorstore.Store, engine embedding.Engine,
	client llm.Client, logger zerolog.Logger, m *metrics.Metrics, opts Options) *Assistant {
	opts.defaults()
	return &Assistant{
		claims:   claimLookup,
		measures: measures,
		store:    store,
		engine:   engine,
		llm:      client,
		logger:   logger.With().Str("component", "assistant").Logger(),
		metrics:  m,
		opts:     opts,
		now:      time.Now,
	}
}

// retrieval accumulates numbered context blocks and their citations.
type retrieval struct {
	blocks    []llm.Block
	citations []Citation
	findings  map[string][]denials.Finding
	measures  []*reporting.MeasureReport
}

func (r *retrieval) add(c Citation, title, text string) {
	c.Index = len(r.blocks) + 1
	c.Snippet = snippet(text, 240)
	r.blocks = append(r.blocks, llm.Block{Index: c.Index, Title: title, Text: text})
	r.citations = append(r.citations, c)
}

// Ask runs the question through classification, retrieval, prompt assembly
// and completion.
func (a *Assistant) Ask(ctx context.Context, q Question) (*Answer, error) {
	start := a.now()
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, ErrEmptyQuestion
	}
	cls := Classify(text)
	log := a.logger.With().Str("intent", string(cls.Intent)).Logger()

	ret := &retrieval{findings: map[string][]denials.Finding{}}
	if err := a.retrieveClaims(ctx, cls, ret); err != nil {
		return nil, err
	}
	a.retrieveMeasures(ctx, log, cls, ret)

	filters := q.Filters
	if cls.Intent == IntentClaimLookup && len(cls.ClaimIDs) == 1 && filters.ClaimID == "" {
		filters.ClaimID = cls.ClaimIDs[0]
	}
	topK := q.TopK
	if topK <= 0 {
		topK = a.opts.TopK
	}
	hits, err := a.Search(ctx, text, filters, topK)
	if err != nil {
		return nil, err
	}
	for _, h := range hits {
		ret.add(Citation{Kind: KindNote, Ref: h.ChunkID, ClaimID: h.ClaimID, NoteID: h.NoteID, Score: h.Score},
			fmt.Sprintf("Clinical note %s (%s, claim %s, similarity %.3f)", h.NoteID, h.NoteType, h.ClaimID, h.Score),
			h.Content)
	}

	cctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()
	resp, err := a.llm.Complete(cctx, llm.Request{
		System:      systemPrompt,
		Prompt:      BuildPrompt(text, ret.blocks),
		Question:    text,
		Blocks:      ret.blocks,
		MaxTokens:   a.opts.MaxTokens,
		Temperature: a.opts.Temperature,
	})
	if err != nil {
		a.metrics.LLMError(a.llm.Provider())
		return nil, fmt.Errorf("%s completion: %w", a.llm.Provider(), err)
	}

	ans := &Answer{
		Question:  text,
		Intent:    cls.Intent,
		Text:      resp.Text,
		Citations: ret.citations,
		Measures:  ret.measures,
		Model:     resp.Model,
		Latency:   a.now().Sub(start),
	}
	if ans.Citations == nil {
		ans.Citations = []Citation{}
	}
	if len(ret.findings) > 0 {
		ans.Findings = ret.findings
	}
	if q.Format == "html" {
		html, err := RenderHTML(ans.Text)
		if err != nil {
			return nil, err
		}
		ans.HTML = html
	}

	a.metrics.QuestionAnswered(string(cls.Intent))
	log.Info().
		Int("context_blocks", len(ret.blocks)).
		Str("model", ans.Model).
		Dur("latency", ans.Latency).
		Msg("question answered")
	return ans, nil
}

// Search embeds text and returns the nearest note chunks for the engine.
// Filter values are matched case-insensitively.
func (a *Assistant) Search(ctx context.Context, text string, filters vectorstore.Filters, topK int) ([]vectorstore.Hit, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyQuestion
	}
	vec, err := a.engine.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	hits, err := a.store.Search(ctx, vec, vectorstore.Query{Model: a.engine.Name(), TopK: topK, Filters: filters.Normalize()})
	if err != nil {
		return nil, err
	}
	return hits, nil
}

func (a *Assistant) retrieveClaims(ctx context.Context, cls Classification, ret *retrieval) error {
	for i, id := range cls.ClaimIDs {
		if i == a.opts.MaxClaims {
			break
		}
		detail, err := a.claims.GetClaim(ctx, id)
		if errors.Is(err, claims.ErrNotFound) {
			ret.add(Citation{Kind: KindClaim, Ref: id, ClaimID: id}, "Claim "+id, fmt.Sprintf("Claim %s was not found in the claims records.", id))
			continue
		}
		if err != nil {
			return fmt.Errorf("lookup claim %s: %w", id, err)
		}
		findings := denials.Evaluate(&detail.Claim)
		ret.findings[id] = findings
		ret.add(Citation{Kind: KindClaim, Ref: id, ClaimID: id}, "Claim "+id, DescribeClaim(detail, findings))
	}
	return nil
}

// retrieveMeasures evaluates the matched measures. A failing measure is
// logged and left out; the warehouse may not be built yet.
func (a *Assistant) retrieveMeasures(ctx context.Context, log zerolog.Logger, cls Classification, ret *retrieval) {
	for i, id := range cls.Measures {
		if i == a.opts.MaxMeasures {
			break
		}
		report, err := a.measures.Evaluate(ctx, id, nil)
		if err != nil {
			log.Warn().Err(err).Str("measure", id).Msg("measure evaluation failed")
			continue
		}
		ret.measures = append(ret.measures, report)
		ret.add(Citation{Kind: KindMeasure, Ref: id}, "Measure: "+report.MeasureName, report.Text(a.opts.MaxMeasureRows))
	}
}

// DescribeClaim renders claim facts and rule findings as prose.
func DescribeClaim(d *claims.ClaimDetail, findings []denials.Finding) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Claim %s is a %s claim dated %s for patient %s at provider %s",
		d.ClaimID, d.ClaimType, d.ClaimDate.Format("2006-01-02"), d.PatientID, d.ProviderID)
	if d.Provider != nil {
		fmt.Fprintf(&b, " (%s, %s)", d.Provider.ProviderName, d.Provider.ProviderType)
	}
	b.WriteString(".\n")

	fmt.Fprintf(&b, "Primary diagnosis %s", d.PrimaryDiagnosisCode)
	if d.DiagnosisDescription != "" {
		fmt.Fprintf(&b, " (%s, category %s)", d.DiagnosisDescription, d.DiagnosisCategory)
	}
	if d.PrimaryProcedureCode != nil {
		fmt.Fprintf(&b, "; procedure CPT %s", *d.PrimaryProcedureCode)
		if d.ProcedureDescription != "" {
			fmt.Fprintf(&b, " (%s)", d.ProcedureDescription)
		}
	}
	b.WriteString(".\n")

	if los := d.LengthOfStay(); los > 0 {
		fmt.Fprintf(&b, "Inpatient stay of %d days.\n", los)
	}
	fmt.Fprintf(&b, "Total charge %.2f, total paid %.2f. Status %s.\n", d.TotalCharge, d.TotalPaid, d.ClaimStatus)
	if d.DenialReason != nil {
		fmt.Fprintf(&b, "Denial reason %s: %s.\n", *d.DenialReason, strings.TrimSuffix(denials.Explain(*d.DenialReason), "."))
	}
	for _, f := range findings {
		fmt.Fprintf(&b, "Rule %s (%s): %s\n", f.RuleID, f.Severity, f.Message)
	}
	return strings.TrimRight(b.String(), "\n")
}

// BuildPrompt numbers the context blocks and appends the question.
func BuildPrompt(question string, blocks []llm.Block) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	if len(blocks) == 0 {
		b.WriteString("(no relevant records were found)\n")
	}
	for _, blk := range blocks {
		fmt.Fprintf(&b, "\n[%d] %s\n%s\n", blk.Index, blk.Title, blk.Text)
	}
	fmt.Fprintf(&b, "\nQuestion: %s\nAnswer:", question)
	return b.String()
}

// snippet collapses whitespace and cuts s to at most n runes, preferring a
// word boundary.
func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	head := string([]rune(s)[:n])
	if cut := strings.LastIndex(head, " "); cut > 0 {
		head = head[:cut]
	}
	return head + "..."
}
