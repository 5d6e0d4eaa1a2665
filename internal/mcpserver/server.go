// Package mcpserver exposes the claims assistant as Model Context Protocol
// tools over stdio.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/claimsiq/claimsiq/internal/assistant"
	"github.com/claimsiq/claimsiq/internal/domain/claims"
	"github.com/claimsiq/claimsiq/internal/domain/denials"
	"github.com/claimsiq/claimsiq/internal/platform/logging"
	"github.com/claimsiq/claimsiq/internal/rag/vectorstore"
	"github.com/claimsiq/claimsiq/internal/reporting"
)

const (
	serverName = "claimsiq"
	maxTopK    = 50
	// maxMeasureRows bounds the table returned by evaluate_measure.
	maxMeasureRows = 50
)

// Tool names.
const (
	ToolAsk             = "ask_claims_question"
	ToolSearchNotes     = "search_clinical_notes"
	ToolGetClaim        = "get_claim"
	ToolEvaluateMeasure = "evaluate_measure"
)

type Server struct {
	asker    assistant.Asker
	claims   denials.ClaimGetter
	measures reporting.MeasureEvaluator
	logger   zerolog.Logger
}

func New(asker assistant.Asker, claimGetter denials.ClaimGetter, measures reporting.MeasureEvaluator, logger zerolog.Logger) *Server {
	return &Server{
		asker:    asker,
		claims:   claimGetter,
		measures: measures,
		logger:   logging.Component(logger, "mcp"),
	}
}

// Tools returns the tool definitions bound to their handlers.
func (s *Server) Tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: askTool(), Handler: s.handleAsk},
		{Tool: searchNotesTool(), Handler: s.handleSearchNotes},
		{Tool: getClaimTool(), Handler: s.handleGetClaim},
		{Tool: evaluateMeasureTool(), Handler: s.handleEvaluateMeasure},
	}
}

// MCPServer builds the protocol server with every tool registered.
func (s *Server) MCPServer(version string) *server.MCPServer {
	srv := server.NewMCPServer(serverName, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	srv.AddTools(s.Tools()...)
	return srv
}

// ServeStdio blocks serving requests on stdin/stdout.
func (s *Server) ServeStdio(version string) error {
	s.logger.Info().Int("tools", len(s.Tools())).Msg("serving MCP over stdio")
	return server.ServeStdio(s.MCPServer(version))
}

func askTool() mcp.Tool {
	return mcp.NewTool(ToolAsk,
		mcp.WithDescription("Answer a question about claims, denials and clinical notes. "+
			"Mentions of claim ids (CLM1000001) are looked up directly; analytics questions use predefined measures."),
		mcp.WithString("question", mcp.Required(), mcp.Description("Natural language question")),
		mcp.WithString("claim_id", mcp.Description("Restrict note retrieval to one claim")),
		mcp.WithNumber("top_k", mcp.Description("Notes to retrieve (default 5, max 50)")),
	)
}

func searchNotesTool() mcp.Tool {
	return mcp.NewTool(ToolSearchNotes,
		mcp.WithDescription("Semantic search over clinical note chunks with optional metadata filters"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search text")),
		mcp.WithNumber("top_k", mcp.Description("Results to return (default 5, max 50)")),
		mcp.WithString("claim_id", mcp.Description("Filter by claim id")),
		mcp.WithString("claim_status", mcp.Description("Filter by claim status, e.g. denied")),
		mcp.WithString("claim_type", mcp.Description("Filter by claim type, e.g. inpatient")),
		mcp.WithString("denial_reason", mcp.Description("Filter by denial reason code")),
		mcp.WithString("diagnosis_code", mcp.Description("Filter by ICD-10 code")),
		mcp.WithString("note_type", mcp.Description("Filter by note type")),
	)
}

func getClaimTool() mcp.Tool {
	return mcp.NewTool(ToolGetClaim,
		mcp.WithDescription("Get a claim with its patient, provider, codes and denial analysis"),
		mcp.WithString("claim_id", mcp.Required(), mcp.Description("Claim id, e.g. CLM1000001")),
	)
}

func evaluateMeasureTool() mcp.Tool {
	ids := make([]string, 0, len(reporting.PredefinedMeasures))
	for _, m := range reporting.PredefinedMeasures {
		ids = append(ids, m.ID)
	}
	return mcp.NewTool(ToolEvaluateMeasure,
		mcp.WithDescription("Evaluate a predefined analytics measure over the claims fact table"),
		mcp.WithString("measure_id", mcp.Required(), mcp.Enum(ids...), mcp.Description("Measure id")),
		mcp.WithString("from", mcp.Description("Window start date, YYYY-MM-DD")),
		mcp.WithString("to", mcp.Description("Window end date, YYYY-MM-DD")),
	)
}

func topK(req mcp.CallToolRequest) int {
	k := req.GetInt("top_k", vectorstore.DefaultTopK)
	if k < 1 {
		k = vectorstore.DefaultTopK
	}
	if k > maxTopK {
		k = maxTopK
	}
	return k
}

func (s *Server) handleAsk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil || strings.TrimSpace(question) == "" {
		return mcp.NewToolResultError("question is required"), nil
	}
	ans, err := s.asker.Ask(ctx, assistant.Question{
		Text:    question,
		Filters: vectorstore.Filters{ClaimID: req.GetString("claim_id", "")},
		TopK:    topK(req),
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("ask failed")
		return mcp.NewToolResultError(fmt.Sprintf("could not answer: %v", err)), nil
	}

	var b strings.Builder
	b.WriteString(ans.Text)
	if len(ans.Citations) > 0 {
		b.WriteString("\n\nSources:\n")
		for _, c := range ans.Citations {
			fmt.Fprintf(&b, "[%d] %s %s\n", c.Index, c.Kind, c.Ref)
		}
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

func (s *Server) handleSearchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	filters := vectorstore.Filters{
		ClaimID:       req.GetString("claim_id", ""),
		ClaimStatus:   req.GetString("claim_status", ""),
		ClaimType:     req.GetString("claim_type", ""),
		DenialReason:  req.GetString("denial_reason", ""),
		DiagnosisCode: req.GetString("diagnosis_code", ""),
		NoteType:      req.GetString("note_type", ""),
	}
	hits, err := s.asker.Search(ctx, query, filters, topK(req))
	if err != nil {
		s.logger.Error().Err(err).Msg("search failed")
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	return mcp.NewToolResultText(formatHits(query, hits)), nil
}

func (s *Server) handleGetClaim(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("claim_id")
	if err != nil || strings.TrimSpace(id) == "" {
		return mcp.NewToolResultError("claim_id is required"), nil
	}
	detail, err := s.claims.GetClaim(ctx, strings.TrimSpace(id))
	switch {
	case errors.Is(err, claims.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("claim %s not found", id)), nil
	case errors.Is(err, claims.ErrInvalidArgument):
		return mcp.NewToolResultError(err.Error()), nil
	case err != nil:
		s.logger.Error().Err(err).Str("claim_id", id).Msg("get claim failed")
		return mcp.NewToolResultError(fmt.Sprintf("could not load claim: %v", err)), nil
	}

	a := denials.Analyze(detail)
	var b strings.Builder
	b.WriteString(assistant.DescribeClaim(detail, a.Findings))
	fmt.Fprintf(&b, "\nModelled denial probability %.0f%%.", a.Probability*100)
	if len(a.CandidateReasons) > 0 {
		fmt.Fprintf(&b, "\nCoherent denial reasons: %s.", strings.Join(a.CandidateReasons, ", "))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleEvaluateMeasure(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("measure_id")
	if err != nil || id == "" {
		return mcp.NewToolResultError("measure_id is required"), nil
	}
	params := map[string]string{}
	for _, key := range []string{"from", "to"} {
		if v := req.GetString(key, ""); v != "" {
			params[key] = v
		}
	}

	report, err := s.measures.Evaluate(ctx, id, params)
	switch {
	case errors.Is(err, reporting.ErrUnknownMeasure):
		return mcp.NewToolResultError(fmt.Sprintf("unknown measure %q", id)), nil
	case errors.Is(err, reporting.ErrInvalidParameter):
		return mcp.NewToolResultError(err.Error()), nil
	case err != nil:
		s.logger.Error().Err(err).Str("measure_id", id).Msg("measure evaluation failed")
		return mcp.NewToolResultError(fmt.Sprintf("evaluation failed: %v", err)), nil
	}
	return mcp.NewToolResultText(strings.TrimRight(report.Text(maxMeasureRows), "\n")), nil
}

func formatHits(query string, hits []vectorstore.Hit) string {
	if len(hits) == 0 {
		return fmt.Sprintf("No clinical notes matched %q.", query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d notes matched %q:\n", len(hits), query)
	for i, h := range hits {
		fmt.Fprintf(&b, "\n%d. %s (claim %s, %s, score %.3f)\n", i+1, h.NoteID, h.ClaimID, h.NoteType, h.Score)
		if h.ClaimStatus != "" {
			fmt.Fprintf(&b, "   status %s", h.ClaimStatus)
			if h.DenialReason != "" {
				fmt.Fprintf(&b, ", denial %s", h.DenialReason)
			}
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "   %s\n", strings.Join(strings.Fields(h.Content), " "))
	}
	return strings.TrimRight(b.String(), "\n")
}
