// Package mcp exposes the correction loop over the Model Context Protocol,
// so agents can log corrections and inspect patterns from their toolchain.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hyperengineering/iterata"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server wraps the MCP server with correction loop tools.
type Server struct {
	loop      *iterata.Loop
	mcpServer *server.MCPServer
}

// ToolResult represents the result of a tool call.
type ToolResult struct {
	Content string
	IsError bool
}

// ToolInfo represents a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// NewServer creates a new MCP server with iterata tools registered.
func NewServer(loop *iterata.Loop) *Server {
	s := &Server{loop: loop}

	s.mcpServer = server.NewMCPServer(
		"iterata",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerTools()
	return s
}

// Run starts the MCP server, reading from stdin and writing to stdout.
func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

// HandleMessage processes a raw JSON-RPC message and returns a response.
// This is primarily for testing the MCP protocol layer.
func (s *Server) HandleMessage(ctx context.Context, message json.RawMessage) mcp.JSONRPCMessage {
	return s.mcpServer.HandleMessage(ctx, message)
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{Name: "iterata_log", Description: "Log a human correction to a machine-extracted field value"},
		{Name: "iterata_explain", Description: "Attach an explanation to a pending correction"},
		{Name: "iterata_pending", Description: "List corrections that still lack an explanation"},
		{Name: "iterata_stats", Description: "Compute aggregate statistics over the correction store"},
		{Name: "iterata_patterns", Description: "Detect recurring correction patterns"},
		{Name: "iterata_recommendations", Description: "Derive prioritized recommendations from detected patterns"},
		{Name: "iterata_readiness", Description: "Check whether enough explained corrections exist to generate a skill"},
	}
}

// CallTool executes a tool by name with the given arguments.
// This is used for testing and direct invocation.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	switch name {
	case "iterata_log":
		return s.handleLog(ctx, args)
	case "iterata_explain":
		return s.handleExplain(ctx, args)
	case "iterata_pending":
		return s.handlePending(ctx, args)
	case "iterata_stats":
		return s.handleStats(ctx, args)
	case "iterata_patterns":
		return s.handlePatterns(ctx, args)
	case "iterata_recommendations":
		return s.handleRecommendations(ctx, args)
	case "iterata_readiness":
		return s.handleReadiness(ctx, args)
	default:
		return &ToolResult{Content: fmt.Sprintf("unknown tool: %s", name), IsError: true}, nil
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("iterata_log",
		mcp.WithDescription("Log a human correction to a machine-extracted field value. The correction starts pending; attach an explanation later with iterata_explain."),
		mcp.WithString("document_id",
			mcp.Description("Identifier of the source document"),
			mcp.Required(),
		),
		mcp.WithString("field_path",
			mcp.Description("Dotted path of the corrected field, e.g. invoice.total_amount"),
			mcp.Required(),
		),
		mcp.WithString("original",
			mcp.Description("The machine-extracted value"),
			mcp.Required(),
		),
		mcp.WithString("corrected",
			mcp.Description("The human-corrected value"),
			mcp.Required(),
		),
		mcp.WithString("explanation",
			mcp.Description("Optional human explanation, attached immediately"),
		),
		mcp.WithNumber("confidence_before",
			mcp.Description("Extraction confidence 0.0-1.0 before the correction"),
		),
		mcp.WithString("corrector_id",
			mcp.Description("Who made the correction"),
		),
	), s.mcpHandler(s.handleLog))

	s.mcpServer.AddTool(mcp.NewTool("iterata_explain",
		mcp.WithDescription("Attach an explanation to a pending correction. Without text, the configured explainer backend is invoked."),
		mcp.WithString("correction_id",
			mcp.Description("The correction to explain"),
			mcp.Required(),
		),
		mcp.WithString("text",
			mcp.Description("Explanation text; empty invokes the explainer backend"),
		),
		mcp.WithString("correction_type",
			mcp.Description("One of: format_error, business_rule, model_limitation, context_missing, ocr_error, other"),
		),
		mcp.WithNumber("automation_potential",
			mcp.Description("How automatable this fix is, 0.0-1.0"),
		),
		mcp.WithArray("tags",
			mcp.Description("Free-form tags"),
			mcp.WithStringItems(),
		),
	), s.mcpHandler(s.handleExplain))

	s.mcpServer.AddTool(mcp.NewTool("iterata_pending",
		mcp.WithDescription("List corrections that still lack an explanation."),
	), s.mcpHandler(s.handlePending))

	s.mcpServer.AddTool(mcp.NewTool("iterata_stats",
		mcp.WithDescription("Compute aggregate statistics over the correction store: totals, categories, fields, correctors, confidence, and activity over time."),
	), s.mcpHandler(s.handleStats))

	s.mcpServer.AddTool(mcp.NewTool("iterata_patterns",
		mcp.WithDescription("Detect recurring correction patterns grouped by category, by field, or by transformation shape."),
		mcp.WithString("group_by",
			mcp.Description("Grouping: category (default), field, or transformation"),
		),
	), s.mcpHandler(s.handlePatterns))

	s.mcpServer.AddTool(mcp.NewTool("iterata_recommendations",
		mcp.WithDescription("Derive prioritized recommendations (automate, investigate, create rules) from detected patterns."),
	), s.mcpHandler(s.handleRecommendations))

	s.mcpServer.AddTool(mcp.NewTool("iterata_readiness",
		mcp.WithDescription("Check whether enough explained corrections and patterns exist to generate a skill package."),
	), s.mcpHandler(s.handleReadiness))
}

type toolHandler func(ctx context.Context, args map[string]any) (*ToolResult, error)

func (s *Server) mcpHandler(h toolHandler) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := h(ctx, req.GetArguments())
		if err != nil {
			return nil, err
		}
		return toMCPResult(result), nil
	}
}

func toMCPResult(r *ToolResult) *mcp.CallToolResult {
	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: r.Content,
			},
		},
	}
	if r.IsError {
		result.IsError = true
	}
	return result
}

// Internal handlers

func (s *Server) handleLog(ctx context.Context, args map[string]any) (*ToolResult, error) {
	params := iterata.LogParams{
		DocumentID: stringArg(args, "document_id"),
		FieldPath:  stringArg(args, "field_path"),
		Original:   stringArg(args, "original"),
		Corrected:  stringArg(args, "corrected"),
	}
	if params.DocumentID == "" {
		return &ToolResult{Content: "document_id is required", IsError: true}, nil
	}
	if params.FieldPath == "" {
		return &ToolResult{Content: "field_path is required", IsError: true}, nil
	}

	params.Explanation = stringArg(args, "explanation")
	params.CorrectorID = stringArg(args, "corrector_id")
	if conf, ok := args["confidence_before"].(float64); ok {
		params.ConfidenceBefore = &conf
	}

	record, err := s.loop.Log(ctx, params)
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("log failed: %v", err), IsError: true}, nil
	}

	status := "pending explanation"
	if record.Explained() {
		status = "explained"
	}
	return &ToolResult{Content: fmt.Sprintf("Logged correction [%s] (%s):\n  %s: %q -> %q",
		record.Correction.ID, status, record.Correction.FieldPath,
		record.Correction.OriginalValue, record.Correction.CorrectedValue)}, nil
}

func (s *Server) handleExplain(ctx context.Context, args map[string]any) (*ToolResult, error) {
	correctionID := stringArg(args, "correction_id")
	if correctionID == "" {
		return &ToolResult{Content: "correction_id is required", IsError: true}, nil
	}

	var explanation *iterata.Explanation
	if text := stringArg(args, "text"); text != "" {
		explanation = &iterata.Explanation{
			Text: text,
			Type: iterata.ExplanationHuman,
		}
		if ct := stringArg(args, "correction_type"); ct != "" {
			correctionType := iterata.CorrectionType(ct)
			if !correctionType.IsValid() {
				return &ToolResult{Content: fmt.Sprintf("invalid correction_type: %s", ct), IsError: true}, nil
			}
			explanation.CorrectionType = correctionType
		}
		if ap, ok := args["automation_potential"].(float64); ok {
			explanation.AutomationPotential = ap
		}
		explanation.Tags = toStringSlice(args["tags"])
	}

	record, err := s.loop.Explain(ctx, correctionID, explanation)
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("explain failed: %v", err), IsError: true}, nil
	}
	return &ToolResult{Content: fmt.Sprintf("Explained correction [%s]:\n  Category: %s\n  %s",
		record.Correction.ID, record.Explanation.Category, record.Explanation.Text)}, nil
}

func (s *Server) handlePending(_ context.Context, _ map[string]any) (*ToolResult, error) {
	pending, err := s.loop.Pending()
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("pending failed: %v", err), IsError: true}, nil
	}
	if len(pending) == 0 {
		return &ToolResult{Content: "No pending corrections."}, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d pending corrections:\n\n", len(pending))
	for _, r := range pending {
		fmt.Fprintf(&sb, "[%s] %s / %s\n    %q -> %q\n",
			r.Correction.ID, r.Correction.DocumentID, r.Correction.FieldPath,
			r.Correction.OriginalValue, r.Correction.CorrectedValue)
	}
	return &ToolResult{Content: sb.String()}, nil
}

func (s *Server) handleStats(_ context.Context, _ map[string]any) (*ToolResult, error) {
	summary, err := s.loop.Summary()
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("stats failed: %v", err), IsError: true}, nil
	}
	return &ToolResult{Content: summary}, nil
}

func (s *Server) handlePatterns(_ context.Context, args map[string]any) (*ToolResult, error) {
	switch stringArg(args, "group_by") {
	case "", "category":
		patterns, err := s.loop.Patterns()
		if err != nil {
			return &ToolResult{Content: fmt.Sprintf("patterns failed: %v", err), IsError: true}, nil
		}
		return &ToolResult{Content: formatPatterns(patterns)}, nil
	case "field":
		byField, err := s.loop.PatternsByField()
		if err != nil {
			return &ToolResult{Content: fmt.Sprintf("patterns failed: %v", err), IsError: true}, nil
		}
		if len(byField) == 0 {
			return &ToolResult{Content: "No patterns detected."}, nil
		}
		var sb strings.Builder
		for field, patterns := range byField {
			fmt.Fprintf(&sb, "## %s\n%s\n", field, formatPatterns(patterns))
		}
		return &ToolResult{Content: sb.String()}, nil
	case "transformation":
		transformations, err := s.loop.TransformationPatterns()
		if err != nil {
			return &ToolResult{Content: fmt.Sprintf("patterns failed: %v", err), IsError: true}, nil
		}
		if len(transformations) == 0 {
			return &ToolResult{Content: "No transformation patterns detected."}, nil
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "%d transformation patterns:\n\n", len(transformations))
		for _, tp := range transformations {
			fmt.Fprintf(&sb, "- %s (%d times)\n", tp.Signature, tp.Frequency)
			for _, ex := range tp.Examples {
				fmt.Fprintf(&sb, "    %q -> %q (%s)\n", ex.Original, ex.Corrected, ex.FieldPath)
			}
		}
		return &ToolResult{Content: sb.String()}, nil
	default:
		return &ToolResult{Content: "group_by must be category, field, or transformation", IsError: true}, nil
	}
}

func (s *Server) handleRecommendations(_ context.Context, _ map[string]any) (*ToolResult, error) {
	recs, err := s.loop.Recommendations()
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("recommendations failed: %v", err), IsError: true}, nil
	}
	if len(recs) == 0 {
		return &ToolResult{Content: "No recommendations yet."}, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d recommendations:\n\n", len(recs))
	for i, rec := range recs {
		fmt.Fprintf(&sb, "%d. [%s/%s] %s\n   %s\n", i+1, rec.Priority, rec.Type, rec.Title, rec.Reason)
	}
	return &ToolResult{Content: sb.String()}, nil
}

func (s *Server) handleReadiness(_ context.Context, _ map[string]any) (*ToolResult, error) {
	readiness, err := s.loop.CheckReadiness()
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("readiness failed: %v", err), IsError: true}, nil
	}

	state := "NOT READY"
	if readiness.Ready {
		state = "READY"
	}
	return &ToolResult{Content: fmt.Sprintf("%s: %s\n  Explained corrections: %d\n  Patterns: %d",
		state, readiness.Reason, readiness.CorrectionsCount, readiness.PatternsCount)}, nil
}

func formatPatterns(patterns []iterata.Pattern) string {
	if len(patterns) == 0 {
		return "No patterns detected."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d patterns:\n\n", len(patterns))
	for _, p := range patterns {
		fmt.Fprintf(&sb, "[%s] %s\n    %d occurrences, %s impact, automation %.0f%%\n",
			p.ID, p.Description, p.Frequency, p.Impact, p.AutomationPotential*100)
	}
	return sb.String()
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// toStringSlice converts various array types to []string.
// Handles []any, []string, and nil.
func toStringSlice(v any) []string {
	if v == nil {
		return nil
	}

	switch arr := v.(type) {
	case []string:
		return arr
	case []any:
		result := make([]string, 0, len(arr))
		for _, item := range arr {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		return result
	default:
		return nil
	}
}
