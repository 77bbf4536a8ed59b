package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/airqoon/analyzer/internal/analyzer"
	"github.com/airqoon/analyzer/internal/rag"
)

const dateLayout = "2006-01-02"

// textResult wraps markdown text in a tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

type timeRangeInput struct {
	TenantSlug          string   `json:"tenant_slug" jsonschema:"required,Tenant slug (e.g. 'akcansa', 'tupras', 'bursa-metropolitan-municipality')"`
	StartDate           string   `json:"start_date" jsonschema:"required,Start date in YYYY-MM-DD (inclusive)"`
	EndDate             string   `json:"end_date" jsonschema:"required,End date in YYYY-MM-DD (exclusive)"`
	ComparisonStartDate string   `json:"comparison_start_date,omitempty" jsonschema:"Optional comparison range start in YYYY-MM-DD"`
	ComparisonEndDate   string   `json:"comparison_end_date,omitempty" jsonschema:"Optional comparison range end in YYYY-MM-DD"`
	Pollutants          []string `json:"pollutants,omitempty" jsonschema:"Pollutants to analyze (PM2.5, PM10, NO2, O3, SO2, CO). Default: PM2.5, PM10, NO2"`
}

type analysisOutput struct {
	TenantSlug string   `json:"tenant_slug" jsonschema:"Tenant the analysis belongs to"`
	RecordID   string   `json:"record_id,omitempty" jsonschema:"Vector record id when the report was archived for search"`
	Warnings   []string `json:"warnings,omitempty" jsonschema:"Non-fatal problems, e.g. the archive step failing"`
}

type monthlyComparisonInput struct {
	TenantSlug string `json:"tenant_slug" jsonschema:"required,Tenant slug"`
	Month1     string `json:"month1" jsonschema:"required,First month in YYYY-MM"`
	Month2     string `json:"month2" jsonschema:"required,Second month in YYYY-MM"`
}

type tenantOnlyInput struct {
	TenantSlug string `json:"tenant_slug" jsonschema:"required,Tenant slug"`
}

type saveAnalysisInput struct {
	TenantSlug   string            `json:"tenant_slug" jsonschema:"required,Tenant slug"`
	AnalysisText string            `json:"analysis_text" jsonschema:"required,Analysis text to embed and store"`
	AnalysisType string            `json:"analysis_type,omitempty" jsonschema:"Analysis type label (default: analysis)"`
	Metadata     map[string]string `json:"metadata,omitempty" jsonschema:"Extra metadata stored with the analysis"`
}

type saveAnalysisOutput struct {
	TenantSlug string `json:"tenant_slug"`
	RecordID   string `json:"record_id" jsonschema:"Id of the stored vector record"`
}

type searchAnalysisInput struct {
	TenantSlug     string   `json:"tenant_slug" jsonschema:"required,Tenant slug"`
	QueryText      string   `json:"query_text" jsonschema:"required,Natural language search query"`
	Limit          int      `json:"limit,omitempty" jsonschema:"Maximum results (default: 5)"`
	ScoreThreshold *float32 `json:"score_threshold,omitempty" jsonschema:"Minimum similarity score between 0 and 1 (default: 0.5)"`
	FilterType     string   `json:"filter_type,omitempty" jsonschema:"Restrict to one analysis type (e.g. monthly_comparison)"`
}

type searchMatch struct {
	ID           string  `json:"id"`
	Score        float32 `json:"score"`
	AnalysisType string  `json:"analysis_type,omitempty"`
	CreatedAt    string  `json:"created_at,omitempty"`
	Text         string  `json:"text,omitempty"`
}

type searchAnalysisOutput struct {
	TenantSlug string        `json:"tenant_slug"`
	Query      string        `json:"query"`
	Count      int           `json:"count"`
	Matches    []searchMatch `json:"matches"`
}

func parseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD, got %q", field, value)
	}
	return t, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "tenant_time_range_analysis",
		Description: "Analyze air-quality measurements for a tenant's devices over a date range, optionally compared against a second range. The report is archived for semantic search.",
	}, s.handleTimeRangeAnalysis)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "tenant_monthly_comparison",
		Description: "Compare air quality between two calendar months for a tenant. Flags parameters whose average changed by more than 20%.",
	}, s.handleMonthlyComparison)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "tenant_device_list",
		Description: "List a tenant's measurement devices.",
	}, s.handleDeviceList)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "tenant_statistics",
		Description: "Show tenant-level statistics: device count and number of archived analyses.",
	}, s.handleTenantStatistics)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "save_analysis_to_vector_db",
		Description: "Embed an analysis text and store it in the tenant's vector collection for later semantic search.",
	}, s.handleSaveAnalysis)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_analysis_from_vector_db",
		Description: "Search the tenant's archived analyses by semantic similarity.",
	}, s.handleSearchAnalysis)
}

func (s *Server) handleTimeRangeAnalysis(ctx context.Context, req *mcp.CallToolRequest, args timeRangeInput) (*mcp.CallToolResult, analysisOutput, error) {
	start, err := parseDate("start_date", args.StartDate)
	if err != nil {
		return nil, analysisOutput{}, err
	}
	end, err := parseDate("end_date", args.EndDate)
	if err != nil {
		return nil, analysisOutput{}, err
	}

	request := analyzer.TimeRangeRequest{
		TenantSlug: args.TenantSlug,
		Start:      start,
		End:        end,
		Pollutants: args.Pollutants,
	}
	if args.ComparisonStartDate != "" || args.ComparisonEndDate != "" {
		cs, err := parseDate("comparison_start_date", args.ComparisonStartDate)
		if err != nil {
			return nil, analysisOutput{}, err
		}
		ce, err := parseDate("comparison_end_date", args.ComparisonEndDate)
		if err != nil {
			return nil, analysisOutput{}, err
		}
		request.ComparisonStart = &cs
		request.ComparisonEnd = &ce
	}

	res, err := s.analyzer.TimeRangeAnalysis(ctx, request)
	if err != nil {
		return nil, analysisOutput{}, err
	}
	return textResult(analysisText(res)), analysisOutput{
		TenantSlug: res.TenantSlug,
		RecordID:   res.RecordID,
		Warnings:   res.Warnings,
	}, nil
}

func (s *Server) handleMonthlyComparison(ctx context.Context, req *mcp.CallToolRequest, args monthlyComparisonInput) (*mcp.CallToolResult, analysisOutput, error) {
	res, err := s.analyzer.MonthlyComparison(ctx, args.TenantSlug, args.Month1, args.Month2)
	if err != nil {
		return nil, analysisOutput{}, err
	}
	return textResult(analysisText(res)), analysisOutput{
		TenantSlug: res.TenantSlug,
		RecordID:   res.RecordID,
		Warnings:   res.Warnings,
	}, nil
}

// analysisText appends the archive outcome to the rendered report.
func analysisText(res *analyzer.Result) string {
	var b strings.Builder
	b.WriteString(res.Report)
	if res.RecordID != "" {
		fmt.Fprintf(&b, "\n\nAnalysis archived for semantic search (record id: %s).\n", res.RecordID)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(&b, "\n\nWarning: %s\n", w)
	}
	return b.String()
}

type reportOutput struct {
	TenantSlug string `json:"tenant_slug"`
	Report     string `json:"report" jsonschema:"Rendered markdown report"`
}

func (s *Server) handleDeviceList(ctx context.Context, req *mcp.CallToolRequest, args tenantOnlyInput) (*mcp.CallToolResult, reportOutput, error) {
	text, err := s.analyzer.DeviceList(ctx, args.TenantSlug)
	if err != nil {
		return nil, reportOutput{}, err
	}
	return textResult(text), reportOutput{TenantSlug: args.TenantSlug, Report: text}, nil
}

func (s *Server) handleTenantStatistics(ctx context.Context, req *mcp.CallToolRequest, args tenantOnlyInput) (*mcp.CallToolResult, reportOutput, error) {
	text, err := s.analyzer.TenantStatistics(ctx, args.TenantSlug)
	if err != nil {
		return nil, reportOutput{}, err
	}
	return textResult(text), reportOutput{TenantSlug: args.TenantSlug, Report: text}, nil
}

func (s *Server) handleSaveAnalysis(ctx context.Context, req *mcp.CallToolRequest, args saveAnalysisInput) (*mcp.CallToolResult, saveAnalysisOutput, error) {
	analysisType := args.AnalysisType
	if analysisType == "" {
		analysisType = "analysis"
	}
	metadata := make(map[string]any, len(args.Metadata))
	for k, v := range args.Metadata {
		metadata[k] = v
	}

	id, err := s.rag.SaveAnalysis(ctx, args.TenantSlug, args.AnalysisText, rag.SaveOptions{
		AnalysisType: analysisType,
		Metadata:     metadata,
	})
	if err != nil {
		return nil, saveAnalysisOutput{}, err
	}

	s.logger.Info("analysis saved via MCP",
		zap.String("tenant", args.TenantSlug),
		zap.String("record_id", id))

	var b strings.Builder
	b.WriteString("# Analysis Saved\n\n")
	fmt.Fprintf(&b, "**Tenant:** %s\n", args.TenantSlug)
	fmt.Fprintf(&b, "**Record ID:** %s\n", id)
	fmt.Fprintf(&b, "**Analysis Type:** %s\n", analysisType)
	fmt.Fprintf(&b, "**Text Length:** %d characters\n", len(args.AnalysisText))
	b.WriteString("\nUse search_analysis_from_vector_db to retrieve it by similarity.\n")

	return textResult(b.String()), saveAnalysisOutput{
		TenantSlug: args.TenantSlug,
		RecordID:   id,
	}, nil
}

func (s *Server) handleSearchAnalysis(ctx context.Context, req *mcp.CallToolRequest, args searchAnalysisInput) (*mcp.CallToolResult, searchAnalysisOutput, error) {
	matches, err := s.rag.SearchAnalysis(ctx, args.TenantSlug, args.QueryText, rag.SearchOptions{
		Limit:          args.Limit,
		ScoreThreshold: args.ScoreThreshold,
		AnalysisType:   args.FilterType,
	})
	if err != nil {
		return nil, searchAnalysisOutput{}, err
	}

	out := searchAnalysisOutput{
		TenantSlug: args.TenantSlug,
		Query:      args.QueryText,
		Count:      len(matches),
		Matches:    make([]searchMatch, 0, len(matches)),
	}

	var b strings.Builder
	b.WriteString("# Search Results\n\n")
	fmt.Fprintf(&b, "**Tenant:** %s\n", args.TenantSlug)
	fmt.Fprintf(&b, "**Query:** %s\n", args.QueryText)
	fmt.Fprintf(&b, "**Matches:** %d\n\n", len(matches))

	if len(matches) == 0 {
		b.WriteString("No matching analyses found. Try a lower score threshold or a different query.\n")
	}
	for i, m := range matches {
		out.Matches = append(out.Matches, searchMatch{
			ID:           m.ID,
			Score:        m.Score,
			AnalysisType: m.AnalysisType,
			CreatedAt:    m.CreatedAt,
			Text:         m.Text,
		})

		text := m.Text
		if len(text) > 500 {
			text = text[:500] + "..."
		}
		fmt.Fprintf(&b, "## %d. (similarity %.3f)\n\n", i+1, m.Score)
		if m.AnalysisType != "" {
			fmt.Fprintf(&b, "**Analysis Type:** %s\n", m.AnalysisType)
		}
		if m.CreatedAt != "" {
			fmt.Fprintf(&b, "**Created:** %s\n", m.CreatedAt)
		}
		fmt.Fprintf(&b, "\n```\n%s\n```\n\n", text)
	}

	return textResult(b.String()), out, nil
}
