// Package analyzer runs tenant-scoped air-quality analyses and archives
// the resulting reports for semantic search.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/airqoon/analyzer/internal/analytics"
	"github.com/airqoon/analyzer/internal/rag"
	"github.com/airqoon/analyzer/internal/report"
	"github.com/airqoon/analyzer/internal/tenant"
)

var (
	// ErrNoDevices is returned when the tenant has no devices to analyze.
	ErrNoDevices = errors.New("tenant has no devices")

	// ErrInvalidRange is returned for empty or inverted date ranges.
	ErrInvalidRange = errors.New("invalid date range")
)

// defaultPollutants are analyzed when the caller names none.
var defaultPollutants = []string{"PM2.5", "PM10", "NO2"}

// monthlyPollutants are analyzed by monthly comparisons.
var monthlyPollutants = []string{"PM2.5", "PM10", "NO2", "O3"}

// TimeRangeRequest describes a time-range analysis.
type TimeRangeRequest struct {
	TenantSlug string
	Start      time.Time
	End        time.Time

	// ComparisonStart/End add a second range compared against the first.
	ComparisonStart *time.Time
	ComparisonEnd   *time.Time

	// Pollutants accepts common names (PM10, NO2); they are normalized to
	// the stored parameter form. Empty means the default set.
	Pollutants []string

	// analysisType labels the archived report.
	analysisType string
}

// Result is a finished analysis.
type Result struct {
	TenantSlug string

	// Report is the rendered markdown. This is the text that gets
	// embedded and archived.
	Report string

	// RecordID is set when the report was archived for semantic search.
	RecordID string

	// Warnings carries non-fatal failures, e.g. the archive step failing.
	// The analysis itself is still valid.
	Warnings []string
}

// Service runs analyses.
type Service struct {
	directory tenant.Directory
	source    analytics.Source
	rag       *rag.Service
	logger    *zap.Logger
}

// NewService wires the analyzer.
func NewService(directory tenant.Directory, source analytics.Source, ragService *rag.Service, logger *zap.Logger) (*Service, error) {
	if directory == nil || source == nil || ragService == nil {
		return nil, errors.New("directory, source and rag service are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		directory: directory,
		source:    source,
		rag:       ragService,
		logger:    logger,
	}, nil
}

// TimeRangeAnalysis aggregates measurements for the tenant's devices over
// [Start, End), renders the report and archives it. A failed archive is
// attached as a warning; it never fails the analysis.
func (s *Service) TimeRangeAnalysis(ctx context.Context, req TimeRangeRequest) (*Result, error) {
	if !req.End.After(req.Start) {
		return nil, fmt.Errorf("%w: end %s is not after start %s", ErrInvalidRange,
			req.End.Format("2006-01-02"), req.Start.Format("2006-01-02"))
	}

	t, err := s.directory.Lookup(ctx, req.TenantSlug)
	if err != nil {
		return nil, err
	}

	devices, err := s.directory.Devices(ctx, req.TenantSlug)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoDevices, req.TenantSlug)
	}
	deviceIDs := make([]string, len(devices))
	for i, d := range devices {
		deviceIDs[i] = d.ID
	}

	pollutants := req.Pollutants
	if len(pollutants) == 0 {
		pollutants = defaultPollutants
	}
	parameters := analytics.NormalizeParameters(pollutants)

	main, err := s.source.TimeRangeStats(ctx, deviceIDs, req.Start, req.End, parameters)
	if err != nil {
		return nil, fmt.Errorf("analyzing %s: %w", req.TenantSlug, err)
	}

	var comparison []analytics.ParameterStats
	if req.ComparisonStart != nil && req.ComparisonEnd != nil {
		comparison, err = s.source.TimeRangeStats(ctx, deviceIDs, *req.ComparisonStart, *req.ComparisonEnd, parameters)
		if err != nil {
			return nil, fmt.Errorf("analyzing comparison range for %s: %w", req.TenantSlug, err)
		}
	}

	text := report.Render(report.TimeRangeData{
		TenantName:      t.Name,
		TenantSlug:      req.TenantSlug,
		DeviceCount:     len(deviceIDs),
		Start:           req.Start,
		End:             req.End,
		ComparisonStart: req.ComparisonStart,
		ComparisonEnd:   req.ComparisonEnd,
		Main:            main,
		Comparison:      comparison,
	})

	result := &Result{
		TenantSlug: req.TenantSlug,
		Report:     text,
	}

	analysisType := req.analysisType
	if analysisType == "" {
		analysisType = "time_range_analysis"
	}
	metadata := map[string]any{
		"start_date":   req.Start.Format("2006-01-02"),
		"end_date":     req.End.Format("2006-01-02"),
		"tenant_name":  t.Name,
		"device_count": len(deviceIDs),
	}
	if req.ComparisonStart != nil && req.ComparisonEnd != nil {
		metadata["comparison_start_date"] = req.ComparisonStart.Format("2006-01-02")
		metadata["comparison_end_date"] = req.ComparisonEnd.Format("2006-01-02")
	}

	id, err := s.rag.SaveAnalysis(ctx, req.TenantSlug, text, rag.SaveOptions{
		AnalysisType: analysisType,
		Metadata:     metadata,
	})
	if err != nil {
		// The analysis stands on its own; archiving is best-effort.
		s.logger.Warn("archiving analysis failed",
			zap.String("tenant", req.TenantSlug),
			zap.Error(err))
		result.Warnings = append(result.Warnings, fmt.Sprintf("analysis not archived for search: %v", err))
		return result, nil
	}
	result.RecordID = id
	return result, nil
}

// parseMonth parses YYYY-MM.
func parseMonth(month string) (time.Time, error) {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: month %q is not YYYY-MM", ErrInvalidRange, month)
	}
	return t, nil
}

// MonthlyComparison compares two calendar months. Each month expands to a
// half-open range ending on the first day of the next month, so the last
// day's measurements are fully included.
func (s *Service) MonthlyComparison(ctx context.Context, tenantSlug, month1, month2 string) (*Result, error) {
	start1, err := parseMonth(month1)
	if err != nil {
		return nil, err
	}
	start2, err := parseMonth(month2)
	if err != nil {
		return nil, err
	}

	end1 := start1.AddDate(0, 1, 0)
	end2 := start2.AddDate(0, 1, 0)

	return s.TimeRangeAnalysis(ctx, TimeRangeRequest{
		TenantSlug:      tenantSlug,
		Start:           start1,
		End:             end1,
		ComparisonStart: &start2,
		ComparisonEnd:   &end2,
		Pollutants:      monthlyPollutants,
		analysisType:    "monthly_comparison",
	})
}

// DeviceList renders the tenant's device list.
func (s *Service) DeviceList(ctx context.Context, tenantSlug string) (string, error) {
	devices, err := s.directory.Devices(ctx, tenantSlug)
	if err != nil {
		return "", err
	}
	entries := make([]report.DeviceEntry, len(devices))
	for i, d := range devices {
		entries[i] = report.DeviceEntry{
			ID:           d.ID,
			Name:         d.Name,
			Label:        d.Label,
			HasTelemetry: d.HasTelemetry,
		}
	}
	return report.RenderDeviceList(report.DeviceListData{
		TenantSlug: tenantSlug,
		Devices:    entries,
	}), nil
}

// TenantStatistics renders tenant-level counts. A failing vector stats
// query is reported as unavailable instead of a silent zero.
func (s *Service) TenantStatistics(ctx context.Context, tenantSlug string) (string, error) {
	t, err := s.directory.Lookup(ctx, tenantSlug)
	if err != nil {
		return "", err
	}
	devices, err := s.directory.Devices(ctx, tenantSlug)
	if err != nil {
		return "", err
	}

	data := report.StatisticsData{
		TenantName:  t.Name,
		TenantSlug:  tenantSlug,
		DeviceCount: len(devices),
		IsPublic:    t.IsPublic,
	}
	stats, err := s.rag.CollectionStats(ctx, tenantSlug)
	if err != nil {
		s.logger.Warn("vector stats unavailable",
			zap.String("tenant", tenantSlug),
			zap.Error(err))
	} else {
		data.VectorOK = true
		data.VectorPoints = stats.PointCount
	}

	return report.RenderStatistics(data), nil
}
