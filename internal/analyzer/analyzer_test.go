package analyzer

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/airqoon/analyzer/internal/analytics"
	"github.com/airqoon/analyzer/internal/rag"
	"github.com/airqoon/analyzer/internal/tenant"
	"github.com/airqoon/analyzer/internal/vectorstore"
)

// hashEmbedder derives a deterministic unit vector from the text so any
// report can be embedded without a model.
type hashEmbedder struct {
	dim  int
	fail bool
}

func (e *hashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if e.fail {
		return nil, errors.New("embedding backend down")
	}
	v := make([]float32, e.dim)
	h := 0
	for _, c := range text {
		h = (h*31 + int(c)) % 1000
	}
	var sum float64
	for i := range v {
		v[i] = float32((h+i)%97+1) / 97
		sum += float64(v[i]) * float64(v[i])
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v, nil
}

func (e *hashEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.EmbedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *hashEmbedder) Dimension() int { return e.dim }

// fakeSource serves canned stats keyed by range start date and records the
// ranges it was queried with.
type fakeSource struct {
	stats  map[string][]analytics.ParameterStats
	ranges [][2]time.Time
	params []string
	err    error
}

func (f *fakeSource) TimeRangeStats(ctx context.Context, deviceIDs []string, start, end time.Time, parameters []string) ([]analytics.ParameterStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(deviceIDs) == 0 {
		return nil, analytics.ErrNoDevices
	}
	f.ranges = append(f.ranges, [2]time.Time{start, end})
	f.params = parameters
	return f.stats[start.Format("2006-01-02")], nil
}

func newTestAnalyzer(t *testing.T, source analytics.Source, embedder *hashEmbedder) (*Service, *rag.Service) {
	t.Helper()

	dir := tenant.NewStaticDirectory()
	dir.AddTenant(tenant.Tenant{Slug: "akcansa", Name: "Akçansa", IsPublic: true},
		tenant.Device{ID: "dev-1", Name: "Station A", HasTelemetry: true},
		tenant.Device{ID: "dev-2", Name: "Station B"},
	)
	dir.AddTenant(tenant.Tenant{Slug: "empty-tenant", Name: "Empty"})

	policy, err := vectorstore.NewPolicy(embedder)
	require.NoError(t, err)
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{}, policy, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ragSvc, err := rag.NewService(dir, embedder, store, zap.NewNop())
	require.NoError(t, err)

	svc, err := NewService(dir, source, ragSvc, zap.NewNop())
	require.NoError(t, err)
	return svc, ragSvc
}

func TestTimeRangeAnalysis(t *testing.T) {
	source := &fakeSource{
		stats: map[string][]analytics.ParameterStats{
			"2024-02-01": {
				{Parameter: "PM10-24h", Avg: 42.5, Min: 10, Max: 98.7, Count: 672, Unit: "µg/m³"},
			},
		},
	}
	svc, ragSvc := newTestAnalyzer(t, source, &hashEmbedder{dim: 8})
	ctx := context.Background()

	res, err := svc.TimeRangeAnalysis(ctx, TimeRangeRequest{
		TenantSlug: "akcansa",
		Start:      time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	assert.Len(t, res.RecordID, 32)
	assert.Contains(t, res.Report, "# Akçansa - Time Range Analysis")
	assert.Contains(t, res.Report, "**Devices Analyzed:** 2")
	assert.Contains(t, res.Report, "- Average: 42.50 µg/m³")

	// Default pollutant set, normalized to stored parameter names.
	assert.Equal(t, []string{"PM2.5-24h", "PM10-24h", "NO2-1h"}, source.params)

	// The report was archived and is now countable.
	stats, err := ragSvc.CollectionStats(ctx, "akcansa")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.PointCount)
}

func TestTimeRangeAnalysis_ArchiveFailureIsWarning(t *testing.T) {
	source := &fakeSource{stats: map[string][]analytics.ParameterStats{}}
	svc, _ := newTestAnalyzer(t, source, &hashEmbedder{dim: 8, fail: true})

	res, err := svc.TimeRangeAnalysis(context.Background(), TimeRangeRequest{
		TenantSlug: "akcansa",
		Start:      time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Empty(t, res.RecordID)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "not archived")
	assert.NotEmpty(t, res.Report)
}

func TestTimeRangeAnalysis_Validation(t *testing.T) {
	source := &fakeSource{}
	svc, _ := newTestAnalyzer(t, source, &hashEmbedder{dim: 8})
	ctx := context.Background()

	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.TimeRangeAnalysis(ctx, TimeRangeRequest{TenantSlug: "nobody", Start: start, End: end})
	assert.ErrorIs(t, err, tenant.ErrUnknownTenant)

	_, err = svc.TimeRangeAnalysis(ctx, TimeRangeRequest{TenantSlug: "empty-tenant", Start: start, End: end})
	assert.ErrorIs(t, err, ErrNoDevices)

	_, err = svc.TimeRangeAnalysis(ctx, TimeRangeRequest{TenantSlug: "akcansa", Start: end, End: start})
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestTimeRangeAnalysis_SourceFailureIsFatal(t *testing.T) {
	source := &fakeSource{err: errors.New("connection refused")}
	svc, _ := newTestAnalyzer(t, source, &hashEmbedder{dim: 8})

	_, err := svc.TimeRangeAnalysis(context.Background(), TimeRangeRequest{
		TenantSlug: "akcansa",
		Start:      time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestMonthlyComparison(t *testing.T) {
	source := &fakeSource{
		stats: map[string][]analytics.ParameterStats{
			"2024-02-01": {{Parameter: "PM10-24h", Avg: 40, Count: 100}},
			"2024-04-01": {{Parameter: "PM10-24h", Avg: 55, Count: 100}}, // +37.5%
		},
	}
	svc, _ := newTestAnalyzer(t, source, &hashEmbedder{dim: 8})

	res, err := svc.MonthlyComparison(context.Background(), "akcansa", "2024-02", "2024-04")
	require.NoError(t, err)

	// Half-open month ranges: the end is the first day of the next month.
	require.Len(t, source.ranges, 2)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), source.ranges[0][0])
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), source.ranges[0][1])
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), source.ranges[1][0])
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), source.ranges[1][1])

	// Monthly comparisons include ozone.
	assert.Contains(t, source.params, "O3-1h")

	assert.Contains(t, res.Report, "**Dramatic change detected**")
	assert.Contains(t, res.Report, "- **Change:** +15.00 (+37.5%)")

	_, err = svc.MonthlyComparison(context.Background(), "akcansa", "Feb-2024", "2024-04")
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestDeviceList(t *testing.T) {
	svc, _ := newTestAnalyzer(t, &fakeSource{}, &hashEmbedder{dim: 8})

	out, err := svc.DeviceList(context.Background(), "akcansa")
	require.NoError(t, err)
	assert.Contains(t, out, "**Total Devices:** 2")
	assert.Contains(t, out, "## Station A")

	_, err = svc.DeviceList(context.Background(), "nobody")
	assert.ErrorIs(t, err, tenant.ErrUnknownTenant)
}

func TestTenantStatistics(t *testing.T) {
	source := &fakeSource{
		stats: map[string][]analytics.ParameterStats{
			"2024-02-01": {{Parameter: "PM10-24h", Avg: 42, Count: 10}},
		},
	}
	svc, _ := newTestAnalyzer(t, source, &hashEmbedder{dim: 8})
	ctx := context.Background()

	// Archive one analysis so the vector count is non-zero.
	_, err := svc.TimeRangeAnalysis(ctx, TimeRangeRequest{
		TenantSlug: "akcansa",
		Start:      time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	out, err := svc.TenantStatistics(ctx, "akcansa")
	require.NoError(t, err)
	assert.Contains(t, out, "**Device Count:** 2")
	assert.Contains(t, out, "**Stored Analyses:** 1")
	assert.Contains(t, out, "**Public:** yes")

	_, err = svc.TenantStatistics(ctx, "nobody")
	assert.ErrorIs(t, err, tenant.ErrUnknownTenant)
}
