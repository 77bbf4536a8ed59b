package report

import (
	"strings"
	"testing"
	"time"

	"github.com/airqoon/analyzer/internal/analytics"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestRender_MainRange(t *testing.T) {
	out := Render(TimeRangeData{
		TenantName:  "Akçansa",
		TenantSlug:  "akcansa",
		DeviceCount: 3,
		Start:       date("2024-02-01"),
		End:         date("2024-03-01"),
		Main: []analytics.ParameterStats{
			{Parameter: "PM10-24h", Avg: 42.5, Min: 10, Max: 98.7, Count: 672, Unit: "µg/m³"},
		},
	})

	for _, want := range []string{
		"# Akçansa - Time Range Analysis",
		"**Tenant:** akcansa",
		"**Devices Analyzed:** 3",
		"**Analysis Range:** 2024-02-01 - 2024-03-01",
		"### PM10-24h",
		"- Average: 42.50 µg/m³",
		"- Minimum: 10.00 µg/m³",
		"- Maximum: 98.70 µg/m³",
		"- Measurements: 672",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestRender_EmptyRange(t *testing.T) {
	out := Render(TimeRangeData{
		TenantSlug: "akcansa",
		Start:      date("2024-02-01"),
		End:        date("2024-03-01"),
	})
	if !strings.Contains(out, "No measurements found in this range.") {
		t.Errorf("empty range not reported:\n%s", out)
	}
	// Falls back to the slug when the display name is unknown.
	if !strings.Contains(out, "# akcansa - Time Range Analysis") {
		t.Errorf("slug fallback missing:\n%s", out)
	}
}

func TestRender_Comparison(t *testing.T) {
	compStart := date("2024-04-01")
	compEnd := date("2024-05-01")
	out := Render(TimeRangeData{
		TenantSlug:      "akcansa",
		Start:           date("2024-02-01"),
		End:             date("2024-03-01"),
		ComparisonStart: &compStart,
		ComparisonEnd:   &compEnd,
		Main: []analytics.ParameterStats{
			{Parameter: "PM10-24h", Avg: 40, Count: 10},
			{Parameter: "NO2-1h", Avg: 100, Count: 10},
		},
		Comparison: []analytics.ParameterStats{
			{Parameter: "PM10-24h", Avg: 50, Count: 10}, // +25%
			{Parameter: "NO2-1h", Avg: 105, Count: 10},  // +5%
		},
	})

	if !strings.Contains(out, "**Comparison Range:** 2024-04-01 - 2024-05-01") {
		t.Errorf("comparison range header missing:\n%s", out)
	}
	if !strings.Contains(out, "- **Change:** +10.00 (+25.0%)") {
		t.Errorf("change line missing:\n%s", out)
	}

	// Exactly one dramatic change: PM10 at +25%, NO2 at +5%.
	if got := strings.Count(out, "**Dramatic change detected**"); got != 1 {
		t.Errorf("dramatic change markers = %d, want 1:\n%s", got, out)
	}
}

func TestRender_DramaticChangeBoundary(t *testing.T) {
	render := func(base, comp float64) string {
		return Render(TimeRangeData{
			TenantSlug: "t1",
			Start:      date("2024-01-01"),
			End:        date("2024-02-01"),
			Main:       []analytics.ParameterStats{{Parameter: "PM10-24h", Avg: base}},
			Comparison: []analytics.ParameterStats{{Parameter: "PM10-24h", Avg: comp}},
		})
	}

	// Exactly 20% is not dramatic; the threshold is strict.
	if strings.Contains(render(100, 120), "Dramatic change") {
		t.Error("exactly +20% flagged as dramatic")
	}
	if !strings.Contains(render(100, 121), "Dramatic change") {
		t.Error("+21% not flagged as dramatic")
	}
	// Decreases count too.
	if !strings.Contains(render(100, 70), "Dramatic change") {
		t.Error("-30% not flagged as dramatic")
	}
}

func TestRenderDeviceList(t *testing.T) {
	out := RenderDeviceList(DeviceListData{
		TenantSlug: "akcansa",
		Devices: []DeviceEntry{
			{ID: "dev-1", Name: "Station A", Label: "north", HasTelemetry: true},
			{ID: "dev-2"},
		},
	})

	for _, want := range []string{
		"# akcansa - Device List",
		"**Total Devices:** 2",
		"## Station A",
		"- Device ID: dev-1",
		"- Label: north",
		"- Latest Telemetry: available",
		"## Unknown",
		"- Label: N/A",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("device list missing %q:\n%s", want, out)
		}
	}
}

func TestRenderStatistics(t *testing.T) {
	out := RenderStatistics(StatisticsData{
		TenantName:   "Akçansa",
		TenantSlug:   "akcansa",
		DeviceCount:  5,
		VectorPoints: 42,
		VectorOK:     true,
		IsPublic:     true,
	})
	for _, want := range []string{
		"**Device Count:** 5",
		"**Stored Analyses:** 42",
		"**Public:** yes",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("statistics missing %q:\n%s", want, out)
		}
	}

	// A failed stats query must not masquerade as zero.
	out = RenderStatistics(StatisticsData{TenantSlug: "akcansa", VectorOK: false})
	if !strings.Contains(out, "**Stored Analyses:** unavailable") {
		t.Errorf("failed vector stats not reported as unavailable:\n%s", out)
	}
}
