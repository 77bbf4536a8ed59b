// Package report renders analysis results as markdown. The rendered text
// is what gets embedded and stored for semantic search, so wording stays
// stable across releases.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/airqoon/analyzer/internal/analytics"
)

// DramaticChangePercent is the absolute percent change between two ranges
// above which a parameter is flagged in comparison reports.
const DramaticChangePercent = 20.0

const dateLayout = "2006-01-02"

// TimeRangeData is the input for a time-range analysis report.
type TimeRangeData struct {
	TenantName  string
	TenantSlug  string
	DeviceCount int

	Start time.Time
	End   time.Time

	// ComparisonStart/End are set for comparison reports.
	ComparisonStart *time.Time
	ComparisonEnd   *time.Time

	Main       []analytics.ParameterStats
	Comparison []analytics.ParameterStats
}

// Render builds the markdown report.
func Render(d TimeRangeData) string {
	var b strings.Builder

	name := d.TenantName
	if name == "" {
		name = d.TenantSlug
	}
	fmt.Fprintf(&b, "# %s - Time Range Analysis\n\n", name)
	fmt.Fprintf(&b, "**Tenant:** %s\n", d.TenantSlug)
	fmt.Fprintf(&b, "**Devices Analyzed:** %d\n", d.DeviceCount)
	fmt.Fprintf(&b, "**Analysis Range:** %s - %s\n", d.Start.Format(dateLayout), d.End.Format(dateLayout))
	if d.ComparisonStart != nil && d.ComparisonEnd != nil {
		fmt.Fprintf(&b, "**Comparison Range:** %s - %s\n", d.ComparisonStart.Format(dateLayout), d.ComparisonEnd.Format(dateLayout))
	}
	b.WriteString("\n")

	if len(d.Main) == 0 {
		b.WriteString("No measurements found in this range.\n\n")
	} else {
		b.WriteString("## Main Range Results\n\n")
		for _, ps := range d.Main {
			unit := ps.Unit
			if unit == "" {
				unit = analytics.DefaultUnit
			}
			fmt.Fprintf(&b, "### %s\n", ps.Parameter)
			fmt.Fprintf(&b, "- Average: %.2f %s\n", ps.Avg, unit)
			fmt.Fprintf(&b, "- Minimum: %.2f %s\n", ps.Min, unit)
			fmt.Fprintf(&b, "- Maximum: %.2f %s\n", ps.Max, unit)
			fmt.Fprintf(&b, "- Measurements: %d\n\n", ps.Count)
		}
	}

	if len(d.Comparison) > 0 {
		b.WriteString("## Comparison\n\n")
		main := make(map[string]analytics.ParameterStats, len(d.Main))
		for _, ps := range d.Main {
			main[ps.Parameter] = ps
		}
		for _, comp := range d.Comparison {
			base, ok := main[comp.Parameter]
			if !ok {
				continue
			}
			diff := comp.Avg - base.Avg
			var diffPct float64
			if base.Avg > 0 {
				diffPct = diff / base.Avg * 100
			}
			fmt.Fprintf(&b, "### %s\n", comp.Parameter)
			fmt.Fprintf(&b, "- **Change:** %+.2f (%+.1f%%)\n", diff, diffPct)
			fmt.Fprintf(&b, "  - Previous (%s): %.2f\n", d.Start.Format(dateLayout), base.Avg)
			if d.ComparisonStart != nil {
				fmt.Fprintf(&b, "  - Current (%s): %.2f\n", d.ComparisonStart.Format(dateLayout), comp.Avg)
			}
			if diffPct > DramaticChangePercent || diffPct < -DramaticChangePercent {
				b.WriteString("  - **Dramatic change detected**\n")
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

// DeviceListData is the input for a device list report.
type DeviceListData struct {
	TenantSlug string
	Devices    []DeviceEntry
}

// DeviceEntry is one device line in a device list report.
type DeviceEntry struct {
	ID           string
	Name         string
	Label        string
	HasTelemetry bool
}

// RenderDeviceList builds the markdown device list.
func RenderDeviceList(d DeviceListData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s - Device List\n\n", d.TenantSlug)
	fmt.Fprintf(&b, "**Total Devices:** %d\n\n", len(d.Devices))
	for _, dev := range d.Devices {
		name := dev.Name
		if name == "" {
			name = "Unknown"
		}
		label := dev.Label
		if label == "" {
			label = "N/A"
		}
		fmt.Fprintf(&b, "## %s\n", name)
		fmt.Fprintf(&b, "- Device ID: %s\n", dev.ID)
		fmt.Fprintf(&b, "- Label: %s\n", label)
		if dev.HasTelemetry {
			b.WriteString("- Latest Telemetry: available\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// StatisticsData is the input for a tenant statistics report.
type StatisticsData struct {
	TenantName   string
	TenantSlug   string
	DeviceCount  int
	VectorPoints uint64
	VectorOK     bool
	IsPublic     bool
}

// RenderStatistics builds the markdown statistics summary. A failed vector
// stats query is reported as unavailable, never as zero.
func RenderStatistics(d StatisticsData) string {
	var b strings.Builder
	name := d.TenantName
	if name == "" {
		name = d.TenantSlug
	}
	fmt.Fprintf(&b, "# %s - Statistics\n\n", name)
	fmt.Fprintf(&b, "**Tenant Slug:** %s\n", d.TenantSlug)
	fmt.Fprintf(&b, "**Device Count:** %d\n", d.DeviceCount)
	if d.VectorOK {
		fmt.Fprintf(&b, "**Stored Analyses:** %d\n", d.VectorPoints)
	} else {
		b.WriteString("**Stored Analyses:** unavailable\n")
	}
	if d.IsPublic {
		b.WriteString("**Public:** yes\n")
	} else {
		b.WriteString("**Public:** no\n")
	}
	return b.String()
}
