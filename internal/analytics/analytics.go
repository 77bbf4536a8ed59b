// Package analytics queries aggregated air-quality measurements.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoDevices is returned when a stats query is attempted with no devices.
var ErrNoDevices = errors.New("no devices to query")

// ParameterStats are the aggregates for one pollutant parameter over a
// time range.
type ParameterStats struct {
	Parameter string
	Avg       float64
	Min       float64
	Max       float64
	Count     int64
	Unit      string
}

// DefaultUnit is assumed when measurements carry no unit.
const DefaultUnit = "µg/m³"

// Source provides aggregated measurement statistics.
type Source interface {
	// TimeRangeStats returns per-parameter aggregates for the devices over
	// [start, end). Parameters must already be in canonical form. Results
	// are ordered by parameter name; parameters with no measurements are
	// absent.
	TimeRangeStats(ctx context.Context, deviceIDs []string, start, end time.Time, parameters []string) ([]ParameterStats, error)
}

// canonicalParameters maps common pollutant names to the averaging-period
// form stored in the measurements table.
var canonicalParameters = map[string]string{
	"PM10":  "PM10-24h",
	"PM2.5": "PM2.5-24h",
	"NO2":   "NO2-1h",
	"O3":    "O3-1h",
	"SO2":   "SO2-1h",
	"CO":    "CO-8h",
}

// NormalizeParameters converts pollutant names to their canonical stored
// form. Names already in canonical form, and unknown names, pass through
// unchanged.
func NormalizeParameters(parameters []string) []string {
	out := make([]string, len(parameters))
	for i, p := range parameters {
		if canonical, ok := canonicalParameters[strings.ToUpper(p)]; ok {
			out[i] = canonical
		} else {
			out[i] = p
		}
	}
	return out
}

// SQLSource reads the air_quality_index table in Postgres.
type SQLSource struct {
	pool *pgxpool.Pool
}

// NewSQLSource wraps an existing connection pool.
func NewSQLSource(pool *pgxpool.Pool) *SQLSource {
	return &SQLSource{pool: pool}
}

// TimeRangeStats returns per-parameter aggregates over a half-open range.
// A query failure is always surfaced; there is no zero-value fallback.
func (s *SQLSource) TimeRangeStats(ctx context.Context, deviceIDs []string, start, end time.Time, parameters []string) ([]ParameterStats, error) {
	if len(deviceIDs) == 0 {
		return nil, ErrNoDevices
	}

	rows, err := s.pool.Query(ctx, `
		SELECT
			parameter,
			AVG(concentration),
			MIN(concentration),
			MAX(concentration),
			COUNT(*),
			COALESCE(MAX(concentration_unit), $5)
		FROM air_quality_index
		WHERE device_id = ANY($1)
			AND calculated_datetime >= $2
			AND calculated_datetime < $3
			AND parameter = ANY($4)
		GROUP BY parameter
		ORDER BY parameter
	`, deviceIDs, start, end, parameters, DefaultUnit)
	if err != nil {
		return nil, fmt.Errorf("querying time range stats: %w", err)
	}
	defer rows.Close()

	var stats []ParameterStats
	for rows.Next() {
		var ps ParameterStats
		if err := rows.Scan(&ps.Parameter, &ps.Avg, &ps.Min, &ps.Max, &ps.Count, &ps.Unit); err != nil {
			return nil, fmt.Errorf("scanning stats row: %w", err)
		}
		stats = append(stats, ps)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading stats rows: %w", err)
	}
	return stats, nil
}

// Ensure SQLSource implements Source.
var _ Source = (*SQLSource)(nil)
