package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SQLDirectory resolves tenants from the platform's tenants and devices
// tables in Postgres.
type SQLDirectory struct {
	pool *pgxpool.Pool
}

// NewSQLDirectory wraps an existing connection pool.
func NewSQLDirectory(pool *pgxpool.Pool) *SQLDirectory {
	return &SQLDirectory{pool: pool}
}

// Lookup returns the tenant for a slug, or ErrUnknownTenant.
func (d *SQLDirectory) Lookup(ctx context.Context, slug string) (*Tenant, error) {
	var t Tenant
	err := d.pool.QueryRow(ctx, `
		SELECT slug, name, is_public
		FROM tenants
		WHERE slug = $1
	`, slug).Scan(&t.Slug, &t.Name, &t.IsPublic)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTenant, slug)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up tenant %s: %w", slug, err)
	}
	return &t, nil
}

// Devices returns the tenant's devices. The tenant must exist; a known
// tenant with no devices yields an empty slice.
func (d *SQLDirectory) Devices(ctx context.Context, slug string) ([]Device, error) {
	if _, err := d.Lookup(ctx, slug); err != nil {
		return nil, err
	}

	rows, err := d.pool.Query(ctx, `
		SELECT device_id, name, COALESCE(label, ''), latest_telemetry IS NOT NULL
		FROM devices
		WHERE tenant_slug = $1
		ORDER BY device_id
		LIMIT 100
	`, slug)
	if err != nil {
		return nil, fmt.Errorf("listing devices for %s: %w", slug, err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		var dev Device
		if err := rows.Scan(&dev.ID, &dev.Name, &dev.Label, &dev.HasTelemetry); err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		devices = append(devices, dev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading device rows: %w", err)
	}
	return devices, nil
}

// Ensure SQLDirectory implements Directory.
var _ Directory = (*SQLDirectory)(nil)
