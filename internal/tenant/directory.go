// Package tenant resolves tenant slugs to tenant records and their devices.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrUnknownTenant is returned when a slug resolves to no tenant.
	ErrUnknownTenant = errors.New("unknown tenant")
)

// Tenant is a registered organization.
type Tenant struct {
	Slug     string
	Name     string
	IsPublic bool
}

// Device is a measurement device owned by a tenant.
type Device struct {
	ID           string
	Name         string
	Label        string
	HasTelemetry bool
}

// Directory resolves tenants and their devices.
type Directory interface {
	// Lookup returns the tenant for a slug, or ErrUnknownTenant.
	Lookup(ctx context.Context, slug string) (*Tenant, error)

	// Devices returns the tenant's devices. An empty slice for a known
	// tenant is not an error.
	Devices(ctx context.Context, slug string) ([]Device, error)
}

// StaticDirectory is an in-memory Directory for development and tests.
type StaticDirectory struct {
	mu      sync.RWMutex
	tenants map[string]Tenant
	devices map[string][]Device
}

// NewStaticDirectory creates an empty StaticDirectory.
func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{
		tenants: make(map[string]Tenant),
		devices: make(map[string][]Device),
	}
}

// AddTenant registers a tenant with its devices.
func (d *StaticDirectory) AddTenant(t Tenant, devices ...Device) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tenants[t.Slug] = t
	d.devices[t.Slug] = append(d.devices[t.Slug], devices...)
}

// Lookup returns the tenant for a slug.
func (d *StaticDirectory) Lookup(ctx context.Context, slug string) (*Tenant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tenants[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTenant, slug)
	}
	return &t, nil
}

// Devices returns the tenant's devices sorted by id.
func (d *StaticDirectory) Devices(ctx context.Context, slug string) ([]Device, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if _, ok := d.tenants[slug]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTenant, slug)
	}
	out := make([]Device, len(d.devices[slug]))
	copy(out, d.devices[slug])
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Ensure StaticDirectory implements Directory.
var _ Directory = (*StaticDirectory)(nil)
