// Package vectorstore provides tenant-isolated vector storage.
//
// Every tenant owns exactly one backend collection, named tenant_<slug>.
// Two redundant mechanisms keep tenants apart on every read and write:
//
//   - Physical separation: an operation for tenant T can only ever name
//     T's own collection. The collection name is a pure function of the
//     tenant slug.
//   - Payload tagging: every write stamps the record payload with the
//     owning tenant, and every read that returns a record verifies the
//     tag against the requesting tenant. A mismatch is reported as
//     ErrIsolationViolation, never downgraded to a miss.
//
// Implementations:
//   - QdrantStore: external Qdrant over gRPC
//   - ChromemStore: embedded chromem-go (local dev, tests)
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidTenant is returned when a tenant slug is empty or malformed.
	ErrInvalidTenant = errors.New("invalid tenant slug")

	// ErrIsolationViolation is returned when a record's tenant tag disagrees
	// with the requesting tenant. Fatal for the call, never a silent miss.
	ErrIsolationViolation = errors.New("tenant isolation violation")

	// ErrCollectionUnavailable is returned when a tenant's collection does
	// not exist and could not be provisioned.
	ErrCollectionUnavailable = errors.New("tenant collection unavailable")

	// ErrDimensionMismatch is returned when a vector or an existing
	// collection does not match the embedding dimension. Vectors are never
	// truncated or padded to fit.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrConnectionFailed indicates the backend could not be reached.
	ErrConnectionFailed = errors.New("failed to connect to vector backend")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyVector indicates an empty query or record vector.
	ErrEmptyVector = errors.New("empty vector")
)

// Record is a stored vector point together with its payload.
type Record struct {
	// ID is the caller-facing record identifier.
	ID string

	// Vector is the stored embedding.
	Vector []float32

	// Payload holds the record metadata, including the tenant tag,
	// the embedded source text, analysis_type and created_at.
	Payload map[string]any
}

// SearchResult is one match from a similarity search.
type SearchResult struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// SearchOptions narrows a similarity search.
type SearchOptions struct {
	// Limit caps the number of results. Must be positive.
	Limit int

	// ScoreThreshold, when set, drops results scoring below it.
	ScoreThreshold *float32

	// Filter is AND-combined with the mandatory tenant filter. The tenant
	// tag key is reserved; caller-supplied values for it are discarded.
	Filter map[string]any
}

// CollectionStats describes a tenant's collection.
//
// A failed stats query is surfaced as an error by Store.Stats, never as a
// zero-valued CollectionStats.
type CollectionStats struct {
	Tenant       string
	Collection   string
	PointCount   uint64
	IndexedCount uint64
	Status       string
}

// Store is the tenant-scoped interface for vector storage operations.
//
// The tenant slug is a mandatory first-class argument on every operation;
// there is no default tenant. Each operation checks that the tenant's
// collection exists and provisions it (cosine metric, sized to the current
// embedding dimension) when absent. Concurrent first use of a tenant is
// tolerated: a racing "already exists" during provisioning counts as
// success.
//
// Calls are synchronous and enforce no internal timeouts; callers bound
// them through ctx.
type Store interface {
	// Upsert writes or replaces the record with the given id in the
	// tenant's collection. The payload is stamped with the tenant tag
	// before the write, overwriting any caller-supplied value.
	Upsert(ctx context.Context, tenant, id string, vector []float32, payload map[string]any) error

	// Search returns up to opts.Limit records ordered by descending
	// similarity score. The tenant filter is part of the backend query
	// predicate, so limit and threshold apply to in-tenant candidates
	// only. Tie order between equal scores is backend-native and not
	// guaranteed stable.
	Search(ctx context.Context, tenant string, vector []float32, opts SearchOptions) ([]SearchResult, error)

	// Fetch returns the record if it exists in the tenant's own
	// collection, or (nil, nil) when absent there. It never consults
	// another tenant's collection. A record whose tenant tag disagrees
	// with the requester yields ErrIsolationViolation.
	Fetch(ctx context.Context, tenant, id string) (*Record, error)

	// Delete removes the record from the tenant's collection. Deleting an
	// id that does not exist is not an error.
	Delete(ctx context.Context, tenant, id string) error

	// Stats returns point count and index status for the tenant's
	// collection.
	Stats(ctx context.Context, tenant string) (*CollectionStats, error)

	// ListTenants returns the sorted slugs of all tenants with an existing
	// collection. Administrative operation; unmanaged collections are
	// skipped.
	ListTenants(ctx context.Context) ([]string, error)

	// DropCollection deletes the tenant's collection and all its records.
	// Administrative operation; query paths never delete collections.
	DropCollection(ctx context.Context, tenant string) error

	// Close releases backend resources.
	Close() error
}

// Dimensioner reports the embedding dimension used to size new collections.
// Implemented by the embeddings provider.
type Dimensioner interface {
	Dimension() int
}
