package vectorstore

import (
	"fmt"
	"regexp"
	"strings"
)

// TenantTagKey is the payload key carrying the owning tenant's slug.
const TenantTagKey = "_tenant"

// collectionPrefix prefixes every tenant collection name.
const collectionPrefix = "tenant_"

// slugPattern validates tenant slugs: lowercase alphanumerics and hyphens,
// 1-63 characters, starting with an alphanumeric. Hyphens are allowed
// because real slugs carry them (e.g. "bursa-metropolitan-municipality").
var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}$`)

// ValidateSlug checks a tenant slug against the naming rules.
func ValidateSlug(slug string) error {
	if slug == "" {
		return fmt.Errorf("%w: slug required", ErrInvalidTenant)
	}
	if !slugPattern.MatchString(slug) {
		return fmt.Errorf("%w: slug must match ^[a-z0-9][a-z0-9-]{0,62}$, got %q", ErrInvalidTenant, slug)
	}
	return nil
}

// Policy enforces the tenant isolation invariants applied by every Store
// implementation: collection naming, payload tagging, filter injection and
// tag verification.
//
// Both mechanisms are redundant on purpose. Physical separation alone would
// suffice if the backend were trusted to be uncorrupted; the payload tag
// catches records that ended up in the wrong collection anyway.
type Policy struct {
	dim Dimensioner
}

// NewPolicy creates a Policy sized by the given embedding dimension source.
func NewPolicy(dim Dimensioner) (*Policy, error) {
	if dim == nil {
		return nil, fmt.Errorf("%w: dimensioner required", ErrInvalidConfig)
	}
	return &Policy{dim: dim}, nil
}

// CollectionName derives the tenant's exclusive collection name. It is a
// pure function of the slug, so an operation for one tenant can never name
// another tenant's collection.
func (p *Policy) CollectionName(tenant string) (string, error) {
	if err := ValidateSlug(tenant); err != nil {
		return "", err
	}
	return collectionPrefix + tenant, nil
}

// TenantFromCollection recovers the tenant slug from a collection name.
// Returns false for collections not managed by this policy.
func TenantFromCollection(name string) (string, bool) {
	slug, ok := strings.CutPrefix(name, collectionPrefix)
	if !ok || ValidateSlug(slug) != nil {
		return "", false
	}
	return slug, true
}

// Dimension returns the embedding dimension new collections are sized to.
func (p *Policy) Dimension() int {
	return p.dim.Dimension()
}

// TagPayload returns a copy of payload stamped with the tenant tag. Any
// caller-supplied tag value is overwritten.
func (p *Policy) TagPayload(tenant string, payload map[string]any) map[string]any {
	tagged := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		tagged[k] = v
	}
	tagged[TenantTagKey] = tenant
	return tagged
}

// TenantFilter returns the mandatory filter condition injected into every
// search predicate.
func (p *Policy) TenantFilter(tenant string) map[string]any {
	return map[string]any{TenantTagKey: tenant}
}

// MergeFilters AND-combines a caller-supplied metadata filter with the
// tenant filter. The tenant condition always wins over a caller-supplied
// value for the tag key.
func (p *Policy) MergeFilters(tenant string, extra map[string]any) map[string]any {
	merged := make(map[string]any, len(extra)+1)
	for k, v := range extra {
		merged[k] = v
	}
	merged[TenantTagKey] = tenant
	return merged
}

// VerifyRecord checks a fetched record's tenant tag against the requesting
// tenant. A missing tag is tolerated for pre-tagging legacy records; a
// present but different tag is an isolation violation.
func (p *Policy) VerifyRecord(tenant string, payload map[string]any) error {
	tag, ok := payload[TenantTagKey]
	if !ok {
		return nil
	}
	if tag != tenant {
		return fmt.Errorf("%w: record belongs to %v, requested by %s", ErrIsolationViolation, tag, tenant)
	}
	return nil
}
