package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("airqoon-analyzer.vectorstore.chromem")

// ChromemConfig holds configuration for the embedded chromem-go database.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty means a purely
	// in-memory database, which is what the tests use.
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool
}

// ChromemStore is a Store implementation on the embedded chromem-go
// database. No external service required, which makes it the backend for
// local development and for the isolation tests.
//
// chromem stores metadata as strings, so non-string payload values are
// stringified on write and come back as strings. The search paths here only
// depend on the tenant tag and the caller-facing id, both strings already.
type ChromemStore struct {
	db     *chromem.DB
	policy *Policy
	config ChromemConfig
	logger *zap.Logger

	mu sync.Mutex
}

// NewChromemStore creates a ChromemStore, persistent when config.Path is
// set and in-memory otherwise.
func NewChromemStore(config ChromemConfig, policy *Policy, logger *zap.Logger) (*ChromemStore, error) {
	if policy == nil {
		return nil, fmt.Errorf("%w: isolation policy required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *chromem.DB
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		path, err := expandPath(config.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		db, err = chromem.NewPersistentDB(path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("opening chromem DB: %w", err)
		}
	}

	logger.Info("chromem store initialized",
		zap.String("path", config.Path),
		zap.Bool("in_memory", config.Path == ""))

	return &ChromemStore{
		db:     db,
		policy: policy,
		config: config,
		logger: logger,
	}, nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// noEmbed is the embedding function handed to chromem. All documents carry
// precomputed embeddings, so chromem should never call it. Passing nil is
// not an option because chromem then falls back to its OpenAI default.
func noEmbed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("embeddings are precomputed, no embedding function available")
}

// collection resolves the tenant's collection, creating it on first use.
func (s *ChromemStore) collection(tenant string) (*chromem.Collection, error) {
	name, err := s.policy.CollectionName(tenant)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	col, err := s.db.GetOrCreateCollection(name, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCollectionUnavailable, tenant, err)
	}
	return col, nil
}

// Upsert writes or replaces a record in the tenant's collection.
func (s *ChromemStore) Upsert(ctx context.Context, tenant, id string, vector []float32, payload map[string]any) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Upsert")
	defer span.End()
	span.SetAttributes(attribute.String("tenant", tenant))

	if id == "" {
		return fmt.Errorf("%w: record id required", ErrInvalidConfig)
	}
	if len(vector) == 0 {
		return ErrEmptyVector
	}
	if dim := s.policy.Dimension(); dim > 0 && len(vector) != dim {
		return fmt.Errorf("%w: vector has %d elements, collection expects %d", ErrDimensionMismatch, len(vector), dim)
	}

	col, err := s.collection(tenant)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	tagged := s.policy.TagPayload(tenant, payload)
	tagged[recordIDKey] = id

	content, _ := tagged["text"].(string)
	doc := chromem.Document{
		ID:        id,
		Content:   content,
		Metadata:  metadataToString(tagged),
		Embedding: vector,
	}
	if err := col.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting %s for tenant %s: %w", id, tenant, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Search performs similarity search scoped to the tenant's collection.
// chromem has no server-side score threshold, so thresholding happens here
// after the query.
func (s *ChromemStore) Search(ctx context.Context, tenant string, vector []float32, opts SearchOptions) ([]SearchResult, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant", tenant),
		attribute.Int("limit", opts.Limit),
	)

	if len(vector) == 0 {
		return nil, ErrEmptyVector
	}
	if opts.Limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidConfig, opts.Limit)
	}

	col, err := s.collection(tenant)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// chromem rejects nResults greater than the document count.
	k := opts.Limit
	if count := col.Count(); count == 0 {
		span.SetStatus(codes.Ok, "empty collection")
		return []SearchResult{}, nil
	} else if k > count {
		k = count
	}

	where := metadataToString(s.policy.MergeFilters(tenant, opts.Filter))

	matches, err := col.QueryEmbedding(ctx, vector, k, where, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching for tenant %s: %w", tenant, err)
	}

	results := make([]SearchResult, 0, len(matches))
	for _, m := range matches {
		if opts.ScoreThreshold != nil && m.Similarity < *opts.ScoreThreshold {
			continue
		}
		payload := metadataFromString(m.Metadata)
		if err := s.policy.VerifyRecord(tenant, payload); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		results = append(results, SearchResult{
			ID:      m.ID,
			Score:   m.Similarity,
			Payload: payload,
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	span.SetAttributes(attribute.Int("results", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// Fetch retrieves a record by id from the tenant's own collection only.
func (s *ChromemStore) Fetch(ctx context.Context, tenant, id string) (*Record, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("tenant", tenant))

	col, err := s.collection(tenant)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	doc, err := col.GetByID(ctx, id)
	if err != nil {
		// chromem's only failure mode here is an unknown id.
		span.SetStatus(codes.Ok, "not found")
		return nil, nil
	}

	payload := metadataFromString(doc.Metadata)
	if err := s.policy.VerifyRecord(tenant, payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "success")
	return &Record{
		ID:      doc.ID,
		Vector:  doc.Embedding,
		Payload: payload,
	}, nil
}

// Delete removes a record from the tenant's collection. Idempotent.
func (s *ChromemStore) Delete(ctx context.Context, tenant, id string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("tenant", tenant))

	col, err := s.collection(tenant)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := col.Delete(ctx, nil, nil, id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting %s for tenant %s: %w", id, tenant, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Stats returns the point count for the tenant's collection. chromem keeps
// everything in memory, so indexed count equals point count.
func (s *ChromemStore) Stats(ctx context.Context, tenant string) (*CollectionStats, error) {
	_, span := chromemTracer.Start(ctx, "ChromemStore.Stats")
	defer span.End()
	span.SetAttributes(attribute.String("tenant", tenant))

	col, err := s.collection(tenant)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	name, _ := s.policy.CollectionName(tenant)
	count := uint64(col.Count())

	span.SetStatus(codes.Ok, "success")
	return &CollectionStats{
		Tenant:       tenant,
		Collection:   name,
		PointCount:   count,
		IndexedCount: count,
		Status:       "green",
	}, nil
}

// ListTenants returns the slugs of all tenants with an existing collection.
func (s *ChromemStore) ListTenants(ctx context.Context) ([]string, error) {
	_, span := chromemTracer.Start(ctx, "ChromemStore.ListTenants")
	defer span.End()

	s.mu.Lock()
	cols := s.db.ListCollections()
	s.mu.Unlock()

	tenants := make([]string, 0, len(cols))
	for name := range cols {
		if slug, ok := TenantFromCollection(name); ok {
			tenants = append(tenants, slug)
		}
	}
	sort.Strings(tenants)

	span.SetAttributes(attribute.Int("tenants", len(tenants)))
	span.SetStatus(codes.Ok, "success")
	return tenants, nil
}

// DropCollection deletes the tenant's collection and all its records.
func (s *ChromemStore) DropCollection(ctx context.Context, tenant string) error {
	_, span := chromemTracer.Start(ctx, "ChromemStore.DropCollection")
	defer span.End()
	span.SetAttributes(attribute.String("tenant", tenant))

	name, err := s.policy.CollectionName(tenant)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.DeleteCollection(name); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("dropping collection for tenant %s: %w", tenant, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Close is a no-op; chromem persists incrementally.
func (s *ChromemStore) Close() error {
	return nil
}

// metadataToString converts a payload map to chromem's string metadata.
func metadataToString(payload map[string]any) map[string]string {
	if len(payload) == 0 {
		return nil
	}
	out := make(map[string]string, len(payload))
	for k, v := range payload {
		switch val := v.(type) {
		case string:
			out[k] = val
		default:
			out[k] = fmt.Sprintf("%v", val)
		}
	}
	return out
}

// metadataFromString converts chromem metadata back to a payload map.
func metadataFromString(metadata map[string]string) map[string]any {
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}

// Ensure ChromemStore implements Store.
var _ Store = (*ChromemStore)(nil)
