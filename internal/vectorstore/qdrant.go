package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Tracer for OpenTelemetry instrumentation.
var qdrantTracer = otel.Tracer("airqoon-analyzer.vectorstore.qdrant")

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	// Default: "localhost"
	Host string

	// Port is the Qdrant gRPC port (6334), not the HTTP REST port (6333).
	Port int

	// APIKey authenticates against a protected Qdrant deployment. Empty
	// for local instances.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// MaxRetries is the maximum number of retry attempts for transient
	// failures. Default: 3
	MaxRetries int

	// RetryBackoff is the initial backoff duration, doubled per retry.
	// Default: 1 second
	RetryBackoff time.Duration

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB, large enough for full analysis reports.
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	return nil
}

// isTransientError reports whether an error should be retried.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// isAlreadyExists reports whether an error indicates the collection was
// created by a concurrent first-writer. Treated as success.
func isAlreadyExists(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == grpccodes.AlreadyExists
}

// QdrantStore is a Store implementation backed by Qdrant's native gRPC
// client. Tenant isolation follows the package policy: one collection per
// tenant plus payload tagging and filter injection on every operation.
type QdrantStore struct {
	client *qdrant.Client
	policy *Policy
	config QdrantConfig
	logger *zap.Logger

	// collections caches verified tenant collections to avoid repeated
	// existence and dimension checks.
	collections sync.Map
}

// NewQdrantStore creates a QdrantStore and verifies connectivity with a
// health check.
func NewQdrantStore(config QdrantConfig, policy *Policy, logger *zap.Logger) (*QdrantStore, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if policy == nil {
		return nil, fmt.Errorf("%w: isolation policy required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	s := &QdrantStore{
		client: client,
		policy: policy,
		config: config,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}

	logger.Info("qdrant store initialized",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.Bool("tls", config.UseTLS))

	return s, nil
}

// Close closes the Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// retry runs an operation with exponential backoff on transient errors.
func (s *QdrantStore) retry(ctx context.Context, name string, op func() error) error {
	backoff := s.config.RetryBackoff
	for attempt := 0; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if !isTransientError(err) {
			return fmt.Errorf("%s failed: %w", name, err)
		}
		if attempt == s.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", name, s.config.MaxRetries, err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", name, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

// ensureCollection resolves the tenant's collection, provisioning it on
// first use. An existing collection with a different vector size is a hard
// error; vectors are never coerced to fit.
func (s *QdrantStore) ensureCollection(ctx context.Context, tenant string) (string, error) {
	name, err := s.policy.CollectionName(tenant)
	if err != nil {
		return "", err
	}
	if _, ok := s.collections.Load(name); ok {
		return name, nil
	}

	var exists bool
	err = s.retry(ctx, "collection_exists", func() error {
		ok, err := s.client.CollectionExists(ctx, name)
		if err != nil {
			return err
		}
		exists = ok
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrCollectionUnavailable, tenant, err)
	}

	dim := s.policy.Dimension()
	if exists {
		// An existing collection is usable for reads and deletes before
		// the embedder is warm. Don't cache in that case, so the size is
		// verified once the dimension is known.
		if dim <= 0 {
			return name, nil
		}
		if err := s.verifyDimension(ctx, name, dim); err != nil {
			return "", err
		}
		s.collections.Store(name, true)
		return name, nil
	}

	// Provisioning a new collection does need the dimension.
	if dim <= 0 {
		return "", fmt.Errorf("%w: embedding dimension unknown, cannot provision collection for %s", ErrCollectionUnavailable, tenant)
	}

	err = s.retry(ctx, "create_collection", func() error {
		createErr := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if createErr != nil && isAlreadyExists(createErr) {
			// A concurrent first-writer won the provisioning race.
			return nil
		}
		return createErr
	})
	if err != nil {
		return "", fmt.Errorf("%w: provisioning %s: %v", ErrCollectionUnavailable, tenant, err)
	}

	s.logger.Info("tenant collection provisioned",
		zap.String("tenant", tenant),
		zap.String("collection", name),
		zap.Int("dimension", dim))

	s.collections.Store(name, true)
	return name, nil
}

// verifyDimension checks an existing collection's vector size against the
// embedding dimension.
func (s *QdrantStore) verifyDimension(ctx context.Context, name string, dim int) error {
	var info *qdrant.CollectionInfo
	err := s.retry(ctx, "get_collection_info", func() error {
		ci, err := s.client.GetCollectionInfo(ctx, name)
		if err != nil {
			return err
		}
		info = ci
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: inspecting %s: %v", ErrCollectionUnavailable, name, err)
	}
	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return nil
	}
	if got := int(params.GetSize()); got != dim {
		return fmt.Errorf("%w: collection %s has size %d, embedder produces %d", ErrDimensionMismatch, name, got, dim)
	}
	return nil
}

// pointID maps a caller-facing record id onto a Qdrant point id. UUID-shaped
// ids are used directly; anything else (e.g. content hashes) is mapped
// through a deterministic UUIDv5 so re-upserting the same id replaces the
// same point.
func pointID(id string) *qdrant.PointId {
	if u, err := uuid.Parse(id); err == nil {
		return qdrant.NewIDUUID(u.String())
	}
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String())
}

// recordIDKey preserves the caller-facing id inside the payload, since the
// backend point id may be a derived UUID.
const recordIDKey = "id"

// Upsert writes or replaces a record in the tenant's collection.
func (s *QdrantStore) Upsert(ctx context.Context, tenant, id string, vector []float32, payload map[string]any) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Upsert")
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

	name, err := s.ensureCollection(ctx, tenant)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	tagged := s.policy.TagPayload(tenant, payload)
	tagged[recordIDKey] = id

	point := &qdrant.PointStruct{
		Id:      pointID(id),
		Vectors: qdrant.NewVectors(vector...),
		Payload: toQdrantPayload(tagged),
	}

	err = s.retry(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: name,
			Points:         []*qdrant.PointStruct{point},
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting %s for tenant %s: %w", id, tenant, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Search performs similarity search scoped to the tenant's collection. The
// tenant filter is injected into the query predicate server-side, so limit
// and threshold semantics apply to in-tenant candidates only.
func (s *QdrantStore) Search(ctx context.Context, tenant string, vector []float32, opts SearchOptions) ([]SearchResult, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Search")
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

	name, err := s.ensureCollection(ctx, tenant)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	filter := buildFilter(s.policy.MergeFilters(tenant, opts.Filter))

	var points []*qdrant.ScoredPoint
	err = s.retry(ctx, "search", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: name,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(opts.Limit)),
			ScoreThreshold: opts.ScoreThreshold,
			Filter:         filter,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching for tenant %s: %w", tenant, err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, point := range points {
		payload := fromQdrantPayload(point.GetPayload())
		if err := s.policy.VerifyRecord(tenant, payload); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		results = append(results, SearchResult{
			ID:      resultID(point.GetId(), payload),
			Score:   point.GetScore(),
			Payload: payload,
		})
	}

	span.SetAttributes(attribute.Int("results", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// Fetch retrieves a record by id from the tenant's own collection only.
func (s *QdrantStore) Fetch(ctx context.Context, tenant, id string) (*Record, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("tenant", tenant))

	name, err := s.ensureCollection(ctx, tenant)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var points []*qdrant.RetrievedPoint
	err = s.retry(ctx, "fetch", func() error {
		res, err := s.client.Get(ctx, &qdrant.GetPoints{
			CollectionName: name,
			Ids:            []*qdrant.PointId{pointID(id)},
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("fetching %s for tenant %s: %w", id, tenant, err)
	}

	if len(points) == 0 {
		// Not found in this tenant's collection. Normal miss, even when
		// the id exists under another tenant.
		span.SetStatus(codes.Ok, "not found")
		return nil, nil
	}

	point := points[0]
	payload := fromQdrantPayload(point.GetPayload())
	if err := s.policy.VerifyRecord(tenant, payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "success")
	return &Record{
		ID:      resultID(point.GetId(), payload),
		Vector:  point.GetVectors().GetVector().GetData(),
		Payload: payload,
	}, nil
}

// Delete removes a record from the tenant's collection. Idempotent.
func (s *QdrantStore) Delete(ctx context.Context, tenant, id string) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("tenant", tenant))

	name, err := s.ensureCollection(ctx, tenant)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	err = s.retry(ctx, "delete", func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: name,
			Points:         qdrant.NewPointsSelector(pointID(id)),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting %s for tenant %s: %w", id, tenant, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Stats returns point count and index status for the tenant's collection.
func (s *QdrantStore) Stats(ctx context.Context, tenant string) (*CollectionStats, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Stats")
	defer span.End()
	span.SetAttributes(attribute.String("tenant", tenant))

	name, err := s.ensureCollection(ctx, tenant)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var info *qdrant.CollectionInfo
	err = s.retry(ctx, "stats", func() error {
		ci, err := s.client.GetCollectionInfo(ctx, name)
		if err != nil {
			return err
		}
		info = ci
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("collection stats for tenant %s: %w", tenant, err)
	}

	span.SetStatus(codes.Ok, "success")
	return &CollectionStats{
		Tenant:       tenant,
		Collection:   name,
		PointCount:   info.GetPointsCount(),
		IndexedCount: info.GetIndexedVectorsCount(),
		Status:       info.GetStatus().String(),
	}, nil
}

// ListTenants returns the slugs of all tenants with an existing collection.
func (s *QdrantStore) ListTenants(ctx context.Context) ([]string, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.ListTenants")
	defer span.End()

	var names []string
	err := s.retry(ctx, "list_collections", func() error {
		res, err := s.client.ListCollections(ctx)
		if err != nil {
			return err
		}
		names = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("listing tenant collections: %w", err)
	}

	tenants := make([]string, 0, len(names))
	for _, name := range names {
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
func (s *QdrantStore) DropCollection(ctx context.Context, tenant string) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.DropCollection")
	defer span.End()
	span.SetAttributes(attribute.String("tenant", tenant))

	name, err := s.policy.CollectionName(tenant)
	if err != nil {
		return err
	}

	err = s.retry(ctx, "drop_collection", func() error {
		return s.client.DeleteCollection(ctx, name)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("dropping collection for tenant %s: %w", tenant, err)
	}

	s.collections.Delete(name)
	span.SetStatus(codes.Ok, "success")
	return nil
}

// resultID recovers the caller-facing id, preferring the payload copy over
// the backend point id.
func resultID(id *qdrant.PointId, payload map[string]any) string {
	if v, ok := payload[recordIDKey].(string); ok && v != "" {
		return v
	}
	return id.GetUuid()
}

// toQdrantPayload converts a payload map to Qdrant values. Unsupported
// value types are skipped.
func toQdrantPayload(payload map[string]any) map[string]*qdrant.Value {
	out := make(map[string]*qdrant.Value, len(payload))
	for k, v := range payload {
		switch val := v.(type) {
		case string:
			out[k] = qdrant.NewValueString(val)
		case int:
			out[k] = qdrant.NewValueInt(int64(val))
		case int64:
			out[k] = qdrant.NewValueInt(val)
		case float64:
			out[k] = qdrant.NewValueDouble(val)
		case bool:
			out[k] = qdrant.NewValueBool(val)
		}
	}
	return out
}

// fromQdrantPayload converts Qdrant values back to a payload map.
func fromQdrantPayload(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		switch kind := v.GetKind().(type) {
		case *qdrant.Value_StringValue:
			out[k] = kind.StringValue
		case *qdrant.Value_IntegerValue:
			out[k] = kind.IntegerValue
		case *qdrant.Value_DoubleValue:
			out[k] = kind.DoubleValue
		case *qdrant.Value_BoolValue:
			out[k] = kind.BoolValue
		}
	}
	return out
}

// buildFilter converts a merged filter map into a Qdrant must-filter.
func buildFilter(filters map[string]any) *qdrant.Filter {
	if len(filters) == 0 {
		return nil
	}
	conditions := make([]*qdrant.Condition, 0, len(filters))
	for key, value := range filters {
		switch v := value.(type) {
		case string:
			conditions = append(conditions, qdrant.NewMatch(key, v))
		case int:
			conditions = append(conditions, qdrant.NewMatchInt(key, int64(v)))
		case int64:
			conditions = append(conditions, qdrant.NewMatchInt(key, v))
		case bool:
			conditions = append(conditions, qdrant.NewMatchBool(key, v))
		}
	}
	if len(conditions) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: conditions}
}

// Ensure QdrantStore implements Store.
var _ Store = (*QdrantStore)(nil)
