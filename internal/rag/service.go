// Package rag stores analysis reports as embeddings and retrieves them by
// semantic similarity, scoped to a single tenant per call.
package rag

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/airqoon/analyzer/internal/embeddings"
	"github.com/airqoon/analyzer/internal/tenant"
	"github.com/airqoon/analyzer/internal/vectorstore"
)

var (
	// ErrEmptyText is returned when there is no analysis text to save.
	ErrEmptyText = errors.New("empty analysis text")

	// ErrEmptyQuery is returned when there is no query text to search for.
	ErrEmptyQuery = errors.New("empty query text")
)

// Search defaults, applied when the caller leaves them unset.
const (
	DefaultSearchLimit = 5
)

// DefaultScoreThreshold filters out weak matches by default.
var DefaultScoreThreshold = float32(0.5)

// SaveOptions tunes SaveAnalysis.
type SaveOptions struct {
	// ID overrides the generated record id. Saving twice under the same id
	// replaces the record.
	ID string

	// AnalysisType labels the analysis (time_range_analysis,
	// monthly_comparison, ...). Stored in the payload and filterable on
	// search.
	AnalysisType string

	// Metadata is merged into the payload. Caller keys win over the base
	// keys except the tenant tag, which is always stamped by the store.
	Metadata map[string]any
}

// SearchOptions tunes SearchAnalysis.
type SearchOptions struct {
	// Limit caps results. Default: DefaultSearchLimit
	Limit int

	// ScoreThreshold drops weaker matches. Nil means
	// DefaultScoreThreshold; point at 0 to disable filtering.
	ScoreThreshold *float32

	// AnalysisType, when set, restricts matches to that analysis type.
	AnalysisType string
}

// Match is one search hit.
type Match struct {
	ID           string
	Score        float32
	Text         string
	AnalysisType string
	CreatedAt    string
	Payload      map[string]any
}

// timeNow is swapped in tests.
var timeNow = time.Now

// Service orchestrates embed-then-store and embed-then-search.
type Service struct {
	directory tenant.Directory
	provider  embeddings.Provider
	store     vectorstore.Store
	logger    *zap.Logger
}

// NewService wires the orchestrator.
func NewService(directory tenant.Directory, provider embeddings.Provider, store vectorstore.Store, logger *zap.Logger) (*Service, error) {
	if directory == nil || provider == nil || store == nil {
		return nil, errors.New("directory, provider and store are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		directory: directory,
		provider:  provider,
		store:     store,
		logger:    logger,
	}, nil
}

// newRecordID generates a 32-char hex id, matching the shape of ids
// produced by ContentID so records are addressable uniformly.
func newRecordID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// SaveAnalysis embeds the analysis text and stores it in the tenant's
// collection. Returns the record id.
func (s *Service) SaveAnalysis(ctx context.Context, tenantSlug, text string, opts SaveOptions) (string, error) {
	if err := vectorstore.ValidateSlug(tenantSlug); err != nil {
		return "", err
	}
	if _, err := s.directory.Lookup(ctx, tenantSlug); err != nil {
		return "", err
	}
	if text == "" {
		return "", ErrEmptyText
	}

	id := opts.ID
	if id == "" {
		id = newRecordID()
	}

	vector, err := s.provider.EmbedQuery(ctx, text)
	if err != nil {
		return "", fmt.Errorf("embedding analysis text: %w", err)
	}

	payload := map[string]any{
		"text":       text,
		"type":       "analysis",
		"created_at": timeNow().UTC().Format(time.RFC3339),
	}
	if opts.AnalysisType != "" {
		payload["analysis_type"] = opts.AnalysisType
	}
	for k, v := range opts.Metadata {
		payload[k] = v
	}

	if err := s.store.Upsert(ctx, tenantSlug, id, vector, payload); err != nil {
		return "", fmt.Errorf("storing analysis: %w", err)
	}

	s.logger.Debug("analysis saved",
		zap.String("tenant", tenantSlug),
		zap.String("id", id),
		zap.String("analysis_type", opts.AnalysisType),
		zap.Int("text_length", len(text)))

	return id, nil
}

// SearchAnalysis embeds the query and returns similar stored analyses for
// the tenant. An empty result set is a successful outcome.
func (s *Service) SearchAnalysis(ctx context.Context, tenantSlug, query string, opts SearchOptions) ([]Match, error) {
	if err := vectorstore.ValidateSlug(tenantSlug); err != nil {
		return nil, err
	}
	if _, err := s.directory.Lookup(ctx, tenantSlug); err != nil {
		return nil, err
	}
	if query == "" {
		return nil, ErrEmptyQuery
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	threshold := opts.ScoreThreshold
	if threshold == nil {
		threshold = &DefaultScoreThreshold
	}

	vector, err := s.provider.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	var filter map[string]any
	if opts.AnalysisType != "" {
		filter = map[string]any{"analysis_type": opts.AnalysisType}
	}

	results, err := s.store.Search(ctx, tenantSlug, vector, vectorstore.SearchOptions{
		Limit:          limit,
		ScoreThreshold: threshold,
		Filter:         filter,
	})
	if err != nil {
		return nil, fmt.Errorf("searching analyses: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		m := Match{
			ID:      r.ID,
			Score:   r.Score,
			Payload: r.Payload,
		}
		if v, ok := r.Payload["text"].(string); ok {
			m.Text = v
		}
		if v, ok := r.Payload["analysis_type"].(string); ok {
			m.AnalysisType = v
		}
		if v, ok := r.Payload["created_at"].(string); ok {
			m.CreatedAt = v
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// CollectionStats reports the tenant's stored analysis count and index
// status.
func (s *Service) CollectionStats(ctx context.Context, tenantSlug string) (*vectorstore.CollectionStats, error) {
	if err := vectorstore.ValidateSlug(tenantSlug); err != nil {
		return nil, err
	}
	return s.store.Stats(ctx, tenantSlug)
}
