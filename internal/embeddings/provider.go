package embeddings

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Provider is the embedding interface the rest of the system consumes.
type Provider interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding dimension, or 0 before the backend
	// has been warmed.
	Dimension() int
}

// warmupProbe is the throwaway text embedded once to warm the backend and
// learn the model's output dimension.
const warmupProbe = "warmup"

// LazyProvider wraps the HTTP service with one-time lazy initialization.
// The first embed call (or an explicit Warm) runs a probe embedding; until
// it succeeds no real text is sent. A failed init is sticky: every later
// call returns ErrBackendUnavailable without retrying, so a misconfigured
// endpoint fails loudly instead of hammering a dead backend per request.
type LazyProvider struct {
	service *Service
	logger  *zap.Logger

	once sync.Once

	// mu guards dim and initErr. Warm runs in a background goroutine at
	// startup while the readiness probe reads through Ready.
	mu      sync.RWMutex
	dim     int
	initErr error
}

// NewLazyProvider wraps service in a LazyProvider.
func NewLazyProvider(service *Service, logger *zap.Logger) *LazyProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LazyProvider{service: service, logger: logger}
}

// Warm initializes the backend if it has not been initialized yet. Safe to
// call concurrently and repeatedly.
func (p *LazyProvider) Warm(ctx context.Context) error {
	p.once.Do(func() {
		vec, err := p.service.EmbedQuery(ctx, warmupProbe)

		p.mu.Lock()
		defer p.mu.Unlock()
		if err != nil {
			p.initErr = fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
			p.logger.Error("embedding backend warmup failed", zap.Error(err))
			return
		}
		p.dim = len(vec)
		p.logger.Info("embedding backend warmed",
			zap.String("model", p.service.config.Model),
			zap.Int("dimension", p.dim))
	})

	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.initErr
}

// Ready reports whether the backend has been warmed successfully.
func (p *LazyProvider) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.initErr == nil && p.dim > 0
}

// Dimension returns the embedding dimension, 0 before a successful warmup.
func (p *LazyProvider) Dimension() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dim
}

// EmbedQuery embeds a single query text.
func (p *LazyProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := p.Warm(ctx); err != nil {
		return nil, err
	}
	return p.service.EmbedQuery(ctx, text)
}

// EmbedDocuments embeds a batch of document texts.
func (p *LazyProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if err := p.Warm(ctx); err != nil {
		return nil, err
	}
	return p.service.EmbedDocuments(ctx, texts)
}

// Ensure LazyProvider implements Provider.
var _ Provider = (*LazyProvider)(nil)
