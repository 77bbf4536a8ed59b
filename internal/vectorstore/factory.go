package vectorstore

import (
	"fmt"

	"go.uber.org/zap"
)

// Provider names accepted by the factory.
const (
	ProviderQdrant  = "qdrant"
	ProviderChromem = "chromem"
)

// FactoryConfig selects and configures a Store backend.
type FactoryConfig struct {
	// Provider is "qdrant" or "chromem". Default: "chromem"
	Provider string

	Qdrant  QdrantConfig
	Chromem ChromemConfig
}

// NewStore creates a Store for the configured provider.
func NewStore(config FactoryConfig, policy *Policy, logger *zap.Logger) (Store, error) {
	provider := config.Provider
	if provider == "" {
		provider = ProviderChromem
	}
	switch provider {
	case ProviderQdrant:
		return NewQdrantStore(config.Qdrant, policy, logger)
	case ProviderChromem:
		return NewChromemStore(config.Chromem, policy, logger)
	default:
		return nil, fmt.Errorf("%w: unknown vector store provider %q", ErrInvalidConfig, provider)
	}
}
