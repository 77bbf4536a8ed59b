// Airqoon-analyzer serves tenant-scoped air quality analysis over the
// Model Context Protocol.
//
// The MCP server speaks stdio; a small HTTP sidecar exposes /health,
// /healthz and /metrics for orchestration. Configuration comes from a YAML
// file plus AIRQOON_-prefixed environment variables.
//
// Usage:
//
//	# Start the server with defaults (chromem backend, local TEI)
//	airqoon-analyzer serve
//
//	# Configure via file and environment
//	AIRQOON_VECTORSTORE_PROVIDER=qdrant airqoon-analyzer serve --config /etc/airqoon/config.yaml
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/airqoon/analyzer/internal/analytics"
	"github.com/airqoon/analyzer/internal/analyzer"
	"github.com/airqoon/analyzer/internal/config"
	"github.com/airqoon/analyzer/internal/embeddings"
	"github.com/airqoon/analyzer/internal/httpserver"
	"github.com/airqoon/analyzer/internal/logging"
	"github.com/airqoon/analyzer/internal/mcp"
	"github.com/airqoon/analyzer/internal/rag"
	"github.com/airqoon/analyzer/internal/telemetry"
	"github.com/airqoon/analyzer/internal/tenant"
	"github.com/airqoon/analyzer/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "airqoon-analyzer",
		Short:         "Air quality analysis MCP server",
		Long:          "airqoon-analyzer runs tenant-scoped air quality analyses and serves\nthem to MCP clients over stdio.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server and HTTP sidecar",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("airqoon-analyzer\n")
			fmt.Printf("Version:    %s\n", version)
			fmt.Printf("Commit:     %s\n", gitCommit)
			fmt.Printf("Build Date: %s\n", buildDate)
		},
	}

	rootCmd.AddCommand(serveCmd, versionCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runServe wires all services and blocks until the context is canceled or
// the MCP client disconnects.
func runServe(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("starting airqoon-analyzer",
		zap.String("version", version),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.Int("sidecar_port", cfg.Server.Port))

	// Span export for the store adapters. Disabled means the spans they
	// create stay no-ops.
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Tracing.Enabled,
		Endpoint:       cfg.Tracing.Endpoint,
		ServiceName:    "airqoon-analyzer",
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()
	if cfg.Tracing.Enabled {
		logger.Info("tracing enabled", zap.String("endpoint", cfg.Tracing.Endpoint))
	}

	// Embedding provider. Warm-up happens in the background so startup is
	// not blocked by a slow or absent TEI backend.
	embedSvc, err := embeddings.NewService(embeddings.Config{
		BaseURL: cfg.Embeddings.BaseURL,
		Model:   cfg.Embeddings.Model,
		APIKey:  cfg.Embeddings.APIKey,
		Timeout: cfg.Embeddings.Timeout,
	})
	if err != nil {
		return fmt.Errorf("creating embedding service: %w", err)
	}
	provider := embeddings.NewLazyProvider(embedSvc, logger)

	policy, err := vectorstore.NewPolicy(provider)
	if err != nil {
		return fmt.Errorf("creating isolation policy: %w", err)
	}

	store, err := vectorstore.NewStore(vectorstore.FactoryConfig{
		Provider: cfg.VectorStore.Provider,
		Qdrant: vectorstore.QdrantConfig{
			Host:       cfg.VectorStore.Qdrant.Host,
			Port:       cfg.VectorStore.Qdrant.Port,
			APIKey:     cfg.VectorStore.Qdrant.APIKey,
			UseTLS:     cfg.VectorStore.Qdrant.UseTLS,
			MaxRetries: cfg.VectorStore.Qdrant.MaxRetries,
		},
		Chromem: vectorstore.ChromemConfig{
			Path:     cfg.VectorStore.Chromem.Path,
			Compress: cfg.VectorStore.Chromem.Compress,
		},
	}, policy, logger)
	if err != nil {
		return fmt.Errorf("creating vector store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing vector store", zap.Error(err))
		}
	}()

	// Measurements and tenants live in Postgres. There is no degraded mode
	// without it; every tool needs the tenant directory.
	if cfg.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required (set AIRQOON_POSTGRES_DSN)")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("parsing postgres DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.Postgres.MaxConns
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("creating postgres pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	logger.Info("connected to postgres", zap.Int32("max_conns", poolCfg.MaxConns))

	directory := tenant.NewSQLDirectory(pool)
	source := analytics.NewSQLSource(pool)

	ragSvc, err := rag.NewService(directory, provider, store, logger)
	if err != nil {
		return fmt.Errorf("creating rag service: %w", err)
	}
	analyzerSvc, err := analyzer.NewService(directory, source, ragSvc, logger)
	if err != nil {
		return fmt.Errorf("creating analyzer service: %w", err)
	}

	mcpServer, err := mcp.NewServer(&mcp.Config{
		Name:    "airqoon-analyzer",
		Version: version,
		Logger:  logger,
	}, analyzerSvc, ragSvc)
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	sidecar, err := httpserver.NewServer(httpserver.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}, provider.Ready, logger)
	if err != nil {
		return fmt.Errorf("creating http sidecar: %w", err)
	}

	go func() {
		if err := sidecar.Start(); err != nil {
			logger.Error("http sidecar stopped", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := sidecar.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http sidecar shutdown", zap.Error(err))
		}
	}()

	if !cfg.Warmup.Disabled {
		go func() {
			if err := provider.Warm(ctx); err != nil {
				logger.Warn("embedding warmup failed, /healthz stays unavailable",
					zap.Error(err))
			}
		}()
	}

	// Blocks until the MCP client disconnects or the context is canceled.
	if err := mcpServer.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}
