// Airqoon-vectorctl is an operator tool for the analyzer's vector store.
//
// It inspects and removes per-tenant collections on whichever backend the
// config selects, without going through the MCP server.
//
// Usage:
//
//	# List tenants with an existing collection
//	airqoon-vectorctl list
//
//	# Show collection stats for a tenant
//	airqoon-vectorctl stats akcansa
//
//	# Drop a tenant's collection (requires --yes)
//	airqoon-vectorctl drop akcansa --yes
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/airqoon/analyzer/internal/config"
	"github.com/airqoon/analyzer/internal/embeddings"
	"github.com/airqoon/analyzer/internal/vectorstore"
)

var (
	configPath string
	confirmed  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "airqoon-vectorctl",
		Short:         "Inspect and manage tenant vector collections",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tenants with an existing collection",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}

	statsCmd := &cobra.Command{
		Use:   "stats <tenant-slug>",
		Short: "Show collection statistics for a tenant",
		Args:  cobra.ExactArgs(1),
		RunE:  runStats,
	}

	dropCmd := &cobra.Command{
		Use:   "drop <tenant-slug>",
		Short: "Drop a tenant's collection and all its stored analyses",
		Args:  cobra.ExactArgs(1),
		RunE:  runDrop,
	}
	dropCmd.Flags().BoolVar(&confirmed, "yes", false, "confirm the drop")

	rootCmd.AddCommand(listCmd, statsCmd, dropCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openStore builds a Store from the config. The embedding provider is never
// warmed here; stats and drop touch existing collections only.
func openStore() (vectorstore.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	embedSvc, err := embeddings.NewService(embeddings.Config{
		BaseURL: cfg.Embeddings.BaseURL,
		Model:   cfg.Embeddings.Model,
		APIKey:  cfg.Embeddings.APIKey,
		Timeout: cfg.Embeddings.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding service: %w", err)
	}
	provider := embeddings.NewLazyProvider(embedSvc, zap.NewNop())

	policy, err := vectorstore.NewPolicy(provider)
	if err != nil {
		return nil, fmt.Errorf("creating isolation policy: %w", err)
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
	}, policy, zap.NewNop())
	if err != nil {
		return nil, fmt.Errorf("creating vector store: %w", err)
	}
	return store, nil
}

func runList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	tenants, err := store.ListTenants(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing tenants: %w", err)
	}
	if len(tenants) == 0 {
		fmt.Println("No tenant collections found.")
		return nil
	}
	for _, slug := range tenants {
		fmt.Println(slug)
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	slug := args[0]
	if err := vectorstore.ValidateSlug(slug); err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Stats(cmd.Context(), slug)
	if err != nil {
		return fmt.Errorf("fetching stats for %q: %w", slug, err)
	}

	fmt.Printf("Tenant:      %s\n", slug)
	fmt.Printf("Points:      %d\n", stats.PointCount)
	fmt.Printf("Indexed:     %d\n", stats.IndexedCount)
	fmt.Printf("Status:      %s\n", stats.Status)
	return nil
}

func runDrop(cmd *cobra.Command, args []string) error {
	slug := args[0]
	if err := vectorstore.ValidateSlug(slug); err != nil {
		return err
	}
	if !confirmed {
		return fmt.Errorf("dropping %q deletes all stored analyses for the tenant; re-run with --yes", slug)
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.DropCollection(cmd.Context(), slug); err != nil {
		return fmt.Errorf("dropping collection for %q: %w", slug, err)
	}
	fmt.Printf("Dropped collection for tenant %q\n", slug)
	return nil
}
