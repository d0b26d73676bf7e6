package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cjangrist/mcp-omnisearch/internal/cache"
	"github.com/cjangrist/mcp-omnisearch/internal/orchestrator"
	"github.com/cjangrist/mcp-omnisearch/internal/providers"
	"github.com/cjangrist/mcp-omnisearch/internal/types"
)

var rootCmd = &cobra.Command{
	Use:     "omnisearch",
	Short:   "Parallel multi-provider web search with rank fusion",
	Version: "1.0.0",
	Long: `omnisearch fans a query out to every configured search or AI answer
provider at once, retries transient failures, and merges the ranked
lists with reciprocal rank fusion. It runs as a one-shot CLI or as an
MCP server (stdio or HTTP).

Providers are enabled by configuration alone: set a provider's API key
and it joins the fan-out.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(answerCmd)
	rootCmd.AddCommand(providersCmd)
}

// buildOrchestration wires the provider registry and the orchestration
// service from configuration. The returned cleanup closes the result
// cache when one was opened.
func buildOrchestration(ctx context.Context, cfg *types.Config) (*orchestrator.Service, *providers.Registry, func(), error) {
	cleanup := func() {}

	var resultCache providers.ResultCache
	if cfg.CacheEnabled {
		var store *cache.Store
		var err error
		if cfg.CachePath != "" {
			store, err = cache.NewStoreWithPath(cfg.CachePath, cfg.CacheTTL())
		} else {
			store, err = cache.NewStore(cfg.CacheTTL())
		}
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open result cache: %w", err)
		}
		resultCache = store
		cleanup = func() { _ = store.Close() }
	}

	registry, err := providers.NewRegistry(ctx, cfg, resultCache)
	if err != nil {
		cleanup()
		return nil, nil, nil, fmt.Errorf("failed to build provider registry: %w", err)
	}

	service, err := orchestrator.NewService(registry, orchestrator.ServiceConfig{
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay(),
		Timeout:    cfg.Timeout(),
		Heartbeat:  cfg.Heartbeat(),
		MaxResults: cfg.MaxResults,
	})
	if err != nil {
		cleanup()
		return nil, nil, nil, fmt.Errorf("failed to build orchestration service: %w", err)
	}

	return service, registry, cleanup, nil
}
