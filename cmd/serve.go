package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	appcfg "github.com/cjangrist/mcp-omnisearch/internal/config"
	"github.com/cjangrist/mcp-omnisearch/internal/mcpserver"
	"github.com/cjangrist/mcp-omnisearch/internal/metrics"
	"github.com/cjangrist/mcp-omnisearch/internal/observability"
)

var (
	serveTransport string
	serveHost      string
	servePort      int
	serveAuth      bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server (stdio or HTTP)",
	Long: `
Start an MCP server exposing the omni_search, omni_answer and
provider_status tools to MCP-compatible clients.

The default stdio transport speaks JSON-RPC over stdin/stdout for
clients that spawn the server themselves. The http transport serves
streamable HTTP on / and a combined streamable/SSE endpoint on /mcp,
with optional bearer authentication (MCP_AUTH_ENABLED).

Examples:
  omnisearch serve                         # stdio, for Claude Desktop etc.
  omnisearch serve --transport http        # HTTP on 127.0.0.1:8080
  omnisearch serve --transport http --host 0.0.0.0 --port 9000
`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveTransport, "transport", "stdio", "Transport: stdio or http")
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "HTTP server host address")
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "HTTP server port")
	serveCmd.Flags().BoolVar(&serveAuth, "auth", false, "Require bearer authentication on the HTTP transport")
}

func runServe(cmd *cobra.Command, args []string) error {
	switch serveTransport {
	case "stdio", "http":
	default:
		return fmt.Errorf("invalid transport: %s (allowed: stdio|http)", serveTransport)
	}

	cfg, err := appcfg.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Flags override environment only when explicitly set.
	if cmd.Flags().Changed("host") {
		cfg.MCPServerHost = serveHost
	}
	if cmd.Flags().Changed("port") {
		cfg.MCPServerPort = servePort
	}
	if cmd.Flags().Changed("auth") {
		cfg.MCPAuthEnabled = serveAuth
	}

	logWriter := os.Stdout
	if serveTransport == "stdio" {
		logWriter = os.Stderr
	}
	logger := log.New(logWriter, "[serve] ", log.LstdFlags)

	obsShutdown, err := observability.Init(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obsShutdown(shutdownCtx); err != nil {
			logger.Printf("observability shutdown: %v", err)
		}
	}()
	if err := metrics.InitOTelMetrics(); err != nil {
		logger.Printf("metrics: OTel registration failed: %v", err)
	}
	defer func() { _ = metrics.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	service, registry, cleanup, err := buildOrchestration(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if serveTransport == "stdio" {
		// Everything sharing stdout moves to stderr before the protocol
		// takes over.
		service.SetLogOutput(os.Stderr)
		registry.SetLogOutput(os.Stderr)
	}

	handler := mcpserver.NewToolHandler(service, registry)
	server, err := mcpserver.NewServerWrapper(ctx, cfg, handler)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	server.SetLogger(logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if serveTransport == "stdio" {
		go func() {
			<-sigChan
			logger.Printf("received shutdown signal")
			cancel()
		}()
		if len(registry.Names()) == 0 {
			logger.Printf("warning: no providers configured, every tool call will fail")
		}
		return server.ServeStdio(ctx)
	}

	go func() {
		<-sigChan
		logger.Printf("received shutdown signal, stopping server...")
		cancel()
	}()

	logger.Printf("starting MCP server on %s providers=%v", server.Addr(), registry.Names())
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start MCP server: %w", err)
	}

	<-ctx.Done()
	if err := server.Stop(); err != nil {
		logger.Printf("error during server shutdown: %v", err)
	}
	logger.Printf("MCP server stopped")
	return nil
}
