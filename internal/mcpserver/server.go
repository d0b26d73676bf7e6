package mcpserver

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cjangrist/mcp-omnisearch/internal/types"
)

const (
	serverName    = "mcp-omnisearch"
	serverVersion = "1.0.0"
)

// ServerWrapper wraps the MCP SDK server with omnisearch wiring: tool
// registration, the HTTP transports, optional bearer auth, and
// lifecycle management. Stdio mode bypasses the HTTP stack entirely.
type ServerWrapper struct {
	sdkServer  *mcp.Server
	httpServer *http.Server

	config  *types.Config
	handler *ToolHandler
	auth    *AuthMiddleware

	logger       *log.Logger
	shutdownChan chan struct{}
	wg           sync.WaitGroup
	mutex        sync.RWMutex
	isRunning    bool

	ctx        context.Context
	cancelFunc context.CancelFunc
}

// NewServerWrapper creates the SDK server and registers the omnisearch
// tools. Auth middleware is built here when the config enables it so a
// misconfigured issuer fails at startup, not on the first request.
func NewServerWrapper(ctx context.Context, config *types.Config, handler *ToolHandler) (*ServerWrapper, error) {
	if config == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if handler == nil {
		return nil, fmt.Errorf("tool handler cannot be nil")
	}

	wrapper := &ServerWrapper{
		config:       config,
		handler:      handler,
		logger:       log.New(os.Stdout, "[mcpserver] ", log.LstdFlags),
		shutdownChan: make(chan struct{}),
	}
	wrapper.ctx, wrapper.cancelFunc = context.WithCancel(context.Background())

	wrapper.sdkServer = mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}, nil)
	registerTools(wrapper.sdkServer, handler)

	if config.MCPAuthEnabled {
		auth, err := NewAuthMiddleware(ctx, config)
		if err != nil {
			return nil, fmt.Errorf("failed to configure auth middleware: %w", err)
		}
		wrapper.auth = auth
	}

	return wrapper, nil
}

// ServeStdio runs the server over stdin/stdout and blocks until the
// client disconnects or the context is cancelled. Logs move to stderr
// first so they cannot corrupt the JSON-RPC stream.
func (sw *ServerWrapper) ServeStdio(ctx context.Context) error {
	sw.logger.SetOutput(os.Stderr)
	sw.handler.SetLogOutput(os.Stderr)
	sw.logger.Printf("serving MCP over stdio")
	return sw.sdkServer.Run(ctx, &mcp.StdioTransport{})
}

// Start brings up the HTTP transports and returns once the listener is
// accepting connections.
func (sw *ServerWrapper) Start() error {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()

	if sw.isRunning {
		return fmt.Errorf("server is already running")
	}

	addr := sw.Addr()
	sw.logger.Printf("starting MCP server on %s", addr)

	mux := http.NewServeMux()
	getServer := func(r *http.Request) *mcp.Server { return sw.sdkServer }

	// Streamable HTTP on the root, dual streamable/SSE routing on /mcp.
	mux.Handle("/", mcp.NewStreamableHTTPHandler(getServer, nil))
	mux.Handle("/mcp", NewDualTransportHandler(getServer))
	mux.HandleFunc("/health", sw.handleHealthCheck)

	var handler http.Handler = mux
	if sw.auth != nil {
		mux.HandleFunc("/callback", sw.auth.HandleCallback)
		handler = sw.auth.Middleware(handler)
		sw.logger.Printf("bearer authentication enabled mode=%s", sw.auth.Mode())
	}
	handler = sw.loggingMiddleware(handler)

	sw.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  sw.config.MCPServerReadTimeout,
		WriteTimeout: sw.config.MCPServerWriteTimeout,
		IdleTimeout:  sw.config.MCPServerIdleTimeout,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	sw.wg.Add(1)
	go func() {
		defer sw.wg.Done()
		if err := sw.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			sw.logger.Printf("HTTP server error: %v", err)
		}
	}()

	sw.isRunning = true
	sw.logger.Printf("MCP server started addr=%s", addr)
	return nil
}

// Stop shuts the HTTP server down gracefully, falling back to a hard
// close when the shutdown timeout expires.
func (sw *ServerWrapper) Stop() error {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()

	if !sw.isRunning {
		return fmt.Errorf("server is not running")
	}

	sw.logger.Printf("stopping MCP server")

	if sw.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), sw.config.MCPServerShutdownTimeout)
		defer cancel()

		if err := sw.httpServer.Shutdown(shutdownCtx); err != nil {
			sw.logger.Printf("graceful shutdown failed: %v, forcing close", err)
			if err := sw.httpServer.Close(); err != nil {
				sw.logger.Printf("failed to close HTTP server: %v", err)
			}
		}
	}

	sw.cancelFunc()
	close(sw.shutdownChan)
	sw.wg.Wait()

	sw.isRunning = false
	sw.logger.Printf("MCP server stopped")
	return nil
}

// IsRunning reports whether the HTTP server is up.
func (sw *ServerWrapper) IsRunning() bool {
	sw.mutex.RLock()
	defer sw.mutex.RUnlock()
	return sw.isRunning
}

// WaitForShutdown blocks until Stop completes.
func (sw *ServerWrapper) WaitForShutdown() {
	<-sw.shutdownChan
}

// Addr returns the host:port the HTTP server binds.
func (sw *ServerWrapper) Addr() string {
	return fmt.Sprintf("%s:%d", sw.config.MCPServerHost, sw.config.MCPServerPort)
}

// SetLogger replaces the server logger.
func (sw *ServerWrapper) SetLogger(logger *log.Logger) {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()
	if logger != nil {
		sw.logger = logger
	}
}

func (sw *ServerWrapper) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	response := fmt.Sprintf(`{"status":"healthy","server":"%s","version":"%s","running":%v}`,
		serverName, serverVersion, sw.IsRunning())
	if _, err := w.Write([]byte(response)); err != nil {
		sw.logger.Printf("failed to write health response: %v", err)
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int64
}

func newLoggingResponseWriter(w http.ResponseWriter) *loggingResponseWriter {
	return &loggingResponseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += int64(n)
	return n, err
}

func (sw *ServerWrapper) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := newLoggingResponseWriter(w)
		next.ServeHTTP(lrw, r)

		sw.logger.Printf("request method=%s path=%s status=%d bytes=%d duration=%s client_ip=%s user_agent=%q",
			r.Method, r.URL.Path, lrw.status, lrw.size, time.Since(start), extractClientIP(r), r.Header.Get("User-Agent"))
	})
}

// extractClientIP resolves the originating client address, trusting
// forwarding headers before the socket peer.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if candidate := strings.TrimSpace(parts[0]); candidate != "" {
			return candidate
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
