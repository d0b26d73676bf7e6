package mcpserver

import (
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// DualTransportHandler serves both MCP HTTP transports on one path:
// streamable HTTP for POST/DELETE exchanges and legacy SSE for clients
// that open a GET event stream first.
type DualTransportHandler struct {
	streamable *mcp.StreamableHTTPHandler
	sse        *mcp.SSEHandler
}

// NewDualTransportHandler creates the combined handler.
func NewDualTransportHandler(getServer func(*http.Request) *mcp.Server) *DualTransportHandler {
	return &DualTransportHandler{
		streamable: mcp.NewStreamableHTTPHandler(getServer, nil),
		sse:        mcp.NewSSEHandler(getServer),
	}
}

// ServeHTTP picks the transport from method, query, and Accept header.
func (h *DualTransportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// POST carrying an SSE session id is a message for an open SSE
	// stream.
	if r.Method == http.MethodPost && r.URL.Query().Has("sessionid") {
		h.sse.ServeHTTP(w, r)
		return
	}

	// A GET that accepts an event stream opens an SSE session. Anything
	// else on GET falls through to the streamable transport, which
	// answers 405 when no session exists.
	if r.Method == http.MethodGet {
		if acceptsEventStream(r) {
			h.sse.ServeHTTP(w, r)
			return
		}
		h.streamable.ServeHTTP(w, r)
		return
	}

	h.streamable.ServeHTTP(w, r)
}

func acceptsEventStream(r *http.Request) bool {
	joined := strings.Join(r.Header.Values("Accept"), ",")
	for _, part := range strings.Split(joined, ",") {
		part = strings.TrimSpace(part)
		if part == "text/event-stream" || part == "*/*" || strings.HasPrefix(part, "text/") {
			return true
		}
	}
	return false
}
