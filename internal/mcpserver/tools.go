package mcpserver

import (
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Tool names exposed to MCP clients.
const (
	ToolOmniSearch     = "omni_search"
	ToolOmniAnswer     = "omni_answer"
	ToolProviderStatus = "provider_status"
)

// registerTools adds the omnisearch tools to the SDK server.
func registerTools(server *mcp.Server, handler *ToolHandler) {
	server.AddTool(omniSearchTool(), handler.HandleOmniSearch)
	server.AddTool(omniAnswerTool(), handler.HandleOmniAnswer)
	server.AddTool(providerStatusTool(), handler.HandleProviderStatus)
}

func omniSearchTool() *mcp.Tool {
	schema := &jsonschema.Schema{
		Type:        "object",
		Title:       "Omni Search Parameters",
		Description: "Fan the query out to every enabled web search provider and fuse the ranked lists.",
		Required:    []string{"query"},
		Properties:  map[string]*jsonschema.Schema{},
	}

	schema.Properties["query"] = queryProperty("Search query text, sent verbatim to every provider.")
	schema.Properties["providers"] = providersProperty(
		[]string{"tavily", "brave", "kagi", "google_cse", "opensearch"})
	schema.Properties["max_results"] = maxResultsProperty()
	schema.Properties["language"] = &jsonschema.Schema{
		Type:        "string",
		Title:       "Language",
		Description: "Preferred result language as a BCP 47 tag, passed to providers that support it.",
		Examples:    []any{"en", "ja"},
	}
	schema.Properties["timeout_ms"] = timeoutProperty()

	schema.Examples = []any{
		map[string]any{"query": "reciprocal rank fusion"},
		map[string]any{
			"query":       "opensearch bm25 tuning",
			"providers":   []string{"tavily", "brave"},
			"max_results": 5,
			"timeout_ms":  10000,
		},
	}

	return &mcp.Tool{
		Name:        ToolOmniSearch,
		Description: "Search the web through every configured provider at once. Results are merged with reciprocal rank fusion and deduplicated by URL; provider failures and timeouts are reported alongside the ranked list.",
		InputSchema: schema,
	}
}

func omniAnswerTool() *mcp.Tool {
	schema := &jsonschema.Schema{
		Type:        "object",
		Title:       "Omni Answer Parameters",
		Description: "Ask every enabled AI answer provider the same question and collect one cited answer per provider.",
		Required:    []string{"query"},
		Properties:  map[string]*jsonschema.Schema{},
	}

	schema.Properties["query"] = queryProperty("Question to put to every answer provider.")
	schema.Properties["providers"] = providersProperty(
		[]string{"perplexity", "kagi_fastgpt", "gemini", "bedrock"})
	schema.Properties["max_results"] = maxResultsProperty()
	schema.Properties["timeout_ms"] = timeoutProperty()

	schema.Examples = []any{
		map[string]any{"query": "What changed in Go 1.22 loop variable scoping?"},
		map[string]any{
			"query":      "summarize the current state of post-quantum TLS",
			"providers":  []string{"perplexity", "gemini"},
			"timeout_ms": 45000,
		},
	}

	return &mcp.Tool{
		Name:        ToolOmniAnswer,
		Description: "Get synthesized answers with citations from every configured AI answer provider in parallel. Each provider contributes one answer; none are merged.",
		InputSchema: schema,
	}
}

func providerStatusTool() *mcp.Tool {
	checkProp := &jsonschema.Schema{
		Type:        "boolean",
		Title:       "Check",
		Description: "Probe each enabled provider's API with a live health check instead of only listing configuration state.",
	}
	checkProp.Default = toRaw(false)

	schema := &jsonschema.Schema{
		Type:        "object",
		Title:       "Provider Status Parameters",
		Description: "Report which providers are configured and, optionally, whether they respond.",
		Properties: map[string]*jsonschema.Schema{
			"check": checkProp,
		},
	}

	return &mcp.Tool{
		Name:        ToolProviderStatus,
		Description: "List every known provider with its enablement state, and optionally ping the enabled ones.",
		InputSchema: schema,
	}
}

func queryProperty(description string) *jsonschema.Schema {
	prop := &jsonschema.Schema{
		Type:        "string",
		Title:       "Query",
		Description: description,
	}
	minLen := 1
	prop.MinLength = &minLen
	return prop
}

func providersProperty(names []string) *jsonschema.Schema {
	minLen := 1
	prop := &jsonschema.Schema{
		Type:        "array",
		Title:       "Providers",
		Description: "Restrict the fan-out to this subset of provider names. Omit to query every enabled provider.",
		Items:       &jsonschema.Schema{Type: "string", MinLength: &minLen},
	}
	prop.Examples = []any{names}
	return prop
}

func maxResultsProperty() *jsonschema.Schema {
	prop := &jsonschema.Schema{
		Type:        "integer",
		Title:       "Max Results",
		Description: "Maximum results requested from each provider (1-50).",
	}
	minimum := float64(1)
	maximum := float64(50)
	prop.Minimum = &minimum
	prop.Maximum = &maximum
	prop.Default = toRaw(10)
	prop.Examples = []any{5, 10, 20}
	return prop
}

func timeoutProperty() *jsonschema.Schema {
	prop := &jsonschema.Schema{
		Type:        "integer",
		Title:       "Timeout (ms)",
		Description: "Soft deadline for the whole fan-out in milliseconds. Providers that miss it are reported as timed out. 0 waits for every provider.",
	}
	minimum := float64(0)
	prop.Minimum = &minimum
	prop.Examples = []any{10000, 30000}
	return prop
}

func toRaw(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
