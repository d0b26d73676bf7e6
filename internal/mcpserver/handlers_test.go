package mcpserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cjangrist/mcp-omnisearch/internal/metrics"
	"github.com/cjangrist/mcp-omnisearch/internal/orchestrator"
	"github.com/cjangrist/mcp-omnisearch/internal/providers"
	"github.com/cjangrist/mcp-omnisearch/internal/types"
)

type stubSearchService struct {
	searchSummary *types.RequestSummary
	answerSummary *types.AnswerSummary
	searchErr     error
	answerErr     error

	lastQuery string
	lastOpts  orchestrator.SearchOptions
}

func (s *stubSearchService) Search(ctx context.Context, query string, opts orchestrator.SearchOptions) (*types.RequestSummary, error) {
	s.lastQuery = query
	s.lastOpts = opts
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.searchSummary, nil
}

func (s *stubSearchService) Answer(ctx context.Context, query string, opts orchestrator.SearchOptions) (*types.AnswerSummary, error) {
	s.lastQuery = query
	s.lastOpts = opts
	if s.answerErr != nil {
		return nil, s.answerErr
	}
	return s.answerSummary, nil
}

type stubStatusSource struct {
	known   []providers.ProviderInfo
	health  []providers.ProviderStatus
	checked bool
}

func (s *stubStatusSource) Known() []providers.ProviderInfo {
	return s.known
}

func (s *stubStatusSource) CheckAll(ctx context.Context) []providers.ProviderStatus {
	s.checked = true
	return s.health
}

// setupMetricsStore points the global counters at a throwaway sqlite
// database for the duration of one test.
func setupMetricsStore(t *testing.T) *metrics.Store {
	t.Helper()
	metrics.ResetForTesting()
	t.Cleanup(metrics.ResetForTesting)

	dbPath := filepath.Join(t.TempDir(), "test_stats.db")
	store, err := metrics.NewStoreWithPath(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	metrics.SetStoreForTesting(store)
	return store
}

func callRequest(name, args string) *mcp.CallToolRequest {
	params := &mcp.CallToolParamsRaw{Name: name}
	if args != "" {
		params.Arguments = json.RawMessage(args)
	}
	return &mcp.CallToolRequest{Params: params}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil || len(result.Content) != 1 {
		t.Fatalf("expected one content block, got %+v", result)
	}
	text, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return text.Text
}

func TestHandleOmniSearch(t *testing.T) {
	store := setupMetricsStore(t)

	service := &stubSearchService{
		searchSummary: &types.RequestSummary{
			RequestID:          "req-1",
			Query:              "reciprocal rank fusion",
			ProvidersQueried:   []string{"tavily", "brave", "kagi", "opensearch"},
			ProvidersSucceeded: []string{"tavily", "brave"},
			ProvidersFailed:    []types.ProviderFailure{{Provider: "kagi", Error: "status 429"}},
			ProvidersTimedOut:  []string{"opensearch"},
			RankedResults: []types.FusionEntry{
				{Title: "RRF", URL: "https://example.com/rrf", RRFScore: 0.03278},
			},
			ElapsedMS: 120,
		},
	}
	handler := NewToolHandler(service, &stubStatusSource{})

	req := callRequest(ToolOmniSearch,
		`{"query":"reciprocal rank fusion","providers":["tavily","brave"],"max_results":5,"language":"en","timeout_ms":10000}`)
	result, err := handler.HandleOmniSearch(context.Background(), req)
	if err != nil {
		t.Fatalf("HandleOmniSearch failed: %v", err)
	}

	// Arguments must arrive at the orchestrator unchanged.
	if service.lastQuery != "reciprocal rank fusion" {
		t.Errorf("query = %q", service.lastQuery)
	}
	if len(service.lastOpts.Providers) != 2 || service.lastOpts.Providers[0] != "tavily" {
		t.Errorf("providers = %v", service.lastOpts.Providers)
	}
	if service.lastOpts.MaxResults != 5 {
		t.Errorf("max results = %d, want 5", service.lastOpts.MaxResults)
	}
	if service.lastOpts.Language != "en" {
		t.Errorf("language = %q, want en", service.lastOpts.Language)
	}
	if service.lastOpts.Timeout == nil || *service.lastOpts.Timeout != 10*time.Second {
		t.Errorf("timeout = %v, want 10s", service.lastOpts.Timeout)
	}

	// The result is the summary serialized as indented JSON.
	var decoded types.RequestSummary
	if err := json.Unmarshal([]byte(resultText(t, result)), &decoded); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if decoded.RequestID != "req-1" || len(decoded.RankedResults) != 1 {
		t.Errorf("decoded summary = %+v", decoded)
	}

	// One MCP invocation and one outcome row per provider partition.
	today := time.Now().Format("2006-01-02")
	count, err := store.GetCountByDate(metrics.ModeMCP, today)
	if err != nil {
		t.Fatalf("GetCountByDate failed: %v", err)
	}
	if count != 1 {
		t.Errorf("invocation count = %d, want 1", count)
	}
	outcomes, err := store.GetOutcomeTotals()
	if err != nil {
		t.Fatalf("GetOutcomeTotals failed: %v", err)
	}
	if outcomes["tavily"][metrics.OutcomeFulfilled] != 1 {
		t.Errorf("tavily fulfilled = %d, want 1", outcomes["tavily"][metrics.OutcomeFulfilled])
	}
	if outcomes["kagi"][metrics.OutcomeFailed] != 1 {
		t.Errorf("kagi failed = %d, want 1", outcomes["kagi"][metrics.OutcomeFailed])
	}
	if outcomes["opensearch"][metrics.OutcomeTimedOut] != 1 {
		t.Errorf("opensearch timed out = %d, want 1", outcomes["opensearch"][metrics.OutcomeTimedOut])
	}
}

func TestHandleOmniSearchDefaultTimeout(t *testing.T) {
	setupMetricsStore(t)

	service := &stubSearchService{searchSummary: &types.RequestSummary{RequestID: "req-2"}}
	handler := NewToolHandler(service, &stubStatusSource{})

	if _, err := handler.HandleOmniSearch(context.Background(), callRequest(ToolOmniSearch, `{"query":"go"}`)); err != nil {
		t.Fatalf("HandleOmniSearch failed: %v", err)
	}
	// Absent timeout_ms leaves the server default in place.
	if service.lastOpts.Timeout != nil {
		t.Errorf("timeout = %v, want nil", service.lastOpts.Timeout)
	}

	if _, err := handler.HandleOmniSearch(context.Background(), callRequest(ToolOmniSearch, `{"query":"go","timeout_ms":0}`)); err != nil {
		t.Fatalf("HandleOmniSearch failed: %v", err)
	}
	// Explicit zero disables the soft deadline.
	if service.lastOpts.Timeout == nil || *service.lastOpts.Timeout != 0 {
		t.Errorf("timeout = %v, want explicit 0", service.lastOpts.Timeout)
	}
}

func TestHandleOmniAnswer(t *testing.T) {
	setupMetricsStore(t)

	service := &stubSearchService{
		answerSummary: &types.AnswerSummary{
			RequestID:          "req-3",
			Query:              "what is rrf",
			ProvidersQueried:   []string{"perplexity", "gemini"},
			ProvidersSucceeded: []string{"perplexity"},
			ProvidersFailed:    []types.ProviderFailure{{Provider: "gemini", Error: "quota exceeded"}},
			Answers: []types.ProviderAnswer{
				{
					Provider: "perplexity",
					Answer:   types.SearchResult{Title: "Answer", Snippet: "Reciprocal rank fusion is...", SourceProvider: "perplexity"},
					Citations: []types.SearchResult{
						{URL: "https://example.com/paper", SourceProvider: "perplexity"},
					},
				},
			},
			ElapsedMS: 900,
		},
	}
	handler := NewToolHandler(service, &stubStatusSource{})

	result, err := handler.HandleOmniAnswer(context.Background(), callRequest(ToolOmniAnswer, `{"query":"what is rrf"}`))
	if err != nil {
		t.Fatalf("HandleOmniAnswer failed: %v", err)
	}

	var decoded types.AnswerSummary
	if err := json.Unmarshal([]byte(resultText(t, result)), &decoded); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if len(decoded.Answers) != 1 || decoded.Answers[0].Provider != "perplexity" {
		t.Errorf("decoded answers = %+v", decoded.Answers)
	}
	if len(decoded.Answers[0].Citations) != 1 {
		t.Errorf("citations = %+v", decoded.Answers[0].Citations)
	}
}

func TestHandleProviderStatus(t *testing.T) {
	setupMetricsStore(t)

	status := &stubStatusSource{
		known: []providers.ProviderInfo{
			{Name: "tavily", Kind: providers.KindSearch, Enabled: true},
			{Name: "gemini", Kind: providers.KindAnswer, Enabled: false, Reason: "GEMINI_API_KEY not set"},
		},
		health: []providers.ProviderStatus{
			{Name: "tavily", Kind: providers.KindSearch, Checked: true, OK: true},
		},
	}
	handler := NewToolHandler(&stubSearchService{}, status)

	// Without check the handler must not probe anything.
	result, err := handler.HandleProviderStatus(context.Background(), callRequest(ToolProviderStatus, ""))
	if err != nil {
		t.Fatalf("HandleProviderStatus failed: %v", err)
	}
	if status.checked {
		t.Error("CheckAll ran without check=true")
	}
	var response providerStatusResponse
	if err := json.Unmarshal([]byte(resultText(t, result)), &response); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if len(response.Providers) != 2 || len(response.Health) != 0 {
		t.Errorf("response = %+v", response)
	}

	// With check the health probes come back alongside the listing.
	result, err = handler.HandleProviderStatus(context.Background(), callRequest(ToolProviderStatus, `{"check":true}`))
	if err != nil {
		t.Fatalf("HandleProviderStatus failed: %v", err)
	}
	if !status.checked {
		t.Error("CheckAll did not run with check=true")
	}
	if err := json.Unmarshal([]byte(resultText(t, result)), &response); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if len(response.Health) != 1 || !response.Health[0].OK {
		t.Errorf("health = %+v", response.Health)
	}
}

func TestParseFanoutArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		wantErr string
	}{
		{
			name: "full arguments",
			args: `{"query":"go","providers":["tavily"],"max_results":3,"timeout_ms":5000}`,
		},
		{
			name:    "missing query",
			args:    `{"max_results":3}`,
			wantErr: "query parameter is required",
		},
		{
			name:    "blank query",
			args:    `{"query":"   "}`,
			wantErr: "query parameter is required",
		},
		{
			name:    "negative timeout",
			args:    `{"query":"go","timeout_ms":-1}`,
			wantErr: "timeout_ms cannot be negative",
		},
		{
			name:    "malformed json",
			args:    `{"query":`,
			wantErr: "failed to unmarshal tool arguments",
		},
		{
			name:    "no arguments at all",
			args:    "",
			wantErr: "query parameter is required",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			args, err := parseFanoutArgs(callRequest(ToolOmniSearch, tc.args))
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("parseFanoutArgs failed: %v", err)
				}
				if args.Query != "go" {
					t.Errorf("query = %q", args.Query)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %q, want substring %q", err.Error(), tc.wantErr)
			}
		})
	}
}

func TestHandleOmniSearchInvalidArguments(t *testing.T) {
	setupMetricsStore(t)

	service := &stubSearchService{searchSummary: &types.RequestSummary{}}
	handler := NewToolHandler(service, &stubStatusSource{})

	if _, err := handler.HandleOmniSearch(context.Background(), callRequest(ToolOmniSearch, `{}`)); err == nil {
		t.Fatal("expected error for missing query")
	}
	if service.lastQuery != "" {
		t.Error("orchestrator was called despite invalid arguments")
	}
}

func TestProgressFuncWithoutSession(t *testing.T) {
	// No session means no notifications; the orchestrator must get a
	// nil callback rather than one that panics.
	if fn := progressFunc(context.Background(), nil); fn != nil {
		t.Error("nil request should yield nil progress func")
	}
	req := callRequest(ToolOmniSearch, `{"query":"go"}`)
	if fn := progressFunc(context.Background(), req); fn != nil {
		t.Error("session-less request should yield nil progress func")
	}
}

func TestTruncateForAttribute(t *testing.T) {
	if got := truncateForAttribute("  short  "); got != "short" {
		t.Errorf("got %q, want trimmed input", got)
	}
	long := strings.Repeat("あ", 200)
	got := truncateForAttribute(long)
	if runes := []rune(got); len(runes) != 121 || runes[120] != '…' {
		t.Errorf("got %d runes, want 120 plus ellipsis", len([]rune(got)))
	}
}
