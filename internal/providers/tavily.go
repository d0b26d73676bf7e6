package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/cjangrist/mcp-omnisearch/internal/types"
)

const defaultTavilyURL = "https://api.tavily.com/search"

// TavilyProvider queries the Tavily Search API.
type TavilyProvider struct {
	apiKey string
	apiURL string
	client *http.Client
}

// NewTavilyProvider creates a Tavily search provider. An empty apiURL
// selects the public endpoint.
func NewTavilyProvider(apiKey, apiURL string) (*TavilyProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("tavily api key is required")
	}
	if strings.TrimSpace(apiURL) == "" {
		apiURL = defaultTavilyURL
	}
	return &TavilyProvider{
		apiKey: apiKey,
		apiURL: apiURL,
		client: newHTTPClient(searchClientTimeout),
	}, nil
}

func (p *TavilyProvider) Name() string { return "tavily" }
func (p *TavilyProvider) Kind() Kind   { return KindSearch }

type tavilyRequest struct {
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth,omitempty"`
	MaxResults  int    `json:"max_results,omitempty"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search executes a query against the Tavily Search API.
func (p *TavilyProvider) Search(ctx context.Context, query string, params types.QueryParams) ([]types.SearchResult, error) {
	body, err := encodeJSONBody(p.Name(), tavilyRequest{
		Query:      query,
		MaxResults: clampMaxResults(params.MaxResults),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, body)
	if err != nil {
		return nil, fmt.Errorf("tavily: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	var decoded tavilyResponse
	if err := doJSON(p.client, p.Name(), req, &decoded); err != nil {
		return nil, err
	}

	results := make([]types.SearchResult, 0, len(decoded.Results))
	for _, item := range decoded.Results {
		results = append(results, types.SearchResult{
			Title:          item.Title,
			URL:            item.URL,
			Snippet:        strings.TrimSpace(item.Content),
			Score:          item.Score,
			SourceProvider: p.Name(),
		})
	}
	return results, nil
}

// Ping issues a one-result search to verify key and reachability.
func (p *TavilyProvider) Ping(ctx context.Context) error {
	_, err := p.Search(ctx, "ping", types.QueryParams{MaxResults: 1})
	return err
}
