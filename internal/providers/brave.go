package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cjangrist/mcp-omnisearch/internal/types"
)

const defaultBraveURL = "https://api.search.brave.com/res/v1/web/search"

// BraveProvider queries the Brave Search API.
type BraveProvider struct {
	apiKey string
	apiURL string
	client *http.Client
}

// NewBraveProvider creates a Brave search provider. An empty apiURL
// selects the public endpoint.
func NewBraveProvider(apiKey, apiURL string) (*BraveProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("brave api key is required")
	}
	if strings.TrimSpace(apiURL) == "" {
		apiURL = defaultBraveURL
	}
	return &BraveProvider{
		apiKey: apiKey,
		apiURL: apiURL,
		client: newHTTPClient(searchClientTimeout),
	}, nil
}

func (p *BraveProvider) Name() string { return "brave" }
func (p *BraveProvider) Kind() Kind   { return KindSearch }

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
			Language    string `json:"language"`
		} `json:"results"`
	} `json:"web"`
}

// Search executes a query against the Brave Search API. Brave reports
// no relevance score, so item order carries the ranking.
func (p *BraveProvider) Search(ctx context.Context, query string, params types.QueryParams) ([]types.SearchResult, error) {
	endpoint, err := url.Parse(p.apiURL)
	if err != nil {
		return nil, fmt.Errorf("brave: parse url: %w", err)
	}
	q := endpoint.Query()
	q.Set("q", query)
	q.Set("count", strconv.Itoa(clampMaxResults(params.MaxResults)))
	if params.Language != "" {
		q.Set("search_lang", params.Language)
	}
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("brave: create request: %w", err)
	}
	req.Header.Set("X-Subscription-Token", p.apiKey)

	var decoded braveResponse
	if err := doJSON(p.client, p.Name(), req, &decoded); err != nil {
		return nil, err
	}

	results := make([]types.SearchResult, 0, len(decoded.Web.Results))
	for _, item := range decoded.Web.Results {
		results = append(results, types.SearchResult{
			Title:          item.Title,
			URL:            item.URL,
			Snippet:        strings.TrimSpace(item.Description),
			SourceProvider: p.Name(),
		})
	}
	return results, nil
}

// Ping issues a one-result search to verify key and reachability.
func (p *BraveProvider) Ping(ctx context.Context) error {
	_, err := p.Search(ctx, "ping", types.QueryParams{MaxResults: 1})
	return err
}
