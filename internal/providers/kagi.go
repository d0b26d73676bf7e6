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

const defaultKagiSearchURL = "https://kagi.com/api/v0/search"

// Kagi result record types within the data array. t=0 entries are
// search hits; t=1 is the related-searches list.
const kagiRecordSearchResult = 0

// KagiProvider queries the Kagi Search API.
type KagiProvider struct {
	apiKey string
	apiURL string
	client *http.Client
}

// NewKagiProvider creates a Kagi search provider. An empty apiURL
// selects the public endpoint.
func NewKagiProvider(apiKey, apiURL string) (*KagiProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("kagi api key is required")
	}
	if strings.TrimSpace(apiURL) == "" {
		apiURL = defaultKagiSearchURL
	}
	return &KagiProvider{
		apiKey: apiKey,
		apiURL: apiURL,
		client: newHTTPClient(searchClientTimeout),
	}, nil
}

func (p *KagiProvider) Name() string { return "kagi" }
func (p *KagiProvider) Kind() Kind   { return KindSearch }

type kagiSearchResponse struct {
	Data []struct {
		T       int    `json:"t"`
		URL     string `json:"url"`
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
	} `json:"data"`
}

// Search executes a query against the Kagi Search API. Kagi uses a
// bot-token scheme rather than Bearer and interleaves non-result
// records in the data array, which are filtered out here.
func (p *KagiProvider) Search(ctx context.Context, query string, params types.QueryParams) ([]types.SearchResult, error) {
	endpoint, err := url.Parse(p.apiURL)
	if err != nil {
		return nil, fmt.Errorf("kagi: parse url: %w", err)
	}
	q := endpoint.Query()
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(clampMaxResults(params.MaxResults)))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("kagi: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+p.apiKey)

	var decoded kagiSearchResponse
	if err := doJSON(p.client, p.Name(), req, &decoded); err != nil {
		return nil, err
	}

	results := make([]types.SearchResult, 0, len(decoded.Data))
	for _, item := range decoded.Data {
		if item.T != kagiRecordSearchResult || item.URL == "" {
			continue
		}
		results = append(results, types.SearchResult{
			Title:          item.Title,
			URL:            item.URL,
			Snippet:        strings.TrimSpace(item.Snippet),
			SourceProvider: p.Name(),
		})
	}
	return results, nil
}

// Ping issues a one-result search to verify key and reachability.
func (p *KagiProvider) Ping(ctx context.Context) error {
	_, err := p.Search(ctx, "ping", types.QueryParams{MaxResults: 1})
	return err
}
