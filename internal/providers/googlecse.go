package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/cjangrist/mcp-omnisearch/internal/types"
)

// The JSON API serves at most ten results per call regardless of the
// requested count.
const googleCSEMaxResults = 10

// GoogleCSEProvider queries a Google Programmable Search Engine
// through the official Custom Search JSON API client.
type GoogleCSEProvider struct {
	service  *customsearch.Service
	engineID string
}

// NewGoogleCSEProvider creates a Google CSE search provider bound to
// one engine ID.
func NewGoogleCSEProvider(ctx context.Context, apiKey, engineID string) (*GoogleCSEProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("google_cse api key is required")
	}
	if strings.TrimSpace(engineID) == "" {
		return nil, fmt.Errorf("google_cse engine id is required")
	}
	service, err := customsearch.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("google_cse: create service: %w", err)
	}
	return &GoogleCSEProvider{service: service, engineID: engineID}, nil
}

func (p *GoogleCSEProvider) Name() string { return "google_cse" }
func (p *GoogleCSEProvider) Kind() Kind   { return KindSearch }

// Search executes a query against the configured engine. Google
// reports no relevance score, so item order carries the ranking.
func (p *GoogleCSEProvider) Search(ctx context.Context, query string, params types.QueryParams) ([]types.SearchResult, error) {
	count := clampMaxResults(params.MaxResults)
	if count > googleCSEMaxResults {
		count = googleCSEMaxResults
	}

	call := p.service.Cse.List().Q(query).Cx(p.engineID).Num(int64(count))
	if params.Language != "" {
		call = call.Lr("lang_" + strings.ToLower(params.Language))
	}

	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, classifyGoogleError(p.Name(), err)
	}

	results := make([]types.SearchResult, 0, len(resp.Items))
	for _, item := range resp.Items {
		results = append(results, types.SearchResult{
			Title:          item.Title,
			URL:            item.Link,
			Snippet:        strings.TrimSpace(item.Snippet),
			SourceProvider: p.Name(),
		})
	}
	return results, nil
}

// Ping issues a one-result search to verify key and reachability.
func (p *GoogleCSEProvider) Ping(ctx context.Context) error {
	_, err := p.Search(ctx, "ping", types.QueryParams{MaxResults: 1})
	return err
}

// classifyGoogleError maps googleapi status errors onto the shared
// taxonomy so fused summaries read uniformly across vendors.
func classifyGoogleError(provider string, err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return &types.ProviderError{
			Provider: provider,
			Kind:     types.ErrorKindHTTP,
			Message:  err.Error(),
		}
	}
	kind := types.ErrorKindHTTP
	switch apiErr.Code {
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = types.ErrorKindAuth
	case http.StatusTooManyRequests:
		kind = types.ErrorKindRateLimited
	}
	return &types.ProviderError{
		Provider: provider,
		Kind:     kind,
		Status:   apiErr.Code,
		Message:  apiErr.Message,
	}
}
