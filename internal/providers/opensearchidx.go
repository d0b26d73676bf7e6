package providers

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	opensearch "github.com/opensearch-project/opensearch-go/v4"
	"github.com/opensearch-project/opensearch-go/v4/opensearchapi"

	"github.com/cjangrist/mcp-omnisearch/internal/types"
)

// OpenSearchConfig wires the private-index provider.
type OpenSearchConfig struct {
	Endpoint        string
	Index           string
	Username        string
	Password        string
	InsecureSkipTLS bool
}

// OpenSearchProvider searches a private OpenSearch index alongside the
// public web providers. Documents are expected to carry title, url and
// content fields.
type OpenSearchProvider struct {
	client *opensearchapi.Client
	index  string
}

// NewOpenSearchProvider creates the private-index search provider.
func NewOpenSearchProvider(cfg OpenSearchConfig) (*OpenSearchProvider, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("opensearch endpoint is required")
	}
	if strings.TrimSpace(cfg.Index) == "" {
		return nil, fmt.Errorf("opensearch index is required")
	}

	client, err := opensearchapi.NewClient(opensearchapi.Config{
		Client: opensearch.Config{
			Addresses: []string{cfg.Endpoint},
			Username:  cfg.Username,
			Password:  cfg.Password,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.InsecureSkipTLS},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("opensearch: create client: %w", err)
	}
	return &OpenSearchProvider{client: client, index: cfg.Index}, nil
}

func (p *OpenSearchProvider) Name() string { return "opensearch" }
func (p *OpenSearchProvider) Kind() Kind   { return KindSearch }

type indexedDocument struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Search runs a multi_match query over the index, title weighted above
// body content.
func (p *OpenSearchProvider) Search(ctx context.Context, query string, params types.QueryParams) ([]types.SearchResult, error) {
	searchBody := map[string]interface{}{
		"size": clampMaxResults(params.MaxResults),
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"title^2", "content", "url"},
			},
		},
		"sort": []map[string]interface{}{
			{"_score": map[string]string{"order": "desc"}},
		},
	}
	bodyJSON, err := json.Marshal(searchBody)
	if err != nil {
		return nil, fmt.Errorf("opensearch: marshal search body: %w", err)
	}

	resp, err := p.client.Search(ctx, &opensearchapi.SearchReq{
		Indices: []string{p.index},
		Body:    strings.NewReader(string(bodyJSON)),
	})
	if err != nil {
		return nil, &types.ProviderError{
			Provider: p.Name(),
			Kind:     types.ErrorKindHTTP,
			Message:  err.Error(),
		}
	}

	results := make([]types.SearchResult, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		var doc indexedDocument
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			continue
		}
		if doc.URL == "" {
			continue
		}
		snippet := doc.Content
		if runes := []rune(snippet); len(runes) > 400 {
			snippet = string(runes[:400])
		}
		results = append(results, types.SearchResult{
			Title:          doc.Title,
			URL:            doc.URL,
			Snippet:        strings.TrimSpace(snippet),
			Score:          float64(hit.Score),
			SourceProvider: p.Name(),
		})
	}
	return results, nil
}

// Ping checks cluster health, the same probe the indexing tools use.
func (p *OpenSearchProvider) Ping(ctx context.Context) error {
	_, err := p.client.Cluster.Health(ctx, &opensearchapi.ClusterHealthReq{})
	if err != nil {
		return fmt.Errorf("opensearch: cluster health: %w", err)
	}
	return nil
}
