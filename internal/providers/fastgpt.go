package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/cjangrist/mcp-omnisearch/internal/types"
)

const defaultFastGPTURL = "https://kagi.com/api/v0/fastgpt"

// FastGPTProvider asks Kagi FastGPT for a synthesized answer with
// references.
type FastGPTProvider struct {
	apiKey string
	apiURL string
	client *http.Client
}

// NewFastGPTProvider creates a Kagi FastGPT answer provider. An empty
// apiURL selects the public endpoint.
func NewFastGPTProvider(apiKey, apiURL string) (*FastGPTProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("kagi_fastgpt api key is required")
	}
	if strings.TrimSpace(apiURL) == "" {
		apiURL = defaultFastGPTURL
	}
	return &FastGPTProvider{
		apiKey: apiKey,
		apiURL: apiURL,
		client: newHTTPClient(answerClientTimeout),
	}, nil
}

func (p *FastGPTProvider) Name() string { return "kagi_fastgpt" }
func (p *FastGPTProvider) Kind() Kind   { return KindAnswer }

type fastGPTRequest struct {
	Query string `json:"query"`
	Cache bool   `json:"cache"`
}

type fastGPTResponse struct {
	Data struct {
		Output     string `json:"output"`
		References []struct {
			Title   string `json:"title"`
			Snippet string `json:"snippet"`
			URL     string `json:"url"`
		} `json:"references"`
	} `json:"data"`
}

// Search asks FastGPT for an answer. The answer is item 0 and each
// reference follows as a citation.
func (p *FastGPTProvider) Search(ctx context.Context, query string, params types.QueryParams) ([]types.SearchResult, error) {
	body, err := encodeJSONBody(p.Name(), fastGPTRequest{Query: query, Cache: true})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, body)
	if err != nil {
		return nil, fmt.Errorf("kagi_fastgpt: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bot "+p.apiKey)

	var decoded fastGPTResponse
	if err := doJSON(p.client, p.Name(), req, &decoded); err != nil {
		return nil, err
	}

	answer := strings.TrimSpace(decoded.Data.Output)
	if answer == "" {
		return nil, &types.ProviderError{
			Provider: p.Name(),
			Kind:     types.ErrorKindBadResponse,
			Message:  "empty output in fastgpt response",
		}
	}

	results := make([]types.SearchResult, 0, 1+len(decoded.Data.References))
	results = append(results, types.SearchResult{
		Title:          "Kagi FastGPT answer",
		Snippet:        answer,
		SourceProvider: p.Name(),
		Metadata:       map[string]string{types.MetadataKind: types.MetadataKindAnswer},
	})
	for _, ref := range decoded.Data.References {
		results = append(results, types.SearchResult{
			Title:          ref.Title,
			URL:            ref.URL,
			Snippet:        strings.TrimSpace(ref.Snippet),
			SourceProvider: p.Name(),
			Metadata:       map[string]string{types.MetadataKind: types.MetadataKindCitation},
		})
	}
	return results, nil
}
