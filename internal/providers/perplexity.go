package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/cjangrist/mcp-omnisearch/internal/types"
)

const (
	defaultPerplexityURL   = "https://api.perplexity.ai/chat/completions"
	defaultPerplexityModel = "sonar"
)

// PerplexityProvider asks Perplexity's OpenAI-compatible chat API for
// a web-grounded answer.
type PerplexityProvider struct {
	apiKey string
	apiURL string
	model  string
	client *http.Client
}

// NewPerplexityProvider creates a Perplexity answer provider. Empty
// apiURL and model select the public endpoint and the sonar model.
func NewPerplexityProvider(apiKey, apiURL, model string) (*PerplexityProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("perplexity api key is required")
	}
	if strings.TrimSpace(apiURL) == "" {
		apiURL = defaultPerplexityURL
	}
	if strings.TrimSpace(model) == "" {
		model = defaultPerplexityModel
	}
	return &PerplexityProvider{
		apiKey: apiKey,
		apiURL: apiURL,
		model:  model,
		client: newHTTPClient(answerClientTimeout),
	}, nil
}

func (p *PerplexityProvider) Name() string { return "perplexity" }
func (p *PerplexityProvider) Kind() Kind   { return KindAnswer }

type perplexityMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type perplexityRequest struct {
	Model    string              `json:"model"`
	Messages []perplexityMessage `json:"messages"`
}

type perplexityResponse struct {
	Citations []string `json:"citations"`
	Choices   []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Search asks the model for an answer. Perplexity returns the source
// URLs in a flat citations array; each becomes a citation item after
// the answer.
func (p *PerplexityProvider) Search(ctx context.Context, query string, params types.QueryParams) ([]types.SearchResult, error) {
	body, err := encodeJSONBody(p.Name(), perplexityRequest{
		Model: p.model,
		Messages: []perplexityMessage{
			{Role: "user", Content: query},
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, body)
	if err != nil {
		return nil, fmt.Errorf("perplexity: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	var decoded perplexityResponse
	if err := doJSON(p.client, p.Name(), req, &decoded); err != nil {
		return nil, err
	}
	if len(decoded.Choices) == 0 {
		return nil, &types.ProviderError{
			Provider: p.Name(),
			Kind:     types.ErrorKindBadResponse,
			Message:  "no choices in chat completion response",
		}
	}

	results := make([]types.SearchResult, 0, 1+len(decoded.Citations))
	results = append(results, types.SearchResult{
		Title:          fmt.Sprintf("Perplexity %s answer", p.model),
		Snippet:        strings.TrimSpace(decoded.Choices[0].Message.Content),
		SourceProvider: p.Name(),
		Metadata:       map[string]string{types.MetadataKind: types.MetadataKindAnswer},
	})
	for _, cite := range decoded.Citations {
		results = append(results, types.SearchResult{
			Title:          cite,
			URL:            cite,
			SourceProvider: p.Name(),
			Metadata:       map[string]string{types.MetadataKind: types.MetadataKindCitation},
		})
	}
	return results, nil
}
