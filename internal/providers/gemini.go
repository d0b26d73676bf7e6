package providers

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/cjangrist/mcp-omnisearch/internal/types"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiProvider asks Gemini for an answer grounded through the
// built-in Google Search tool. Grounding chunks become citations.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a Gemini answer provider. An empty model
// selects the flash default.
func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if strings.TrimSpace(model) == "" {
		model = defaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &GeminiProvider{client: client, model: model}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }
func (p *GeminiProvider) Kind() Kind   { return KindAnswer }

// Search generates a grounded answer. The web sources Gemini grounded
// on follow the answer as citations.
func (p *GeminiProvider) Search(ctx context.Context, query string, params types.QueryParams) ([]types.SearchResult, error) {
	config := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{
			{GoogleSearch: &genai.GoogleSearch{}},
		},
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(query), config)
	if err != nil {
		return nil, &types.ProviderError{
			Provider: p.Name(),
			Kind:     types.ErrorKindAPI,
			Message:  err.Error(),
		}
	}

	answer := strings.TrimSpace(resp.Text())
	if answer == "" {
		return nil, &types.ProviderError{
			Provider: p.Name(),
			Kind:     types.ErrorKindBadResponse,
			Message:  "empty candidate text in generate content response",
		}
	}

	results := []types.SearchResult{{
		Title:          fmt.Sprintf("Gemini %s answer", p.model),
		Snippet:        answer,
		SourceProvider: p.Name(),
		Metadata:       map[string]string{types.MetadataKind: types.MetadataKindAnswer},
	}}

	for _, chunk := range groundingChunks(resp) {
		if chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		results = append(results, types.SearchResult{
			Title:          chunk.Web.Title,
			URL:            chunk.Web.URI,
			SourceProvider: p.Name(),
			Metadata:       map[string]string{types.MetadataKind: types.MetadataKindCitation},
		})
	}
	return results, nil
}

func groundingChunks(resp *genai.GenerateContentResponse) []*genai.GroundingChunk {
	if len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return nil
	}
	return resp.Candidates[0].GroundingMetadata.GroundingChunks
}
