package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/cjangrist/mcp-omnisearch/internal/types"
)

const bedrockAnswerSystemPrompt = "Answer the user's question concisely and factually. " +
	"If you are not confident in an answer, say so."

// bedrockInvoker is the slice of the Bedrock runtime client this
// provider calls, split out so tests can stub the wire.
type bedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockProvider asks a Claude model on AWS Bedrock for an answer.
// Bedrock answers carry no citations; the entry is answer-only.
type BedrockProvider struct {
	client  bedrockInvoker
	modelID string
}

// NewBedrockProvider creates a Bedrock answer provider from an already
// resolved AWS config.
func NewBedrockProvider(awsConfig aws.Config, modelID string) (*BedrockProvider, error) {
	if strings.TrimSpace(modelID) == "" {
		return nil, fmt.Errorf("bedrock answer model id is required")
	}
	return &BedrockProvider{
		client:  bedrockruntime.NewFromConfig(awsConfig),
		modelID: modelID,
	}, nil
}

func (p *BedrockProvider) Name() string { return "bedrock" }
func (p *BedrockProvider) Kind() Kind   { return KindAnswer }

type bedrockChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// bedrockChatRequest is the Anthropic messages payload Bedrock expects
// for Claude models.
type bedrockChatRequest struct {
	Messages         []bedrockChatMessage `json:"messages"`
	MaxTokens        int                  `json:"max_tokens,omitempty"`
	Temperature      float64              `json:"temperature,omitempty"`
	AnthropicVersion string               `json:"anthropic_version,omitempty"`
	System           string               `json:"system,omitempty"`
}

type bedrockChatResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Search invokes the model once with the query as the user message.
func (p *BedrockProvider) Search(ctx context.Context, query string, params types.QueryParams) ([]types.SearchResult, error) {
	request := bedrockChatRequest{
		Messages:         []bedrockChatMessage{{Role: "user", Content: query}},
		MaxTokens:        4000,
		Temperature:      0.7,
		AnthropicVersion: "bedrock-2023-05-31",
		System:           bedrockAnswerSystemPrompt,
	}
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("bedrock: marshal request: %w", err)
	}

	result, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(p.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        requestBody,
	})
	if err != nil {
		return nil, &types.ProviderError{
			Provider: p.Name(),
			Kind:     types.ErrorKindAPI,
			Message:  err.Error(),
		}
	}

	var response bedrockChatResponse
	if err := json.Unmarshal(result.Body, &response); err != nil {
		return nil, &types.ProviderError{
			Provider: p.Name(),
			Kind:     types.ErrorKindBadResponse,
			Message:  fmt.Sprintf("parse response: %v", err),
		}
	}
	if len(response.Content) == 0 || strings.TrimSpace(response.Content[0].Text) == "" {
		return nil, &types.ProviderError{
			Provider: p.Name(),
			Kind:     types.ErrorKindBadResponse,
			Message:  "no content in response",
		}
	}

	return []types.SearchResult{{
		Title:          fmt.Sprintf("Bedrock %s answer", p.modelID),
		Snippet:        strings.TrimSpace(response.Content[0].Text),
		SourceProvider: p.Name(),
		Metadata:       map[string]string{types.MetadataKind: types.MetadataKindAnswer},
	}}, nil
}
