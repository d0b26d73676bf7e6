package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
)

const secretsFetchTimeout = 10 * time.Second

// secretsClient is the slice of the Secrets Manager API this package uses.
type secretsClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// fillFromSecretsManager fetches the secret named by OMNISEARCH_SECRETS_ID
// and fills provider credentials that the environment left empty. Values
// already present in the environment always win.
func fillFromSecretsManager(ctx context.Context, cfg *Config) error {
	ctx, cancel := context.WithTimeout(ctx, secretsFetchTimeout)
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	return fillFromSecretsClient(ctx, secretsmanager.NewFromConfig(awsCfg), cfg)
}

func fillFromSecretsClient(ctx context.Context, client secretsClient, cfg *Config) error {
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(cfg.SecretsID),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("secrets manager %s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())
		}
		return fmt.Errorf("failed to get secret value: %w", err)
	}

	if out.SecretString == nil || *out.SecretString == "" {
		return fmt.Errorf("secret %s has no string value", cfg.SecretsID)
	}

	var values map[string]string
	if err := json.Unmarshal([]byte(*out.SecretString), &values); err != nil {
		return fmt.Errorf("secret %s is not a JSON object of strings: %w", cfg.SecretsID, err)
	}

	fillIfEmpty := func(dst *string, key string) {
		if *dst == "" {
			if v, ok := values[key]; ok {
				*dst = v
			}
		}
	}

	fillIfEmpty(&cfg.TavilyAPIKey, "TAVILY_API_KEY")
	fillIfEmpty(&cfg.BraveAPIKey, "BRAVE_API_KEY")
	fillIfEmpty(&cfg.KagiAPIKey, "KAGI_API_KEY")
	fillIfEmpty(&cfg.GoogleCSEAPIKey, "GOOGLE_CSE_API_KEY")
	fillIfEmpty(&cfg.GoogleCSEEngineID, "GOOGLE_CSE_ENGINE_ID")
	fillIfEmpty(&cfg.PerplexityAPIKey, "PERPLEXITY_API_KEY")
	fillIfEmpty(&cfg.GeminiAPIKey, "GEMINI_API_KEY")
	fillIfEmpty(&cfg.OpenSearchUsername, "OPENSEARCH_USERNAME")
	fillIfEmpty(&cfg.OpenSearchPassword, "OPENSEARCH_PASSWORD")
	fillIfEmpty(&cfg.MCPAuthSharedSecret, "MCP_AUTH_SHARED_SECRET")

	return nil
}
