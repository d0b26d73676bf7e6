package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"
)

func TestLoadOrchestrationConfig(t *testing.T) {
	t.Run("parses orchestration overrides", func(t *testing.T) {
		t.Setenv("TAVILY_API_KEY", "tvly-test")
		t.Setenv("OMNISEARCH_TIMEOUT_MS", "5000")
		t.Setenv("OMNISEARCH_MAX_RETRIES", "3")
		t.Setenv("OMNISEARCH_RETRY_DELAY_MS", "250")
		t.Setenv("OMNISEARCH_MAX_RESULTS", "20")
		t.Setenv("OMNISEARCH_CACHE_ENABLED", "true")
		t.Setenv("OMNISEARCH_CACHE_TTL_MINUTES", "30")

		cfg, err := Load(context.Background())
		require.NoError(t, err)

		require.Equal(t, "tvly-test", cfg.TavilyAPIKey)
		require.Equal(t, 5000, cfg.TimeoutMS)
		require.Equal(t, 3, cfg.MaxRetries)
		require.Equal(t, 250, cfg.RetryDelayMS)
		require.Equal(t, 20, cfg.MaxResults)
		require.True(t, cfg.CacheEnabled)
		require.Equal(t, 30, cfg.CacheTTLMinutes)
	})

	t.Run("applies defaults when env not provided", func(t *testing.T) {
		cfg, err := Load(context.Background())
		require.NoError(t, err)

		require.Equal(t, 30000, cfg.TimeoutMS)
		require.Equal(t, 1, cfg.MaxRetries)
		require.Equal(t, 500, cfg.RetryDelayMS)
		require.Equal(t, 10, cfg.MaxResults)
		require.Equal(t, "sonar", cfg.PerplexityModel)
		require.Equal(t, "gemini-2.0-flash", cfg.GeminiModel)
		require.Equal(t, "us-east-1", cfg.AWSRegion)
		require.Equal(t, "127.0.0.1", cfg.MCPServerHost)
		require.Equal(t, 8080, cfg.MCPServerPort)
		require.True(t, cfg.MetricsEnabled)
	})

	t.Run("clamps values outside safe ranges", func(t *testing.T) {
		t.Setenv("OMNISEARCH_MAX_RESULTS", "500")
		t.Setenv("OMNISEARCH_MAX_RETRIES", "-2")
		t.Setenv("OMNISEARCH_TIMEOUT_MS", "-100")
		t.Setenv("OMNISEARCH_RATE_LIMIT_PER_MINUTE", "0")

		cfg, err := Load(context.Background())
		require.NoError(t, err)

		require.Equal(t, 50, cfg.MaxResults)
		require.Equal(t, 0, cfg.MaxRetries)
		require.Equal(t, 0, cfg.TimeoutMS, "negative timeout should normalize to wait-forever")
		require.Equal(t, 60, cfg.RateLimitPerMinute)
	})
}

func TestLoadProvidersFile(t *testing.T) {
	t.Run("loads per-provider overrides", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "providers.yaml")
		content := `providers:
  tavily:
    disabled: true
  brave:
    max_results: 5
    rate_limit_per_minute: 30
    endpoint: http://localhost:9200/brave
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		t.Setenv("OMNISEARCH_PROVIDERS_FILE", path)

		cfg, err := Load(context.Background())
		require.NoError(t, err)

		require.True(t, cfg.ProviderDisabled("tavily"))
		require.False(t, cfg.ProviderDisabled("brave"))
		require.Equal(t, 5, cfg.ProviderOverrides["brave"].MaxResults)
		require.Equal(t, 30, cfg.ProviderOverrides["brave"].RateLimitPerMinute)
		require.Equal(t, "http://localhost:9200/brave", cfg.ProviderOverrides["brave"].Endpoint)
	})

	t.Run("rejects missing file", func(t *testing.T) {
		t.Setenv("OMNISEARCH_PROVIDERS_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

		_, err := Load(context.Background())
		require.Error(t, err)
		require.Contains(t, err.Error(), "providers file")
	})

	t.Run("rejects malformed YAML", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "providers.yaml")
		require.NoError(t, os.WriteFile(path, []byte("providers: [not a map"), 0o644))
		t.Setenv("OMNISEARCH_PROVIDERS_FILE", path)

		_, err := Load(context.Background())
		require.Error(t, err)
	})
}

func TestLoadValidation(t *testing.T) {
	t.Run("rejects OpenSearch endpoint without scheme", func(t *testing.T) {
		t.Setenv("OPENSEARCH_ENDPOINT", "opensearch.example.com:9200")

		_, err := Load(context.Background())
		require.Error(t, err)
		require.Contains(t, err.Error(), "OPENSEARCH_ENDPOINT")
	})

	t.Run("rejects auth enabled with no credential source", func(t *testing.T) {
		t.Setenv("MCP_AUTH_ENABLED", "true")
		t.Setenv("MCP_AUTH_SHARED_SECRET", "")
		t.Setenv("OIDC_ISSUER", "")

		_, err := Load(context.Background())
		require.Error(t, err)
		require.Contains(t, err.Error(), "MCP_AUTH_SHARED_SECRET or OIDC_ISSUER")
	})

	t.Run("rejects OIDC issuer without client ID", func(t *testing.T) {
		t.Setenv("MCP_AUTH_ENABLED", "true")
		t.Setenv("OIDC_ISSUER", "https://accounts.example.com")
		t.Setenv("OIDC_CLIENT_ID", "")

		_, err := Load(context.Background())
		require.Error(t, err)
		require.Contains(t, err.Error(), "OIDC_CLIENT_ID")
	})

	t.Run("rejects out-of-range server port", func(t *testing.T) {
		t.Setenv("MCP_SERVER_PORT", "70000")

		_, err := Load(context.Background())
		require.Error(t, err)
		require.Contains(t, err.Error(), "MCP_SERVER_PORT")
	})
}

type stubSecretsClient struct {
	output *secretsmanager.GetSecretValueOutput
	err    error

	lastSecretID string
}

func (s *stubSecretsClient) GetSecretValue(_ context.Context, params *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	if params.SecretId != nil {
		s.lastSecretID = *params.SecretId
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.output, nil
}

func TestFillFromSecretsClient(t *testing.T) {
	t.Run("fills only empty credentials", func(t *testing.T) {
		stub := &stubSecretsClient{
			output: &secretsmanager.GetSecretValueOutput{
				SecretString: aws.String(`{"TAVILY_API_KEY": "tvly-secret", "BRAVE_API_KEY": "brave-secret"}`),
			},
		}
		cfg := &Config{
			SecretsID:    "omnisearch/providers",
			TavilyAPIKey: "tvly-from-env",
		}

		err := fillFromSecretsClient(context.Background(), stub, cfg)
		require.NoError(t, err)

		require.Equal(t, "omnisearch/providers", stub.lastSecretID)
		require.Equal(t, "tvly-from-env", cfg.TavilyAPIKey, "environment value should win over the secret")
		require.Equal(t, "brave-secret", cfg.BraveAPIKey)
	})

	t.Run("surfaces API errors with code and message", func(t *testing.T) {
		stub := &stubSecretsClient{
			err: &smithy.GenericAPIError{Code: "ResourceNotFoundException", Message: "Secrets Manager can't find the specified secret"},
		}
		cfg := &Config{SecretsID: "omnisearch/missing"}

		err := fillFromSecretsClient(context.Background(), stub, cfg)
		require.Error(t, err)
		require.Contains(t, err.Error(), "ResourceNotFoundException")
		require.Contains(t, err.Error(), "can't find the specified secret")
	})

	t.Run("rejects secrets that are not JSON objects", func(t *testing.T) {
		stub := &stubSecretsClient{
			output: &secretsmanager.GetSecretValueOutput{SecretString: aws.String("just-a-key")},
		}
		cfg := &Config{SecretsID: "omnisearch/plain"}

		err := fillFromSecretsClient(context.Background(), stub, cfg)
		require.Error(t, err)
		require.Contains(t, err.Error(), "JSON object")
	})

	t.Run("rejects empty secret string", func(t *testing.T) {
		stub := &stubSecretsClient{
			output: &secretsmanager.GetSecretValueOutput{},
		}
		cfg := &Config{SecretsID: "omnisearch/empty"}

		err := fillFromSecretsClient(context.Background(), stub, cfg)
		require.Error(t, err)
		require.Contains(t, err.Error(), "no string value")
	})
}
