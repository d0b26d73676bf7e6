package config

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/joho/godotenv"
	env "github.com/netflix/go-env"

	"github.com/cjangrist/mcp-omnisearch/internal/types"
)

// Type alias for Config
type Config = types.Config

// Load loads configuration from environment variables, then layers in the
// providers overrides file and Secrets Manager values when configured.
func Load(ctx context.Context) (*Config, error) {
	// A missing .env file is not an error; deployments usually set the
	// environment directly.
	_ = godotenv.Load()

	var config Config

	_, err := env.UnmarshalFromEnviron(&config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if config.ProvidersFile != "" {
		overrides, err := loadProviderOverrides(config.ProvidersFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load providers file %s: %w", config.ProvidersFile, err)
		}
		config.ProviderOverrides = overrides
	}

	if config.SecretsID != "" {
		if err := fillFromSecretsManager(ctx, &config); err != nil {
			return nil, fmt.Errorf("failed to load secrets %s: %w", config.SecretsID, err)
		}
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// validateConfig validates configuration values and adjusts them to safe ranges
func validateConfig(config *Config) error {
	// Validate result count limits
	if config.MaxResults < 1 {
		config.MaxResults = 10
	}
	if config.MaxResults > 50 {
		config.MaxResults = 50
	}

	// Validate retry attempts
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.MaxRetries > 10 {
		config.MaxRetries = 10
	}

	// Negative durations behave like zero (disabled)
	if config.TimeoutMS < 0 {
		config.TimeoutMS = 0
	}
	if config.RetryDelayMS < 0 {
		config.RetryDelayMS = 0
	}
	if config.HeartbeatSeconds < 0 {
		config.HeartbeatSeconds = 0
	}
	if config.CacheTTLMinutes < 0 {
		config.CacheTTLMinutes = 0
	}

	// Validate rate limiting configuration
	if config.RateLimitPerMinute <= 0 {
		config.RateLimitPerMinute = 60
	}
	if config.RateLimitBurst <= 0 {
		config.RateLimitBurst = 10
	}

	// Validate OpenSearch configuration if endpoint is provided
	if config.OpenSearchEndpoint != "" {
		if err := validateOpenSearchConfig(config); err != nil {
			return fmt.Errorf("OpenSearch configuration validation failed: %w", err)
		}
	}

	if err := validateMCPConfig(config); err != nil {
		return fmt.Errorf("MCP server configuration validation failed: %w", err)
	}

	return nil
}

// validateOpenSearchConfig validates OpenSearch-specific configuration
func validateOpenSearchConfig(config *Config) error {
	parsedURL, err := url.Parse(config.OpenSearchEndpoint)
	if err != nil {
		return fmt.Errorf("invalid OPENSEARCH_ENDPOINT URL format: %w", err)
	}

	if parsedURL.Scheme == "" {
		return fmt.Errorf("OPENSEARCH_ENDPOINT must include scheme (http:// or https://)")
	}

	if !strings.HasPrefix(parsedURL.Scheme, "http") {
		return fmt.Errorf("OPENSEARCH_ENDPOINT scheme must be http or https")
	}

	if parsedURL.Host == "" {
		return fmt.Errorf("OPENSEARCH_ENDPOINT must include a valid host")
	}

	if config.OpenSearchIndex == "" {
		return fmt.Errorf("OPENSEARCH_INDEX is required when OPENSEARCH_ENDPOINT is set")
	}

	return nil
}

// validateMCPConfig validates MCP server-specific configuration
func validateMCPConfig(config *Config) error {
	if config.MCPServerPort < 1 || config.MCPServerPort > 65535 {
		return fmt.Errorf("MCP_SERVER_PORT must be between 1 and 65535, got: %d", config.MCPServerPort)
	}

	if config.MCPServerHost == "" {
		return fmt.Errorf("MCP_SERVER_HOST cannot be empty")
	}

	if config.MCPServerReadTimeout <= 0 {
		return fmt.Errorf("MCP_SERVER_READ_TIMEOUT must be greater than 0")
	}
	if config.MCPServerWriteTimeout <= 0 {
		return fmt.Errorf("MCP_SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if config.MCPServerIdleTimeout <= 0 {
		return fmt.Errorf("MCP_SERVER_IDLE_TIMEOUT must be greater than 0")
	}
	if config.MCPServerShutdownTimeout <= 0 {
		return fmt.Errorf("MCP_SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}

	if config.MCPAuthEnabled {
		if config.MCPAuthSharedSecret == "" && config.OIDCIssuer == "" {
			return fmt.Errorf("MCP_AUTH_SHARED_SECRET or OIDC_ISSUER is required when MCP_AUTH_ENABLED is true")
		}
		if config.OIDCIssuer != "" && config.OIDCClientID == "" {
			return fmt.Errorf("OIDC_CLIENT_ID is required when OIDC_ISSUER is set")
		}
	}

	return nil
}
