package types

import "time"

// Config represents the omnisearch configuration. Provider credentials
// are optional; a provider joins the fan-out only when its key (and
// any companion setting) is present.
type Config struct {
	// Web search provider credentials
	TavilyAPIKey      string `json:"-" env:"TAVILY_API_KEY"`
	BraveAPIKey       string `json:"-" env:"BRAVE_API_KEY"`
	KagiAPIKey        string `json:"-" env:"KAGI_API_KEY"`
	GoogleCSEAPIKey   string `json:"-" env:"GOOGLE_CSE_API_KEY"`
	GoogleCSEEngineID string `json:"google_cse_engine_id" env:"GOOGLE_CSE_ENGINE_ID"`

	// AI answer provider credentials and models
	PerplexityAPIKey     string `json:"-" env:"PERPLEXITY_API_KEY"`
	PerplexityModel      string `json:"perplexity_model" env:"PERPLEXITY_MODEL,default=sonar"`
	GeminiAPIKey         string `json:"-" env:"GEMINI_API_KEY"`
	GeminiModel          string `json:"gemini_model" env:"GEMINI_MODEL,default=gemini-2.0-flash"`
	BedrockAnswerModelID string `json:"bedrock_answer_model_id" env:"BEDROCK_ANSWER_MODEL_ID"`
	AWSRegion            string `json:"aws_region" env:"AWS_REGION,default=us-east-1"`

	// Private OpenSearch index provider (optional)
	OpenSearchEndpoint        string `json:"opensearch_endpoint" env:"OPENSEARCH_ENDPOINT"`
	OpenSearchIndex           string `json:"opensearch_index" env:"OPENSEARCH_INDEX,default=omnisearch"`
	OpenSearchUsername        string `json:"-" env:"OPENSEARCH_USERNAME"`
	OpenSearchPassword        string `json:"-" env:"OPENSEARCH_PASSWORD"`
	OpenSearchInsecureSkipTLS bool   `json:"opensearch_insecure_skip_tls" env:"OPENSEARCH_INSECURE_SKIP_TLS,default=false"`

	// Orchestration
	TimeoutMS        int `json:"timeout_ms" env:"OMNISEARCH_TIMEOUT_MS,default=30000"`
	MaxRetries       int `json:"max_retries" env:"OMNISEARCH_MAX_RETRIES,default=1"`
	RetryDelayMS     int `json:"retry_delay_ms" env:"OMNISEARCH_RETRY_DELAY_MS,default=500"`
	MaxResults       int `json:"max_results" env:"OMNISEARCH_MAX_RESULTS,default=10"`
	HeartbeatSeconds int `json:"heartbeat_seconds" env:"OMNISEARCH_HEARTBEAT_SECONDS,default=5"`

	// Result cache (per provider+query, best effort)
	CacheEnabled    bool   `json:"cache_enabled" env:"OMNISEARCH_CACHE_ENABLED,default=false"`
	CacheTTLMinutes int    `json:"cache_ttl_minutes" env:"OMNISEARCH_CACHE_TTL_MINUTES,default=15"`
	CachePath       string `json:"cache_path" env:"OMNISEARCH_CACHE_PATH"`

	// Per-provider rate limiting
	RateLimitPerMinute int `json:"rate_limit_per_minute" env:"OMNISEARCH_RATE_LIMIT_PER_MINUTE,default=60"`
	RateLimitBurst     int `json:"rate_limit_burst" env:"OMNISEARCH_RATE_LIMIT_BURST,default=10"`

	// Optional per-provider overrides file (YAML)
	ProvidersFile     string                      `json:"providers_file" env:"OMNISEARCH_PROVIDERS_FILE"`
	ProviderOverrides map[string]ProviderOverride `json:"-"`

	// Optional AWS Secrets Manager source for provider keys
	SecretsID string `json:"secrets_id" env:"OMNISEARCH_SECRETS_ID"`

	// MCP server (HTTP transport)
	MCPServerHost            string        `json:"mcp_server_host" env:"MCP_SERVER_HOST,default=127.0.0.1"`
	MCPServerPort            int           `json:"mcp_server_port" env:"MCP_SERVER_PORT,default=8080"`
	MCPServerReadTimeout     time.Duration `json:"mcp_server_read_timeout" env:"MCP_SERVER_READ_TIMEOUT,default=30s"`
	MCPServerWriteTimeout    time.Duration `json:"mcp_server_write_timeout" env:"MCP_SERVER_WRITE_TIMEOUT,default=300s"`
	MCPServerIdleTimeout     time.Duration `json:"mcp_server_idle_timeout" env:"MCP_SERVER_IDLE_TIMEOUT,default=120s"`
	MCPServerShutdownTimeout time.Duration `json:"mcp_server_shutdown_timeout" env:"MCP_SERVER_SHUTDOWN_TIMEOUT,default=10s"`

	// MCP server authentication (HTTP transport only)
	MCPAuthEnabled      bool   `json:"mcp_auth_enabled" env:"MCP_AUTH_ENABLED,default=false"`
	MCPAuthSharedSecret string `json:"-" env:"MCP_AUTH_SHARED_SECRET"`
	OIDCIssuer          string `json:"oidc_issuer" env:"OIDC_ISSUER"`
	OIDCClientID        string `json:"oidc_client_id" env:"OIDC_CLIENT_ID"`

	// Observability
	OTELEnabled      bool    `json:"otel_enabled" env:"OTEL_ENABLED,default=false"`
	OTELEndpoint     string  `json:"otel_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTELProtocol     string  `json:"otel_protocol" env:"OTEL_EXPORTER_OTLP_PROTOCOL,default=http"`
	OTELInsecure     bool    `json:"otel_insecure" env:"OTEL_EXPORTER_OTLP_INSECURE,default=false"`
	OTELSamplingRate float64 `json:"otel_sampling_rate" env:"OTEL_SAMPLING_RATE,default=1.0"`
	OTELServiceName  string  `json:"otel_service_name" env:"OTEL_SERVICE_NAME,default=mcp-omnisearch"`
	Environment      string  `json:"environment" env:"ENVIRONMENT,default=development"`

	// Local invocation metrics (SQLite)
	MetricsEnabled bool `json:"metrics_enabled" env:"OMNISEARCH_METRICS_ENABLED,default=true"`
}

// ProviderOverride tunes one provider from the overrides file.
type ProviderOverride struct {
	Disabled           bool   `yaml:"disabled" json:"disabled"`
	MaxResults         int    `yaml:"max_results" json:"max_results"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute" json:"rate_limit_per_minute"`
	Endpoint           string `yaml:"endpoint" json:"endpoint"`
}

// Timeout returns the soft deadline for one fan-out run; zero means
// wait for every provider.
func (c *Config) Timeout() time.Duration {
	if c.TimeoutMS <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// RetryDelay returns the base backoff delay between retry attempts.
func (c *Config) RetryDelay() time.Duration {
	if c.RetryDelayMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.RetryDelayMS) * time.Millisecond
}

// Heartbeat returns the progress heartbeat interval.
func (c *Config) Heartbeat() time.Duration {
	if c.HeartbeatSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.HeartbeatSeconds) * time.Second
}

// CacheTTL returns how long cached provider results stay valid.
func (c *Config) CacheTTL() time.Duration {
	if c.CacheTTLMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// ProviderDisabled reports whether the overrides file turned the named
// provider off.
func (c *Config) ProviderDisabled(name string) bool {
	if c.ProviderOverrides == nil {
		return false
	}
	return c.ProviderOverrides[name].Disabled
}
