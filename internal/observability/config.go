package observability

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cjangrist/mcp-omnisearch/internal/types"
)

const (
	defaultServiceName     = "mcp-omnisearch"
	protocolHTTP           = "http"
	protocolHTTPProtobuf   = "http/protobuf"
	protocolGRPC           = "grpc"
	resourceServiceNameKey = "service.name"
	resourceEnvironmentKey = "deployment.environment"
)

// Config keeps OpenTelemetry runtime settings resolved from the global
// configuration.
type Config struct {
	Enabled              bool
	ServiceName          string
	Environment          string
	ExporterEndpoint     string
	ExporterProtocol     string
	Insecure             bool
	SamplingRate         float64
	MetricExportInterval time.Duration
}

// LoadConfig resolves observability specific configuration from the root config.
func LoadConfig(cfg *types.Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("observability: nil root configuration provided")
	}

	otelCfg := &Config{
		Enabled:          cfg.OTELEnabled,
		ServiceName:      strings.TrimSpace(cfg.OTELServiceName),
		Environment:      strings.TrimSpace(cfg.Environment),
		ExporterEndpoint: strings.TrimSpace(cfg.OTELEndpoint),
		ExporterProtocol: strings.TrimSpace(cfg.OTELProtocol),
		Insecure:         cfg.OTELInsecure,
		SamplingRate:     cfg.OTELSamplingRate,
	}

	if err := otelCfg.Validate(); err != nil {
		return nil, err
	}

	return otelCfg, nil
}

// Validate ensures the configuration has all required properties before
// initialization. Defaults are normalised in place.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("observability: config is nil")
	}

	if c.ServiceName == "" {
		c.ServiceName = defaultServiceName
	}

	c.ExporterProtocol = strings.ToLower(strings.TrimSpace(c.ExporterProtocol))
	switch c.ExporterProtocol {
	case "", protocolHTTP:
		c.ExporterProtocol = protocolHTTPProtobuf
	}

	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("observability: sampling rate must be between 0 and 1")
	}

	if c.MetricExportInterval <= 0 {
		c.MetricExportInterval = 60 * time.Second
	}

	if !c.Enabled {
		return nil
	}

	if c.ExporterEndpoint == "" {
		return fmt.Errorf("observability: OTLP exporter endpoint is required when OpenTelemetry is enabled")
	}

	switch c.ExporterProtocol {
	case protocolHTTPProtobuf:
		if !strings.HasPrefix(c.ExporterEndpoint, "http://") && !strings.HasPrefix(c.ExporterEndpoint, "https://") {
			return fmt.Errorf("observability: OTLP exporter endpoint must include http or https scheme when using http/protobuf protocol")
		}

		parsed, err := url.Parse(c.ExporterEndpoint)
		if err != nil {
			return fmt.Errorf("observability: invalid OTLP exporter endpoint: %w", err)
		}
		if parsed.Host == "" {
			return fmt.Errorf("observability: OTLP exporter endpoint must include a host when using http/protobuf protocol")
		}
	case protocolGRPC:
		if strings.Contains(c.ExporterEndpoint, "://") {
			parsed, err := url.Parse(c.ExporterEndpoint)
			if err != nil {
				return fmt.Errorf("observability: invalid OTLP exporter endpoint for grpc protocol: %w", err)
			}
			if parsed.Host == "" {
				return fmt.Errorf("observability: OTLP exporter endpoint must include a host when scheme is provided for grpc protocol")
			}
		} else if !strings.Contains(c.ExporterEndpoint, ":") {
			return fmt.Errorf("observability: OTLP exporter endpoint should include host:port when using grpc protocol")
		}
	default:
		return fmt.Errorf("observability: unsupported OTLP exporter protocol %q", c.ExporterProtocol)
	}

	return nil
}

// normalizeOTLPHTTPPath ensures that the given OTLP HTTP endpoint includes the expected signal suffix.
// When the endpoint already ends with the suffix (e.g. /v1/metrics) it is returned unchanged.
// If the endpoint has no path component, the suffix is appended.
// The function never removes existing query parameters or fragments.
func normalizeOTLPHTTPPath(endpoint string, suffix string) (string, error) {
	if strings.TrimSpace(endpoint) == "" {
		return "", fmt.Errorf("endpoint cannot be empty")
	}

	normalizedSuffix := "/" + strings.Trim(strings.TrimSpace(suffix), "/")

	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}

	trimmedPath := strings.TrimSuffix(parsed.Path, "/")
	switch {
	case trimmedPath == "":
		parsed.Path = normalizedSuffix
	case strings.HasSuffix(trimmedPath, normalizedSuffix):
		parsed.Path = trimmedPath
	default:
		parsed.Path = trimmedPath + normalizedSuffix
	}

	return parsed.String(), nil
}

// parseGRPCEndpoint strips an optional scheme from a gRPC endpoint and
// reports whether the connection should be insecure.
func parseGRPCEndpoint(raw string) (string, bool, error) {
	endpoint := strings.TrimSpace(raw)
	if endpoint == "" {
		return "", false, fmt.Errorf("endpoint cannot be empty")
	}

	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return "", false, err
		}
		if parsed.Host == "" {
			return "", false, fmt.Errorf("endpoint must include host")
		}
		switch parsed.Scheme {
		case "http", "grpc":
			return parsed.Host, true, nil
		case "https", "grpcs":
			return parsed.Host, false, nil
		default:
			return "", false, fmt.Errorf("unsupported scheme %q", parsed.Scheme)
		}
	}

	// Without scheme treat connection as insecure and expect host:port.
	return endpoint, true, nil
}
