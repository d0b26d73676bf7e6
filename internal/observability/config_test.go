package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/cjangrist/mcp-omnisearch/internal/types"
)

func TestInitExportsToOTLPHTTP(t *testing.T) {
	var traceRequests atomic.Int32
	var metricRequests atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/traces":
			traceRequests.Add(1)
		case "/v1/metrics":
			metricRequests.Add(1)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(server.Close)

	cfg := &types.Config{
		OTELEnabled:      true,
		OTELServiceName:  "omnisearch-test",
		OTELEndpoint:     server.URL,
		OTELProtocol:     "http",
		OTELSamplingRate: 1.0,
		Environment:      "test",
	}

	shutdown, err := Init(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	_, span := otel.Tracer("omnisearch/test").Start(ctx, "integration-span")
	span.End()

	meter := otel.Meter("omnisearch/test")
	counter, err := meter.Int64Counter("omnisearch.test.counter", metric.WithDescription("test counter"))
	require.NoError(t, err)
	counter.Add(ctx, 1)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, shutdown(shutdownCtx))

	require.GreaterOrEqual(t, traceRequests.Load(), int32(1), "no trace export received")
	require.GreaterOrEqual(t, metricRequests.Load(), int32(1), "no metric export received")
}

func TestValidateDefaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "mcp-omnisearch", cfg.ServiceName)
	assert.Equal(t, "http/protobuf", cfg.ExporterProtocol)
	assert.Equal(t, 60*time.Second, cfg.MetricExportInterval)
}

func TestValidateEnabledRequiresEndpoint(t *testing.T) {
	t.Parallel()

	cfg := &Config{Enabled: true, ExporterProtocol: "http"}
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsBadProtocol(t *testing.T) {
	t.Parallel()

	cfg := &Config{Enabled: true, ExporterEndpoint: "http://collector:4318", ExporterProtocol: "thrift"}
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsOutOfRangeSamplingRate(t *testing.T) {
	t.Parallel()

	cfg := &Config{SamplingRate: 1.5}
	require.Error(t, cfg.Validate())
}

func TestValidateGRPCEndpointForms(t *testing.T) {
	t.Parallel()

	valid := &Config{Enabled: true, ExporterProtocol: "grpc", ExporterEndpoint: "collector:4317"}
	require.NoError(t, valid.Validate())

	withScheme := &Config{Enabled: true, ExporterProtocol: "grpc", ExporterEndpoint: "grpcs://collector:4317"}
	require.NoError(t, withScheme.Validate())

	bare := &Config{Enabled: true, ExporterProtocol: "grpc", ExporterEndpoint: "collector"}
	require.Error(t, bare.Validate())
}

func TestNormalizeOTLPHTTPPath(t *testing.T) {
	t.Parallel()

	testcases := []struct {
		name     string
		endpoint string
		suffix   string
		want     string
		wantErr  bool
	}{
		{
			name:     "no path appends suffix",
			endpoint: "https://collector:4318",
			suffix:   "/v1/metrics",
			want:     "https://collector:4318/v1/metrics",
		},
		{
			name:     "http scheme preserved",
			endpoint: "http://localhost:4318",
			suffix:   "/v1/traces",
			want:     "http://localhost:4318/v1/traces",
		},
		{
			name:     "otlp prefix gets metrics suffix",
			endpoint: "https://example.com/otlp",
			suffix:   "/v1/metrics",
			want:     "https://example.com/otlp/v1/metrics",
		},
		{
			name:     "trailing slash ignored",
			endpoint: "https://example.com/otlp/",
			suffix:   "/v1/metrics",
			want:     "https://example.com/otlp/v1/metrics",
		},
		{
			name:     "suffix already present",
			endpoint: "https://example.com/otlp/v1/metrics",
			suffix:   "/v1/metrics",
			want:     "https://example.com/otlp/v1/metrics",
		},
		{
			name:     "query string preserved",
			endpoint: "https://example.com/otlp?token=abc",
			suffix:   "/v1/traces",
			want:     "https://example.com/otlp/v1/traces?token=abc",
		},
		{
			name:     "empty endpoint error",
			endpoint: "",
			suffix:   "/v1/metrics",
			wantErr:  true,
		},
	}

	for _, tt := range testcases {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeOTLPHTTPPath(tt.endpoint, tt.suffix)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error but got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
