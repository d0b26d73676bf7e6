package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/cjangrist/mcp-omnisearch/internal/metrics"
	"github.com/cjangrist/mcp-omnisearch/internal/orchestrator"
	"github.com/cjangrist/mcp-omnisearch/internal/providers"
	"github.com/cjangrist/mcp-omnisearch/internal/types"
)

var mcpTracer = otel.Tracer("omnisearch/mcpserver")

// SearchService is the slice of the orchestrator the tools call.
type SearchService interface {
	Search(ctx context.Context, query string, opts orchestrator.SearchOptions) (*types.RequestSummary, error)
	Answer(ctx context.Context, query string, opts orchestrator.SearchOptions) (*types.AnswerSummary, error)
}

// StatusSource reports provider enablement and health.
type StatusSource interface {
	Known() []providers.ProviderInfo
	CheckAll(ctx context.Context) []providers.ProviderStatus
}

// ToolHandler implements the MCP tool calls on top of the orchestrator
// and the provider registry.
type ToolHandler struct {
	service SearchService
	status  StatusSource
	logger  *log.Logger
}

// NewToolHandler creates the handler set.
func NewToolHandler(service SearchService, status StatusSource) *ToolHandler {
	return &ToolHandler{
		service: service,
		status:  status,
		logger:  log.New(os.Stdout, "[tools] ", log.LstdFlags),
	}
}

// SetLogOutput redirects handler logs, used by stdio mode to keep
// stdout clean for the protocol.
func (th *ToolHandler) SetLogOutput(w io.Writer) {
	th.logger.SetOutput(w)
}

// fanoutArgs are the omni_search and omni_answer tool arguments.
type fanoutArgs struct {
	Query      string   `json:"query"`
	Providers  []string `json:"providers"`
	MaxResults int      `json:"max_results"`
	Language   string   `json:"language"`
	// TimeoutMS distinguishes absent (nil, use server default) from an
	// explicit 0 (wait for every provider).
	TimeoutMS *int `json:"timeout_ms"`
}

type statusArgs struct {
	Check bool `json:"check"`
}

// HandleOmniSearch runs the search fan-out and returns the fused
// ranked list as indented JSON.
func (th *ToolHandler) HandleOmniSearch(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	metrics.RecordInvocation(metrics.ModeMCP)

	ctx, span := mcpTracer.Start(ctx, "mcpserver.omni_search")
	defer span.End()

	metricAttrs := []attribute.KeyValue{attribute.String("mcp.tool.name", ToolOmniSearch)}
	start := time.Now()
	errType := ""
	defer func() {
		recordMCPMetrics(ctx, metricAttrs, time.Since(start), errType)
	}()
	annotateCaller(ctx, span, &metricAttrs)

	args, err := parseFanoutArgs(req)
	if err != nil {
		errType = "invalid_arguments"
		span.RecordError(err)
		span.SetStatus(codes.Error, errType)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("mcp.query", truncateForAttribute(args.Query)),
		attribute.Int("mcp.search.max_results", args.MaxResults),
		attribute.Int("mcp.search.provider_filters", len(args.Providers)),
	)

	summary, err := th.service.Search(ctx, args.Query, searchOptions(ctx, req, args))
	if err != nil {
		errType = "search_failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, errType)
		return nil, err
	}

	recordOutcomes(summary.ProvidersSucceeded, summary.ProvidersFailed, summary.ProvidersTimedOut)
	span.SetAttributes(
		attribute.Int("mcp.search.providers_queried", len(summary.ProvidersQueried)),
		attribute.Int("mcp.search.providers_failed", len(summary.ProvidersFailed)),
		attribute.Int("mcp.search.results", len(summary.RankedResults)),
		attribute.Int64("mcp.search.elapsed_ms", summary.ElapsedMS),
	)
	span.SetStatus(codes.Ok, "search_completed")

	th.logger.Printf("omni_search request_id=%s providers=%d results=%d elapsed_ms=%d",
		summary.RequestID, len(summary.ProvidersQueried), len(summary.RankedResults), summary.ElapsedMS)
	return textResult(summary)
}

// HandleOmniAnswer runs the answer fan-out and returns one cited
// answer per successful provider.
func (th *ToolHandler) HandleOmniAnswer(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	metrics.RecordInvocation(metrics.ModeMCP)

	ctx, span := mcpTracer.Start(ctx, "mcpserver.omni_answer")
	defer span.End()

	metricAttrs := []attribute.KeyValue{attribute.String("mcp.tool.name", ToolOmniAnswer)}
	start := time.Now()
	errType := ""
	defer func() {
		recordMCPMetrics(ctx, metricAttrs, time.Since(start), errType)
	}()
	annotateCaller(ctx, span, &metricAttrs)

	args, err := parseFanoutArgs(req)
	if err != nil {
		errType = "invalid_arguments"
		span.RecordError(err)
		span.SetStatus(codes.Error, errType)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("mcp.query", truncateForAttribute(args.Query)),
		attribute.Int("mcp.search.provider_filters", len(args.Providers)),
	)

	summary, err := th.service.Answer(ctx, args.Query, searchOptions(ctx, req, args))
	if err != nil {
		errType = "answer_failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, errType)
		return nil, err
	}

	recordOutcomes(summary.ProvidersSucceeded, summary.ProvidersFailed, summary.ProvidersTimedOut)
	span.SetAttributes(
		attribute.Int("mcp.answer.providers_queried", len(summary.ProvidersQueried)),
		attribute.Int("mcp.answer.answers", len(summary.Answers)),
		attribute.Int64("mcp.answer.elapsed_ms", summary.ElapsedMS),
	)
	span.SetStatus(codes.Ok, "answer_completed")

	th.logger.Printf("omni_answer request_id=%s providers=%d answers=%d elapsed_ms=%d",
		summary.RequestID, len(summary.ProvidersQueried), len(summary.Answers), summary.ElapsedMS)
	return textResult(summary)
}

// providerStatusResponse is the provider_status tool payload.
type providerStatusResponse struct {
	Providers []providers.ProviderInfo   `json:"providers"`
	Health    []providers.ProviderStatus `json:"health,omitempty"`
}

// HandleProviderStatus lists provider configuration state and
// optionally probes the enabled providers.
func (th *ToolHandler) HandleProviderStatus(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	metrics.RecordInvocation(metrics.ModeMCP)

	ctx, span := mcpTracer.Start(ctx, "mcpserver.provider_status")
	defer span.End()

	metricAttrs := []attribute.KeyValue{attribute.String("mcp.tool.name", ToolProviderStatus)}
	start := time.Now()
	errType := ""
	defer func() {
		recordMCPMetrics(ctx, metricAttrs, time.Since(start), errType)
	}()

	var args statusArgs
	if req != nil && req.Params != nil && req.Params.Arguments != nil {
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			errType = "invalid_arguments"
			span.RecordError(err)
			span.SetStatus(codes.Error, errType)
			return nil, fmt.Errorf("failed to unmarshal tool arguments: %w", err)
		}
	}

	response := providerStatusResponse{Providers: th.status.Known()}
	if args.Check {
		response.Health = th.status.CheckAll(ctx)
	}
	span.SetAttributes(
		attribute.Int("mcp.status.known", len(response.Providers)),
		attribute.Bool("mcp.status.checked", args.Check),
	)
	span.SetStatus(codes.Ok, "status_completed")

	return textResult(response)
}

// parseFanoutArgs unmarshals and validates the shared tool arguments.
func parseFanoutArgs(req *mcp.CallToolRequest) (*fanoutArgs, error) {
	var args fanoutArgs
	if req != nil && req.Params != nil && req.Params.Arguments != nil {
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tool arguments: %w", err)
		}
	}
	if strings.TrimSpace(args.Query) == "" {
		return nil, fmt.Errorf("query parameter is required")
	}
	if args.TimeoutMS != nil && *args.TimeoutMS < 0 {
		return nil, fmt.Errorf("timeout_ms cannot be negative")
	}
	return &args, nil
}

// searchOptions maps tool arguments onto orchestrator options, wiring
// progress notifications when the client sent a progress token.
func searchOptions(ctx context.Context, req *mcp.CallToolRequest, args *fanoutArgs) orchestrator.SearchOptions {
	opts := orchestrator.SearchOptions{
		Providers:  args.Providers,
		MaxResults: args.MaxResults,
		Language:   args.Language,
		Progress:   progressFunc(ctx, req),
	}
	if args.TimeoutMS != nil {
		timeout := time.Duration(*args.TimeoutMS) * time.Millisecond
		opts.Timeout = &timeout
	}
	return opts
}

// progressFunc forwards dispatcher events as MCP progress
// notifications. Returns nil when the client did not ask for progress.
func progressFunc(ctx context.Context, req *mcp.CallToolRequest) orchestrator.ProgressFunc {
	if req == nil || req.Params == nil || req.Session == nil {
		return nil
	}
	token := req.Params.GetProgressToken()
	if token == nil {
		return nil
	}
	return func(event orchestrator.ProgressEvent) {
		notifyParams := &mcp.ProgressNotificationParams{
			ProgressToken: token,
			Progress:      float64(event.Done),
			Total:         float64(event.Total),
			Message:       event.Message(),
		}
		_ = req.Session.NotifyProgress(ctx, notifyParams)
	}
}

// recordOutcomes persists one counter bump per provider partition.
func recordOutcomes(succeeded []string, failed []types.ProviderFailure, timedOut []string) {
	for _, name := range succeeded {
		metrics.RecordProviderOutcome(name, metrics.OutcomeFulfilled)
	}
	for _, failure := range failed {
		metrics.RecordProviderOutcome(failure.Provider, metrics.OutcomeFailed)
	}
	for _, name := range timedOut {
		metrics.RecordProviderOutcome(name, metrics.OutcomeTimedOut)
	}
}

func textResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize response: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil
}

// annotateCaller copies auth identity from the request context onto
// the span and the metric attributes.
func annotateCaller(ctx context.Context, span interface{ SetAttributes(...attribute.KeyValue) }, metricAttrs *[]attribute.KeyValue) {
	if method := getAuthMethodFromContext(ctx); method != "" {
		span.SetAttributes(attribute.String("mcp.auth.method", method))
		*metricAttrs = append(*metricAttrs, attribute.String("mcp.auth.method", method))
	}
	if subject := getAuthSubjectFromContext(ctx); subject != "" {
		span.SetAttributes(attribute.String("mcp.auth.subject", subject))
	}
}

func truncateForAttribute(input string) string {
	const maxAttributeLength = 120
	trimmed := strings.TrimSpace(input)
	if len([]rune(trimmed)) <= maxAttributeLength {
		return trimmed
	}
	runes := []rune(trimmed)
	return string(runes[:maxAttributeLength]) + "…"
}

var (
	mcpMetricsOnce      sync.Once
	mcpRequestCounter   metric.Int64Counter
	mcpErrorCounter     metric.Int64Counter
	mcpLatencyHistogram metric.Float64Histogram
)

func initMCPMetrics() {
	mcpMetricsOnce.Do(func() {
		meter := otel.Meter("omnisearch/mcpserver")

		var err error
		mcpRequestCounter, err = meter.Int64Counter(
			"omnisearch.mcp.requests.total",
			metric.WithDescription("Total MCP tool requests"),
		)
		if err != nil {
			log.Printf("observability: failed to create MCP request counter: %v", err)
		}

		mcpErrorCounter, err = meter.Int64Counter(
			"omnisearch.mcp.errors.total",
			metric.WithDescription("Total MCP tool errors"),
		)
		if err != nil {
			log.Printf("observability: failed to create MCP error counter: %v", err)
		}

		mcpLatencyHistogram, err = meter.Float64Histogram(
			"omnisearch.mcp.response_time",
			metric.WithDescription("MCP tool response time (ms)"),
			metric.WithUnit("ms"),
		)
		if err != nil {
			log.Printf("observability: failed to create MCP latency histogram: %v", err)
		}
	})
}

func recordMCPMetrics(ctx context.Context, attrs []attribute.KeyValue, duration time.Duration, errType string) {
	initMCPMetrics()
	if mcpRequestCounter != nil {
		mcpRequestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if mcpLatencyHistogram != nil {
		mcpLatencyHistogram.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	}
	if errType != "" && mcpErrorCounter != nil {
		errAttrs := make([]attribute.KeyValue, len(attrs)+1)
		copy(errAttrs, attrs)
		errAttrs[len(attrs)] = attribute.String("error.type", errType)
		mcpErrorCounter.Add(ctx, 1, metric.WithAttributes(errAttrs...))
	}
}
