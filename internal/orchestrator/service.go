package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/cjangrist/mcp-omnisearch/internal/types"
)

// TargetSource supplies the enabled providers for one mode as ready to
// run tasks, in configuration order. The provider registry implements
// it by binding the query into each adapter call.
type TargetSource interface {
	SearchTargets(query string, params types.QueryParams) []ProviderTask
	AnswerTargets(query string, params types.QueryParams) []ProviderTask
}

// ServiceConfig carries the orchestration policy, applied uniformly to
// search and answer mode. MaxRetries 0 disables retries; a zero
// RetryDelay falls back to the 500 ms base.
type ServiceConfig struct {
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
	Heartbeat  time.Duration
	MaxResults int
}

// SearchOptions tunes a single request.
type SearchOptions struct {
	// Providers restricts the fan-out to the named subset; empty means
	// every enabled provider.
	Providers []string
	// MaxResults caps per-provider result counts; 0 uses the service
	// default.
	MaxResults int
	Language   string
	// Timeout overrides the service default when non-nil; a value of 0
	// waits unconditionally for all providers.
	Timeout *time.Duration
	// Progress receives dispatcher events for this request only.
	Progress ProgressFunc
}

// Service drives one request end to end: build tasks, fan out with
// retry, collect outcomes, post-process.
type Service struct {
	targets TargetSource
	fusion  *FusionEngine
	config  ServiceConfig
	logger  *log.Logger
}

// SetLogOutput redirects service logs, used by stdio transports to
// keep stdout clean for the protocol.
func (s *Service) SetLogOutput(w io.Writer) {
	s.logger.SetOutput(w)
}

// NewService creates the orchestration service.
func NewService(targets TargetSource, config ServiceConfig) (*Service, error) {
	if targets == nil {
		return nil, fmt.Errorf("target source is required")
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 500 * time.Millisecond
	}
	if config.MaxResults <= 0 {
		config.MaxResults = 10
	}
	return &Service{
		targets: targets,
		fusion:  NewFusionEngine(),
		config:  config,
		logger:  log.New(os.Stdout, "[orchestrator] ", log.LstdFlags),
	}, nil
}

// Search fans the query out to every enabled search provider and fuses
// the ranked lists. Partial provider failure still succeeds; the
// failures ride along in the summary.
func (s *Service) Search(ctx context.Context, query string, opts SearchOptions) (*types.RequestSummary, error) {
	query, err := normalizeQuery(query)
	if err != nil {
		return nil, err
	}

	tasks := filterTasks(s.targets.SearchTargets(query, s.queryParams(opts)), opts.Providers)
	requestID := uuid.NewString()
	start := time.Now()

	result, err := s.dispatch(ctx, tasks, opts)
	if err != nil {
		return nil, err
	}

	summary := &types.RequestSummary{
		RequestID:     requestID,
		Query:         query,
		RankedResults: s.fusion.Merge(result.Outcomes),
		ElapsedMS:     time.Since(start).Milliseconds(),
	}
	fillOutcomeFields(result,
		&summary.ProvidersQueried, &summary.ProvidersSucceeded,
		&summary.ProvidersFailed, &summary.ProvidersTimedOut)

	s.logger.Printf("search complete request_id=%s query=%q providers=%d succeeded=%d failed=%d timed_out=%d results=%d elapsed_ms=%d",
		requestID, query, len(summary.ProvidersQueried), len(summary.ProvidersSucceeded),
		len(summary.ProvidersFailed), len(summary.ProvidersTimedOut), len(summary.RankedResults), summary.ElapsedMS)
	return summary, nil
}

// Answer fans the query out to every enabled AI answer provider and
// collects one answer-with-citations entry per success.
func (s *Service) Answer(ctx context.Context, query string, opts SearchOptions) (*types.AnswerSummary, error) {
	query, err := normalizeQuery(query)
	if err != nil {
		return nil, err
	}

	tasks := filterTasks(s.targets.AnswerTargets(query, s.queryParams(opts)), opts.Providers)
	requestID := uuid.NewString()
	start := time.Now()

	result, err := s.dispatch(ctx, tasks, opts)
	if err != nil {
		return nil, err
	}

	summary := &types.AnswerSummary{
		RequestID: requestID,
		Query:     query,
		Answers:   BuildAnswers(result.Outcomes),
		ElapsedMS: time.Since(start).Milliseconds(),
	}
	fillOutcomeFields(result,
		&summary.ProvidersQueried, &summary.ProvidersSucceeded,
		&summary.ProvidersFailed, &summary.ProvidersTimedOut)

	s.logger.Printf("answer complete request_id=%s query=%q providers=%d succeeded=%d failed=%d timed_out=%d answers=%d elapsed_ms=%d",
		requestID, query, len(summary.ProvidersQueried), len(summary.ProvidersSucceeded),
		len(summary.ProvidersFailed), len(summary.ProvidersTimedOut), len(summary.Answers), summary.ElapsedMS)
	return summary, nil
}

// dispatch wraps every task in the retry policy and runs the fan-out.
func (s *Service) dispatch(ctx context.Context, tasks []ProviderTask, opts SearchOptions) (*RunResult, error) {
	invoker := Invoker{MaxRetries: s.config.MaxRetries, BaseDelay: s.config.RetryDelay}
	wrapped := make([]ProviderTask, len(tasks))
	for i, task := range tasks {
		task := task
		wrapped[i] = ProviderTask{
			Name: task.Name,
			Operation: func(ctx context.Context) ([]types.SearchResult, error) {
				return invoker.Invoke(ctx, task.Name, task.Operation)
			},
		}
	}

	timeout := s.config.Timeout
	if opts.Timeout != nil {
		timeout = *opts.Timeout
	}

	dispatcher := NewDispatcher(opts.Progress)
	dispatcher.SetHeartbeatInterval(s.config.Heartbeat)
	dispatcher.logger = s.logger
	return dispatcher.Run(ctx, wrapped, timeout)
}

func (s *Service) queryParams(opts SearchOptions) types.QueryParams {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = s.config.MaxResults
	}
	if maxResults > 50 {
		maxResults = 50
	}
	return types.QueryParams{MaxResults: maxResults, Language: opts.Language}
}

// normalizeQuery trims and NFC-normalizes the query so equivalent
// Unicode compositions hit provider APIs (and the cache) identically.
func normalizeQuery(query string) (string, error) {
	query = strings.TrimSpace(norm.NFC.String(query))
	if query == "" {
		return "", fmt.Errorf("query cannot be empty")
	}
	return query, nil
}

// filterTasks keeps only the named providers when a subset was
// requested. Unknown names are ignored rather than rejected.
func filterTasks(tasks []ProviderTask, only []string) []ProviderTask {
	if len(only) == 0 {
		return tasks
	}
	wanted := make(map[string]bool, len(only))
	for _, name := range only {
		wanted[strings.ToLower(strings.TrimSpace(name))] = true
	}
	filtered := make([]ProviderTask, 0, len(tasks))
	for _, task := range tasks {
		if wanted[strings.ToLower(task.Name)] {
			filtered = append(filtered, task)
		}
	}
	return filtered
}

// fillOutcomeFields partitions the ledger into the summary's provider
// lists; each provider lands in exactly one of them.
func fillOutcomeFields(result *RunResult, queried, succeeded *[]string, failed *[]types.ProviderFailure, timedOut *[]string) {
	*queried = make([]string, 0, len(result.Outcomes))
	*succeeded = make([]string, 0, len(result.Outcomes))
	*failed = make([]types.ProviderFailure, 0)
	for _, outcome := range result.Outcomes {
		*queried = append(*queried, outcome.Provider)
		switch outcome.Status {
		case StatusFulfilled:
			*succeeded = append(*succeeded, outcome.Provider)
		case StatusFailed:
			*failed = append(*failed, types.ProviderFailure{
				Provider: outcome.Provider,
				Error:    outcome.Err.Error(),
			})
		}
	}
	*timedOut = result.TimedOutProviders
}
