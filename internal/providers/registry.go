package providers

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"golang.org/x/sync/errgroup"

	"github.com/cjangrist/mcp-omnisearch/internal/orchestrator"
	"github.com/cjangrist/mcp-omnisearch/internal/types"
)

// ProviderInfo describes one known provider: whether it joined the
// enumeration and, if not, why.
type ProviderInfo struct {
	Name    string `json:"name"`
	Kind    Kind   `json:"kind"`
	Enabled bool   `json:"enabled"`
	Reason  string `json:"reason,omitempty"`
}

// ProviderStatus is one CheckAll probe result.
type ProviderStatus struct {
	Name    string `json:"name"`
	Kind    Kind   `json:"kind"`
	Checked bool   `json:"checked"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

type registeredProvider struct {
	provider Provider
	pinger   Pinger
	override types.ProviderOverride
}

// Registry is the closed enumeration of enabled providers, resolved
// once at startup from the configuration. A provider joins iff its
// credentials are present and the overrides file has not disabled it.
// The registry hands the orchestrator ready-to-run tasks with the
// query bound in.
type Registry struct {
	search []registeredProvider
	answer []registeredProvider
	infos  []ProviderInfo
	logger *log.Logger
}

// NewRegistry builds the enumeration. A nil cache disables the result
// cache decorator.
func NewRegistry(ctx context.Context, cfg *types.Config, cache ResultCache) (*Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	r := &Registry{logger: log.New(os.Stdout, "[providers] ", log.LstdFlags)}
	limiters := NewLimiters(cfg.RateLimitPerMinute, cfg.RateLimitBurst)
	for name, override := range cfg.ProviderOverrides {
		limiters.SetProviderRate(name, override.RateLimitPerMinute)
	}

	type candidate struct {
		name  string
		kind  Kind
		build func(endpoint string) (Provider, error)
		key   string
	}

	candidates := []candidate{
		{"tavily", KindSearch, func(endpoint string) (Provider, error) {
			return NewTavilyProvider(cfg.TavilyAPIKey, endpoint)
		}, cfg.TavilyAPIKey},
		{"brave", KindSearch, func(endpoint string) (Provider, error) {
			return NewBraveProvider(cfg.BraveAPIKey, endpoint)
		}, cfg.BraveAPIKey},
		{"kagi", KindSearch, func(endpoint string) (Provider, error) {
			return NewKagiProvider(cfg.KagiAPIKey, endpoint)
		}, cfg.KagiAPIKey},
		{"google_cse", KindSearch, func(string) (Provider, error) {
			if cfg.GoogleCSEEngineID == "" {
				return nil, fmt.Errorf("google_cse engine id is required")
			}
			return NewGoogleCSEProvider(ctx, cfg.GoogleCSEAPIKey, cfg.GoogleCSEEngineID)
		}, cfg.GoogleCSEAPIKey},
		{"opensearch", KindSearch, func(endpoint string) (Provider, error) {
			if endpoint == "" {
				endpoint = cfg.OpenSearchEndpoint
			}
			return NewOpenSearchProvider(OpenSearchConfig{
				Endpoint:        endpoint,
				Index:           cfg.OpenSearchIndex,
				Username:        cfg.OpenSearchUsername,
				Password:        cfg.OpenSearchPassword,
				InsecureSkipTLS: cfg.OpenSearchInsecureSkipTLS,
			})
		}, cfg.OpenSearchEndpoint},
		{"perplexity", KindAnswer, func(endpoint string) (Provider, error) {
			return NewPerplexityProvider(cfg.PerplexityAPIKey, endpoint, cfg.PerplexityModel)
		}, cfg.PerplexityAPIKey},
		{"kagi_fastgpt", KindAnswer, func(endpoint string) (Provider, error) {
			return NewFastGPTProvider(cfg.KagiAPIKey, endpoint)
		}, cfg.KagiAPIKey},
		{"gemini", KindAnswer, func(string) (Provider, error) {
			return NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		}, cfg.GeminiAPIKey},
		{"bedrock", KindAnswer, func(string) (Provider, error) {
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
			if err != nil {
				return nil, fmt.Errorf("bedrock: load aws config: %w", err)
			}
			return NewBedrockProvider(awsCfg, cfg.BedrockAnswerModelID)
		}, cfg.BedrockAnswerModelID},
	}

	for _, c := range candidates {
		info := ProviderInfo{Name: c.name, Kind: c.kind}
		switch {
		case strings.TrimSpace(c.key) == "":
			info.Reason = "not configured"
		case cfg.ProviderDisabled(c.name):
			info.Reason = "disabled by overrides file"
		default:
			override := cfg.ProviderOverrides[c.name]
			provider, err := c.build(override.Endpoint)
			if err != nil {
				return nil, fmt.Errorf("configure provider %s: %w", c.name, err)
			}
			r.add(provider, override, limiters, cache)
			info.Enabled = true
		}
		r.infos = append(r.infos, info)
		if info.Enabled {
			r.logger.Printf("provider enabled name=%s kind=%s", info.Name, info.Kind)
		} else {
			r.logger.Printf("provider skipped name=%s kind=%s reason=%q", info.Name, info.Kind, info.Reason)
		}
	}

	return r, nil
}

// add decorates and stores one enabled provider. The raw provider
// keeps serving pings so health checks bypass cache and limiter.
func (r *Registry) add(p Provider, override types.ProviderOverride, limiters *Limiters, cache ResultCache) {
	pinger, _ := p.(Pinger)
	decorated := withCache(withRateLimit(p, limiters), cache, r.logger)
	entry := registeredProvider{provider: decorated, pinger: pinger, override: override}
	if p.Kind() == KindAnswer {
		r.answer = append(r.answer, entry)
		return
	}
	r.search = append(r.search, entry)
}

// SearchProviders returns the enabled search providers in
// configuration order.
func (r *Registry) SearchProviders() []Provider {
	return providersOf(r.search)
}

// AnswerProviders returns the enabled answer providers in
// configuration order.
func (r *Registry) AnswerProviders() []Provider {
	return providersOf(r.answer)
}

func providersOf(entries []registeredProvider) []Provider {
	out := make([]Provider, len(entries))
	for i, e := range entries {
		out[i] = e.provider
	}
	return out
}

// Names lists every enabled provider, search providers first.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.search)+len(r.answer))
	for _, e := range r.search {
		names = append(names, e.provider.Name())
	}
	for _, e := range r.answer {
		names = append(names, e.provider.Name())
	}
	return names
}

// Known lists every provider the registry understands, enabled or not.
func (r *Registry) Known() []ProviderInfo {
	out := make([]ProviderInfo, len(r.infos))
	copy(out, r.infos)
	return out
}

// SetLogOutput redirects registry and decorator logs, used by stdio
// transports to keep stdout clean for the protocol.
func (r *Registry) SetLogOutput(w io.Writer) {
	r.logger.SetOutput(w)
}

// SearchTargets binds the query into one task per enabled search
// provider.
func (r *Registry) SearchTargets(query string, params types.QueryParams) []orchestrator.ProviderTask {
	return bindTasks(r.search, query, params)
}

// AnswerTargets binds the query into one task per enabled answer
// provider.
func (r *Registry) AnswerTargets(query string, params types.QueryParams) []orchestrator.ProviderTask {
	return bindTasks(r.answer, query, params)
}

func bindTasks(entries []registeredProvider, query string, params types.QueryParams) []orchestrator.ProviderTask {
	tasks := make([]orchestrator.ProviderTask, 0, len(entries))
	for _, e := range entries {
		taskParams := params
		if e.override.MaxResults > 0 && taskParams.MaxResults > e.override.MaxResults {
			taskParams.MaxResults = e.override.MaxResults
		}
		provider := e.provider
		tasks = append(tasks, orchestrator.ProviderTask{
			Name: provider.Name(),
			Operation: func(ctx context.Context) ([]types.SearchResult, error) {
				return provider.Search(ctx, query, taskParams)
			},
		})
	}
	return tasks
}

// CheckAll probes every enabled provider concurrently. Probe failures
// land in the report, never in the returned error; providers without a
// cheap ping are reported unchecked.
func (r *Registry) CheckAll(ctx context.Context) []ProviderStatus {
	entries := append(append([]registeredProvider{}, r.search...), r.answer...)
	statuses := make([]ProviderStatus, len(entries))

	g, gCtx := errgroup.WithContext(ctx)
	for i, e := range entries {
		i, e := i, e
		statuses[i] = ProviderStatus{Name: e.provider.Name(), Kind: e.provider.Kind()}
		if e.pinger == nil {
			continue
		}
		g.Go(func() error {
			statuses[i].Checked = true
			if err := e.pinger.Ping(gCtx); err != nil {
				statuses[i].Error = err.Error()
				return nil
			}
			statuses[i].OK = true
			return nil
		})
	}
	_ = g.Wait()
	return statuses
}
