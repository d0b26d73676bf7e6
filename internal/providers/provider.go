package providers

import (
	"context"

	"github.com/cjangrist/mcp-omnisearch/internal/types"
)

// Kind separates web search providers from AI answer providers. The
// two kinds share one call shape; answer providers return the
// synthesized answer as the first item and citations after it.
type Kind string

const (
	KindSearch Kind = "search"
	KindAnswer Kind = "answer"
)

// Provider is one remote search or answer backend. Implementations map
// their vendor's response into the shared result shape and classify
// failures as *types.ProviderError where the vendor surface allows it.
type Provider interface {
	Name() string
	Kind() Kind
	Search(ctx context.Context, query string, params types.QueryParams) ([]types.SearchResult, error)
}

// Pinger is implemented by providers with a cheap reachability call.
// Registry.CheckAll uses it; providers without one are reported as
// configured but unverified.
type Pinger interface {
	Ping(ctx context.Context) error
}

func clampMaxResults(n int) int {
	if n <= 0 {
		return 10
	}
	if n > 50 {
		return 50
	}
	return n
}
