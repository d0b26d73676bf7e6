package providers

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjangrist/mcp-omnisearch/internal/types"
)

type countingProvider struct {
	name  string
	items []types.SearchResult
	calls int
}

func (p *countingProvider) Name() string { return p.name }
func (p *countingProvider) Kind() Kind   { return KindSearch }

func (p *countingProvider) Search(ctx context.Context, query string, params types.QueryParams) ([]types.SearchResult, error) {
	p.calls++
	return p.items, nil
}

type mapCache struct {
	entries map[string][]types.SearchResult
	getErr  error
	putErr  error
	puts    int
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string][]types.SearchResult{}}
}

func (c *mapCache) Get(ctx context.Context, provider, key string) ([]types.SearchResult, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	items, ok := c.entries[provider+"/"+key]
	return items, ok, nil
}

func (c *mapCache) Put(ctx context.Context, provider, key string, items []types.SearchResult) error {
	c.puts++
	if c.putErr != nil {
		return c.putErr
	}
	c.entries[provider+"/"+key] = items
	return nil
}

func newTestCacheLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestCachedProviderServesSecondCallFromCache(t *testing.T) {
	t.Parallel()

	inner := &countingProvider{
		name:  "tavily",
		items: []types.SearchResult{{Title: "Go", URL: "https://go.dev", SourceProvider: "tavily"}},
	}
	cache := newMapCache()
	p := withCache(inner, cache, newTestCacheLogger())

	first, err := p.Search(context.Background(), "golang", types.QueryParams{MaxResults: 5})
	require.NoError(t, err)
	second, err := p.Search(context.Background(), "golang", types.QueryParams{MaxResults: 5})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls, "second call should be a cache hit")
	assert.Equal(t, 1, cache.puts)
}

func TestCachedProviderKeySpansQueryShape(t *testing.T) {
	t.Parallel()

	inner := &countingProvider{name: "brave", items: []types.SearchResult{{URL: "https://example.com"}}}
	p := withCache(inner, newMapCache(), newTestCacheLogger())

	_, err := p.Search(context.Background(), "golang", types.QueryParams{MaxResults: 5})
	require.NoError(t, err)
	_, err = p.Search(context.Background(), "golang", types.QueryParams{MaxResults: 10})
	require.NoError(t, err)
	_, err = p.Search(context.Background(), "golang", types.QueryParams{MaxResults: 10, Language: "ja"})
	require.NoError(t, err)

	assert.Equal(t, 3, inner.calls, "different max_results or language must not share entries")
}

func TestCachedProviderReadErrorFallsThrough(t *testing.T) {
	t.Parallel()

	inner := &countingProvider{
		name:  "kagi",
		items: []types.SearchResult{{URL: "https://kagi.com"}},
	}
	cache := newMapCache()
	cache.getErr = errors.New("database is locked")
	p := withCache(inner, cache, newTestCacheLogger())

	items, err := p.Search(context.Background(), "golang", types.QueryParams{})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedProviderWriteErrorIsBestEffort(t *testing.T) {
	t.Parallel()

	inner := &countingProvider{
		name:  "tavily",
		items: []types.SearchResult{{URL: "https://go.dev"}},
	}
	cache := newMapCache()
	cache.putErr = errors.New("disk full")
	p := withCache(inner, cache, newTestCacheLogger())

	items, err := p.Search(context.Background(), "golang", types.QueryParams{})
	require.NoError(t, err)
	assert.Len(t, items, 1)

	// With the write failing every call hits the provider again.
	_, err = p.Search(context.Background(), "golang", types.QueryParams{})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestWithCacheNilCacheReturnsProviderUnchanged(t *testing.T) {
	t.Parallel()

	inner := &countingProvider{name: "brave"}
	assert.Same(t, inner, withCache(inner, nil, newTestCacheLogger()))
}
