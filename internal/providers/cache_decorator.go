package providers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"

	"github.com/cjangrist/mcp-omnisearch/internal/types"
)

// ResultCache is the slice of the cache store this package needs.
// internal/cache implements it over SQLite.
type ResultCache interface {
	Get(ctx context.Context, provider, key string) ([]types.SearchResult, bool, error)
	Put(ctx context.Context, provider, key string, items []types.SearchResult) error
}

type cachedProvider struct {
	Provider
	cache  ResultCache
	logger *log.Logger
}

// withCache wraps p with a read-through result cache. Cache failures
// never fail the call: a broken read falls through to the provider and
// a broken write only logs.
func withCache(p Provider, cache ResultCache, logger *log.Logger) Provider {
	if cache == nil {
		return p
	}
	return &cachedProvider{Provider: p, cache: cache, logger: logger}
}

func (p *cachedProvider) Search(ctx context.Context, query string, params types.QueryParams) ([]types.SearchResult, error) {
	key := cacheKey(query, params)

	items, hit, err := p.cache.Get(ctx, p.Name(), key)
	if err != nil {
		p.logger.Printf("cache read failed provider=%s err=%v", p.Name(), err)
	} else if hit {
		return items, nil
	}

	items, err = p.Provider.Search(ctx, query, params)
	if err != nil {
		return nil, err
	}
	if err := p.cache.Put(ctx, p.Name(), key, items); err != nil {
		p.logger.Printf("cache write failed provider=%s err=%v", p.Name(), err)
	}
	return items, nil
}

// cacheKey hashes the full query shape so different result counts or
// languages never collide.
func cacheKey(query string, params types.QueryParams) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", query, params.MaxResults, params.Language)))
	return hex.EncodeToString(sum[:])
}
