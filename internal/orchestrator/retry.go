package orchestrator

import (
	"context"
	"time"

	"github.com/cjangrist/mcp-omnisearch/internal/types"
)

// Operation is one provider invocation: the deferred computation a
// ProviderTask runs. Adapters in answer mode return the synthesized
// answer as the first item and its citations after it.
type Operation func(ctx context.Context) ([]types.SearchResult, error)

// Invoker retries a failed Operation with exponential backoff. Every
// error is treated as retryable; the attempt budget alone bounds the
// work. Repeating the operation repeats whatever side effects it has.
type Invoker struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// Invoke runs op up to MaxRetries+1 times. The delay before retry i is
// BaseDelay doubled per failed attempt (BaseDelay, 2x, 4x, ...). On
// exhaustion the last error is returned wrapped in RetryExhaustedError.
func (inv Invoker) Invoke(ctx context.Context, provider string, op Operation) ([]types.SearchResult, error) {
	maxRetries := inv.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	baseDelay := inv.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}

	attempts := maxRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		items, err := op(ctx)
		if err == nil {
			return items, nil
		}
		lastErr = err
		if attempt == maxRetries {
			break
		}
		backoff := baseDelay << attempt
		if err := sleepWithContext(ctx, backoff); err != nil {
			return nil, err
		}
	}

	return nil, &types.RetryExhaustedError{Provider: provider, Attempts: attempts, Err: lastErr}
}

// sleepWithContext sleeps for the given duration honoring cancellation.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
