package orchestrator

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjangrist/mcp-omnisearch/internal/types"
)

// eventRecorder collects progress events. The dispatcher emits from the
// Run loop on the caller's goroutine, so no locking is needed.
type eventRecorder struct {
	events []ProgressEvent
}

func (r *eventRecorder) sink(event ProgressEvent) {
	r.events = append(r.events, event)
}

func (r *eventRecorder) byType(name string) []ProgressEvent {
	var out []ProgressEvent
	for _, e := range r.events {
		if e.Event == name {
			out = append(out, e)
		}
	}
	return out
}

func newTestDispatcher(sink ProgressFunc) *Dispatcher {
	d := NewDispatcher(sink)
	d.logger = log.New(io.Discard, "", 0)
	return d
}

func instantTask(name string, items []types.SearchResult) ProviderTask {
	return ProviderTask{
		Name: name,
		Operation: func(ctx context.Context) ([]types.SearchResult, error) {
			return items, nil
		},
	}
}

func failingTask(name string, err error) ProviderTask {
	return ProviderTask{
		Name: name,
		Operation: func(ctx context.Context) ([]types.SearchResult, error) {
			return nil, err
		},
	}
}

// blockingTask waits for its context to be cancelled, standing in for a
// provider that never answers.
func blockingTask(name string) ProviderTask {
	return ProviderTask{
		Name: name,
		Operation: func(ctx context.Context) ([]types.SearchResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
}

func TestDispatcherEmptyTaskList(t *testing.T) {
	d := newTestDispatcher(nil)
	result, err := d.Run(context.Background(), nil, time.Second)
	require.ErrorIs(t, err, types.ErrNoProvidersConfigured)
	assert.Nil(t, result)
}

func TestDispatcherAllProvidersSucceed(t *testing.T) {
	rec := &eventRecorder{}
	d := newTestDispatcher(rec.sink)

	tasks := []ProviderTask{
		instantTask("tavily", []types.SearchResult{{URL: "https://a.example"}}),
		instantTask("brave", []types.SearchResult{{URL: "https://b.example"}}),
		instantTask("kagi", []types.SearchResult{{URL: "https://c.example"}}),
	}

	result, err := d.Run(context.Background(), tasks, time.Second)
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 3)
	assert.Empty(t, result.TimedOutProviders)

	// Ledger order follows task order regardless of completion order.
	for i, name := range []string{"tavily", "brave", "kagi"} {
		assert.Equal(t, name, result.Outcomes[i].Provider)
		assert.Equal(t, StatusFulfilled, result.Outcomes[i].Status)
		require.Len(t, result.Outcomes[i].Items, 1)
	}

	require.NotEmpty(t, rec.events)
	first := rec.events[0]
	assert.Equal(t, EventStart, first.Event)
	assert.Equal(t, 3, first.Total)
	assert.Equal(t, []string{"tavily", "brave", "kagi"}, first.Names)

	last := rec.events[len(rec.events)-1]
	assert.Equal(t, EventAllDone, last.Event)
	assert.Equal(t, 3, last.Done)

	assert.Len(t, rec.byType(EventProviderDone), 3)
	assert.Empty(t, rec.byType(EventProviderFailed))
	assert.Empty(t, rec.byType(EventTimeout))
}

func TestDispatcherPartialFailureCompletesRun(t *testing.T) {
	rec := &eventRecorder{}
	d := newTestDispatcher(rec.sink)

	boom := errors.New("HTTP 502 from upstream")
	tasks := []ProviderTask{
		instantTask("tavily", []types.SearchResult{{URL: "https://a.example"}}),
		failingTask("brave", boom),
	}

	result, err := d.Run(context.Background(), tasks, time.Second)
	require.NoError(t, err, "one provider failing must not fail the batch")
	require.Len(t, result.Outcomes, 2)

	assert.Equal(t, StatusFulfilled, result.Outcomes[0].Status)
	assert.Equal(t, StatusFailed, result.Outcomes[1].Status)
	assert.ErrorIs(t, result.Outcomes[1].Err, boom)

	failedEvents := rec.byType(EventProviderFailed)
	require.Len(t, failedEvents, 1)
	assert.Equal(t, "brave", failedEvents[0].Provider)
	assert.Equal(t, EventAllDone, rec.events[len(rec.events)-1].Event)
}

func TestDispatcherTimeoutDropsPendingProviders(t *testing.T) {
	rec := &eventRecorder{}
	d := newTestDispatcher(rec.sink)

	tasks := []ProviderTask{
		instantTask("fast", []types.SearchResult{{URL: "https://fast.example"}}),
		blockingTask("slow"),
	}

	start := time.Now()
	result, err := d.Run(context.Background(), tasks, 50*time.Millisecond)
	elapsed := time.Since(start)

	require.NoError(t, err, "deadline expiry is not an error")
	assert.Less(t, elapsed, time.Second, "dispatcher must not wait for the slow provider")

	require.Len(t, result.Outcomes, 2, "every task gets exactly one outcome")
	assert.Equal(t, StatusFulfilled, result.Outcomes[0].Status)
	assert.Equal(t, StatusTimedOut, result.Outcomes[1].Status)
	assert.Equal(t, []string{"slow"}, result.TimedOutProviders)

	last := rec.events[len(rec.events)-1]
	assert.Equal(t, EventTimeout, last.Event)
	assert.Equal(t, 1, last.Done)
	assert.Equal(t, []string{"slow"}, last.TimedOut)

	// Late completions after finalization stay silent.
	emitted := len(rec.events)
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, emitted, len(rec.events))
}

func TestDispatcherZeroTimeoutWaitsForEveryProvider(t *testing.T) {
	rec := &eventRecorder{}
	d := newTestDispatcher(rec.sink)

	tasks := []ProviderTask{
		{
			Name: "slow",
			Operation: func(ctx context.Context) ([]types.SearchResult, error) {
				time.Sleep(60 * time.Millisecond)
				return []types.SearchResult{{URL: "https://slow.example"}}, nil
			},
		},
	}

	result, err := d.Run(context.Background(), tasks, 0)
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, StatusFulfilled, result.Outcomes[0].Status)
	assert.Empty(t, result.TimedOutProviders)
	assert.Equal(t, EventAllDone, rec.events[len(rec.events)-1].Event)
}

func TestDispatcherHeartbeatNamesPendingProviders(t *testing.T) {
	rec := &eventRecorder{}
	d := newTestDispatcher(rec.sink)
	d.SetHeartbeatInterval(15 * time.Millisecond)

	tasks := []ProviderTask{
		instantTask("fast", nil),
		{
			Name: "slow",
			Operation: func(ctx context.Context) ([]types.SearchResult, error) {
				time.Sleep(80 * time.Millisecond)
				return nil, nil
			},
		},
	}

	_, err := d.Run(context.Background(), tasks, 0)
	require.NoError(t, err)

	waiting := rec.byType(EventWaiting)
	require.NotEmpty(t, waiting, "a heartbeat should fire while slow is pending")
	lastWait := waiting[len(waiting)-1]
	assert.Equal(t, []string{"slow"}, lastWait.Pending)
	assert.Equal(t, 2, lastWait.Total)
}

func TestDispatcherCallerCancellationFinalizes(t *testing.T) {
	rec := &eventRecorder{}
	d := newTestDispatcher(rec.sink)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	result, err := d.Run(ctx, []ProviderTask{blockingTask("slow")}, 0)
	require.NoError(t, err, "caller cancellation closes the ledger like a deadline")
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, StatusTimedOut, result.Outcomes[0].Status)
	assert.Equal(t, EventTimeout, rec.events[len(rec.events)-1].Event)
}

func TestDispatcherDuplicateNamesFirstOutcomeWins(t *testing.T) {
	d := newTestDispatcher(nil)

	tasks := []ProviderTask{
		instantTask("twin", []types.SearchResult{{URL: "https://one.example"}}),
		instantTask("twin", []types.SearchResult{{URL: "https://two.example"}}),
	}

	result, err := d.Run(context.Background(), tasks, time.Second)
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, result.Outcomes[0].Items, result.Outcomes[1].Items,
		"duplicate names share the first recorded outcome")
}

func TestProgressEventMessages(t *testing.T) {
	cases := []struct {
		event ProgressEvent
		want  string
	}{
		{
			ProgressEvent{Event: EventStart, Total: 2, Names: []string{"tavily", "brave"}},
			"querying 2 providers: tavily, brave",
		},
		{
			ProgressEvent{Event: EventProviderDone, Provider: "tavily", Done: 1, Total: 2},
			"tavily completed (1/2)",
		},
		{
			ProgressEvent{Event: EventWaiting, Done: 1, Total: 2, Pending: []string{"brave"}},
			"waiting on brave (1/2 done)",
		},
		{
			ProgressEvent{Event: EventTimeout, Done: 1, Total: 2, TimedOut: []string{"brave"}},
			"deadline reached with 1/2 done, dropped: brave",
		},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.event.Message())
	}
}
