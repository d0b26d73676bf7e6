package orchestrator

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/cjangrist/mcp-omnisearch/internal/types"
)

// OutcomeStatus tags how one provider task ended.
type OutcomeStatus string

const (
	StatusFulfilled OutcomeStatus = "fulfilled"
	StatusFailed    OutcomeStatus = "failed"
	StatusTimedOut  OutcomeStatus = "timed_out"
)

// ProviderTask pairs a provider name with the deferred invocation the
// dispatcher runs. Tasks are built per request and discarded after it.
type ProviderTask struct {
	Name      string
	Operation Operation
}

// TaskOutcome records how one ProviderTask ended. Exactly one outcome
// exists per task once the run finalizes.
type TaskOutcome struct {
	Provider string
	Status   OutcomeStatus
	Items    []types.SearchResult
	Err      error
}

// RunResult is the dispatcher's terminal artifact: the full outcome
// ledger in task order plus the providers that never reported back
// before the deadline.
type RunResult struct {
	Outcomes          []TaskOutcome
	TimedOutProviders []string
}

// Dispatcher fans one request out to every configured provider and
// tracks completion under a soft deadline. All run state lives in the
// Run loop, which is the single owner of the ledger: task goroutines
// report through a buffered channel, so recording an outcome and
// reading the ledger at finalize can never race, and no progress event
// can fire after the run is finalized.
type Dispatcher struct {
	heartbeat time.Duration
	sink      ProgressFunc
	logger    *log.Logger
}

// NewDispatcher creates a dispatcher reporting to sink. A nil sink
// disables progress events.
func NewDispatcher(sink ProgressFunc) *Dispatcher {
	return &Dispatcher{
		heartbeat: 5 * time.Second,
		sink:      sink,
		logger:    log.New(os.Stdout, "[dispatcher] ", log.LstdFlags),
	}
}

// SetHeartbeatInterval overrides how often a waiting event fires while
// tasks remain pending.
func (d *Dispatcher) SetHeartbeatInterval(interval time.Duration) {
	if interval > 0 {
		d.heartbeat = interval
	}
}

// Run starts every task concurrently and waits for all of them, or for
// the timeout when one is set (timeout == 0 waits unconditionally).
// The deadline is advisory: it cancels the context handed to each task
// and stops the dispatcher from waiting, but in-flight provider work is
// not forcibly aborted, and results arriving after finalization are
// dropped rather than retroactively recorded. Cancellation of the
// caller's context finalizes the run the same way a deadline does.
// An individual provider failure never aborts the batch; the only
// batch-fatal condition is an empty task list.
func (d *Dispatcher) Run(ctx context.Context, tasks []ProviderTask, timeout time.Duration) (*RunResult, error) {
	if len(tasks) == 0 {
		return nil, types.ErrNoProvidersConfigured
	}

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	total := len(tasks)
	names := make([]string, total)
	for i, task := range tasks {
		names[i] = task.Name
	}

	// One slot per task: sends never block, so a task finishing after
	// the run finalized just leaves its outcome unread.
	outcomeCh := make(chan TaskOutcome, total)
	for _, task := range tasks {
		go runTask(taskCtx, task, outcomeCh)
	}

	d.logger.Printf("fanout started providers=%d timeout=%v", total, timeout)
	d.emit(ProgressEvent{Event: EventStart, Total: total, Names: names})

	heartbeat := time.NewTicker(d.heartbeat)
	defer heartbeat.Stop()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	outcomes := make(map[string]TaskOutcome, total)
	received := 0
	for received < total {
		select {
		case outcome := <-outcomeCh:
			received++
			if _, dup := outcomes[outcome.Provider]; dup {
				continue
			}
			outcomes[outcome.Provider] = outcome
			event := ProgressEvent{Event: EventProviderDone, Provider: outcome.Provider, Done: len(outcomes), Total: total}
			if outcome.Status == StatusFailed {
				event.Event = EventProviderFailed
			}
			d.emit(event)
		case <-deadline:
			cancel()
			return d.finalize(names, outcomes, total, true), nil
		case <-ctx.Done():
			cancel()
			return d.finalize(names, outcomes, total, true), nil
		case <-heartbeat.C:
			d.emit(ProgressEvent{
				Event:   EventWaiting,
				Done:    len(outcomes),
				Total:   total,
				Pending: pendingNames(names, outcomes),
			})
		}
	}

	return d.finalize(names, outcomes, total, false), nil
}

// runTask executes one provider task and reports its outcome.
func runTask(ctx context.Context, task ProviderTask, outcomeCh chan<- TaskOutcome) {
	items, err := task.Operation(ctx)
	if err != nil {
		outcomeCh <- TaskOutcome{Provider: task.Name, Status: StatusFailed, Err: err}
		return
	}
	outcomeCh <- TaskOutcome{Provider: task.Name, Status: StatusFulfilled, Items: items}
}

// finalize closes the ledger: providers still pending get a timed-out
// outcome, one terminal event fires, and nothing is emitted after it.
func (d *Dispatcher) finalize(names []string, outcomes map[string]TaskOutcome, total int, expired bool) *RunResult {
	done := len(outcomes)
	ordered := make([]TaskOutcome, 0, total)
	var timedOut []string
	for _, name := range names {
		if outcome, ok := outcomes[name]; ok {
			ordered = append(ordered, outcome)
			continue
		}
		timedOut = append(timedOut, name)
		ordered = append(ordered, TaskOutcome{Provider: name, Status: StatusTimedOut})
	}

	if expired {
		d.emit(ProgressEvent{Event: EventTimeout, Done: done, Total: total, TimedOut: timedOut})
	} else {
		d.emit(ProgressEvent{Event: EventAllDone, Done: done, Total: total})
	}
	d.logger.Printf("fanout finished done=%d total=%d timed_out=%d", done, total, len(timedOut))

	return &RunResult{Outcomes: ordered, TimedOutProviders: timedOut}
}

func pendingNames(names []string, outcomes map[string]TaskOutcome) []string {
	pending := make([]string, 0, len(names)-len(outcomes))
	for _, name := range names {
		if _, ok := outcomes[name]; !ok {
			pending = append(pending, name)
		}
	}
	return pending
}

func (d *Dispatcher) emit(event ProgressEvent) {
	if d.sink == nil {
		return
	}
	d.sink(event)
}
