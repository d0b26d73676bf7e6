package orchestrator

import (
	"fmt"
	"strings"
)

// Progress event names, in lifecycle order for one fan-out run.
const (
	EventStart          = "start"
	EventProviderDone   = "provider_done"
	EventProviderFailed = "provider_failed"
	EventWaiting        = "waiting"
	EventAllDone        = "all_done"
	EventTimeout        = "timeout"
)

// ProgressEvent is one structured notification from the dispatcher.
// Events for a given provider are strictly ordered: start, optional
// waiting heartbeats naming it as pending, then exactly one terminal
// provider event. The run itself ends with exactly one all_done or
// timeout event and nothing after that.
type ProgressEvent struct {
	Event    string   `json:"event"`
	Provider string   `json:"provider,omitempty"`
	Done     int      `json:"done"`
	Total    int      `json:"total"`
	Names    []string `json:"names,omitempty"`
	Pending  []string `json:"pending,omitempty"`
	TimedOut []string `json:"timed_out,omitempty"`
}

// ProgressFunc receives dispatcher events. It is fire and forget:
// implementations must tolerate being called from the dispatcher
// goroutine and should not block for long. The dispatcher never calls
// a sink after the run is finalized, so sinks need no own guard.
type ProgressFunc func(ProgressEvent)

// Message renders the event as a single human-readable line, the shape
// MCP progress notifications carry.
func (e ProgressEvent) Message() string {
	switch e.Event {
	case EventStart:
		return fmt.Sprintf("querying %d providers: %s", e.Total, strings.Join(e.Names, ", "))
	case EventProviderDone:
		return fmt.Sprintf("%s completed (%d/%d)", e.Provider, e.Done, e.Total)
	case EventProviderFailed:
		return fmt.Sprintf("%s failed (%d/%d)", e.Provider, e.Done, e.Total)
	case EventWaiting:
		return fmt.Sprintf("waiting on %s (%d/%d done)", strings.Join(e.Pending, ", "), e.Done, e.Total)
	case EventAllDone:
		return fmt.Sprintf("all %d providers completed", e.Total)
	case EventTimeout:
		return fmt.Sprintf("deadline reached with %d/%d done, dropped: %s", e.Done, e.Total, strings.Join(e.TimedOut, ", "))
	}
	return e.Event
}
