package orchestrator

import (
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/cjangrist/mcp-omnisearch/internal/types"
)

// rankConstant is the RRF K term. 60 is the value from the original
// reciprocal rank fusion paper and what search engines default to.
const rankConstant = 60.0

// FusionEngine merges per-provider ranked lists into one ordering with
// Reciprocal Rank Fusion. Vendor scores only order items within their
// own provider's list; cross-provider ranking uses rank positions
// alone, because raw scores are not comparable between vendors. A URL
// found by more providers, or ranked higher by each, accumulates a
// higher fused score.
type FusionEngine struct {
	k float64
}

// NewFusionEngine creates an engine with the standard rank constant.
func NewFusionEngine() *FusionEngine {
	return &FusionEngine{k: rankConstant}
}

// Merge folds fulfilled outcomes into a deduplicated, RRF-ranked list.
// Entries are keyed by URL. The first-seen title wins, snippets stay
// distinct in insertion order, and each provider contributes at most
// one reciprocal-rank term per URL no matter how often it repeats that
// URL. Equal scores keep first-discovery order, which follows the
// order outcomes are supplied in.
func (fe *FusionEngine) Merge(outcomes []TaskOutcome) []types.FusionEntry {
	states := make(map[string]*fusionState)
	var order []string

	for _, outcome := range outcomes {
		if outcome.Status != StatusFulfilled {
			continue
		}
		for rank, item := range rankWithinProvider(outcome.Items) {
			if item.URL == "" {
				continue
			}
			state, ok := states[item.URL]
			if !ok {
				state = newFusionState(item.URL, item.Title)
				states[item.URL] = state
				order = append(order, item.URL)
			}
			if state.entry.Title == "" {
				state.entry.Title = item.Title
			}
			state.addSnippet(item.Snippet)
			if state.providers[outcome.Provider] {
				continue
			}
			state.providers[outcome.Provider] = true
			state.entry.SourceProviders = append(state.entry.SourceProviders, outcome.Provider)
			state.entry.RRFScore += 1.0 / (fe.k + float64(rank) + 1.0)
		}
	}

	merged := make([]types.FusionEntry, 0, len(order))
	for _, url := range order {
		merged = append(merged, states[url].entry)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].RRFScore > merged[j].RRFScore
	})
	return merged
}

// rankWithinProvider orders one provider's items by its own scores,
// highest first. Items without scores keep their reported order.
func rankWithinProvider(items []types.SearchResult) []types.SearchResult {
	ranked := make([]types.SearchResult, len(items))
	copy(ranked, items)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

type fusionState struct {
	entry     types.FusionEntry
	providers map[string]bool
	snippets  map[string]bool
}

func newFusionState(url, title string) *fusionState {
	return &fusionState{
		entry:     types.FusionEntry{URL: url, Title: title},
		providers: make(map[string]bool),
		snippets:  make(map[string]bool),
	}
}

// addSnippet appends a snippet unless an equivalent one is already
// present. Comparison is NFC-normalized so the same text in different
// Unicode compositions does not duplicate.
func (fs *fusionState) addSnippet(snippet string) {
	snippet = strings.TrimSpace(snippet)
	if snippet == "" {
		return
	}
	key := norm.NFC.String(snippet)
	if fs.snippets[key] {
		return
	}
	fs.snippets[key] = true
	fs.entry.Snippets = append(fs.entry.Snippets, snippet)
}

// BuildAnswers converts fulfilled outcomes into per-provider answers.
// Adapters in answer mode return the synthesized answer as the first
// item and its citations after it; outcomes with no items are skipped.
func BuildAnswers(outcomes []TaskOutcome) []types.ProviderAnswer {
	answers := make([]types.ProviderAnswer, 0, len(outcomes))
	for _, outcome := range outcomes {
		if outcome.Status != StatusFulfilled || len(outcome.Items) == 0 {
			continue
		}
		answers = append(answers, types.ProviderAnswer{
			Provider:  outcome.Provider,
			Answer:    outcome.Items[0],
			Citations: outcome.Items[1:],
		})
	}
	return answers
}
