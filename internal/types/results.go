package types

// Metadata keys adapters attach to result items.
const (
	MetadataKind         = "kind"
	MetadataKindAnswer   = "answer"
	MetadataKindCitation = "citation"
)

// SearchResult is the common shape every provider adapter maps its
// vendor response into. Items are immutable once returned by an
// adapter; the URL is the dedup key during fusion.
type SearchResult struct {
	Title          string            `json:"title"`
	URL            string            `json:"url"`
	Snippet        string            `json:"snippet"`
	Score          float64           `json:"score,omitempty"`
	SourceProvider string            `json:"source_provider"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// QueryParams carries the per-request knobs adapters understand.
type QueryParams struct {
	MaxResults int    `json:"max_results"`
	Language   string `json:"language,omitempty"`
}

// FusionEntry accumulates everything known about one URL across
// providers. Immutable after the merge completes.
type FusionEntry struct {
	Title           string   `json:"title"`
	URL             string   `json:"url"`
	Snippets        []string `json:"snippets"`
	SourceProviders []string `json:"source_providers"`
	RRFScore        float64  `json:"rrf_score"`
}

// ProviderFailure names a provider together with the error that took
// it out of the request.
type ProviderFailure struct {
	Provider string `json:"provider"`
	Error    string `json:"error"`
}

// RequestSummary is the terminal artifact of one search orchestration
// run. A provider name appears in exactly one of succeeded, failed, or
// timed-out; ranked results contain no duplicate URLs.
type RequestSummary struct {
	RequestID          string            `json:"request_id"`
	Query              string            `json:"query"`
	ProvidersQueried   []string          `json:"providers_queried"`
	ProvidersSucceeded []string          `json:"providers_succeeded"`
	ProvidersFailed    []ProviderFailure `json:"providers_failed"`
	ProvidersTimedOut  []string          `json:"providers_timed_out,omitempty"`
	RankedResults      []FusionEntry     `json:"ranked_results"`
	ElapsedMS          int64             `json:"elapsed_ms"`
}

// ProviderAnswer is one AI provider's synthesized answer plus the
// citations it grounded the answer on.
type ProviderAnswer struct {
	Provider  string         `json:"provider"`
	Answer    SearchResult   `json:"answer"`
	Citations []SearchResult `json:"citations,omitempty"`
}

// AnswerSummary is the terminal artifact of one answer orchestration
// run: one answer per successful provider instead of a fused list.
type AnswerSummary struct {
	RequestID          string            `json:"request_id"`
	Query              string            `json:"query"`
	ProvidersQueried   []string          `json:"providers_queried"`
	ProvidersSucceeded []string          `json:"providers_succeeded"`
	ProvidersFailed    []ProviderFailure `json:"providers_failed"`
	ProvidersTimedOut  []string          `json:"providers_timed_out,omitempty"`
	Answers            []ProviderAnswer  `json:"answers"`
	ElapsedMS          int64             `json:"elapsed_ms"`
}
