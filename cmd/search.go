package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	appcfg "github.com/cjangrist/mcp-omnisearch/internal/config"
	"github.com/cjangrist/mcp-omnisearch/internal/metrics"
	"github.com/cjangrist/mcp-omnisearch/internal/orchestrator"
	"github.com/cjangrist/mcp-omnisearch/internal/types"
)

var (
	searchProviders  []string
	searchMaxResults int
	searchLanguage   string
	searchTimeoutMS  int
	searchJSON       bool
	searchQuiet      bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Fan a web search out to every configured provider",
	Long: `
Run one search across every enabled search provider in parallel and
print the fused ranked list. Provider failures and timeouts never fail
the command as long as at least one provider answers; they are reported
alongside the results.

Examples:
  omnisearch search "reciprocal rank fusion"
  omnisearch search --providers tavily,brave --max-results 5 "bm25 tuning"
  omnisearch search --json --timeout-ms 10000 "golang context cancellation"
`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringSliceVar(&searchProviders, "providers", nil, "Restrict to a comma-separated provider subset")
	searchCmd.Flags().IntVar(&searchMaxResults, "max-results", 0, "Per-provider result cap (default from config)")
	searchCmd.Flags().StringVar(&searchLanguage, "language", "", "Preferred result language (BCP 47)")
	searchCmd.Flags().IntVar(&searchTimeoutMS, "timeout-ms", 0, "Soft fan-out deadline in ms, 0 waits for every provider")
	searchCmd.Flags().BoolVarP(&searchJSON, "json", "j", false, "Output the full summary as JSON")
	searchCmd.Flags().BoolVarP(&searchQuiet, "quiet", "q", false, "Suppress progress output on stderr")
}

func runSearch(cmd *cobra.Command, args []string) error {
	metrics.RecordInvocation(metrics.ModeCLI)
	defer func() { _ = metrics.Close() }()

	query := strings.Join(args, " ")

	cfg, err := appcfg.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	service, _, cleanup, err := buildOrchestration(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	opts := orchestrator.SearchOptions{
		Providers:  searchProviders,
		MaxResults: searchMaxResults,
		Language:   searchLanguage,
		Progress:   progressPrinter(searchQuiet),
	}
	if cmd.Flags().Changed("timeout-ms") {
		timeout := time.Duration(searchTimeoutMS) * time.Millisecond
		opts.Timeout = &timeout
	}

	summary, err := service.Search(ctx, query, opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	recordCLIOutcomes(summary.ProvidersSucceeded, summary.ProvidersFailed, summary.ProvidersTimedOut)

	if searchJSON {
		return printJSON(summary)
	}
	printSearchSummary(summary)
	return nil
}

// progressPrinter renders dispatcher events on stderr so stdout stays
// parseable.
func progressPrinter(quiet bool) orchestrator.ProgressFunc {
	if quiet {
		return nil
	}
	return func(event orchestrator.ProgressEvent) {
		fmt.Fprintln(os.Stderr, event.Message())
	}
}

func recordCLIOutcomes(succeeded []string, failed []types.ProviderFailure, timedOut []string) {
	for _, name := range succeeded {
		metrics.RecordProviderOutcome(name, metrics.OutcomeFulfilled)
	}
	for _, failure := range failed {
		metrics.RecordProviderOutcome(failure.Provider, metrics.OutcomeFailed)
	}
	for _, name := range timedOut {
		metrics.RecordProviderOutcome(name, metrics.OutcomeTimedOut)
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func printSearchSummary(summary *types.RequestSummary) {
	fmt.Printf("\nQuery: %s\n", summary.Query)
	fmt.Printf("Providers: %d queried, %d succeeded, %d failed, %d timed out\n",
		len(summary.ProvidersQueried), len(summary.ProvidersSucceeded),
		len(summary.ProvidersFailed), len(summary.ProvidersTimedOut))
	fmt.Printf("Elapsed: %d ms\n", summary.ElapsedMS)

	if len(summary.RankedResults) == 0 {
		fmt.Println("\nNo results.")
	}
	for i, entry := range summary.RankedResults {
		fmt.Printf("\n%d. %s\n", i+1, entry.Title)
		fmt.Printf("   %s\n", entry.URL)
		fmt.Printf("   score=%.5f sources=%s\n", entry.RRFScore, strings.Join(entry.SourceProviders, ","))
		if len(entry.Snippets) > 0 {
			fmt.Printf("   %s\n", entry.Snippets[0])
		}
	}

	printFailures(summary.ProvidersFailed, summary.ProvidersTimedOut)
}

func printFailures(failed []types.ProviderFailure, timedOut []string) {
	if len(failed)+len(timedOut) == 0 {
		return
	}
	fmt.Println()
	for _, failure := range failed {
		fmt.Printf("provider %s failed: %s\n", failure.Provider, failure.Error)
	}
	for _, name := range timedOut {
		fmt.Printf("provider %s timed out (result discarded)\n", name)
	}
}
