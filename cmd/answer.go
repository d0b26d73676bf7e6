package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	appcfg "github.com/cjangrist/mcp-omnisearch/internal/config"
	"github.com/cjangrist/mcp-omnisearch/internal/metrics"
	"github.com/cjangrist/mcp-omnisearch/internal/orchestrator"
	"github.com/cjangrist/mcp-omnisearch/internal/types"
)

var (
	answerProviders []string
	answerTimeoutMS int
	answerJSON      bool
	answerQuiet     bool
)

var answerCmd = &cobra.Command{
	Use:   "answer <question>",
	Short: "Ask every configured AI answer provider in parallel",
	Long: `
Put one question to every enabled AI answer provider at the same time
and print each provider's synthesized answer with its citations.
Answers are never merged; disagreement between providers is part of
the output.

Examples:
  omnisearch answer "what changed in Go 1.22 loop scoping?"
  omnisearch answer --providers perplexity,gemini --timeout-ms 45000 "compare RRF with weighted fusion"
`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnswer,
}

func init() {
	answerCmd.Flags().StringSliceVar(&answerProviders, "providers", nil, "Restrict to a comma-separated provider subset")
	answerCmd.Flags().IntVar(&answerTimeoutMS, "timeout-ms", 0, "Soft fan-out deadline in ms, 0 waits for every provider")
	answerCmd.Flags().BoolVarP(&answerJSON, "json", "j", false, "Output the full summary as JSON")
	answerCmd.Flags().BoolVarP(&answerQuiet, "quiet", "q", false, "Suppress progress output on stderr")
}

func runAnswer(cmd *cobra.Command, args []string) error {
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
		Providers: answerProviders,
		Progress:  progressPrinter(answerQuiet),
	}
	if cmd.Flags().Changed("timeout-ms") {
		timeout := time.Duration(answerTimeoutMS) * time.Millisecond
		opts.Timeout = &timeout
	}

	summary, err := service.Answer(ctx, query, opts)
	if err != nil {
		return fmt.Errorf("answer failed: %w", err)
	}
	recordCLIOutcomes(summary.ProvidersSucceeded, summary.ProvidersFailed, summary.ProvidersTimedOut)

	if answerJSON {
		return printJSON(summary)
	}
	printAnswerSummary(summary)
	return nil
}

func printAnswerSummary(summary *types.AnswerSummary) {
	fmt.Printf("\nQuestion: %s\n", summary.Query)
	fmt.Printf("Providers: %d queried, %d answered, %d failed, %d timed out\n",
		len(summary.ProvidersQueried), len(summary.ProvidersSucceeded),
		len(summary.ProvidersFailed), len(summary.ProvidersTimedOut))
	fmt.Printf("Elapsed: %d ms\n", summary.ElapsedMS)

	if len(summary.Answers) == 0 {
		fmt.Println("\nNo answers.")
	}
	for _, answer := range summary.Answers {
		fmt.Printf("\n--- %s ---\n", answer.Provider)
		fmt.Println(answer.Answer.Snippet)
		if len(answer.Citations) > 0 {
			fmt.Println("\nCitations:")
			for i, citation := range answer.Citations {
				title := citation.Title
				if title == "" {
					title = citation.URL
				}
				fmt.Printf("  [%d] %s\n", i+1, title)
				if citation.Title != "" && citation.URL != "" {
					fmt.Printf("      %s\n", citation.URL)
				}
			}
		}
	}

	printFailures(summary.ProvidersFailed, summary.ProvidersTimedOut)
}
