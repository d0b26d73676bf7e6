package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	appcfg "github.com/cjangrist/mcp-omnisearch/internal/config"
	"github.com/cjangrist/mcp-omnisearch/internal/metrics"
	"github.com/cjangrist/mcp-omnisearch/internal/providers"
)

var (
	providersCheck bool
	providersStats bool
	providersJSON  bool
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Show provider configuration, health and usage counters",
	Long: `
List every provider this build knows about, whether it is enabled, and
why disabled ones were excluded. With --check the enabled providers are
probed live; with --stats the persisted invocation and per-provider
outcome counters are printed instead.

Examples:
  omnisearch providers
  omnisearch providers --check
  omnisearch providers --stats
`,
	RunE: runProviders,
}

func init() {
	providersCmd.Flags().BoolVar(&providersCheck, "check", false, "Probe each enabled provider's API")
	providersCmd.Flags().BoolVar(&providersStats, "stats", false, "Show persisted usage counters instead of the listing")
	providersCmd.Flags().BoolVarP(&providersJSON, "json", "j", false, "Output as JSON")
}

func runProviders(cmd *cobra.Command, args []string) error {
	if providersStats {
		return printUsageStats(cmd)
	}

	cfg, err := appcfg.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	_, registry, cleanup, err := buildOrchestration(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	known := registry.Known()
	var health []providers.ProviderStatus
	if providersCheck {
		health = registry.CheckAll(ctx)
	}

	if providersJSON {
		return printJSON(struct {
			Providers []providers.ProviderInfo   `json:"providers"`
			Health    []providers.ProviderStatus `json:"health,omitempty"`
		}{Providers: known, Health: health})
	}

	healthByName := make(map[string]providers.ProviderStatus, len(health))
	for _, status := range health {
		healthByName[status.Name] = status
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	if providersCheck {
		fmt.Fprintln(w, "NAME\tKIND\tENABLED\tSTATUS\tNOTES")
	} else {
		fmt.Fprintln(w, "NAME\tKIND\tENABLED\tNOTES")
	}
	for _, info := range known {
		notes := info.Reason
		if notes == "" {
			notes = "-"
		}
		if providersCheck {
			fmt.Fprintf(w, "%s\t%s\t%v\t%s\t%s\n", info.Name, info.Kind, info.Enabled, healthLabel(info, healthByName), notes)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%v\t%s\n", info.Name, info.Kind, info.Enabled, notes)
	}
	return w.Flush()
}

func healthLabel(info providers.ProviderInfo, byName map[string]providers.ProviderStatus) string {
	status, ok := byName[info.Name]
	if !ok {
		return "-"
	}
	if !status.Checked {
		return "unchecked"
	}
	if status.OK {
		return "ok"
	}
	return "error: " + status.Error
}

func printUsageStats(cmd *cobra.Command) error {
	if err := metrics.Init(); err != nil {
		return fmt.Errorf("failed to open metrics store: %w", err)
	}
	defer func() { _ = metrics.Close() }()

	invocations := metrics.GetStats()
	outcomes := metrics.GetOutcomeStats()

	if providersJSON {
		return printJSON(struct {
			Invocations map[metrics.Mode]int64                `json:"invocations"`
			Outcomes    map[string]map[metrics.Outcome]int64 `json:"outcomes"`
		}{Invocations: invocations, Outcomes: outcomes})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Invocations: mcp=%d cli=%d\n\n",
		invocations[metrics.ModeMCP], invocations[metrics.ModeCLI])

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tFULFILLED\tFAILED\tTIMED_OUT")
	for provider, counts := range outcomes {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", provider,
			counts[metrics.OutcomeFulfilled], counts[metrics.OutcomeFailed], counts[metrics.OutcomeTimedOut])
	}
	return w.Flush()
}
