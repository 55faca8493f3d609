package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show lead counts from the API",
	Long:  `The stats command fetches the dashboard aggregates and prints lead counts by status and enrichment state.`,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	client, err := newAPIClient(ctx)
	if err != nil {
		return err
	}

	stats, err := client.RefreshStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch stats: %w", err)
	}

	fmt.Printf("Total leads: %d\n", stats.Total)
	printCounts("By status", stats.ByStatus)
	printCounts("By enrichment state", stats.ByEnrichmentState)
	return nil
}

func printCounts(title string, counts map[string]int64) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Printf("%s:\n", title)
	for _, k := range keys {
		fmt.Printf("  %-12s %d\n", k, counts[k])
	}
}
