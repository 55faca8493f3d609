package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"leadgrid/src/client/reconcile"
)

var (
	enrichCount int
	enrichWatch bool
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Dispatch a batch enrichment job through the API",
	Long:  `The enrich command asks the server to enrich pending leads against the enrichment provider. With --watch it follows the job until it finishes.`,
	RunE:  runEnrich,
}

func init() {
	rootCmd.AddCommand(enrichCmd)
	enrichCmd.Flags().IntVar(&enrichCount, "count", 10, "maximum number of leads to enrich")
	enrichCmd.Flags().BoolVar(&enrichWatch, "watch", false, "follow the job until it completes")
}

func runEnrich(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	client, err := newAPIClient(ctx)
	if err != nil {
		return err
	}

	result, err := client.ProcessEnrichmentBatch(ctx, enrichCount)
	if err != nil {
		return fmt.Errorf("failed to dispatch enrichment batch: %w", err)
	}

	if result.JobID == "" {
		fmt.Println("No pending leads to enrich")
		return nil
	}
	fmt.Printf("Job %s dispatched: %d queued, %d skipped\n", result.JobID, result.Queued, result.Skipped)

	if !enrichWatch {
		return nil
	}
	return watchJob(client, result.JobID, reconcile.UIStatusRunning)
}
