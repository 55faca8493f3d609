package cmd

import (
	"context"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"leadgrid/src/client/api"
	"leadgrid/src/client/channel"
	"leadgrid/src/client/reconcile"
	"leadgrid/src/push"
)

var (
	scrapeRegion   string
	scrapeQuery    string
	scrapeMaxPages int
	scrapeWatch    bool
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Dispatch a scraping job through the API",
	Long:  `The scrape command asks the server to scrape business listings for a region and query. With --watch it follows the job until it finishes.`,
	RunE:  runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
	scrapeCmd.Flags().StringVar(&scrapeRegion, "region", "", "region to scrape (required)")
	scrapeCmd.Flags().StringVar(&scrapeQuery, "query", "", "search query, e.g. \"dentist\" (required)")
	scrapeCmd.Flags().IntVar(&scrapeMaxPages, "max-pages", 0, "page limit for the run")
	scrapeCmd.Flags().BoolVar(&scrapeWatch, "watch", false, "follow the job until it completes")
	scrapeCmd.MarkFlagRequired("region")
	scrapeCmd.MarkFlagRequired("query")
}

// newAPIClient builds the REST client from config and authenticates when an
// api key is configured.
func newAPIClient(ctx context.Context) (*api.Client, error) {
	client := api.NewClient(viper.GetString("client.api_url"), nil)
	if key := viper.GetString("client.api_key"); key != "" {
		if err := client.Authenticate(ctx, key); err != nil {
			return nil, fmt.Errorf("authentication failed: %w", err)
		}
	}
	return client, nil
}

func runScrape(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	client, err := newAPIClient(ctx)
	if err != nil {
		return err
	}

	dispatch, err := client.DispatchScrape(ctx, api.ScrapeRequest{
		Region:   scrapeRegion,
		Query:    scrapeQuery,
		MaxPages: scrapeMaxPages,
	})
	if err != nil {
		return fmt.Errorf("failed to dispatch scrape: %w", err)
	}

	fmt.Printf("Job %s dispatched (%s)\n", dispatch.JobID, dispatch.Status)
	if !scrapeWatch {
		return nil
	}

	return watchJob(client, dispatch.JobID, reconcile.UIStatusScraping)
}

// watchJob follows a job with the polling reconciler, using push events only
// to poll sooner. The final snapshot decides the exit status.
func watchJob(client *api.Client, jobID string, activeLabel reconcile.UIStatus) error {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription(string(activeLabel)),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	tracker := reconcile.NewTracker(client,
		reconcile.WithActiveStatus(activeLabel),
		reconcile.WithOnUpdate(func(s reconcile.Snapshot) {
			bar.Set(s.Progress)
			if s.Found > 0 || s.Saved > 0 {
				bar.Describe(fmt.Sprintf("%s (found %d, saved %d)", activeLabel, s.Found, s.Saved))
			}
		}),
	)

	session := tracker.Track(jobID)
	defer tracker.Reset()

	// Best-effort: if the push channel is up, terminal events make the
	// reconciler refresh immediately instead of waiting out the interval.
	ch := channel.New(viper.GetString("client.push_url"))
	defer ch.Close()
	for _, kind := range []push.Kind{
		push.ScrapingProgress,
		push.ScrapingCompleted,
		push.ScrapingFailed,
		push.EnrichmentCompleted,
		push.EnrichmentFailed,
	} {
		ch.Subscribe(kind, func(push.Event) { session.Refresh() })
	}

	<-session.Done()
	bar.Finish()

	snap := session.Snapshot()
	switch snap.UIStatus {
	case reconcile.UIStatusCompleted:
		fmt.Printf("Done: found %d, saved %d", snap.Found, snap.Saved)
		if snap.Message != "" {
			fmt.Printf(" (%s)", snap.Message)
		}
		fmt.Println()
		return nil
	case reconcile.UIStatusFailed:
		return fmt.Errorf("job failed: %s", snap.Message)
	default:
		return fmt.Errorf("watch interrupted with job still %s", snap.UIStatus)
	}
}
