package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "leadgrid",
	Short: "Lead generation CRM: scraping, enrichment and outreach for local businesses",
}

func init() {
	settingDefaultConfig()
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
