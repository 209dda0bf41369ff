package cli

import (
	"github.com/spf13/cobra"

	"fuel-price-alerts/internal/app"
)

var (
	syncMaster bool
	syncPrices bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull the site catalog and/or latest prices from the feed once",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Sync(cmd.Context(), app.SyncOptions{
			Master: syncMaster,
			Prices: syncPrices,
		})
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncMaster, "master", false, "Sync brands, fuel types and sites")
	syncCmd.Flags().BoolVar(&syncPrices, "prices", false, "Sync latest site prices")
}
