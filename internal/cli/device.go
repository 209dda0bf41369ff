package cli

import (
	"github.com/spf13/cobra"

	"fuel-price-alerts/internal/app"
)

var deviceOpts app.DeviceOptions

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Manage push devices",
}

var deviceRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register an Expo token or a browser push subscription for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().RegisterDevice(cmd.Context(), deviceOpts)
	},
}

func init() {
	flags := deviceRegisterCmd.Flags()
	flags.StringVar(&deviceOpts.UserID, "user", "", "User ID owning the device")
	flags.StringVar(&deviceOpts.ExpoToken, "expo-token", "", "Expo push token")
	flags.StringVar(&deviceOpts.Endpoint, "endpoint", "", "Web push endpoint URL")
	flags.StringVar(&deviceOpts.P256dh, "p256dh", "", "Web push p256dh key")
	flags.StringVar(&deviceOpts.Auth, "auth", "", "Web push auth secret")
	_ = deviceRegisterCmd.MarkFlagRequired("user")

	deviceCmd.AddCommand(deviceRegisterCmd)
}
