package cli

import (
	"github.com/spf13/cobra"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate every enabled rule once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := getApp().Evaluate(cmd.Context())
		return err
	},
}
