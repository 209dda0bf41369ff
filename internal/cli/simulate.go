package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"fuel-price-alerts/internal/app"
)

var (
	simulateOwn        string
	simulateCompetitor string
	simulateThreshold  string
	simulateDirection  string
	simulateComparator string
	simulateUser       string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次价差评估，并可选地向用户推送告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		own, err := parseDollars("--own", simulateOwn)
		if err != nil {
			return err
		}
		competitor, err := parseDollars("--competitor", simulateCompetitor)
		if err != nil {
			return err
		}
		threshold, err := parseDollars("--threshold", simulateThreshold)
		if err != nil {
			return err
		}

		return getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{
			OwnCents:        own,
			CompetitorCents: competitor,
			Direction:       simulateDirection,
			Comparator:      simulateComparator,
			ThresholdCents:  threshold,
			UserID:          simulateUser,
		})
	},
}

// parseDollars 将美元金额转换为分，按银行家舍入。
func parseDollars(flag, raw string) (int64, error) {
	if raw == "" {
		return 0, fmt.Errorf("%s 必须提供", flag)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %w", flag, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%s 不能为负数", flag)
	}
	return d.Shift(2).RoundBank(0).IntPart(), nil
}

func init() {
	simulateCmd.Flags().StringVar(&simulateOwn, "own", "", "己方价格，单位美元 (e.g. 1.859)")
	simulateCmd.Flags().StringVar(&simulateCompetitor, "competitor", "", "竞争对手价格，单位美元")
	simulateCmd.Flags().StringVar(&simulateThreshold, "threshold", "0", "阈值，单位美元")
	simulateCmd.Flags().StringVar(&simulateDirection, "direction", "COMPETITOR_MINUS_OWN", "COMPETITOR_MINUS_OWN or OWN_MINUS_COMPETITOR")
	simulateCmd.Flags().StringVar(&simulateComparator, "comparator", "GT", "GT, GTE, LT, LTE, ABS_GT or ABS_GTE")
	simulateCmd.Flags().StringVar(&simulateUser, "user", "", "推送目标用户 ID；为空则仅打印结果")
}
