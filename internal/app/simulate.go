package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"fuel-price-alerts/internal/alerting"
	"fuel-price-alerts/internal/rules"
	"fuel-price-alerts/internal/service"
)

// SimulateOptions describe a hypothetical condition and the prices to test it with.
type SimulateOptions struct {
	OwnCents        int64
	CompetitorCents int64
	Direction       string
	Comparator      string
	ThresholdCents  int64
	// UserID, when set, receives the alert if the condition triggers.
	UserID string
}

// SimulateAlert 使用给定价格评估一个假设条件，并可选地向用户推送告警。
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	direction, err := rules.ParseDirection(opts.Direction)
	if err != nil {
		return err
	}
	comparator, err := rules.ParseComparator(opts.Comparator)
	if err != nil {
		return err
	}

	cond := rules.RuleCondition{
		ID:                   uuid.New(),
		Direction:            direction,
		Comparator:           comparator,
		ThresholdCents:       opts.ThresholdCents,
		RequireBothAvailable: true,
	}
	if err := cond.Validate(); err != nil {
		return err
	}

	own, competitor := opts.OwnCents, opts.CompetitorCents
	eval := rules.Assess(&own, &competitor, cond)
	fmt.Fprintf(a.Out, "difference: %s (%d cents)\n", rules.FormatSignedCents(*eval.Diff), *eval.Diff)
	fmt.Fprintf(a.Out, "condition: %s %s %s\n", direction, comparator, rules.FormatCents(opts.ThresholdCents))
	fmt.Fprintf(a.Out, "triggered: %t\n", eval.Triggered)

	if opts.UserID == "" || !eval.Triggered {
		return nil
	}

	userID, err := uuid.Parse(opts.UserID)
	if err != nil {
		return fmt.Errorf("invalid user id: %w", err)
	}
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	var devices alerting.DeviceRegistry
	if store != nil {
		devices = store
		defer closeStore()
	} else if !a.Config.Telegram.Enabled {
		return errors.New("未配置任何告警通道")
	}

	rule := rules.PricingRule{ID: uuid.New(), UserID: userID, Name: "Simulated rule"}
	cond.RuleID = rule.ID
	site := rules.OwnedSite{ID: uuid.New(), UserID: userID, Nickname: "Simulated site"}
	rule.OwnedSiteID = site.ID
	note := service.BuildNotification(a.Config.Alerting.Title, rule, site, cond, eval)

	if err := a.newNotifier(devices).Notify(ctx, note); err != nil {
		return err
	}
	fmt.Fprintln(a.Out, "notification dispatched")
	return nil
}
