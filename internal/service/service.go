package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fuel-price-alerts/internal/alerting"
	"fuel-price-alerts/internal/config"
	"fuel-price-alerts/internal/metrics"
	"fuel-price-alerts/internal/rules"
	"fuel-price-alerts/internal/scheduler"
	"fuel-price-alerts/internal/storage"
)

// PriceLookup resolves the latest price of a fuel at a site. A nil observation means unknown.
type PriceLookup interface {
	LookupPrice(ctx context.Context, siteID, fuelID int64) (*rules.PriceObservation, error)
}

// RuleSnapshot loads the rules evaluated on each tick.
type RuleSnapshot interface {
	ListEnabledRules(ctx context.Context) ([]rules.PricingRule, error)
	ListConditions(ctx context.Context, ruleIDs []uuid.UUID) ([]rules.RuleCondition, error)
	GetOwnedSites(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]rules.OwnedSite, error)
}

// TriggerStateStore persists per-condition trigger state.
type TriggerStateStore interface {
	GetOrCreateTriggerState(ctx context.Context, key rules.StateKey) (rules.TriggerState, error)
	SaveTriggerState(ctx context.Context, state rules.TriggerState) error
}

// Summary counts what one tick did.
type Summary struct {
	Rules        int
	SkippedRules int
	Conditions   int
	Triggered    int
	Failed       int
	Notified     int
}

// Service evaluates every enabled rule against the latest prices and alerts on transitions.
type Service struct {
	scheduler *scheduler.Scheduler
	prices    PriceLookup
	snapshot  RuleSnapshot
	states    TriggerStateStore
	notifier  alerting.Notifier
	logger    zerolog.Logger

	cooldown  time.Duration
	opTimeout time.Duration
	title     string
	alertsOn  bool
	locker    storage.AdvisoryLocker
	lockKey   int64
}

// New constructs the alert evaluation service.
func New(cfg *config.Config, sched *scheduler.Scheduler, prices PriceLookup, snapshot RuleSnapshot, states TriggerStateStore, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	cooldown := cfg.Alerting.Cooldown
	if cooldown <= 0 {
		cooldown = rules.DefaultCooldown
	}
	opTimeout := cfg.Alerting.OperationTimeout
	if opTimeout <= 0 {
		opTimeout = 10 * time.Second
	}
	title := cfg.Alerting.Title
	if title == "" {
		title = "Fuel alert triggered"
	}

	var locker storage.AdvisoryLocker
	if l, ok := states.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler: sched,
		prices:    prices,
		snapshot:  snapshot,
		states:    states,
		notifier:  notifier,
		logger:    logger.With().Str("component", "service").Logger(),
		cooldown:  cooldown,
		opTimeout: opTimeout,
		title:     title,
		alertsOn:  cfg.Alerting.Enabled,
		locker:    locker,
		lockKey:   cfg.Scheduler.AdvisoryLockKey,
	}
}

// Run begins the evaluation loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessTick)
}

// ProcessTick 执行一次完整的规则评估。
func (s *Service) ProcessTick(ctx context.Context, now time.Time) error {
	summary, err := s.Tick(ctx, now)
	if err != nil {
		return err
	}
	s.logger.Info().
		Int("rules", summary.Rules).
		Int("skipped_rules", summary.SkippedRules).
		Int("conditions", summary.Conditions).
		Int("triggered", summary.Triggered).
		Int("notified", summary.Notified).
		Int("failed", summary.Failed).
		Msg("tick complete")
	return nil
}

// Tick evaluates all enabled rules once at now.
// Only a failure to load the rule snapshot or the advisory lock is returned;
// per-condition failures are logged and counted.
func (s *Service) Tick(ctx context.Context, now time.Time) (Summary, error) {
	var summary Summary

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return summary, err
	}
	if !proceed {
		s.logger.Debug().Time("at", now).Msg("skip tick because advisory lock held elsewhere")
		return summary, nil
	}
	if unlock != nil {
		defer unlock()
	}

	enabled, err := s.snapshot.ListEnabledRules(ctx)
	if err != nil {
		return summary, fmt.Errorf("load enabled rules: %w", err)
	}
	summary.Rules = len(enabled)
	if len(enabled) == 0 {
		return summary, nil
	}

	ruleIDs := make([]uuid.UUID, 0, len(enabled))
	siteIDs := make([]uuid.UUID, 0, len(enabled))
	for _, r := range enabled {
		ruleIDs = append(ruleIDs, r.ID)
		siteIDs = append(siteIDs, r.OwnedSiteID)
	}

	owned, err := s.snapshot.GetOwnedSites(ctx, siteIDs)
	if err != nil {
		return summary, fmt.Errorf("load owned sites: %w", err)
	}
	conditions, err := s.snapshot.ListConditions(ctx, ruleIDs)
	if err != nil {
		return summary, fmt.Errorf("load conditions: %w", err)
	}
	byRule := make(map[uuid.UUID][]rules.RuleCondition, len(enabled))
	for _, c := range conditions {
		byRule[c.RuleID] = append(byRule[c.RuleID], c)
	}

	for _, rule := range enabled {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		site, ok := owned[rule.OwnedSiteID]
		if !ok {
			summary.SkippedRules++
			metrics.RulesSkippedTotal.WithLabelValues("orphaned").Inc()
			s.logger.Warn().
				Str("rule_id", rule.ID.String()).
				Str("owned_site_id", rule.OwnedSiteID.String()).
				Msg("skip rule because owned site cannot be resolved")
			continue
		}

		conds := byRule[rule.ID]
		if len(conds) == 0 {
			summary.SkippedRules++
			metrics.RulesSkippedTotal.WithLabelValues("no_conditions").Inc()
			s.logger.Debug().Str("rule_id", rule.ID.String()).Msg("rule has no conditions")
			continue
		}

		for _, cond := range conds {
			summary.Conditions++
			outcome, err := s.processCondition(ctx, now, rule, site, cond)
			if err != nil {
				summary.Failed++
				metrics.ConditionEvaluationsTotal.WithLabelValues("failed").Inc()
				s.logger.Error().Err(err).
					Str("rule_id", rule.ID.String()).
					Str("condition_id", cond.ID.String()).
					Str("user_id", site.UserID.String()).
					Msg("condition evaluation failed")
				continue
			}
			if outcome.triggered {
				summary.Triggered++
				metrics.ConditionEvaluationsTotal.WithLabelValues("triggered").Inc()
			} else {
				metrics.ConditionEvaluationsTotal.WithLabelValues("clear").Inc()
			}
			if outcome.notified {
				summary.Notified++
			}
		}
	}

	return summary, nil
}

type conditionOutcome struct {
	triggered bool
	notified  bool
}

func (s *Service) processCondition(ctx context.Context, now time.Time, rule rules.PricingRule, site rules.OwnedSite, cond rules.RuleCondition) (conditionOutcome, error) {
	if !cond.Direction.Valid() || !cond.Comparator.Valid() {
		s.logger.Warn().
			Str("condition_id", cond.ID.String()).
			Str("direction", string(cond.Direction)).
			Str("comparator", string(cond.Comparator)).
			Msg("malformed condition evaluates as not triggered")
	}

	own, err := s.lookup(ctx, site.SiteID, cond.OwnFuelID)
	if err != nil {
		return conditionOutcome{}, fmt.Errorf("lookup own price: %w", err)
	}
	competitor, err := s.lookup(ctx, rule.CompetitorSiteID, cond.CompetitorFuelID)
	if err != nil {
		return conditionOutcome{}, fmt.Errorf("lookup competitor price: %w", err)
	}

	eval := rules.Assess(own.Usable(), competitor.Usable(), cond)

	// the owning user comes from the ownership record, never from the rule row
	key := rules.StateKey{UserID: site.UserID, RuleID: rule.ID, ConditionID: cond.ID}
	prev, err := s.loadState(ctx, key)
	if err != nil {
		return conditionOutcome{}, fmt.Errorf("load trigger state: %w", err)
	}

	next, notify := rules.Decide(prev, eval, now, s.cooldown)
	if err := s.saveState(ctx, next); err != nil {
		return conditionOutcome{}, fmt.Errorf("save trigger state: %w", err)
	}

	outcome := conditionOutcome{triggered: eval.Triggered}
	if !notify {
		return outcome, nil
	}

	if !s.dispatch(ctx, rule, site, cond, eval) {
		return outcome, nil
	}

	reason := "transition"
	if prev.CurrentlyTriggered {
		reason = "cooldown"
	}
	outcome.notified = true
	metrics.AlertsDispatchedTotal.WithLabelValues(reason).Inc()
	return outcome, nil
}

func (s *Service) lookup(ctx context.Context, siteID, fuelID int64) (*rules.PriceObservation, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.prices.LookupPrice(opCtx, siteID, fuelID)
}

func (s *Service) loadState(ctx context.Context, key rules.StateKey) (rules.TriggerState, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.states.GetOrCreateTriggerState(opCtx, key)
}

func (s *Service) saveState(ctx context.Context, state rules.TriggerState) error {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.states.SaveTriggerState(opCtx, state)
}

// dispatch reports whether the notifier was called.
// Channels bound their own operations, so only the tick context is passed down.
func (s *Service) dispatch(ctx context.Context, rule rules.PricingRule, site rules.OwnedSite, cond rules.RuleCondition, eval rules.Evaluation) bool {
	if !s.alertsOn || s.notifier == nil {
		return false
	}

	note := BuildNotification(s.title, rule, site, cond, eval)
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).
			Str("rule_id", rule.ID.String()).
			Str("condition_id", cond.ID.String()).
			Str("user_id", site.UserID.String()).
			Msg("failed to dispatch alert")
	}
	return true
}

// BuildNotification renders the alert for a triggered condition.
func BuildNotification(title string, rule rules.PricingRule, site rules.OwnedSite, cond rules.RuleCondition, eval rules.Evaluation) alerting.Notification {
	var diff int64
	if eval.Diff != nil {
		diff = *eval.Diff
	}

	ownName := site.DisplayName()
	competitor := fmt.Sprintf("site %d", rule.CompetitorSiteID)
	body := fmt.Sprintf("%s: %s vs %s is %s (%s %s)",
		ruleLabel(rule),
		ownName,
		competitor,
		rules.FormatSignedCents(diff),
		cond.Comparator,
		rules.FormatCents(cond.ThresholdCents),
	)

	return alerting.Notification{
		UserID: site.UserID,
		Title:  title,
		Body:   body,
		Data: map[string]any{
			"ruleId":         rule.ID.String(),
			"conditionId":    cond.ID.String(),
			"ownedSiteId":    site.ID.String(),
			"ownedSite":      site.SiteID,
			"ownedSiteName":  ownName,
			"competitorSite": rule.CompetitorSiteID,
			"diffCents":      diff,
		},
	}
}

func ruleLabel(rule rules.PricingRule) string {
	if rule.Name != "" {
		return rule.Name
	}
	return "Pricing rule"
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
