package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"fuel-price-alerts/internal/rules"
)

const (
	listEnabledRulesSQL = `SELECT
        id,
        user_id,
        owned_site_id,
        competitor_site_id,
        name,
        is_enabled
    FROM pricing_rules
    WHERE is_enabled
    ORDER BY created_at, id;`

	listConditionsSQL = `SELECT
        id,
        rule_id,
        own_fuel_id,
        competitor_fuel_id,
        direction,
        comparator,
        threshold_cents,
        require_both_available
    FROM pricing_rule_conditions
    WHERE rule_id = ANY($1::uuid[])
    ORDER BY rule_id, created_at, id;`

	getOwnedSitesSQL = `SELECT
        id,
        user_id,
        site_id,
        nickname,
        is_primary
    FROM user_owned_sites
    WHERE id = ANY($1::uuid[]);`

	getTriggerStateSQL = `SELECT
        id,
        user_id,
        rule_id,
        condition_id,
        is_currently_triggered,
        last_triggered_at,
        last_notified_at,
        last_diff_cents,
        updated_at
    FROM rule_alert_state
    WHERE user_id = $1
      AND rule_id = $2
      AND condition_id = $3;`

	insertTriggerStateSQL = `INSERT INTO rule_alert_state (
        id,
        user_id,
        rule_id,
        condition_id,
        updated_at
    ) VALUES (
        $1,$2,$3,$4,now()
    )
    ON CONFLICT (user_id, rule_id, condition_id) DO NOTHING;`

	saveTriggerStateSQL = `INSERT INTO rule_alert_state (
        id,
        user_id,
        rule_id,
        condition_id,
        is_currently_triggered,
        last_triggered_at,
        last_notified_at,
        last_diff_cents,
        updated_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    )
    ON CONFLICT (user_id, rule_id, condition_id) DO UPDATE
    SET
        is_currently_triggered = EXCLUDED.is_currently_triggered,
        last_triggered_at      = EXCLUDED.last_triggered_at,
        last_notified_at       = EXCLUDED.last_notified_at,
        last_diff_cents        = EXCLUDED.last_diff_cents,
        updated_at             = EXCLUDED.updated_at;`

	listTriggerStatesSQL = `SELECT
        s.id,
        s.user_id,
        s.rule_id,
        s.condition_id,
        s.is_currently_triggered,
        s.last_triggered_at,
        s.last_notified_at,
        s.last_diff_cents,
        s.updated_at,
        r.name,
        r.owned_site_id,
        r.competitor_site_id
    FROM rule_alert_state s
    JOIN pricing_rules r ON r.id = s.rule_id
    ORDER BY s.updated_at DESC
    LIMIT $1;`
)

// ListEnabledRules returns every enabled pricing rule in a stable order.
func (s *Store) ListEnabledRules(ctx context.Context) ([]rules.PricingRule, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listEnabledRulesSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list enabled rules: %w", queryErr)
	}
	defer rows.Close()

	out := make([]rules.PricingRule, 0)
	for rows.Next() {
		var r rules.PricingRule
		if err := rows.Scan(&r.ID, &r.UserID, &r.OwnedSiteID, &r.CompetitorSiteID, &r.Name, &r.Enabled); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// ListConditions returns the conditions of the given rules.
// Direction and comparator are loaded as stored; validation is left to the caller.
func (s *Store) ListConditions(ctx context.Context, ruleIDs []uuid.UUID) ([]rules.RuleCondition, error) {
	if len(ruleIDs) == 0 {
		return nil, nil
	}
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listConditionsSQL, uuidStrings(ruleIDs))
	if queryErr != nil {
		return nil, fmt.Errorf("list conditions: %w", queryErr)
	}
	defer rows.Close()

	out := make([]rules.RuleCondition, 0)
	for rows.Next() {
		var (
			c               rules.RuleCondition
			direction, comp string
		)
		if err := rows.Scan(
			&c.ID,
			&c.RuleID,
			&c.OwnFuelID,
			&c.CompetitorFuelID,
			&direction,
			&comp,
			&c.ThresholdCents,
			&c.RequireBothAvailable,
		); err != nil {
			return nil, err
		}
		c.Direction = rules.Direction(strings.ToUpper(strings.TrimSpace(direction)))
		c.Comparator = rules.Comparator(strings.ToUpper(strings.TrimSpace(comp)))
		out = append(out, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// GetOwnedSites batch-loads owned sites keyed by id. Unknown ids are absent from the map.
func (s *Store) GetOwnedSites(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]rules.OwnedSite, error) {
	out := make(map[uuid.UUID]rules.OwnedSite, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, getOwnedSitesSQL, uuidStrings(ids))
	if queryErr != nil {
		return nil, fmt.Errorf("get owned sites: %w", queryErr)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			site     rules.OwnedSite
			nickname *string
		)
		if err := rows.Scan(&site.ID, &site.UserID, &site.SiteID, &nickname, &site.IsPrimary); err != nil {
			return nil, err
		}
		if nickname != nil {
			site.Nickname = *nickname
		}
		out[site.ID] = site
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// GetOrCreateTriggerState loads the state for key, creating an idle row on first access.
func (s *Store) GetOrCreateTriggerState(ctx context.Context, key rules.StateKey) (rules.TriggerState, error) {
	pool, err := s.getPool()
	if err != nil {
		return rules.TriggerState{}, err
	}

	state, err := scanTriggerState(pool.QueryRow(ctx, getTriggerStateSQL, key.UserID, key.RuleID, key.ConditionID))
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return rules.TriggerState{}, fmt.Errorf("get trigger state: %w", err)
	}

	fresh := rules.NewTriggerState(key)
	if _, err := pool.Exec(ctx, insertTriggerStateSQL, fresh.ID, key.UserID, key.RuleID, key.ConditionID); err != nil {
		return rules.TriggerState{}, fmt.Errorf("create trigger state: %w", err)
	}

	state, err = scanTriggerState(pool.QueryRow(ctx, getTriggerStateSQL, key.UserID, key.RuleID, key.ConditionID))
	if err != nil {
		return rules.TriggerState{}, fmt.Errorf("reload trigger state: %w", err)
	}
	return state, nil
}

// SaveTriggerState upserts the state by its (user, rule, condition) key.
func (s *Store) SaveTriggerState(ctx context.Context, state rules.TriggerState) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	id := state.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	_, execErr := pool.Exec(ctx, saveTriggerStateSQL,
		id,
		state.Key.UserID,
		state.Key.RuleID,
		state.Key.ConditionID,
		state.CurrentlyTriggered,
		state.LastTriggeredAt,
		state.LastNotifiedAt,
		state.LastDiffCents,
		state.UpdatedAt,
	)
	if execErr != nil {
		return fmt.Errorf("save trigger state: %w", execErr)
	}
	return nil
}

// ListTriggerStates lists the most recently updated trigger states.
func (s *Store) ListTriggerStates(ctx context.Context, limit int) ([]TriggerStateView, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listTriggerStatesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list trigger states: %w", queryErr)
	}
	defer rows.Close()

	out := make([]TriggerStateView, 0, limit)
	for rows.Next() {
		var v TriggerStateView
		if err := rows.Scan(
			&v.ID,
			&v.Key.UserID,
			&v.Key.RuleID,
			&v.Key.ConditionID,
			&v.CurrentlyTriggered,
			&v.LastTriggeredAt,
			&v.LastNotifiedAt,
			&v.LastDiffCents,
			&v.UpdatedAt,
			&v.RuleName,
			&v.OwnedSiteID,
			&v.CompetitorSiteID,
		); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func scanTriggerState(row pgx.Row) (rules.TriggerState, error) {
	var st rules.TriggerState
	err := row.Scan(
		&st.ID,
		&st.Key.UserID,
		&st.Key.RuleID,
		&st.Key.ConditionID,
		&st.CurrentlyTriggered,
		&st.LastTriggeredAt,
		&st.LastNotifiedAt,
		&st.LastDiffCents,
		&st.UpdatedAt,
	)
	return st, err
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
