package rules

import "math"

// Evaluation is the outcome of one condition against current prices.
type Evaluation struct {
	Triggered bool
	// Diff is nil when either price was absent.
	Diff *int64
}

// Difference applies the direction to a pair of known prices.
func Difference(own, competitor int64, d Direction) (int64, bool) {
	switch d {
	case CompetitorMinusOwn:
		return competitor - own, true
	case OwnMinusCompetitor:
		return own - competitor, true
	default:
		return 0, false
	}
}

// Compare applies the comparator to diff and threshold. Unknown comparators never trigger.
func Compare(diff int64, c Comparator, threshold int64) bool {
	switch c {
	case GT:
		return diff > threshold
	case GTE:
		return diff >= threshold
	case LT:
		return diff < threshold
	case LTE:
		return diff <= threshold
	case AbsGT:
		return abs(diff) > threshold
	case AbsGTE:
		return abs(diff) >= threshold
	default:
		return false
	}
}

// Assess evaluates cond against the two optional prices.
// Absence of either price yields "not triggered" whatever RequireBothAvailable says.
func Assess(own, competitor *int64, cond RuleCondition) Evaluation {
	if own == nil || competitor == nil {
		return Evaluation{}
	}
	diff, ok := Difference(*own, *competitor, cond.Direction)
	if !ok {
		return Evaluation{}
	}
	return Evaluation{
		Triggered: Compare(diff, cond.Comparator, cond.ThresholdCents),
		Diff:      &diff,
	}
}

// Evaluate reports whether cond triggers for the given prices.
func Evaluate(own, competitor *int64, cond RuleCondition) bool {
	return Assess(own, competitor, cond).Triggered
}

// abs saturates at math.MaxInt64 so MinInt64 stays comparable.
func abs(v int64) int64 {
	if v == math.MinInt64 {
		return math.MaxInt64
	}
	if v < 0 {
		return -v
	}
	return v
}
