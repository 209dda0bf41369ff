package rules

import "time"

// DefaultCooldown is the minimum gap between repeat notifications.
const DefaultCooldown = 30 * time.Minute

// Phase is the coarse state of a trigger state record.
type Phase string

const (
	Idle   Phase = "IDLE"
	Active Phase = "ACTIVE"
)

// Phase reports IDLE or ACTIVE.
func (s TriggerState) Phase() Phase {
	if s.CurrentlyTriggered {
		return Active
	}
	return Idle
}

// Decide applies one evaluation to prev and reports whether a notification must go out.
//
//	IDLE   -> ACTIVE  notify, stamp last triggered
//	ACTIVE -> ACTIVE  notify only once the cooldown has elapsed
//	*      -> IDLE    never notify, timestamps are kept
func Decide(prev TriggerState, eval Evaluation, now time.Time, cooldown time.Duration) (TriggerState, bool) {
	next := prev
	next.UpdatedAt = now
	if eval.Diff != nil {
		diff := *eval.Diff
		next.LastDiffCents = &diff
	}

	if !eval.Triggered {
		next.CurrentlyTriggered = false
		return next, false
	}

	notify := false
	if !prev.CurrentlyTriggered {
		stamp := now
		next.LastTriggeredAt = &stamp
		notify = true
	} else if prev.LastNotifiedAt == nil || now.Sub(*prev.LastNotifiedAt) >= cooldown {
		notify = true
	}

	next.CurrentlyTriggered = true
	if notify {
		stamp := now
		next.LastNotifiedAt = &stamp
	}
	return next, notify
}
