package rules

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func testKey() StateKey {
	return StateKey{UserID: uuid.New(), RuleID: uuid.New(), ConditionID: uuid.New()}
}

func triggered(diff int64) Evaluation { return Evaluation{Triggered: true, Diff: &diff} }

func TestDecideIdleToActiveNotifies(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	state := NewTriggerState(testKey())

	next, notify := Decide(state, triggered(100), now, DefaultCooldown)
	if !notify {
		t.Fatal("IDLE -> ACTIVE must notify")
	}
	if next.Phase() != Active {
		t.Fatalf("phase = %s", next.Phase())
	}
	if next.LastTriggeredAt == nil || !next.LastTriggeredAt.Equal(now) {
		t.Fatalf("last triggered = %v", next.LastTriggeredAt)
	}
	if next.LastNotifiedAt == nil || !next.LastNotifiedAt.Equal(now) {
		t.Fatalf("last notified = %v", next.LastNotifiedAt)
	}
	if next.LastDiffCents == nil || *next.LastDiffCents != 100 {
		t.Fatalf("last diff = %v", next.LastDiffCents)
	}
}

func TestDecideCooldown(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	state, _ := Decide(NewTriggerState(testKey()), triggered(100), start, DefaultCooldown)

	later, notify := Decide(state, triggered(100), start.Add(10*time.Minute), DefaultCooldown)
	if notify {
		t.Fatal("inside cooldown must not notify")
	}
	if !later.LastTriggeredAt.Equal(start) {
		t.Fatal("last triggered must not move while active")
	}
	if !later.LastNotifiedAt.Equal(start) {
		t.Fatal("last notified must not move without a notification")
	}

	after := start.Add(31 * time.Minute)
	final, notify := Decide(later, triggered(100), after, DefaultCooldown)
	if !notify {
		t.Fatal("cooldown elapsed must notify")
	}
	if !final.LastNotifiedAt.Equal(after) {
		t.Fatalf("last notified = %v", final.LastNotifiedAt)
	}
	if !final.LastTriggeredAt.Equal(start) {
		t.Fatal("re-notification must keep the original trigger time")
	}
}

func TestDecideActiveWithoutNotificationStamp(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	state := NewTriggerState(testKey())
	state.CurrentlyTriggered = true

	_, notify := Decide(state, triggered(5), now, DefaultCooldown)
	if !notify {
		t.Fatal("active state without last notified must notify")
	}
}

func TestDecideClearKeepsAuditTrail(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	state, _ := Decide(NewTriggerState(testKey()), triggered(100), start, DefaultCooldown)

	cleared, notify := Decide(state, Evaluation{}, start.Add(time.Minute), DefaultCooldown)
	if notify {
		t.Fatal("ACTIVE -> IDLE must not notify")
	}
	if cleared.Phase() != Idle {
		t.Fatalf("phase = %s", cleared.Phase())
	}
	if cleared.LastTriggeredAt == nil || cleared.LastNotifiedAt == nil {
		t.Fatal("timestamps must survive the clear")
	}
	if cleared.LastDiffCents == nil || *cleared.LastDiffCents != 100 {
		t.Fatal("last diff must survive an evaluation without prices")
	}

	again, notify := Decide(cleared, triggered(80), start.Add(2*time.Minute), DefaultCooldown)
	if !notify {
		t.Fatal("re-entering ACTIVE must notify regardless of cooldown")
	}
	if !again.LastTriggeredAt.Equal(start.Add(2 * time.Minute)) {
		t.Fatal("re-entering ACTIVE must stamp a new trigger time")
	}
}

func TestDecideIdleStaysIdle(t *testing.T) {
	state := NewTriggerState(testKey())
	next, notify := Decide(state, Evaluation{}, time.Now(), DefaultCooldown)
	if notify || next.CurrentlyTriggered {
		t.Fatal("IDLE -> IDLE must be silent")
	}
	if next.LastTriggeredAt != nil || next.LastNotifiedAt != nil {
		t.Fatal("IDLE -> IDLE must not stamp timestamps")
	}
}
