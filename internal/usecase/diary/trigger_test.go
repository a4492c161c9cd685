package diary

import (
	"testing"
	"time"

	"chat-diary-bot/internal/domain"
)

func TestShouldTriggerMessagePolicy(t *testing.T) {
	policy := ChatTypePolicy{Trigger: domain.TriggerMessage, MessageThreshold: 50, TimeInterval: 6 * time.Hour}
	state := domain.TriggerState{MessagesSinceLastSummary: 49, LastSummaryTime: testNow.Add(-time.Minute)}
	if shouldTrigger(policy, state, testNow) {
		t.Fatalf("49 сообщений из 50 не должны срабатывать")
	}
	state.MessagesSinceLastSummary = 50
	if !shouldTrigger(policy, state, testNow) {
		t.Fatalf("порог достигнут, триггер должен сработать")
	}
}

func TestShouldTriggerBothPolicy(t *testing.T) {
	policy := ChatTypePolicy{Trigger: domain.TriggerBoth, MessageThreshold: 10, TimeInterval: 6 * time.Hour}
	state := domain.TriggerState{MessagesSinceLastSummary: 100, LastSummaryTime: testNow.Add(-time.Hour)}
	if shouldTrigger(policy, state, testNow) {
		t.Fatalf("both: времени прошло мало, триггер не должен сработать")
	}
	state.LastSummaryTime = testNow.Add(-7 * time.Hour)
	if !shouldTrigger(policy, state, testNow) {
		t.Fatalf("both: оба условия выполнены")
	}
}

func TestShouldTriggerTimePolicy(t *testing.T) {
	policy := ChatTypePolicy{Trigger: domain.TriggerTime, MessageThreshold: 10, TimeInterval: 6 * time.Hour}
	state := domain.TriggerState{MessagesSinceLastSummary: 0, LastSummaryTime: testNow.Add(-6 * time.Hour)}
	if !shouldTrigger(policy, state, testNow) {
		t.Fatalf("интервал прошёл, триггер должен сработать")
	}
	state.LastSummaryTime = testNow.Add(-5 * time.Hour)
	if shouldTrigger(policy, state, testNow) {
		t.Fatalf("интервал не прошёл")
	}
}

func TestShouldTriggerZeroLastSummaryTime(t *testing.T) {
	policy := ChatTypePolicy{Trigger: domain.TriggerAny, MessageThreshold: 50, TimeInterval: 6 * time.Hour}
	state := domain.TriggerState{MessagesSinceLastSummary: 1}
	if !shouldTrigger(policy, state, testNow) {
		t.Fatalf("без прежних генераций условие по времени считается выполненным")
	}
}
