package diary

import (
	"time"

	"chat-diary-bot/internal/domain"
)

// ChatTypePolicy — политика триггера и таблица лимитов слов одного типа диалога.
type ChatTypePolicy struct {
	Trigger          domain.TriggerPolicy
	MessageThreshold int
	TimeInterval     time.Duration
	MaxWords         map[domain.Tier]int
}

// triggerTable сводит четыре политики к комбинации двух условий.
var triggerTable = map[domain.TriggerPolicy]func(countOK, timeOK bool) bool{
	domain.TriggerMessage: func(countOK, _ bool) bool { return countOK },
	domain.TriggerTime:    func(_, timeOK bool) bool { return timeOK },
	domain.TriggerBoth:    func(countOK, timeOK bool) bool { return countOK && timeOK },
	domain.TriggerAny:     func(countOK, timeOK bool) bool { return countOK || timeOK },
}

// shouldTrigger решает, пора ли перегенерировать «сегодняшнюю» запись.
// Нулевое LastSummaryTime означает, что генерации ещё не было: условие
// по времени считается выполненным.
func shouldTrigger(policy ChatTypePolicy, state domain.TriggerState, now time.Time) bool {
	eval, ok := triggerTable[policy.Trigger]
	if !ok {
		eval = triggerTable[domain.TriggerAny]
	}
	countOK := state.MessagesSinceLastSummary >= policy.MessageThreshold
	timeOK := state.LastSummaryTime.IsZero() || now.Sub(state.LastSummaryTime) >= policy.TimeInterval
	return eval(countOK, timeOK)
}
