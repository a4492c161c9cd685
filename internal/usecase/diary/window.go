package diary

import (
	"fmt"
	"time"

	"chat-diary-bot/internal/domain"
)

// Classify возвращает три отслеживаемые календарные даты относительно now.
func Classify(now time.Time, loc *time.Location) (today, yesterday, dayBefore string) {
	local := now.In(loc)
	today = local.Format(domain.DateLayout)
	yesterday = local.AddDate(0, 0, -1).Format(domain.DateLayout)
	dayBefore = local.AddDate(0, 0, -2).Format(domain.DateLayout)
	return today, yesterday, dayBefore
}

// WindowFor возвращает полуинтервал [start, end) календарного дня date.
// Для текущего дня end равен now: окно растёт в течение дня.
func WindowFor(date string, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation(domain.DateLayout, date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("некорректная дата %q: %w", date, err)
	}
	start := day
	end := day.AddDate(0, 0, 1)
	if date == now.In(loc).Format(domain.DateLayout) {
		end = now.In(loc)
	}
	return start, end, nil
}

// TierFor классифицирует дату относительно «сегодня».
func TierFor(date string, now time.Time, loc *time.Location) domain.Tier {
	today, yesterday, _ := Classify(now, loc)
	switch date {
	case today:
		return domain.TierToday
	case yesterday:
		return domain.TierYesterday
	}
	return domain.TierOlder
}
