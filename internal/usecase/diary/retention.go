package diary

import (
	"context"
	"fmt"

	"chat-diary-bot/internal/domain"
	"chat-diary-bot/internal/infra/metrics"
)

// Sweep удаляет записи, которые строго старше RetentionDays дней
// относительно сегодняшней даты. Даты формата YYYY-MM-DD сравниваются
// лексикографически. Ошибка одного диалога не прерывает чистку.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().In(s.cfg.Location).AddDate(0, 0, -s.cfg.RetentionDays).Format(domain.DateLayout)

	conversations, err := s.store.ListConversations()
	if err != nil {
		return 0, fmt.Errorf("перечисление диалогов: %w", err)
	}

	deleted := 0
	for _, conv := range conversations {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		dates, err := s.store.List(conv)
		if err != nil {
			s.log.Warn().Err(err).Str("conversation", conv.Key()).Msg("retention: перечисление записей")
			continue
		}
		for _, date := range dates {
			if date >= cutoff {
				continue
			}
			if err := s.store.Delete(conv, date); err != nil {
				s.log.Warn().Err(err).Str("conversation", conv.Key()).Str("date", date).Msg("retention: удаление записи")
				continue
			}
			deleted++
			metrics.RetentionDeletedTotal.Inc()
		}
	}
	if deleted > 0 {
		s.log.Info().Int("deleted", deleted).Str("cutoff", cutoff).Msg("retention: чистка завершена")
	}
	return deleted, nil
}
