package diary

import (
	"context"

	"chat-diary-bot/internal/domain"
	"chat-diary-bot/internal/infra/metrics"
)

// StartupCheck обходит все диалоги хранилища и дозаполняет пропуски за
// вчера и позавчера у активных диалогов. Активен диалог с валидной
// сегодняшней записью; сегодняшняя запись никогда не создаётся и не
// трогается. Ошибка одного диалога не прерывает обход.
func (s *Service) StartupCheck(ctx context.Context) {
	conversations, err := s.store.ListConversations()
	if err != nil {
		s.log.Error().Err(err).Msg("scanner: перечисление диалогов")
		return
	}
	for _, conv := range conversations {
		if err := ctx.Err(); err != nil {
			return
		}
		s.backfill(ctx, conv)
	}
}

// OnFirstAccess выполняет ту же проверку при первом обращении к диалогу,
// не чаще одного раза за жизнь процесса. После рестарта флаг сбрасывается,
// повторный прогон безопасен за счёт идемпотентности генерации.
func (s *Service) OnFirstAccess(ctx context.Context, conv domain.Conversation) {
	s.mu.Lock()
	done := s.checked[conv.Key()]
	if !done {
		s.checked[conv.Key()] = true
	}
	s.mu.Unlock()
	if done {
		return
	}
	s.backfill(ctx, conv)
}

func (s *Service) backfill(ctx context.Context, conv domain.Conversation) {
	today, yesterday, dayBefore := Classify(s.now(), s.cfg.Location)

	todayRec, active, err := s.store.Get(conv, today)
	if err != nil {
		s.log.Warn().Err(err).Str("conversation", conv.Key()).Msg("scanner: чтение сегодняшней записи")
		return
	}
	if !active {
		return
	}

	identity := todayRec.Metadata.Identity
	for _, date := range []string{yesterday, dayBefore} {
		_, exists, err := s.store.Get(conv, date)
		if err != nil {
			s.log.Warn().Err(err).Str("conversation", conv.Key()).Str("date", date).Msg("scanner: чтение записи")
			continue
		}
		if exists {
			continue
		}
		outcome, err := s.Generate(ctx, conv, date, identity, false)
		if err != nil {
			s.log.Warn().Err(err).Str("conversation", conv.Key()).Str("date", date).Msg("scanner: дозаполнение не удалось")
			continue
		}
		if outcome == domain.OutcomeGenerated {
			metrics.ScannerBackfillsTotal.Inc()
			s.log.Info().Str("conversation", conv.Key()).Str("date", date).Msg("scanner: запись дозаполнена")
		}
	}
}
