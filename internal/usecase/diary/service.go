package diary

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"chat-diary-bot/internal/domain"
	"chat-diary-bot/internal/infra/metrics"
)

// ErrEmptySummary возвращается если суммаризатор отработал без ошибки,
// но вернул пустой текст.
var ErrEmptySummary = errors.New("суммаризатор вернул пустой текст")

// Config — настройки сервиса дневника.
type Config struct {
	Identity         string
	Location         *time.Location
	RetentionDays    int
	Policies         map[domain.ChatType]ChatTypePolicy
	EnabledChatTypes map[domain.ChatType]bool
}

// Service реализует генерацию, триггеры, сканер и сборку блока дневника.
// Генерация и счётчики одного диалога сериализуются на мьютексе из locks.
type Service struct {
	store      domain.RecordStore
	source     domain.MessageSource
	summarizer domain.Summarizer
	cfg        Config
	log        zerolog.Logger
	now        func() time.Time

	locks *lockRegistry

	mu       sync.Mutex
	triggers map[string]*domain.TriggerState
	outcomes map[string]domain.Outcome
	checked  map[string]bool
	inFlight map[string]bool
}

// NewService создаёт сервис дневника.
func NewService(store domain.RecordStore, source domain.MessageSource, summarizer domain.Summarizer, cfg Config, logger zerolog.Logger) *Service {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Service{
		store:      store,
		source:     source,
		summarizer: summarizer,
		cfg:        cfg,
		log:        logger,
		now:        time.Now,
		locks:      newLockRegistry(),
		triggers:   make(map[string]*domain.TriggerState),
		outcomes:   make(map[string]domain.Outcome),
		checked:    make(map[string]bool),
		inFlight:   make(map[string]bool),
	}
}

func outcomeKey(conv domain.Conversation, date string) string {
	return conv.Key() + "/" + date
}

// Generate строит запись дневника за один календарный день.
// Без force существующая валидная запись не перезаписывается.
func (s *Service) Generate(ctx context.Context, conv domain.Conversation, date, identity string, force bool) (domain.Outcome, error) {
	lock := s.locks.forKey(conv.Key())
	lock.Lock()
	defer lock.Unlock()

	started := time.Now()
	tier := TierFor(date, s.now(), s.cfg.Location)
	outcome, err := s.generateLocked(ctx, conv, date, identity, tier, force)
	metrics.ObserveDiaryBuild(started, string(outcome), string(tier))
	if outcome != "" {
		s.mu.Lock()
		s.outcomes[outcomeKey(conv, date)] = outcome
		s.mu.Unlock()
	}
	if tier == domain.TierToday {
		s.mu.Lock()
		delete(s.inFlight, conv.Key())
		s.mu.Unlock()
	}
	return outcome, err
}

func (s *Service) generateLocked(ctx context.Context, conv domain.Conversation, date, identity string, tier domain.Tier, force bool) (domain.Outcome, error) {
	prior, exists, err := s.store.Get(conv, date)
	if err != nil {
		s.log.Warn().Err(err).Str("conversation", conv.Key()).Str("date", date).Msg("чтение записи перед генерацией")
		exists = false
	}
	if !force && exists {
		return domain.OutcomeSkipped, nil
	}

	now := s.now()
	start, end, err := WindowFor(date, now, s.cfg.Location)
	if err != nil {
		return "", err
	}

	messages, err := s.source.FetchMessages(ctx, conv, start, end)
	if err != nil {
		return domain.OutcomeSourceFailed, fmt.Errorf("чтение сообщений: %w", err)
	}
	if len(messages) == 0 {
		return domain.OutcomeNoData, nil
	}

	if identity == "" {
		identity = s.cfg.Identity
	}
	maxWords := s.cfg.Policies[conv.ChatType].MaxWords[tier]

	text, err := s.summarizer.Summarize(ctx, messages, identity, conv.ChatType, maxWords, tier)
	if err != nil {
		return domain.OutcomeSummarizerFailed, fmt.Errorf("суммаризация: %w", err)
	}
	if text == "" {
		return domain.OutcomeSummarizerFailed, ErrEmptySummary
	}

	now = s.now()
	createdAt := now
	if exists {
		createdAt = prior.Summary.CreatedAt
	}
	record := domain.DailyRecord{
		Date: date,
		Summary: domain.RecordSummary{
			Content:      text,
			MessageCount: len(messages),
			WordCount:    utf8.RuneCountInString(text),
			CreatedAt:    createdAt,
			UpdatedAt:    now,
		},
		LastSummaryTime: now,
		Metadata: domain.RecordMetadata{
			Identity: identity,
			ChatType: conv.ChatType,
			StreamID: conv.ID,
		},
	}

	// Отменённый вызов не должен доходить до записи; начатая запись
	// атомарна и выполняется до конца.
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("генерация прервана: %w", err)
	}
	if err := s.store.Put(conv, date, record); err != nil {
		return domain.OutcomeStorageFailed, fmt.Errorf("сохранение записи: %w", err)
	}

	if tier == domain.TierToday {
		st := s.triggerState(conv)
		st.MessagesSinceLastSummary = 0
		st.LastSummaryTime = now
	}
	return domain.OutcomeGenerated, nil
}

// triggerState возвращает счётчики диалога, создавая их при первом
// обращении. LastSummaryTime засеивается из сегодняшней записи, чтобы
// рестарт процесса не сбрасывал таймер.
func (s *Service) triggerState(conv domain.Conversation) *domain.TriggerState {
	s.mu.Lock()
	st, ok := s.triggers[conv.Key()]
	s.mu.Unlock()
	if ok {
		return st
	}

	st = &domain.TriggerState{}
	today, _, _ := Classify(s.now(), s.cfg.Location)
	if rec, exists, err := s.store.Get(conv, today); err == nil && exists {
		st.LastSummaryTime = rec.LastSummaryTime
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.triggers[conv.Key()]; ok {
		return cur
	}
	s.triggers[conv.Key()] = st
	return st
}

// OnMessage учитывает входящее сообщение диалога и сообщает, пора ли
// ставить задачу генерации «сегодняшней» записи.
func (s *Service) OnMessage(conv domain.Conversation) bool {
	if !s.cfg.EnabledChatTypes[conv.ChatType] {
		return false
	}
	lock := s.locks.forKey(conv.Key())
	lock.Lock()
	defer lock.Unlock()

	st := s.triggerState(conv)
	st.MessagesSinceLastSummary++

	if !shouldTrigger(s.cfg.Policies[conv.ChatType], *st, s.now()) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[conv.Key()] {
		return false
	}
	s.inFlight[conv.Key()] = true
	return true
}

// ResetInFlight снимает отметку поставленной задачи. Вызывается, если
// постановка в очередь не удалась и триггер должен сработать снова.
func (s *Service) ResetInFlight(conv domain.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, conv.Key())
}

// PendingCount возвращает число сообщений с последней генерации.
func (s *Service) PendingCount(conv domain.Conversation) int {
	lock := s.locks.forKey(conv.Key())
	lock.Lock()
	defer lock.Unlock()
	return s.triggerState(conv).MessagesSinceLastSummary
}

// RefreshAll принудительно перегенерирует записи всех трёх дат.
// Ошибка одной даты не прерывает остальные.
func (s *Service) RefreshAll(ctx context.Context, conv domain.Conversation, identity string) (map[string]domain.Outcome, error) {
	today, yesterday, dayBefore := Classify(s.now(), s.cfg.Location)
	results := make(map[string]domain.Outcome, 3)
	var errs []error
	for _, date := range []string{today, yesterday, dayBefore} {
		outcome, err := s.Generate(ctx, conv, date, identity, true)
		results[date] = outcome
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", date, err))
		}
	}
	return results, errors.Join(errs...)
}

// Пометки отсутствующего дня в статусе.
const (
	NoteNoActivity = "no_activity"
	NoteNotChecked = "not_checked"
)

// DayStatus — состояние записи одного дня.
type DayStatus struct {
	Date         string      `json:"date"`
	Tier         domain.Tier `json:"tier"`
	Present      bool        `json:"present"`
	MessageCount int         `json:"message_count,omitempty"`
	WordCount    int         `json:"word_count,omitempty"`
	UpdatedAt    time.Time   `json:"updated_at,omitempty"`
	Note         string      `json:"note,omitempty"`
}

// StatusReport — сводка по трём дням диалога и накопленным сообщениям.
type StatusReport struct {
	Days            []DayStatus `json:"days"`
	PendingMessages int         `json:"pending_messages"`
}

// Status возвращает честное состояние трёх записей: отсутствующий день
// помечается «нет активности» или «ещё не проверялся», без заглушек.
func (s *Service) Status(conv domain.Conversation) StatusReport {
	now := s.now()
	today, yesterday, dayBefore := Classify(now, s.cfg.Location)

	report := StatusReport{Days: make([]DayStatus, 0, 3)}
	for _, date := range []string{today, yesterday, dayBefore} {
		day := DayStatus{Date: date, Tier: TierFor(date, now, s.cfg.Location)}
		rec, exists, err := s.store.Get(conv, date)
		if err != nil {
			s.log.Warn().Err(err).Str("conversation", conv.Key()).Str("date", date).Msg("чтение записи для статуса")
		}
		if exists {
			day.Present = true
			day.MessageCount = rec.Summary.MessageCount
			day.WordCount = rec.Summary.WordCount
			day.UpdatedAt = rec.Summary.UpdatedAt
		} else {
			s.mu.Lock()
			last := s.outcomes[outcomeKey(conv, date)]
			s.mu.Unlock()
			if last == domain.OutcomeNoData {
				day.Note = NoteNoActivity
			} else {
				day.Note = NoteNotChecked
			}
		}
		report.Days = append(report.Days, day)
	}
	report.PendingMessages = s.PendingCount(conv)
	return report
}
