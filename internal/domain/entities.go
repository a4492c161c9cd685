package domain

import (
	"errors"
	"time"
)

// DateLayout — формат календарной даты записи.
const DateLayout = "2006-01-02"

// ChatType описывает тип диалога.
type ChatType string

const (
	// ChatTypeGroup — групповой чат.
	ChatTypeGroup ChatType = "group"
	// ChatTypePrivate — личный диалог.
	ChatTypePrivate ChatType = "private"
)

// Valid сообщает, известен ли тип диалога.
func (t ChatType) Valid() bool {
	return t == ChatTypeGroup || t == ChatTypePrivate
}

// Conversation идентифицирует диалог в хранилище и логе сообщений.
type Conversation struct {
	ChatType    ChatType
	ID          string
	DisplayName string
}

// Key возвращает устойчивый ключ диалога для блокировок и кэшей.
func (c Conversation) Key() string {
	return string(c.ChatType) + ":" + c.ID
}

// Message — одно сырое сообщение из внешнего лога.
type Message struct {
	SentAt  time.Time
	Sender  string
	Content string
}

// Tier классифицирует дату относительно «сегодня».
type Tier string

const (
	// TierToday — текущий день.
	TierToday Tier = "today"
	// TierYesterday — вчерашний день.
	TierYesterday Tier = "yesterday"
	// TierOlder — позавчера и старше.
	TierOlder Tier = "older"
)

// RecordSummary содержит сгенерированный текст дневника за день.
type RecordSummary struct {
	Content      string    `json:"content"`
	MessageCount int       `json:"message_count"`
	WordCount    int       `json:"word_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RecordMetadata описывает диалог, для которого сделана запись.
type RecordMetadata struct {
	Identity string   `json:"identity"`
	ChatType ChatType `json:"chat_type"`
	StreamID string   `json:"stream_id"`
}

// DailyRecord — одна запись дневника: один диалог, один календарный день.
type DailyRecord struct {
	Date            string         `json:"date"`
	Summary         RecordSummary  `json:"summary"`
	LastSummaryTime time.Time      `json:"last_summary_time"`
	Metadata        RecordMetadata `json:"metadata"`
}

var errInvalidRecord = errors.New("запись дневника не прошла валидацию")

// Validate проверяет строгую форму записи. Запись, не прошедшая проверку,
// на чтении трактуется как отсутствующая.
func (r DailyRecord) Validate() error {
	if _, err := time.Parse(DateLayout, r.Date); err != nil {
		return errInvalidRecord
	}
	if r.Summary.Content == "" {
		return errInvalidRecord
	}
	if r.Summary.CreatedAt.IsZero() || r.Summary.UpdatedAt.IsZero() {
		return errInvalidRecord
	}
	if !r.Metadata.ChatType.Valid() {
		return errInvalidRecord
	}
	return nil
}

// TriggerPolicy — правило запуска генерации «сегодняшней» записи.
type TriggerPolicy string

const (
	// TriggerMessage — по числу накопленных сообщений.
	TriggerMessage TriggerPolicy = "message"
	// TriggerTime — по времени с последней генерации.
	TriggerTime TriggerPolicy = "time"
	// TriggerBoth — оба условия одновременно.
	TriggerBoth TriggerPolicy = "both"
	// TriggerAny — любое из условий.
	TriggerAny TriggerPolicy = "any"
)

// Valid сообщает, известна ли политика.
func (p TriggerPolicy) Valid() bool {
	switch p {
	case TriggerMessage, TriggerTime, TriggerBoth, TriggerAny:
		return true
	}
	return false
}

// TriggerState — счётчики одного диалога между генерациями.
type TriggerState struct {
	MessagesSinceLastSummary int
	LastSummaryTime          time.Time
}

// Outcome — результат одного вызова генератора.
type Outcome string

const (
	// OutcomeGenerated — запись создана или перезаписана.
	OutcomeGenerated Outcome = "generated"
	// OutcomeSkipped — валидная запись уже есть, force не задан.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeNoData — в окне нет сообщений, запись не создана.
	OutcomeNoData Outcome = "no_data"
	// OutcomeSourceFailed — не удалось прочитать сообщения из лога.
	OutcomeSourceFailed Outcome = "source_failed"
	// OutcomeSummarizerFailed — внешний суммаризатор вернул ошибку или пустой текст.
	OutcomeSummarizerFailed Outcome = "summarizer_failed"
	// OutcomeStorageFailed — атомарная запись на диск не завершилась.
	OutcomeStorageFailed Outcome = "storage_failed"
)
