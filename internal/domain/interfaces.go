package domain

import (
	"context"
	"time"
)

// RecordStore хранит записи дневника: одна запись на (диалог, дату).
type RecordStore interface {
	// Get возвращает запись и признак её наличия. Битая или невалидная
	// запись равносильна отсутствующей.
	Get(conversation Conversation, date string) (DailyRecord, bool, error)
	// Put атомарно записывает запись; при любой ошибке прежняя запись
	// остаётся нетронутой.
	Put(conversation Conversation, date string, record DailyRecord) error
	// List возвращает даты существующих записей диалога.
	List(conversation Conversation) ([]string, error)
	// ListConversations перечисляет диалоги, представленные в хранилище.
	ListConversations() ([]Conversation, error)
	// Delete удаляет запись; отсутствие записи не считается ошибкой.
	Delete(conversation Conversation, date string) error
}

// MessageSource — внешний read-only лог сырых сообщений.
type MessageSource interface {
	// FetchMessages возвращает сообщения диалога в полуинтервале [start, end)
	// в порядке отправки.
	FetchMessages(ctx context.Context, conversation Conversation, start, end time.Time) ([]Message, error)
}

// Summarizer — внешний генератор дневникового текста.
type Summarizer interface {
	// Summarize строит текст от первого лица по сообщениям; maxWords —
	// подсказка по длине, не жёсткое ограничение.
	Summarize(ctx context.Context, messages []Message, identity string, chatType ChatType, maxWords int, tier Tier) (string, error)
}

// DiaryQueue — очередь задач генерации для пула воркеров.
type DiaryQueue interface {
	Enqueue(ctx context.Context, job DiaryJob) error
	// Pop блокирующе читает следующую задачу.
	Pop(ctx context.Context) (DiaryJob, error)
}
