package domain

import "time"

// DiaryJobCause описывает источник задачи генерации.
type DiaryJobCause string

const (
	// DiaryCauseTrigger — сработала политика триггера по активности.
	DiaryCauseTrigger DiaryJobCause = "trigger"
	// DiaryCauseManual — пользователь запросил обновление командой.
	DiaryCauseManual DiaryJobCause = "manual"
)

// DiaryJob содержит задачу генерации записей дневника одного диалога.
type DiaryJob struct {
	ID          string        `json:"job_id,omitempty"`
	ChatType    ChatType      `json:"chat_type"`
	StreamID    string        `json:"stream_id"`
	DisplayName string        `json:"display_name,omitempty"`
	Identity    string        `json:"identity,omitempty"`
	Dates       []string      `json:"dates"`
	Force       bool          `json:"force"`
	Cause       DiaryJobCause `json:"cause"`
	ReplyChatID int64         `json:"reply_chat_id,omitempty"`
	RequestedAt time.Time     `json:"requested_at"`
}

// Conversation собирает идентификатор диалога задачи.
func (j DiaryJob) Conversation() Conversation {
	return Conversation{ChatType: j.ChatType, ID: j.StreamID, DisplayName: j.DisplayName}
}
