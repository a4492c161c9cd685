package bot

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"chat-diary-bot/internal/domain"
)

func TestConversationFromPrivateMessage(t *testing.T) {
	msg := &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 77, Type: "private", FirstName: "Алиса", LastName: "К"}}
	conv, ok := conversationFromMessage(msg)
	if !ok {
		t.Fatal("ожидали распознанный диалог")
	}
	if conv.ChatType != domain.ChatTypePrivate || conv.ID != "77" {
		t.Fatalf("неверный диалог: %+v", conv)
	}
	if conv.DisplayName != "Алиса К" {
		t.Fatalf("неверное имя: %q", conv.DisplayName)
	}
}

func TestConversationFromGroupMessage(t *testing.T) {
	msg := &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: -100500, Type: "supergroup", Title: "Наш чат"}}
	conv, ok := conversationFromMessage(msg)
	if !ok {
		t.Fatal("ожидали распознанный диалог")
	}
	if conv.ChatType != domain.ChatTypeGroup || conv.ID != "-100500" || conv.DisplayName != "Наш чат" {
		t.Fatalf("неверный диалог: %+v", conv)
	}
}

func TestConversationFromChannelIgnored(t *testing.T) {
	msg := &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1, Type: "channel"}}
	if _, ok := conversationFromMessage(msg); ok {
		t.Fatal("каналы не поддерживаются")
	}
}

func TestOutcomeLabels(t *testing.T) {
	if outcomeLabel(domain.OutcomeNoData) != "активности не было" {
		t.Fatalf("no_data должен описываться как отсутствие активности")
	}
	if outcomeLabel(domain.OutcomeSkipped) == outcomeLabel(domain.OutcomeNoData) {
		t.Fatalf("skipped и no_data должны различаться в ответе")
	}
}
