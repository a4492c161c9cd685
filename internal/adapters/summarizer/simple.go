package summarizer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chat-diary-bot/internal/domain"
)

// SimpleSummarizer реализует доменный интерфейс Summarizer эвристикой:
// короткая хроника дня без LLM. Используется когда не задан API ключ.
type SimpleSummarizer struct {
	loc *time.Location
}

var _ domain.Summarizer = (*SimpleSummarizer)(nil)

// NewSimple создаёт Summarizer.
func NewSimple(loc *time.Location) *SimpleSummarizer {
	if loc == nil {
		loc = time.Local
	}
	return &SimpleSummarizer{loc: loc}
}

// Summarize собирает выдержку: первые и последние реплики дня с
// отметками времени, обрезанные по лимиту слов.
func (s *SimpleSummarizer) Summarize(_ context.Context, messages []domain.Message, _ string, _ domain.ChatType, maxWords int, _ domain.Tier) (string, error) {
	if len(messages) == 0 {
		return "", nil
	}

	picked := messages
	if len(picked) > 10 {
		head := picked[:5]
		tail := picked[len(picked)-5:]
		picked = append(append([]domain.Message{}, head...), tail...)
	}

	lines := make([]string, 0, len(picked)+1)
	lines = append(lines, fmt.Sprintf("这段时间一共聊了%d条消息。", len(messages)))
	for _, m := range picked {
		sender := m.Sender
		if sender == "" {
			sender = "未知"
		}
		line := fmt.Sprintf("%s说：%s", sender, truncate(m.Content, 60))
		if !m.SentAt.IsZero() {
			line = fmt.Sprintf("%s左右，%s", m.SentAt.In(s.loc).Format("15:04"), line)
		}
		lines = append(lines, line)
	}
	return truncate(strings.Join(lines, "\n"), maxWords), nil
}

func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
