package diary

import (
	"strings"

	"chat-diary-bot/internal/domain"
)

const (
	promptHeader = "【你的日记回顾】\n（以下是你用自己的视角记录的最近对话经历）"
	promptFooter = "\n\n---\n（以下是最近的原始对话）"

	sectionToday     = "【今天】"
	sectionYesterday = "【昨天】"
	sectionDayBefore = "【前天】"
)

// BuildPrompt собирает текстовый блок дневника из записей за сегодня,
// вчера и позавчера. Отсутствующие дни опускаются без висячих
// разделителей; без единой записи возвращается пустая строка. Блок
// подставляется в промпт дословно, формат фиксирован.
func (s *Service) BuildPrompt(conv domain.Conversation) string {
	today, yesterday, dayBefore := Classify(s.now(), s.cfg.Location)

	headers := []string{sectionToday, sectionYesterday, sectionDayBefore}
	dates := []string{today, yesterday, dayBefore}

	var sections []string
	for i, date := range dates {
		rec, exists, err := s.store.Get(conv, date)
		if err != nil {
			s.log.Warn().Err(err).Str("conversation", conv.Key()).Str("date", date).Msg("чтение записи для промпта")
			continue
		}
		if !exists {
			continue
		}
		sections = append(sections, headers[i]+"\n"+rec.Summary.Content)
	}
	if len(sections) == 0 {
		return ""
	}
	return promptHeader + "\n\n" + strings.Join(sections, "\n\n---\n\n") + promptFooter
}
