package summarizer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chat-diary-bot/internal/domain"
	openai "chat-diary-bot/internal/infra/openai"
)

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAI пишет дневниковые записи от первого лица через OpenAI Chat
// Completions. Лимит слов — подсказка модели, а не жёсткая обрезка.
type OpenAI struct {
	client        chatClient
	model         string
	timeout       time.Duration
	loc           *time.Location
	contextLimitK int
	now           func() time.Time
}

var _ domain.Summarizer = (*OpenAI)(nil)

// NewOpenAI создаёт суммаризатор. contextLimitK — потолок длины
// транскрипта в тысячах символов.
func NewOpenAI(client chatClient, model string, timeout time.Duration, loc *time.Location, contextLimitK int) *OpenAI {
	if model == "" {
		model = "gpt-4.1-mini"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if loc == nil {
		loc = time.Local
	}
	if contextLimitK <= 0 {
		contextLimitK = 100
	}
	return &OpenAI{client: client, model: model, timeout: timeout, loc: loc, contextLimitK: contextLimitK, now: time.Now}
}

// Summarize строит запись дневника по сообщениям одного дня.
func (s *OpenAI) Summarize(ctx context.Context, messages []domain.Message, identity string, chatType domain.ChatType, maxWords int, tier domain.Tier) (string, error) {
	if len(messages) == 0 {
		return "", nil
	}

	words, period := s.wordLimit(maxWords, tier)
	transcript := clipRunes(formatTranscript(messages, s.loc), s.contextLimitK*1000)
	prompt := buildDiaryPrompt(transcript, identity, chatType, words, period, len(messages))

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: 0.3,
		MaxTokens:   int(float64(words) * 2.5),
		Messages: []openai.ChatMessage{
			{Role: openai.RoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai completion: пустой ответ")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// wordLimit масштабирует лимит слов сегодняшней записи по времени суток:
// утром день только начался и запись короче.
func (s *OpenAI) wordLimit(base int, tier domain.Tier) (int, string) {
	if tier != domain.TierToday {
		return base, "历史"
	}
	switch hour := s.now().In(s.loc).Hour(); {
	case hour < 8:
		return int(float64(base) * 0.33), "早上"
	case hour < 16:
		return int(float64(base) * 0.67), "中午"
	default:
		return base, "晚上"
	}
}

func formatTranscript(messages []domain.Message, loc *time.Location) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		sender := m.Sender
		if sender == "" {
			sender = "未知"
		}
		if m.SentAt.IsZero() {
			lines = append(lines, fmt.Sprintf("%s: %s", sender, m.Content))
			continue
		}
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", m.SentAt.In(loc).Format("15:04"), sender, m.Content))
	}
	return strings.Join(lines, "\n")
}

func buildDiaryPrompt(transcript, identity string, chatType domain.ChatType, maxWords int, period string, messageCount int) string {
	scene, sceneDesc := "私聊", "和对方"
	if chatType == domain.ChatTypeGroup {
		scene, sceneDesc = "群聊", "群里和大家"
	}

	var timeHint string
	switch period {
	case "早上":
		timeHint = fmt.Sprintf("现在是%s，今天刚开始。", period)
	case "中午":
		timeHint = fmt.Sprintf("现在是%s，今天过了一半。", period)
	case "历史":
		timeHint = "这是历史记忆的整理。"
	default:
		timeHint = fmt.Sprintf("现在是%s，一天快结束了。", period)
	}

	return fmt.Sprintf(`用第一人称（"我"）整理在%s里发生的事情，作为自己的记忆片段。这些记忆之后会帮助你回忆起这段时间发生了什么。

## 你是谁
%s

## %s的对话记录（共%d条消息）
%s

---

## 整理原则（重要！）

**核心目标：信息完整性 > 字数控制**

1. **必须记录的内容**（不能遗漏）：
   - 讨论的主要话题和结论
   - 重要的事件、决定、约定
   - 有意义的对话内容和观点
   - 涉及到的人名和他们说了什么重要的话
   - 时间节点（大概几点发生的事）

2. **可以省略的内容**：
   - 重复的寒暄和水话
   - 表情包、无意义的回复
   - 完全相同话题的重复讨论

3. **格式要求**：
   - 自然、口语化，像脑海里回想
   - 按时间顺序组织
   - 符合你的人设和表达方式

## 字数说明
%s
- 字数上限：%d字
- **原则：宁可多写确保完整，也不要为了省字数丢失信息**
- 如果对话内容确实很少，那就简短写；如果内容丰富，就详细写
- 不要刻意凑字数，但也不要刻意省略重要信息

现在开始整理记忆：
`, scene, identity, sceneDesc, messageCount, transcript, timeHint, maxWords)
}

func clipRunes(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
