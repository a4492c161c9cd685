package bot

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chat-diary-bot/internal/adapters/telegram"
	"chat-diary-bot/internal/domain"
	"chat-diary-bot/internal/infra/metrics"
	"chat-diary-bot/internal/usecase/diary"
)

// Handler обслуживает вебхук бота: команды дневника и учёт активности.
type Handler struct {
	bot      *tgbotapi.BotAPI
	log      zerolog.Logger
	diary    *diary.Service
	jobs     domain.DiaryQueue
	identity string
	enabled  map[domain.ChatType]bool
}

// NewHandler создаёт обработчик.
func NewHandler(bot *tgbotapi.BotAPI, log zerolog.Logger, diaryUC *diary.Service, jobs domain.DiaryQueue, identity string, enabled map[domain.ChatType]bool) *Handler {
	return &Handler{bot: bot, log: log, diary: diaryUC, jobs: jobs, identity: identity, enabled: enabled}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message == nil {
		return
	}
	h.handleMessage(ctx, upd.Message)
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	conv, ok := conversationFromMessage(msg)
	if !ok {
		return
	}
	text := strings.TrimSpace(msg.Text)

	switch {
	case strings.HasPrefix(text, "/start"):
		h.reply(msg.Chat.ID, "Привет! Я веду дневник этого диалога: раз в несколько часов записываю, о чём шла речь. Команды: /help")
	case strings.HasPrefix(text, "/help"):
		h.reply(msg.Chat.ID, h.buildHelpMessage())
	case strings.HasPrefix(text, "/diary_status"):
		h.handleStatus(ctx, msg.Chat.ID, conv)
	case strings.HasPrefix(text, "/diary_refresh"):
		h.handleRefresh(ctx, msg.Chat.ID, conv)
	case strings.HasPrefix(text, "/diary_show"):
		h.handleShow(ctx, msg.Chat.ID, conv)
	case strings.HasPrefix(text, "/diary_pending"):
		h.handlePending(msg.Chat.ID, conv)
	case strings.HasPrefix(text, "/"):
		// незнакомые команды не учитываются как активность
	default:
		h.handleActivity(ctx, conv)
	}
}

func (h *Handler) buildHelpMessage() string {
	return strings.Join([]string{
		"Команды дневника:",
		"/diary_status — состояние записей за три дня",
		"/diary_refresh — перегенерировать все три записи",
		"/diary_show — показать собранный блок дневника",
		"/diary_pending — сколько сообщений накопилось",
	}, "\n")
}

// handleActivity учитывает обычное сообщение и ставит задачу генерации,
// когда срабатывает политика триггера.
func (h *Handler) handleActivity(ctx context.Context, conv domain.Conversation) {
	if !h.enabled[conv.ChatType] {
		return
	}
	h.diary.OnFirstAccess(ctx, conv)
	if !h.diary.OnMessage(conv) {
		return
	}
	job := h.newJob(conv, domain.DiaryCauseTrigger, 0)
	if err := h.jobs.Enqueue(ctx, job); err != nil {
		h.diary.ResetInFlight(conv)
		h.log.Error().Err(err).Str("conversation", conv.Key()).Msg("постановка задачи по триггеру")
	}
}

func (h *Handler) handleStatus(ctx context.Context, chatID int64, conv domain.Conversation) {
	if !h.requireEnabled(chatID, conv) {
		return
	}
	h.diary.OnFirstAccess(ctx, conv)
	report := h.diary.Status(conv)

	lines := []string{"Дневник диалога:"}
	for _, day := range report.Days {
		label := tierLabel(day.Tier)
		switch {
		case day.Present:
			lines = append(lines, fmt.Sprintf("%s (%s): %d слов по %d сообщениям, обновлено %s",
				day.Date, label, day.WordCount, day.MessageCount, day.UpdatedAt.Format("15:04")))
		case day.Note == diary.NoteNoActivity:
			lines = append(lines, fmt.Sprintf("%s (%s): активности не было", day.Date, label))
		default:
			lines = append(lines, fmt.Sprintf("%s (%s): ещё не проверялось", day.Date, label))
		}
	}
	lines = append(lines, fmt.Sprintf("Накоплено сообщений с последней записи: %d", report.PendingMessages))
	h.reply(chatID, strings.Join(lines, "\n"))
}

func (h *Handler) handleRefresh(ctx context.Context, chatID int64, conv domain.Conversation) {
	if !h.requireEnabled(chatID, conv) {
		return
	}
	job := h.newJob(conv, domain.DiaryCauseManual, chatID)
	if err := h.jobs.Enqueue(ctx, job); err != nil {
		h.log.Error().Err(err).Str("conversation", conv.Key()).Msg("постановка задачи обновления")
		h.reply(chatID, "Не удалось запустить обновление, попробуйте позже")
		return
	}
	h.reply(chatID, "Обновляю записи за три дня, это займёт немного времени")
}

func (h *Handler) handleShow(ctx context.Context, chatID int64, conv domain.Conversation) {
	if !h.requireEnabled(chatID, conv) {
		return
	}
	h.diary.OnFirstAccess(ctx, conv)
	block := h.diary.BuildPrompt(conv)
	if block == "" {
		h.reply(chatID, "Записей пока нет — дневник появится после первой генерации")
		return
	}
	h.reply(chatID, block)
}

func (h *Handler) handlePending(chatID int64, conv domain.Conversation) {
	if !h.requireEnabled(chatID, conv) {
		return
	}
	h.reply(chatID, fmt.Sprintf("Накоплено сообщений с последней записи: %d", h.diary.PendingCount(conv)))
}

// NotifyRefresh сообщает о результатах ручного обновления. Вызывается
// воркером после выполнения задачи.
func (h *Handler) NotifyRefresh(chatID int64, results map[string]domain.Outcome) {
	if chatID == 0 {
		return
	}
	dates := make([]string, 0, len(results))
	for date := range results {
		dates = append(dates, date)
	}
	// даты формата YYYY-MM-DD, по убыванию — сегодня первым
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	lines := []string{"Обновление дневника завершено:"}
	for _, date := range dates {
		lines = append(lines, fmt.Sprintf("%s — %s", date, outcomeLabel(results[date])))
	}
	h.reply(chatID, strings.Join(lines, "\n"))
}

func (h *Handler) requireEnabled(chatID int64, conv domain.Conversation) bool {
	if h.enabled[conv.ChatType] {
		return true
	}
	h.reply(chatID, "Дневник для этого типа диалога выключен")
	return false
}

func (h *Handler) newJob(conv domain.Conversation, cause domain.DiaryJobCause, replyChatID int64) domain.DiaryJob {
	return domain.DiaryJob{
		ID:          uuid.NewString(),
		ChatType:    conv.ChatType,
		StreamID:    conv.ID,
		DisplayName: conv.DisplayName,
		Identity:    h.identity,
		Force:       true,
		Cause:       cause,
		ReplyChatID: replyChatID,
		RequestedAt: time.Now(),
	}
}

func (h *Handler) reply(chatID int64, text string) {
	for _, part := range telegram.SplitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		start := time.Now()
		_, err := h.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			metrics.BotSendErrors.Inc()
			h.log.Error().Err(err).Msg("не удалось отправить сообщение")
			return
		}
	}
}

func conversationFromMessage(msg *tgbotapi.Message) (domain.Conversation, bool) {
	if msg.Chat == nil {
		return domain.Conversation{}, false
	}
	conv := domain.Conversation{ID: strconv.FormatInt(msg.Chat.ID, 10)}
	switch {
	case msg.Chat.IsPrivate():
		conv.ChatType = domain.ChatTypePrivate
		conv.DisplayName = strings.TrimSpace(msg.Chat.FirstName + " " + msg.Chat.LastName)
		if conv.DisplayName == "" {
			conv.DisplayName = msg.Chat.UserName
		}
	case msg.Chat.IsGroup() || msg.Chat.IsSuperGroup():
		conv.ChatType = domain.ChatTypeGroup
		conv.DisplayName = msg.Chat.Title
	default:
		return domain.Conversation{}, false
	}
	return conv, true
}

func tierLabel(tier domain.Tier) string {
	switch tier {
	case domain.TierToday:
		return "сегодня"
	case domain.TierYesterday:
		return "вчера"
	default:
		return "позавчера"
	}
}

func outcomeLabel(outcome domain.Outcome) string {
	switch outcome {
	case domain.OutcomeGenerated:
		return "записано"
	case domain.OutcomeSkipped:
		return "без изменений"
	case domain.OutcomeNoData:
		return "активности не было"
	case domain.OutcomeSourceFailed:
		return "не удалось прочитать сообщения"
	case domain.OutcomeSummarizerFailed:
		return "не удалось составить запись"
	case domain.OutcomeStorageFailed:
		return "не удалось сохранить запись"
	default:
		return string(outcome)
	}
}
