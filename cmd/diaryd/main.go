package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"chat-diary-bot/internal/adapters/bot"
	"chat-diary-bot/internal/adapters/msglog"
	"chat-diary-bot/internal/adapters/recordstore"
	"chat-diary-bot/internal/adapters/summarizer"
	"chat-diary-bot/internal/domain"
	"chat-diary-bot/internal/infra/config"
	"chat-diary-bot/internal/infra/db"
	httpinfra "chat-diary-bot/internal/infra/http"
	applog "chat-diary-bot/internal/infra/log"
	"chat-diary-bot/internal/infra/metrics"
	"chat-diary-bot/internal/infra/openai"
	"chat-diary-bot/internal/infra/queue"
	"chat-diary-bot/internal/usecase/diary"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)
	loc := cfg.Location()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("diaryd: нет подключения к логу сообщений")
	}
	defer pool.Close()

	store := recordstore.New(cfg.Diary.DataDir, logger.With().Str("component", "recordstore").Logger())
	source := msglog.NewPostgres(pool)
	diaryService := diary.NewService(store, source, buildSummarizer(cfg, loc), diary.Config{
		Identity:         cfg.Diary.Identity,
		Location:         loc,
		RetentionDays:    cfg.Diary.RetentionDays,
		Policies:         buildPolicies(cfg),
		EnabledChatTypes: cfg.EnabledChatTypes(),
	}, logger.With().Str("component", "diary").Logger())

	jobs, err := buildQueue(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("diaryd: не удалось инициализировать очередь задач")
	}

	if cfg.Telegram.Token == "" {
		logger.Fatal().Msg("diaryd: не указан токен Telegram (TG_BOT_TOKEN)")
	}
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("diaryd: не удалось создать бота")
	}

	handler := bot.NewHandler(botAPI, logger.With().Str("component", "bot").Logger(), diaryService, jobs, cfg.Diary.Identity, cfg.EnabledChatTypes())

	// чистка и дозаполнение при старте, дальше — раз в сутки
	go func() {
		if _, err := diaryService.Sweep(ctx); err != nil {
			logger.Error().Err(err).Msg("diaryd: чистка при старте")
		}
		diaryService.StartupCheck(ctx)

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := diaryService.Sweep(ctx); err != nil {
					logger.Error().Err(err).Msg("diaryd: ежедневная чистка")
				}
			}
		}
	}()

	worker := &jobWorker{
		log:     logger.With().Str("component", "worker").Logger(),
		queue:   jobs,
		service: diaryService,
		handler: handler,
		loc:     loc,
	}
	for i := 0; i < cfg.Workers; i++ {
		go worker.Run(ctx)
	}

	server := httpinfra.NewServer(logger.With().Str("component", "http").Logger())
	server.Router.Post("/bot/webhook", func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		handler.HandleUpdate(r.Context(), update)
		w.WriteHeader(http.StatusOK)
	})
	registerDiaryRoutes(server, diaryService, cfg)

	go func() {
		if err := server.Start(":" + strconv.Itoa(cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("diaryd: HTTP сервер остановлен")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("diaryd: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func buildSummarizer(cfg config.AppConfig, loc *time.Location) domain.Summarizer {
	if cfg.OpenAI.APIKey == "" {
		return summarizer.NewSimple(loc)
	}
	client := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout)
	return summarizer.NewOpenAI(client, cfg.OpenAI.Model, cfg.OpenAI.Timeout, loc, cfg.Diary.ModelContextLimit)
}

func buildPolicies(cfg config.AppConfig) map[domain.ChatType]diary.ChatTypePolicy {
	policies := make(map[domain.ChatType]diary.ChatTypePolicy, 2)
	for _, chatType := range []domain.ChatType{domain.ChatTypeGroup, domain.ChatTypePrivate} {
		ct := cfg.ForChatType(chatType)
		policies[chatType] = diary.ChatTypePolicy{
			Trigger:          domain.TriggerPolicy(ct.TriggerType),
			MessageThreshold: ct.MessageThreshold,
			TimeInterval:     time.Duration(ct.TimeIntervalHours * float64(time.Hour)),
			MaxWords: map[domain.Tier]int{
				domain.TierToday:     ct.TodayMaxWords,
				domain.TierYesterday: ct.YesterdayMaxWords,
				domain.TierOlder:     ct.OlderMaxWords,
			},
		}
	}
	return policies
}

func buildQueue(cfg config.AppConfig) (domain.DiaryQueue, error) {
	if cfg.AMQPURL != "" {
		return queue.NewRabbitDiaryQueue(cfg.AMQPURL, cfg.Queues.Diary)
	}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return queue.NewRedisDiaryQueue(client, cfg.Queues.Diary), nil
	}
	return nil, errors.New("не задан ни REDIS_ADDR, ни AMQP_URL")
}

type jobWorker struct {
	log     zerolog.Logger
	queue   domain.DiaryQueue
	service *diary.Service
	handler *bot.Handler
	loc     *time.Location
}

func (w *jobWorker) Run(ctx context.Context) {
	for {
		job, err := w.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("ошибка чтения очереди")
			time.Sleep(time.Second)
			continue
		}
		w.handleJob(ctx, job)
	}
}

func (w *jobWorker) handleJob(ctx context.Context, job domain.DiaryJob) {
	conv := job.Conversation()
	jobLog := w.log.With().
		Str("job_id", job.ID).
		Str("conversation", conv.Key()).
		Str("cause", string(job.Cause)).
		Logger()

	if len(job.Dates) > 0 {
		for _, date := range job.Dates {
			outcome, err := w.service.Generate(ctx, conv, date, job.Identity, job.Force)
			if err != nil {
				jobLog.Error().Err(err).Str("date", date).Msg("генерация не удалась")
				continue
			}
			jobLog.Info().Str("date", date).Str("outcome", string(outcome)).Msg("генерация завершена")
		}
		return
	}

	switch job.Cause {
	case domain.DiaryCauseManual:
		results, err := w.service.RefreshAll(ctx, conv, job.Identity)
		if err != nil {
			jobLog.Error().Err(err).Msg("ручное обновление завершилось с ошибками")
		}
		w.handler.NotifyRefresh(job.ReplyChatID, results)
	default:
		today, _, _ := diary.Classify(time.Now(), w.loc)
		outcome, err := w.service.Generate(ctx, conv, today, job.Identity, true)
		if err != nil {
			jobLog.Error().Err(err).Msg("генерация по триггеру не удалась")
			return
		}
		jobLog.Info().Str("outcome", string(outcome)).Msg("генерация по триггеру завершена")
	}
}
