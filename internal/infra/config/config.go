package config

import (
	"log"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"chat-diary-bot/internal/domain"
)

// ChatTypeConfig — настройки триггера и лимитов слов для одного типа диалога.
type ChatTypeConfig struct {
	TriggerType       string  `envconfig:"TRIGGER_TYPE" default:"any"`
	MessageThreshold  int     `envconfig:"MESSAGE_THRESHOLD"`
	TimeIntervalHours float64 `envconfig:"TIME_INTERVAL_HOURS"`
	TodayMaxWords     int     `envconfig:"TODAY_MAX_WORDS"`
	YesterdayMaxWords int     `envconfig:"YESTERDAY_MAX_WORDS"`
	OlderMaxWords     int     `envconfig:"OLDER_MAX_WORDS"`
}

// AppConfig описывает конфигурацию демона.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	TZ          string `envconfig:"TZ" default:"Asia/Shanghai"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	Telegram struct {
		Token      string `envconfig:"TG_BOT_TOKEN"`
		WebhookURL string `envconfig:"TG_WEBHOOK_URL"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`
	AMQPURL   string `envconfig:"AMQP_URL"`

	Queues struct {
		Diary string `envconfig:"DIARY_QUEUE_KEY" default:"diary_jobs"`
	} `envconfig:""`

	Workers int `envconfig:"DIARY_WORKERS" default:"4"`

	Diary struct {
		Enable            bool   `envconfig:"DIARY_ENABLE" default:"true"`
		EnabledChatTypes  string `envconfig:"DIARY_ENABLED_CHAT_TYPES" default:"group,private"`
		DataDir           string `envconfig:"DIARY_DATA_DIR" default:"./data/diary"`
		RetentionDays     int    `envconfig:"DIARY_RETENTION_DAYS" default:"3"`
		ModelContextLimit int    `envconfig:"MODEL_CONTEXT_LIMIT_K" default:"100"`
		Identity          string `envconfig:"DIARY_IDENTITY" default:"一个友善的对话伙伴"`
	} `envconfig:""`

	Group   ChatTypeConfig `envconfig:"GROUP"`
	Private ChatTypeConfig `envconfig:"PRIVATE"`

	OpenAI struct {
		APIKey  string        `envconfig:"OPENAI_API_KEY"`
		BaseURL string        `envconfig:"OPENAI_BASE_URL"`
		Model   string        `envconfig:"OPENAI_MODEL" default:"gpt-4.1-mini"`
		Timeout time.Duration `envconfig:"OPENAI_TIMEOUT" default:"60s"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	applyChatTypeDefaults(&cfg.Group, 50, 6, 2000, 1000, 500)
	applyChatTypeDefaults(&cfg.Private, 30, 12, 1500, 800, 400)
	return cfg
}

func applyChatTypeDefaults(c *ChatTypeConfig, threshold int, intervalHours float64, today, yesterday, older int) {
	if c.MessageThreshold <= 0 {
		c.MessageThreshold = threshold
	}
	if c.TimeIntervalHours <= 0 {
		c.TimeIntervalHours = intervalHours
	}
	if c.TodayMaxWords <= 0 {
		c.TodayMaxWords = today
	}
	if c.YesterdayMaxWords <= 0 {
		c.YesterdayMaxWords = yesterday
	}
	if c.OlderMaxWords <= 0 {
		c.OlderMaxWords = older
	}
}

// Location возвращает часовой пояс дневника; границы дня считаются в нём.
func (c AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.TZ)
	if err != nil {
		log.Fatalf("некорректный часовой пояс %q: %v", c.TZ, err)
	}
	return loc
}

// EnabledChatTypes возвращает типы диалогов, для которых дневник включён.
func (c AppConfig) EnabledChatTypes() map[domain.ChatType]bool {
	enabled := make(map[domain.ChatType]bool)
	if !c.Diary.Enable {
		return enabled
	}
	for _, raw := range strings.Split(c.Diary.EnabledChatTypes, ",") {
		t := domain.ChatType(strings.TrimSpace(raw))
		if t.Valid() {
			enabled[t] = true
		}
	}
	return enabled
}

// ForChatType возвращает настройки нужного типа диалога.
func (c AppConfig) ForChatType(t domain.ChatType) ChatTypeConfig {
	if t == domain.ChatTypeGroup {
		return c.Group
	}
	return c.Private
}
