package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов воронки.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"Europe/Moscow"`
	Port   int    `envconfig:"PORT" default:"8080"`

	TGBotToken   string  `envconfig:"TG_BOT_TOKEN"`
	TGWebhookURL string  `envconfig:"TG_WEBHOOK_URL"`
	TGChannelID  int64   `envconfig:"TG_CHANNEL_ID"`
	TGAdminIDs   []int64 `envconfig:"TG_ADMIN_IDS"`

	PGDSN     string `envconfig:"PG_DSN"`
	RedisAddr string `envconfig:"REDIS_ADDR"`
	AMQPURL   string `envconfig:"AMQP_URL"`

	SchedulerInterval   time.Duration `envconfig:"SCHEDULER_INTERVAL" default:"1m"`
	SchedulerStartDelay time.Duration `envconfig:"SCHEDULER_START_DELAY" default:"5s"`
	FollowUpAfter       time.Duration `envconfig:"FOLLOWUP_AFTER" default:"48h"`

	MailingQueueKey string `envconfig:"MAILING_QUEUE_KEY" default:"mailing_jobs"`
	MailingBatch    int    `envconfig:"MAILING_BATCH_SIZE" default:"200"`

	DialogMatchLimit int `envconfig:"DIALOG_MATCH_LIMIT" default:"3"`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("config: %v", err)
	}
	return cfg
}

// IsAdmin сообщает, входит ли пользователь в список администраторов.
func (c AppConfig) IsAdmin(tgUserID int64) bool {
	for _, id := range c.TGAdminIDs {
		if id == tgUserID {
			return true
		}
	}
	return false
}
