package main

import (
	"context"
	"errors"
	"os/signal"
	"strconv"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"tg-funnel-bot/internal/adapters/repo"
	"tg-funnel-bot/internal/adapters/telegram"
	"tg-funnel-bot/internal/domain"
	"tg-funnel-bot/internal/infra/cache"
	"tg-funnel-bot/internal/infra/config"
	"tg-funnel-bot/internal/infra/db"
	"tg-funnel-bot/internal/infra/log"
	"tg-funnel-bot/internal/infra/metrics"
	"tg-funnel-bot/internal/infra/queue"
	"tg-funnel-bot/internal/usecase/mailing"
)

func main() {
	cfg := config.Load()
	logger := log.New(cfg.AppEnv, "mailer")
	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	pool, err := db.Connect(ctx, cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("mailer: нет подключения к БД")
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	var mailingQueue domain.MailingQueue
	if cfg.AMQPURL != "" {
		rabbit, err := queue.NewRabbitMailingQueue(cfg.AMQPURL, cfg.MailingQueueKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("mailer: не удалось подключиться к RabbitMQ")
		}
		defer rabbit.Close()
		mailingQueue = rabbit
	} else {
		mailingQueue = queue.NewRedisMailingQueue(redisClient, cfg.MailingQueueKey)
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.TGBotToken)
	if err != nil {
		logger.Fatal().Err(err).Msg("mailer: не удалось создать бота")
	}

	repoAdapter := repo.NewPostgres(pool)
	sender := telegram.NewSender(botAPI)
	cacheAdapter := cache.NewRedis(redisClient)

	metrics.StartServer(ctx, logger, ":"+strconv.Itoa(cfg.Port))

	worker := mailing.NewWorker(repoAdapter, mailingQueue, sender, cacheAdapter, logger)
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("mailer: воркер завершился с ошибкой")
	}
	logger.Info().Msg("mailer: остановлен")
}
