package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tg-funnel-bot/internal/adapters/bot"
	"tg-funnel-bot/internal/adapters/repo"
	"tg-funnel-bot/internal/domain"
	"tg-funnel-bot/internal/infra/cache"
	"tg-funnel-bot/internal/infra/config"
	"tg-funnel-bot/internal/infra/db"
	httpinfra "tg-funnel-bot/internal/infra/http"
	"tg-funnel-bot/internal/infra/log"
	"tg-funnel-bot/internal/infra/metrics"
	"tg-funnel-bot/internal/infra/queue"
	"tg-funnel-bot/internal/usecase/dialog"
	"tg-funnel-bot/internal/usecase/leadmagnet"
	"tg-funnel-bot/internal/usecase/mailing"
	"tg-funnel-bot/internal/usecase/tripwire"
	"tg-funnel-bot/internal/usecase/warmup"
)

func main() {
	cfg := config.Load()
	logger := log.New(cfg.AppEnv, "bot-gateway")
	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	pool, err := db.Connect(ctx, cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось подключиться к БД")
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	cacheAdapter := cache.NewRedis(redisClient)

	repoAdapter := repo.NewPostgres(pool)
	mailingQueue := newMailingQueue(cfg, redisClient, logger)

	warmupUC := warmup.NewService(repoAdapter, repoAdapter, repoAdapter, repoAdapter)
	tripwireUC := tripwire.NewService(repoAdapter, repoAdapter, repoAdapter)
	magnetUC := leadmagnet.NewService(repoAdapter, cacheAdapter, repoAdapter)
	dialogUC := dialog.NewService(repoAdapter, cfg.DialogMatchLimit)
	mailingUC := mailing.NewService(repoAdapter, repoAdapter, mailingQueue, cacheAdapter, cfg.MailingBatch)

	botAPI, err := tgbotapi.NewBotAPI(cfg.TGBotToken)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать бота")
	}

	h := bot.NewHandler(botAPI, logger, repoAdapter, repoAdapter, warmupUC, tripwireUC, magnetUC, dialogUC, mailingUC, cfg.TGChannelID, cfg.IsAdmin)

	if cfg.TGWebhookURL != "" {
		runWebhook(ctx, cfg, logger, botAPI, h)
		return
	}
	metrics.StartServer(ctx, logger, ":"+strconv.Itoa(cfg.Port))
	runLongPolling(ctx, logger, botAPI, h)
}

func runWebhook(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger, botAPI *tgbotapi.BotAPI, h *bot.Handler) {
	webhook, err := tgbotapi.NewWebhook(cfg.TGWebhookURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("некорректный URL вебхука")
	}
	if _, err := botAPI.Request(webhook); err != nil {
		logger.Fatal().Err(err).Msg("не удалось установить вебхук")
	}

	srv := httpinfra.NewServer(logger)
	srv.Router.Post("/bot/webhook", func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.HandleUpdate(r.Context(), update)
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		if err := srv.Start(":" + strconv.Itoa(cfg.Port)); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP сервер остановлен")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("остановка бота")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func runLongPolling(ctx context.Context, logger zerolog.Logger, botAPI *tgbotapi.BotAPI, h *bot.Handler) {
	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = 30
	updates := botAPI.GetUpdatesChan(updateCfg)
	logger.Info().Msg("бот запущен в режиме long polling")
	for {
		select {
		case <-ctx.Done():
			botAPI.StopReceivingUpdates()
			logger.Info().Msg("остановка бота")
			return
		case update := <-updates:
			h.HandleUpdate(ctx, update)
		}
	}
}

func newMailingQueue(cfg config.AppConfig, redisClient *redis.Client, logger zerolog.Logger) domain.MailingQueue {
	if cfg.AMQPURL != "" {
		rabbit, err := queue.NewRabbitMailingQueue(cfg.AMQPURL, cfg.MailingQueueKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("не удалось подключиться к RabbitMQ")
		}
		return rabbit
	}
	return queue.NewRedisMailingQueue(redisClient, cfg.MailingQueueKey)
}
