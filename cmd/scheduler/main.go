package main

import (
	"context"
	"errors"
	"os/signal"
	"strconv"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"

	"tg-funnel-bot/internal/adapters/repo"
	"tg-funnel-bot/internal/adapters/telegram"
	"tg-funnel-bot/internal/infra/config"
	"tg-funnel-bot/internal/infra/db"
	"tg-funnel-bot/internal/infra/log"
	"tg-funnel-bot/internal/infra/metrics"
	"tg-funnel-bot/internal/usecase/followup"
	"tg-funnel-bot/internal/usecase/scheduler"
	"tg-funnel-bot/internal/usecase/warmup"
)

func main() {
	cfg := config.Load()
	logger := log.New(cfg.AppEnv, "scheduler")
	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	pool, err := db.Connect(ctx, cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: нет подключения к БД")
	}
	defer pool.Close()

	botAPI, err := tgbotapi.NewBotAPI(cfg.TGBotToken)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось создать бота")
	}

	repoAdapter := repo.NewPostgres(pool)
	sender := telegram.NewSender(botAPI)
	warmupUC := warmup.NewService(repoAdapter, repoAdapter, repoAdapter, repoAdapter)
	followupUC := followup.NewService(repoAdapter, repoAdapter, cfg.FollowUpAfter)

	metrics.StartServer(ctx, logger, ":"+strconv.Itoa(cfg.Port))

	runner := scheduler.NewRunner(warmupUC, followupUC, sender, logger, cfg.SchedulerInterval, cfg.SchedulerStartDelay)
	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("scheduler: цикл завершился с ошибкой")
	}
	logger.Info().Msg("scheduler: остановлен")
}
