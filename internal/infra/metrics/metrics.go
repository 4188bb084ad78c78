package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	BotSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_send_errors_total",
		Help: "Ошибки отправки сообщений ботом",
	})

	WarmupMessagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warmup_messages_sent_total",
		Help: "Отправленные сообщения прогрева по типам",
	}, []string{"type"})

	WarmupSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warmup_send_errors_total",
		Help: "Ошибки отправки сообщений прогрева",
	})

	SchedulerPassSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scheduler_pass_seconds",
		Help:    "Длительность прохода планировщика",
		Buckets: prometheus.DefBuckets,
	}, []string{"pass"})

	FollowUpsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "followups_sent_total",
		Help: "Отправленные дожимы",
	})

	OffersShown = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "offers_shown_total",
		Help: "Показы оффера трипвайера",
	})

	OfferClicks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "offer_clicks_total",
		Help: "Клики по офферу трипвайера",
	})

	LeadMagnetsIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lead_magnets_issued_total",
		Help: "Выданные лид-магниты",
	})

	MailingJobsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mailing_jobs_processed_total",
		Help: "Обработанные задачи рассылки",
	}, []string{"status"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 25, 30, 35, 40, 45, 50, 55, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		BotSendErrors,
		WarmupMessagesSent,
		WarmupSendErrors,
		SchedulerPassSeconds,
		FollowUpsSent,
		OffersShown,
		OfferClicks,
		LeadMagnetsIssued,
		MailingJobsProcessed,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveSchedulerPass записывает длительность прохода планировщика.
func ObserveSchedulerPass(pass string, start time.Time) {
	SchedulerPassSeconds.WithLabelValues(pass).Observe(time.Since(start).Seconds())
}

// IncWarmupSent увеличивает счётчик отправленных сообщений прогрева.
func IncWarmupSent(messageType string) {
	WarmupMessagesSent.WithLabelValues(messageType).Inc()
}

// IncMailingJob увеличивает счётчик обработанных задач рассылки.
func IncMailingJob(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	MailingJobsProcessed.WithLabelValues(status).Inc()
}
