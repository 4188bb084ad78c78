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

	chi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"tg-funnel-bot/internal/adapters/repo"
	"tg-funnel-bot/internal/domain"
	"tg-funnel-bot/internal/infra/cache"
	"tg-funnel-bot/internal/infra/config"
	"tg-funnel-bot/internal/infra/db"
	httpinfra "tg-funnel-bot/internal/infra/http"
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

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	pool, err := db.Connect(ctx, cfg.PGDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	cacheAdapter := cache.NewRedis(redisClient)

	repoAdapter := repo.NewPostgres(pool)

	var mailingQueue domain.MailingQueue
	if cfg.AMQPURL != "" {
		rabbit, err := queue.NewRabbitMailingQueue(cfg.AMQPURL, cfg.MailingQueueKey)
		if err != nil {
			log.Fatal().Err(err).Msg("api: не удалось подключиться к RabbitMQ")
		}
		defer rabbit.Close()
		mailingQueue = rabbit
	} else {
		mailingQueue = queue.NewRedisMailingQueue(redisClient, cfg.MailingQueueKey)
	}

	warmupUC := warmup.NewService(repoAdapter, repoAdapter, repoAdapter, repoAdapter)
	tripwireUC := tripwire.NewService(repoAdapter, repoAdapter, repoAdapter)
	magnetUC := leadmagnet.NewService(repoAdapter, cacheAdapter, repoAdapter)
	dialogUC := dialog.NewService(repoAdapter, cfg.DialogMatchLimit)
	mailingUC := mailing.NewService(repoAdapter, repoAdapter, mailingQueue, cacheAdapter, cfg.MailingBatch)

	r := chi.NewRouter()

	r.Group(func(protected chi.Router) {
		protected.Use(httpinfra.WebAppAuthMiddleware(cfg.TGBotToken))

		protected.Get("/api/v1/stats", func(w http.ResponseWriter, r *http.Request) {
			warmupStats, err := warmupUC.Stats(r.Context())
			if err != nil {
				log.Error().Err(err).Msg("api: статистика прогрева")
				httpinfra.WriteError(w, http.StatusInternalServerError, err)
				return
			}
			offerStats, err := tripwireUC.ActiveStats(r.Context())
			if err != nil && !errors.Is(err, tripwire.ErrNoActiveOffer) {
				log.Error().Err(err).Msg("api: статистика оффера")
				httpinfra.WriteError(w, http.StatusInternalServerError, err)
				return
			}
			activeUsers, err := repoAdapter.CountByStatus(domain.UserStatusActive)
			if err != nil {
				log.Error().Err(err).Msg("api: подсчёт пользователей")
				httpinfra.WriteError(w, http.StatusInternalServerError, err)
				return
			}
			httpinfra.WriteJSON(w, http.StatusOK, map[string]any{
				"active_users": activeUsers,
				"warmup": map[string]any{
					"total_scenarios":  warmupStats.TotalScenarios,
					"active_scenarios": warmupStats.ActiveScenarios,
					"total_messages":   warmupStats.TotalMessages,
					"active_warmups":   warmupStats.ActiveUsers,
				},
				"tripwire": map[string]any{
					"shows":  offerStats.Shows,
					"clicks": offerStats.Clicks,
					"ctr":    offerStats.CTR,
				},
			})
		})

		protected.Get("/api/v1/scenarios", func(w http.ResponseWriter, r *http.Request) {
			scenarios, err := warmupUC.ListScenarios(r.Context())
			if err != nil {
				httpinfra.WriteError(w, http.StatusInternalServerError, err)
				return
			}
			httpinfra.WriteJSON(w, http.StatusOK, scenariosResponse(scenarios))
		})

		protected.Post("/api/v1/scenarios", func(w http.ResponseWriter, r *http.Request) {
			defer r.Body.Close()
			var req createScenarioRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httpinfra.WriteError(w, http.StatusBadRequest, err)
				return
			}
			if req.Name == "" {
				httpinfra.WriteError(w, http.StatusBadRequest, errors.New("name обязателен"))
				return
			}
			scenario, err := warmupUC.CreateScenario(r.Context(), req.Name, req.Description)
			if err != nil {
				httpinfra.WriteError(w, http.StatusInternalServerError, err)
				return
			}
			for _, msg := range req.Messages {
				if _, err := warmupUC.AddMessage(r.Context(), scenario.ID, domain.WarmupMessageType(msg.Type), msg.Title, msg.Text, msg.Order, msg.DelayHours); err != nil {
					httpinfra.WriteError(w, http.StatusInternalServerError, err)
					return
				}
			}
			httpinfra.WriteJSON(w, http.StatusCreated, map[string]int64{"id": scenario.ID})
		})

		protected.Delete("/api/v1/scenarios/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
			if err != nil {
				httpinfra.WriteError(w, http.StatusBadRequest, err)
				return
			}
			if err := warmupUC.DeleteScenario(r.Context(), id); err != nil {
				if errors.Is(err, warmup.ErrScenarioNotFound) {
					httpinfra.WriteError(w, http.StatusNotFound, err)
					return
				}
				httpinfra.WriteError(w, http.StatusInternalServerError, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		protected.Get("/api/v1/mailings", func(w http.ResponseWriter, r *http.Request) {
			mailings, err := mailingUC.List(r.Context())
			if err != nil {
				httpinfra.WriteError(w, http.StatusInternalServerError, err)
				return
			}
			httpinfra.WriteJSON(w, http.StatusOK, mailingsResponse(mailings))
		})

		protected.Post("/api/v1/mailings", func(w http.ResponseWriter, r *http.Request) {
			defer r.Body.Close()
			var req createMailingRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httpinfra.WriteError(w, http.StatusBadRequest, err)
				return
			}
			if req.Title == "" || req.Text == "" {
				httpinfra.WriteError(w, http.StatusBadRequest, errors.New("title и text обязательны"))
				return
			}
			created, err := mailingUC.Create(r.Context(), req.Title, req.Text)
			if err != nil {
				httpinfra.WriteError(w, http.StatusInternalServerError, err)
				return
			}
			httpinfra.WriteJSON(w, http.StatusCreated, map[string]int64{"id": created.ID})
		})

		protected.Post("/api/v1/mailings/{id}/start", func(w http.ResponseWriter, r *http.Request) {
			id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
			if err != nil {
				httpinfra.WriteError(w, http.StatusBadRequest, err)
				return
			}
			total, err := mailingUC.Start(r.Context(), id)
			if err != nil {
				switch {
				case errors.Is(err, mailing.ErrMailingNotFound):
					httpinfra.WriteError(w, http.StatusNotFound, err)
				case errors.Is(err, mailing.ErrAlreadySending):
					httpinfra.WriteError(w, http.StatusConflict, err)
				default:
					log.Error().Err(err).Msg("api: запуск рассылки")
					httpinfra.WriteError(w, http.StatusInternalServerError, err)
				}
				return
			}
			httpinfra.WriteJSON(w, http.StatusOK, map[string]int{"total": total})
		})

		protected.Get("/api/v1/dialogs", func(w http.ResponseWriter, r *http.Request) {
			dialogs, err := dialogUC.ListDialogs(r.Context())
			if err != nil {
				httpinfra.WriteError(w, http.StatusInternalServerError, err)
				return
			}
			httpinfra.WriteJSON(w, http.StatusOK, dialogs)
		})

		protected.Post("/api/v1/dialogs", func(w http.ResponseWriter, r *http.Request) {
			defer r.Body.Close()
			var req domain.Dialog
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httpinfra.WriteError(w, http.StatusBadRequest, err)
				return
			}
			if req.Name == "" {
				httpinfra.WriteError(w, http.StatusBadRequest, errors.New("name обязателен"))
				return
			}
			created, err := dialogUC.CreateDialog(r.Context(), req)
			if err != nil {
				httpinfra.WriteError(w, http.StatusInternalServerError, err)
				return
			}
			httpinfra.WriteJSON(w, http.StatusCreated, map[string]int64{"id": created.ID})
		})

		protected.Delete("/api/v1/dialogs/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
			if err != nil {
				httpinfra.WriteError(w, http.StatusBadRequest, err)
				return
			}
			if err := dialogUC.DeleteDialog(r.Context(), id); err != nil {
				httpinfra.WriteError(w, http.StatusInternalServerError, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		protected.Get("/api/v1/lead-magnets", func(w http.ResponseWriter, r *http.Request) {
			magnets, err := magnetUC.List(r.Context())
			if err != nil {
				httpinfra.WriteError(w, http.StatusInternalServerError, err)
				return
			}
			httpinfra.WriteJSON(w, http.StatusOK, magnets)
		})

		protected.Post("/api/v1/lead-magnets", func(w http.ResponseWriter, r *http.Request) {
			defer r.Body.Close()
			var req domain.LeadMagnet
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httpinfra.WriteError(w, http.StatusBadRequest, err)
				return
			}
			if req.Name == "" || req.MessageText == "" {
				httpinfra.WriteError(w, http.StatusBadRequest, errors.New("name и message_text обязательны"))
				return
			}
			created, err := magnetUC.Create(r.Context(), req)
			if err != nil {
				httpinfra.WriteError(w, http.StatusInternalServerError, err)
				return
			}
			httpinfra.WriteJSON(w, http.StatusCreated, map[string]int64{"id": created.ID})
		})
	})

	srv := &http.Server{Addr: ":" + strconv.Itoa(cfg.Port), Handler: r}
	metrics.StartServer(ctx, log.With().Str("component", "metrics").Logger(), ":9090")
	go func() {
		log.Info().Msg("api: старт")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("api: сервер остановлен")
		}
	}()
	<-ctx.Done()
	log.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

type createScenarioRequest struct {
	Name        string                  `json:"name"`
	Description string                  `json:"description"`
	Messages    []scenarioMessagePayload `json:"messages"`
}

type scenarioMessagePayload struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Text       string `json:"text"`
	Order      int    `json:"order"`
	DelayHours int    `json:"delay_hours"`
}

type createMailingRequest struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

func scenariosResponse(scenarios []domain.WarmupScenario) []map[string]any {
	out := make([]map[string]any, 0, len(scenarios))
	for _, scenario := range scenarios {
		messages := make([]map[string]any, 0, len(scenario.Messages))
		for _, msg := range scenario.Messages {
			messages = append(messages, map[string]any{
				"id":          msg.ID,
				"type":        msg.Type,
				"title":       msg.Title,
				"order":       msg.Order,
				"delay_hours": msg.DelayHours,
				"is_active":   msg.IsActive,
			})
		}
		out = append(out, map[string]any{
			"id":          scenario.ID,
			"name":        scenario.Name,
			"description": scenario.Description,
			"is_active":   scenario.IsActive,
			"created_at":  scenario.CreatedAt,
			"messages":    messages,
		})
	}
	return out
}

func mailingsResponse(mailings []domain.Mailing) []map[string]any {
	out := make([]map[string]any, 0, len(mailings))
	for _, m := range mailings {
		out = append(out, map[string]any{
			"id":           m.ID,
			"title":        m.Title,
			"status":       m.Status,
			"total_count":  m.TotalCount,
			"sent_count":   m.SentCount,
			"failed_count": m.FailedCount,
			"created_at":   m.CreatedAt,
			"sent_at":      m.SentAt,
		})
	}
	return out
}
