package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"tg-funnel-bot/internal/domain"
	"tg-funnel-bot/internal/infra/metrics"
	"tg-funnel-bot/internal/usecase/warmup"
)

// warmupEngine отдаёт готовые сообщения прогрева и фиксирует доставки.
type warmupEngine interface {
	DueMessages(ctx context.Context, now time.Time) ([]domain.WarmupDueItem, error)
	MarkDelivery(ctx context.Context, userID, messageID int64, success bool, errorMessage string, at time.Time) error
}

// followupEngine отдаёт кандидатов на дожим и фиксирует отправки.
type followupEngine interface {
	Candidates(ctx context.Context, now time.Time) ([]domain.FollowUpCandidate, error)
	MarkSent(ctx context.Context, userID, offerID int64, at time.Time) error
	Text(offer domain.ProductOffer) string
	Keyboard() domain.Keyboard
}

// Runner периодически прогоняет прогрев и дожим.
type Runner struct {
	warmups    warmupEngine
	followups  followupEngine
	sender     domain.MessageSender
	log        zerolog.Logger
	interval   time.Duration
	startDelay time.Duration
}

// NewRunner создаёт планировщик.
func NewRunner(warmups warmupEngine, followups followupEngine, sender domain.MessageSender, logger zerolog.Logger, interval, startDelay time.Duration) *Runner {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Runner{
		warmups:    warmups,
		followups:  followups,
		sender:     sender,
		log:        logger,
		interval:   interval,
		startDelay: startDelay,
	}
}

// Run крутит цикл до отмены контекста. Ошибки прохода логируются,
// цикл продолжается.
func (r *Runner) Run(ctx context.Context) error {
	if r.startDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.startDelay):
		}
	}
	r.log.Info().Dur("interval", r.interval).Msg("scheduler: запущен")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.RunOnce(ctx, time.Now().UTC())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.RunOnce(ctx, time.Now().UTC())
		}
	}
}

// RunOnce выполняет один проход: сначала прогрев, затем дожим.
func (r *Runner) RunOnce(ctx context.Context, now time.Time) {
	start := time.Now()
	if err := r.warmupPass(ctx, now); err != nil {
		r.log.Error().Err(err).Msg("scheduler: проход прогрева завершился ошибкой")
	}
	metrics.ObserveSchedulerPass("warmup", start)

	if r.followups == nil {
		return
	}
	start = time.Now()
	if err := r.followupPass(ctx, now); err != nil {
		r.log.Error().Err(err).Msg("scheduler: проход дожима завершился ошибкой")
	}
	metrics.ObserveSchedulerPass("followup", start)
}

func (r *Runner) warmupPass(ctx context.Context, now time.Time) error {
	due, err := r.warmups.DueMessages(ctx, now)
	if err != nil {
		return err
	}
	for _, item := range due {
		kb := warmup.KeyboardFor(item.Message.Type)
		sendErr := r.sender.Send(ctx, item.User.TGUserID, item.Message.Text, kb)
		if sendErr != nil {
			metrics.WarmupSendErrors.Inc()
			r.log.Warn().Err(sendErr).
				Int64("user_id", item.User.ID).
				Int64("message_id", item.Message.ID).
				Msg("scheduler: сообщение прогрева не доставлено")
			if err := r.warmups.MarkDelivery(ctx, item.Warmup.UserID, item.Message.ID, false, sendErr.Error(), now); err != nil {
				r.log.Error().Err(err).Msg("scheduler: ошибка записи доставки")
			}
			continue
		}
		metrics.IncWarmupSent(string(item.Message.Type))
		if err := r.warmups.MarkDelivery(ctx, item.Warmup.UserID, item.Message.ID, true, "", now); err != nil {
			r.log.Error().Err(err).Msg("scheduler: ошибка записи доставки")
		}
	}
	return nil
}

func (r *Runner) followupPass(ctx context.Context, now time.Time) error {
	candidates, err := r.followups.Candidates(ctx, now)
	if err != nil {
		return err
	}
	for _, c := range candidates {
		if err := r.sender.Send(ctx, c.User.TGUserID, r.followups.Text(c.Offer), r.followups.Keyboard()); err != nil {
			metrics.WarmupSendErrors.Inc()
			r.log.Warn().Err(err).Int64("user_id", c.User.ID).Msg("scheduler: дожим не доставлен")
			continue
		}
		metrics.FollowUpsSent.Inc()
		if err := r.followups.MarkSent(ctx, c.User.ID, c.Offer.ID, now); err != nil {
			r.log.Error().Err(err).Msg("scheduler: ошибка записи дожима")
		}
	}
	return nil
}
