package mailing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tg-funnel-bot/internal/domain"
	"tg-funnel-bot/internal/infra/metrics"
)

const textCacheTTL = time.Hour

// Worker читает задачи рассылки из очереди и отправляет сообщения.
type Worker struct {
	mailings domain.MailingRepo
	queue    domain.MailingQueue
	sender   domain.MessageSender
	cache    domain.Cache
	log      zerolog.Logger
}

// NewWorker создаёт воркер рассылки.
func NewWorker(mailings domain.MailingRepo, queue domain.MailingQueue, sender domain.MessageSender, cache domain.Cache, logger zerolog.Logger) *Worker {
	return &Worker{mailings: mailings, queue: queue, sender: sender, cache: cache, log: logger}
}

// Run обрабатывает задачи до отмены контекста.
func (w *Worker) Run(ctx context.Context) error {
	for {
		job, ack, err := w.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			w.log.Error().Err(err).Msg("mailer: ошибка чтения очереди")
			continue
		}
		if err := w.process(ctx, job); err != nil {
			w.log.Error().Err(err).Str("job_id", job.ID).Int64("user_id", job.UserID).Msg("mailer: задача не обработана")
			_ = ack(false)
			continue
		}
		_ = ack(true)
	}
}

func (w *Worker) process(ctx context.Context, job domain.MailingJob) error {
	text, err := w.mailingText(job.MailingID)
	if err != nil {
		return err
	}

	sendErr := w.sender.Send(ctx, job.ChatID, text, nil)
	metrics.IncMailingJob(sendErr == nil)

	sent, failed := 1, 0
	if sendErr != nil {
		sent, failed = 0, 1
		w.log.Warn().Err(sendErr).Int64("chat_id", job.ChatID).Msg("mailer: сообщение не доставлено")
	}
	if err := w.mailings.IncrementMailingCounters(job.MailingID, sent, failed); err != nil {
		return fmt.Errorf("обновление счётчиков: %w", err)
	}

	mailing, ok, err := w.mailings.GetMailingByID(job.MailingID)
	if err != nil {
		return fmt.Errorf("получение рассылки: %w", err)
	}
	if ok && mailing.Status == domain.MailingSending && mailing.SentCount+mailing.FailedCount >= mailing.TotalCount {
		if err := w.mailings.MarkMailingSent(job.MailingID, time.Now().UTC()); err != nil {
			return fmt.Errorf("завершение рассылки: %w", err)
		}
	}
	return nil
}

// mailingText возвращает текст рассылки, кэшируя его между задачами.
func (w *Worker) mailingText(mailingID int64) (string, error) {
	key := fmt.Sprintf("mailing:text:%d", mailingID)
	if w.cache != nil {
		if cached, err := w.cache.Get(key); err == nil && len(cached) > 0 {
			return string(cached), nil
		}
	}
	mailing, ok, err := w.mailings.GetMailingByID(mailingID)
	if err != nil {
		return "", fmt.Errorf("получение рассылки: %w", err)
	}
	if !ok {
		return "", ErrMailingNotFound
	}
	if w.cache != nil {
		_ = w.cache.Set(key, []byte(mailing.Text), textCacheTTL)
	}
	return mailing.Text, nil
}
