package domain

import (
	"context"
	"time"
)

// MailingStatus описывает состояние рассылки.
type MailingStatus string

const (
	MailingDraft   MailingStatus = "draft"
	MailingSending MailingStatus = "sending"
	MailingSent    MailingStatus = "sent"
)

// Mailing описывает массовую рассылку по базе пользователей.
type Mailing struct {
	ID          int64
	Title       string
	Text        string
	Status      MailingStatus
	TotalCount  int
	SentCount   int
	FailedCount int
	CreatedAt   time.Time
	SentAt      *time.Time
}

// MailingJob — задача отправки одного сообщения рассылки.
type MailingJob struct {
	ID        string    `json:"job_id"`
	MailingID int64     `json:"mailing_id"`
	UserID    int64     `json:"user_id"`
	ChatID    int64     `json:"chat_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// MailingAckFunc подтверждает обработку или запрашивает повтор доставки задачи.
type MailingAckFunc func(success bool) error

// MailingQueue описывает очередь задач рассылки.
type MailingQueue interface {
	Enqueue(ctx context.Context, job MailingJob) error
	Receive(ctx context.Context) (MailingJob, MailingAckFunc, error)
}
