package domain

import (
	"context"
	"time"
)

// BusinessMetric описывает бизнесовое событие, которое сохраняется для последующего анализа.
type BusinessMetric struct {
	Event      string
	UserID     *int64
	Metadata   map[string]any
	OccurredAt time.Time
}

const (
	// BusinessMetricEventUserRegistered фиксирует регистрацию нового пользователя.
	BusinessMetricEventUserRegistered = "user_registered"
	// BusinessMetricEventLeadMagnetIssued фиксирует выдачу лид-магнита.
	BusinessMetricEventLeadMagnetIssued = "lead_magnet_issued"
	// BusinessMetricEventWarmupStarted фиксирует запись пользователя на прогрев.
	BusinessMetricEventWarmupStarted = "warmup_started"
	// BusinessMetricEventWarmupStopped фиксирует остановку прогрева пользователем.
	BusinessMetricEventWarmupStopped = "warmup_stopped"
	// BusinessMetricEventOfferShown фиксирует показ оффера трипвайера.
	BusinessMetricEventOfferShown = "offer_shown"
	// BusinessMetricEventOfferClicked фиксирует клик по офферу.
	BusinessMetricEventOfferClicked = "offer_clicked"
	// BusinessMetricEventFollowUpSent фиксирует отправку дожима.
	BusinessMetricEventFollowUpSent = "followup_sent"
)

// BusinessMetricRepo сохраняет бизнесовые события.
type BusinessMetricRepo interface {
	RecordBusinessMetric(ctx context.Context, metric BusinessMetric) error
}
