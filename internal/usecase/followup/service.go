package followup

import (
	"context"
	"fmt"
	"time"

	"tg-funnel-bot/internal/domain"
	"tg-funnel-bot/internal/usecase/warmup"
)

// CallbackStop останавливает напоминания о покупке.
const CallbackStop = "stop_followup"

const defaultText = "Это твой последний шанс войти в программу по этой цене."

// Service отбирает пользователей для дожима и фиксирует отправки.
// Дожим по паре (пользователь, оффер) отправляется не более одного раза.
type Service struct {
	tracking domain.OfferTrackingRepo
	events   domain.BusinessMetricRepo
	after    time.Duration
}

// NewService создаёт сервис дожима. after задаёт, сколько должно пройти
// после показа оффера без клика.
func NewService(tracking domain.OfferTrackingRepo, events domain.BusinessMetricRepo, after time.Duration) *Service {
	return &Service{tracking: tracking, events: events, after: after}
}

// Candidates возвращает пользователей, которым пора отправить дожим:
// оффер показан не позже чем after назад, клика не было, дожим ещё
// не отправлялся.
func (s *Service) Candidates(ctx context.Context, now time.Time) ([]domain.FollowUpCandidate, error) {
	cutoff := now.Add(-s.after)
	candidates, err := s.tracking.ListFollowUpCandidates(cutoff)
	if err != nil {
		return nil, fmt.Errorf("получение кандидатов: %w", err)
	}
	var out []domain.FollowUpCandidate
	for _, c := range candidates {
		sent, err := s.tracking.WasFollowUpSent(c.User.ID, c.Offer.ID)
		if err != nil {
			return nil, fmt.Errorf("проверка дожима: %w", err)
		}
		if sent {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// MarkSent фиксирует отправленный дожим.
func (s *Service) MarkSent(ctx context.Context, userID, offerID int64, at time.Time) error {
	if err := s.tracking.RecordFollowUpSent(userID, offerID, at); err != nil {
		return fmt.Errorf("запись дожима: %w", err)
	}
	if s.events != nil {
		_ = s.events.RecordBusinessMetric(ctx, domain.BusinessMetric{
			Event:      domain.BusinessMetricEventFollowUpSent,
			UserID:     &userID,
			OccurredAt: at,
		})
	}
	return nil
}

// Text возвращает текст дожима для оффера.
func (s *Service) Text(offer domain.ProductOffer) string {
	if offer.Text != "" {
		return offer.Text
	}
	return defaultText
}

// Keyboard строит клавиатуру дожима.
func (s *Service) Keyboard() domain.Keyboard {
	return domain.Keyboard{
		domain.Row(domain.Button{Label: "🚀 Войти в программу", Data: warmup.CallbackOffer}),
		domain.Row(domain.Button{Label: "⏹️ Остановить напоминания", Data: CallbackStop}),
	}
}
