package tripwire

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tg-funnel-bot/internal/domain"
	"tg-funnel-bot/internal/infra/metrics"
)

var (
	// ErrNoActiveOffer возвращается, если трипвайер или его оффер не настроены.
	ErrNoActiveOffer = errors.New("нет активного оффера трипвайера")
	// ErrOfferNotFound возвращается при клике по несуществующему офферу.
	ErrOfferNotFound = errors.New("оффер не найден")
)

// Service показывает оффер трипвайера и фиксирует показы и клики.
type Service struct {
	products domain.ProductRepo
	tracking domain.OfferTrackingRepo
	events   domain.BusinessMetricRepo
}

// NewService создаёт сервис трипвайера.
func NewService(products domain.ProductRepo, tracking domain.OfferTrackingRepo, events domain.BusinessMetricRepo) *Service {
	return &Service{products: products, tracking: tracking, events: events}
}

// ShowOffer возвращает активный оффер трипвайера и фиксирует первый
// показ пользователю. Повторные показы не дублируются в статистике.
func (s *Service) ShowOffer(ctx context.Context, userID int64) (domain.Product, domain.ProductOffer, error) {
	product, ok, err := s.products.GetActiveProductByType(domain.ProductTripwire)
	if err != nil {
		return domain.Product{}, domain.ProductOffer{}, fmt.Errorf("получение продукта: %w", err)
	}
	if !ok {
		return domain.Product{}, domain.ProductOffer{}, ErrNoActiveOffer
	}
	offer, ok, err := s.products.GetActiveOffer(product.ID)
	if err != nil {
		return domain.Product{}, domain.ProductOffer{}, fmt.Errorf("получение оффера: %w", err)
	}
	if !ok {
		return domain.Product{}, domain.ProductOffer{}, ErrNoActiveOffer
	}
	seen, err := s.tracking.HasSeenOffer(userID, offer.ID)
	if err != nil {
		return domain.Product{}, domain.ProductOffer{}, fmt.Errorf("проверка показа: %w", err)
	}
	if !seen {
		if err := s.tracking.RecordOfferShown(userID, offer.ID, time.Now().UTC()); err != nil {
			return domain.Product{}, domain.ProductOffer{}, fmt.Errorf("запись показа: %w", err)
		}
		metrics.OffersShown.Inc()
		s.recordEvent(ctx, domain.BusinessMetricEventOfferShown, userID)
	}
	return product, offer, nil
}

// Click фиксирует клик по офферу. Возвращает false, если клик по этой
// паре уже был учтён.
func (s *Service) Click(ctx context.Context, userID, offerID int64) (bool, error) {
	_, ok, err := s.products.GetOfferByID(offerID)
	if err != nil {
		return false, fmt.Errorf("получение оффера: %w", err)
	}
	if !ok {
		return false, ErrOfferNotFound
	}
	clicked, err := s.tracking.MarkOfferClicked(userID, offerID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("запись клика: %w", err)
	}
	if clicked {
		metrics.OfferClicks.Inc()
		s.recordEvent(ctx, domain.BusinessMetricEventOfferClicked, userID)
	}
	return clicked, nil
}

// ActiveStats возвращает статистику текущего активного оффера трипвайера.
func (s *Service) ActiveStats(ctx context.Context) (domain.OfferStats, error) {
	product, ok, err := s.products.GetActiveProductByType(domain.ProductTripwire)
	if err != nil {
		return domain.OfferStats{}, fmt.Errorf("получение продукта: %w", err)
	}
	if !ok {
		return domain.OfferStats{}, ErrNoActiveOffer
	}
	offer, ok, err := s.products.GetActiveOffer(product.ID)
	if err != nil {
		return domain.OfferStats{}, fmt.Errorf("получение оффера: %w", err)
	}
	if !ok {
		return domain.OfferStats{}, ErrNoActiveOffer
	}
	return s.Stats(ctx, offer.ID)
}

// Stats возвращает показы, клики и CTR оффера.
func (s *Service) Stats(ctx context.Context, offerID int64) (domain.OfferStats, error) {
	stats, err := s.tracking.GetOfferStats(offerID)
	if err != nil {
		return domain.OfferStats{}, fmt.Errorf("получение статистики: %w", err)
	}
	return stats, nil
}

func (s *Service) recordEvent(ctx context.Context, event string, userID int64) {
	if s.events == nil {
		return
	}
	_ = s.events.RecordBusinessMetric(ctx, domain.BusinessMetric{
		Event:      event,
		UserID:     &userID,
		OccurredAt: time.Now().UTC(),
	})
}
