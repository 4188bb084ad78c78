package leadmagnet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tg-funnel-bot/internal/domain"
	"tg-funnel-bot/internal/infra/metrics"
)

// ErrNoActiveLeadMagnet возвращается, если активный лид-магнит не настроен.
var ErrNoActiveLeadMagnet = errors.New("нет активного лид-магнита")

// Service выдаёт лид-магнит новым подписчикам. Повторная выдача тому же
// пользователю не выполняется.
type Service struct {
	magnets domain.LeadMagnetRepo
	cache   domain.Cache
	events  domain.BusinessMetricRepo
}

// NewService создаёт сервис лид-магнитов. Кэш защищает от двойной
// выдачи при серии быстрых нажатий.
func NewService(magnets domain.LeadMagnetRepo, cache domain.Cache, events domain.BusinessMetricRepo) *Service {
	return &Service{magnets: magnets, cache: cache, events: events}
}

// Claim выдаёт активный лид-магнит пользователю. Возвращает issued=false,
// если пользователь уже получал его раньше.
func (s *Service) Claim(ctx context.Context, userID int64) (domain.LeadMagnet, bool, error) {
	magnet, ok, err := s.magnets.GetActiveLeadMagnet()
	if err != nil {
		return domain.LeadMagnet{}, false, fmt.Errorf("получение лид-магнита: %w", err)
	}
	if !ok {
		return domain.LeadMagnet{}, false, ErrNoActiveLeadMagnet
	}
	has, err := s.magnets.UserHasLeadMagnet(userID)
	if err != nil {
		return domain.LeadMagnet{}, false, fmt.Errorf("проверка выдачи: %w", err)
	}
	if has {
		return magnet, false, nil
	}

	issue := func() error {
		if err := s.magnets.RecordLeadMagnetIssued(userID, magnet.ID, time.Now().UTC()); err != nil {
			return fmt.Errorf("запись выдачи: %w", err)
		}
		metrics.LeadMagnetsIssued.Inc()
		if s.events != nil {
			_ = s.events.RecordBusinessMetric(ctx, domain.BusinessMetric{
				Event:      domain.BusinessMetricEventLeadMagnetIssued,
				UserID:     &userID,
				OccurredAt: time.Now().UTC(),
			})
		}
		return nil
	}
	if s.cache != nil {
		key := fmt.Sprintf("leadmagnet:issued:%d", userID)
		if err := s.cache.Once(key, 24*time.Hour, issue); err != nil {
			return domain.LeadMagnet{}, false, err
		}
	} else if err := issue(); err != nil {
		return domain.LeadMagnet{}, false, err
	}
	return magnet, true, nil
}

// List возвращает все лид-магниты.
func (s *Service) List(ctx context.Context) ([]domain.LeadMagnet, error) {
	return s.magnets.ListLeadMagnets()
}

// Create добавляет новый лид-магнит.
func (s *Service) Create(ctx context.Context, m domain.LeadMagnet) (domain.LeadMagnet, error) {
	created, err := s.magnets.CreateLeadMagnet(m)
	if err != nil {
		return domain.LeadMagnet{}, fmt.Errorf("создание лид-магнита: %w", err)
	}
	return created, nil
}
