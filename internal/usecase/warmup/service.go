package warmup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tg-funnel-bot/internal/domain"
)

var (
	// ErrNoActiveScenario возвращается, если активный сценарий прогрева не настроен.
	ErrNoActiveScenario = errors.New("нет активного сценария прогрева")
	// ErrScenarioNotFound возвращается, если сценарий не найден.
	ErrScenarioNotFound = errors.New("сценарий не найден")
)

// Callback-данные кнопок сообщений прогрева.
const (
	CallbackOffer = "warmup_offer"
	CallbackInfo  = "warmup_info"
	CallbackStop  = "warmup_stop"
)

// Service управляет прогревом пользователей: записью, остановкой,
// выбором сообщений к отправке и сценариями.
type Service struct {
	scenarios domain.ScenarioRepo
	progress  domain.WarmupProgressRepo
	delivery  domain.DeliveryLogRepo
	events    domain.BusinessMetricRepo
}

// NewService создаёт сервис прогрева.
func NewService(scenarios domain.ScenarioRepo, progress domain.WarmupProgressRepo, delivery domain.DeliveryLogRepo, events domain.BusinessMetricRepo) *Service {
	return &Service{scenarios: scenarios, progress: progress, delivery: delivery, events: events}
}

// Enroll записывает пользователя на активный сценарий. Повторный вызов
// без остановки возвращает существующую запись и started=false.
func (s *Service) Enroll(ctx context.Context, userID int64) (domain.UserWarmup, bool, error) {
	existing, ok, err := s.progress.GetActiveWarmup(userID)
	if err != nil {
		return domain.UserWarmup{}, false, fmt.Errorf("проверка прогрева: %w", err)
	}
	if ok {
		return existing, false, nil
	}
	scenario, ok, err := s.scenarios.GetActiveScenario()
	if err != nil {
		return domain.UserWarmup{}, false, fmt.Errorf("получение сценария: %w", err)
	}
	if !ok {
		return domain.UserWarmup{}, false, ErrNoActiveScenario
	}
	warmup, err := s.progress.CreateWarmup(userID, scenario.ID, time.Now().UTC())
	if err != nil {
		return domain.UserWarmup{}, false, fmt.Errorf("создание прогрева: %w", err)
	}
	s.recordEvent(ctx, domain.BusinessMetricEventWarmupStarted, userID)
	return warmup, true, nil
}

// Stop останавливает активный прогрев пользователя. Возвращает false,
// если активного прогрева нет.
func (s *Service) Stop(ctx context.Context, userID int64) (bool, error) {
	stopped, err := s.progress.StopWarmup(userID)
	if err != nil {
		return false, fmt.Errorf("остановка прогрева: %w", err)
	}
	if stopped {
		s.recordEvent(ctx, domain.BusinessMetricEventWarmupStopped, userID)
	}
	return stopped, nil
}

// DueMessages возвращает пары (пользователь, сообщение), которым пора
// отправить следующий шаг прогрева на момент now.
//
// Для шага 0 срок наступает сразу после записи. Для остальных шагов срок
// отсчитывается от времени последней отправки (или от записи, если
// отправок ещё не было) плюс задержка сообщения. Пара, по которой уже
// есть успешная доставка, не выбирается повторно; неуспешные попытки не
// блокируют выбор, поэтому такие сообщения повторяются до успеха.
func (s *Service) DueMessages(ctx context.Context, now time.Time) ([]domain.WarmupDueItem, error) {
	active, err := s.progress.ListActiveWarmups()
	if err != nil {
		return nil, fmt.Errorf("получение активных прогревов: %w", err)
	}

	var due []domain.WarmupDueItem
	for _, item := range active {
		messages := item.Scenario.Messages
		if item.Warmup.CurrentStep >= len(messages) {
			if err := s.progress.CompleteWarmup(item.Warmup.ID); err != nil {
				return nil, fmt.Errorf("завершение прогрева: %w", err)
			}
			continue
		}

		next := messages[item.Warmup.CurrentStep]
		if !next.IsActive {
			// Выключенное сообщение пропускается без отправки.
			if err := s.progress.AdvanceWarmup(item.Warmup.UserID, now); err != nil {
				return nil, fmt.Errorf("пропуск сообщения: %w", err)
			}
			continue
		}

		var sendAt time.Time
		if item.Warmup.CurrentStep == 0 {
			sendAt = item.Warmup.StartedAt
		} else {
			base := item.Warmup.StartedAt
			if item.Warmup.LastMessageAt != nil {
				base = *item.Warmup.LastMessageAt
			}
			sendAt = base.Add(time.Duration(next.DelayHours) * time.Hour)
		}
		if now.Before(sendAt) {
			continue
		}

		sent, err := s.delivery.WasMessageSent(item.Warmup.UserID, next.ID)
		if err != nil {
			return nil, fmt.Errorf("проверка доставки: %w", err)
		}
		if sent {
			continue
		}

		due = append(due, domain.WarmupDueItem{
			User:     item.User,
			Warmup:   item.Warmup,
			Message:  next,
			Scenario: item.Scenario,
		})
	}
	return due, nil
}

// MarkDelivery записывает результат попытки отправки. При успехе
// прогресс пользователя сдвигается на следующий шаг.
func (s *Service) MarkDelivery(ctx context.Context, userID, messageID int64, success bool, errorMessage string, at time.Time) error {
	rec := domain.UserWarmupMessage{
		UserID:       userID,
		MessageID:    messageID,
		SentAt:       at,
		IsSent:       success,
		ErrorMessage: errorMessage,
	}
	if err := s.delivery.RecordDelivery(rec); err != nil {
		return fmt.Errorf("запись доставки: %w", err)
	}
	if !success {
		return nil
	}
	if err := s.progress.AdvanceWarmup(userID, at); err != nil {
		return fmt.Errorf("сдвиг прогресса: %w", err)
	}
	return nil
}

// CreateScenario создаёт новый сценарий и делает его единственным активным.
func (s *Service) CreateScenario(ctx context.Context, name, description string) (domain.WarmupScenario, error) {
	scenario, err := s.scenarios.CreateScenario(name, description)
	if err != nil {
		return domain.WarmupScenario{}, fmt.Errorf("создание сценария: %w", err)
	}
	return scenario, nil
}

// AddMessage добавляет сообщение в сценарий.
func (s *Service) AddMessage(ctx context.Context, scenarioID int64, msgType domain.WarmupMessageType, title, text string, order, delayHours int) (domain.WarmupMessage, error) {
	_, ok, err := s.scenarios.GetScenarioByID(scenarioID)
	if err != nil {
		return domain.WarmupMessage{}, fmt.Errorf("получение сценария: %w", err)
	}
	if !ok {
		return domain.WarmupMessage{}, ErrScenarioNotFound
	}
	msg, err := s.scenarios.AddMessage(domain.WarmupMessage{
		ScenarioID: scenarioID,
		Type:       msgType,
		Title:      title,
		Text:       text,
		Order:      order,
		DelayHours: delayHours,
		IsActive:   true,
	})
	if err != nil {
		return domain.WarmupMessage{}, fmt.Errorf("добавление сообщения: %w", err)
	}
	return msg, nil
}

// ListScenarios возвращает все сценарии с сообщениями.
func (s *Service) ListScenarios(ctx context.Context) ([]domain.WarmupScenario, error) {
	return s.scenarios.ListScenarios()
}

// DeleteScenario удаляет сценарий вместе с сообщениями. Прогревы,
// ссылавшиеся на него, останавливаются.
func (s *Service) DeleteScenario(ctx context.Context, scenarioID int64) error {
	_, ok, err := s.scenarios.GetScenarioByID(scenarioID)
	if err != nil {
		return fmt.Errorf("получение сценария: %w", err)
	}
	if !ok {
		return ErrScenarioNotFound
	}
	if err := s.scenarios.DeleteScenario(scenarioID); err != nil {
		return fmt.Errorf("удаление сценария: %w", err)
	}
	return nil
}

// Stats собирает сводку по сценариям и активным прогревам.
func (s *Service) Stats(ctx context.Context) (domain.WarmupStats, error) {
	scenarios, err := s.scenarios.ListScenarios()
	if err != nil {
		return domain.WarmupStats{}, fmt.Errorf("получение сценариев: %w", err)
	}
	activeUsers, err := s.progress.CountActiveWarmups()
	if err != nil {
		return domain.WarmupStats{}, fmt.Errorf("подсчёт прогревов: %w", err)
	}
	stats := domain.WarmupStats{
		ActiveUsers:  activeUsers,
		MessageTypes: make(map[domain.WarmupMessageType]int),
	}
	for _, scenario := range scenarios {
		stats.TotalScenarios++
		if scenario.IsActive {
			stats.ActiveScenarios++
		}
		stats.TotalMessages += len(scenario.Messages)
		for _, msg := range scenario.Messages {
			stats.MessageTypes[msg.Type]++
		}
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
