package mailing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tg-funnel-bot/internal/domain"
)

var (
	// ErrMailingNotFound возвращается, если рассылка не найдена.
	ErrMailingNotFound = errors.New("рассылка не найдена")
	// ErrAlreadySending возвращается при повторном запуске рассылки.
	ErrAlreadySending = errors.New("рассылка уже запущена")
)

const startLockTTL = time.Hour

// Service создаёт рассылки и раскладывает их по задачам в очередь.
type Service struct {
	mailings domain.MailingRepo
	users    domain.UserRepo
	queue    domain.MailingQueue
	cache    domain.Cache
	batch    int
}

// NewService создаёт сервис рассылок. batch задаёт размер страницы при
// обходе пользователей.
func NewService(mailings domain.MailingRepo, users domain.UserRepo, queue domain.MailingQueue, cache domain.Cache, batch int) *Service {
	if batch <= 0 {
		batch = 200
	}
	return &Service{mailings: mailings, users: users, queue: queue, cache: cache, batch: batch}
}

// Create сохраняет черновик рассылки.
func (s *Service) Create(ctx context.Context, title, text string) (domain.Mailing, error) {
	mailing, err := s.mailings.CreateMailing(domain.Mailing{
		Title:  title,
		Text:   text,
		Status: domain.MailingDraft,
	})
	if err != nil {
		return domain.Mailing{}, fmt.Errorf("создание рассылки: %w", err)
	}
	return mailing, nil
}

// Start переводит рассылку в статус sending и публикует задачу на
// каждого активного пользователя. Повторный запуск блокируется через
// кэш и по статусу.
func (s *Service) Start(ctx context.Context, mailingID int64) (int, error) {
	mailing, ok, err := s.mailings.GetMailingByID(mailingID)
	if err != nil {
		return 0, fmt.Errorf("получение рассылки: %w", err)
	}
	if !ok {
		return 0, ErrMailingNotFound
	}
	if mailing.Status != domain.MailingDraft {
		return 0, ErrAlreadySending
	}

	total := 0
	enqueue := func() error {
		offset := 0
		for {
			users, err := s.users.ListActive(s.batch, offset)
			if err != nil {
				return fmt.Errorf("получение пользователей: %w", err)
			}
			if len(users) == 0 {
				break
			}
			for _, u := range users {
				job := domain.MailingJob{
					ID:         uuid.NewString(),
					MailingID:  mailingID,
					UserID:     u.ID,
					ChatID:     u.TGUserID,
					EnqueuedAt: time.Now().UTC(),
				}
				if err := s.queue.Enqueue(ctx, job); err != nil {
					return fmt.Errorf("публикация задачи: %w", err)
				}
				total++
			}
			if len(users) < s.batch {
				break
			}
			offset += s.batch
		}
		if err := s.mailings.UpdateMailingStatus(mailingID, domain.MailingSending, total); err != nil {
			return fmt.Errorf("обновление статуса: %w", err)
		}
		return nil
	}

	if s.cache != nil {
		key := fmt.Sprintf("mailing:start:%d", mailingID)
		if err := s.cache.Once(key, startLockTTL, enqueue); err != nil {
			return 0, err
		}
	} else if err := enqueue(); err != nil {
		return 0, err
	}
	return total, nil
}

// Get возвращает рассылку.
func (s *Service) Get(ctx context.Context, mailingID int64) (domain.Mailing, error) {
	mailing, ok, err := s.mailings.GetMailingByID(mailingID)
	if err != nil {
		return domain.Mailing{}, fmt.Errorf("получение рассылки: %w", err)
	}
	if !ok {
		return domain.Mailing{}, ErrMailingNotFound
	}
	return mailing, nil
}

// List возвращает все рассылки.
func (s *Service) List(ctx context.Context) ([]domain.Mailing, error) {
	return s.mailings.ListMailings()
}
