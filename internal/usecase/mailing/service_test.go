package mailing

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tg-funnel-bot/internal/domain"
)

type stubMailings struct {
	mailings map[int64]*domain.Mailing
	nextID   int64
}

func newStubMailings() *stubMailings {
	return &stubMailings{mailings: map[int64]*domain.Mailing{}, nextID: 1}
}

func (s *stubMailings) CreateMailing(m domain.Mailing) (domain.Mailing, error) {
	m.ID = s.nextID
	s.nextID++
	m.CreatedAt = time.Now()
	s.mailings[m.ID] = &m
	return m, nil
}

func (s *stubMailings) GetMailingByID(id int64) (domain.Mailing, bool, error) {
	m, ok := s.mailings[id]
	if !ok {
		return domain.Mailing{}, false, nil
	}
	return *m, true, nil
}

func (s *stubMailings) ListMailings() ([]domain.Mailing, error) {
	var out []domain.Mailing
	for _, m := range s.mailings {
		out = append(out, *m)
	}
	return out, nil
}

func (s *stubMailings) UpdateMailingStatus(id int64, status domain.MailingStatus, total int) error {
	s.mailings[id].Status = status
	s.mailings[id].TotalCount = total
	return nil
}

func (s *stubMailings) IncrementMailingCounters(id int64, sent, failed int) error {
	s.mailings[id].SentCount += sent
	s.mailings[id].FailedCount += failed
	return nil
}

func (s *stubMailings) MarkMailingSent(id int64, at time.Time) error {
	s.mailings[id].Status = domain.MailingSent
	s.mailings[id].SentAt = &at
	return nil
}

type stubUsers struct {
	users []domain.User
}

func (s *stubUsers) UpsertByTGID(domain.TelegramProfile) (domain.User, bool, error) {
	return domain.User{}, false, nil
}
func (s *stubUsers) GetByTGID(int64) (domain.User, error) { return domain.User{}, nil }
func (s *stubUsers) GetByID(int64) (domain.User, error)   { return domain.User{}, nil }
func (s *stubUsers) ListActive(limit, offset int) ([]domain.User, error) {
	if offset >= len(s.users) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.users) {
		end = len(s.users)
	}
	return s.users[offset:end], nil
}
func (s *stubUsers) CountByStatus(domain.UserStatus) (int, error)  { return len(s.users), nil }
func (s *stubUsers) UpdateStatus(int64, domain.UserStatus) error   { return nil }
func (s *stubUsers) SetChannelSubscription(int64, bool) error      { return nil }

type memQueue struct {
	jobs []domain.MailingJob
}

func (q *memQueue) Enqueue(ctx context.Context, job domain.MailingJob) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *memQueue) Receive(ctx context.Context) (domain.MailingJob, domain.MailingAckFunc, error) {
	if len(q.jobs) == 0 {
		return domain.MailingJob{}, nil, context.Canceled
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return job, func(bool) error { return nil }, nil
}

type fakeCache struct {
	keys   map[string]bool
	values map[string][]byte
}

func (c *fakeCache) Once(key string, ttl time.Duration, fn func() error) error {
	if c.keys == nil {
		c.keys = map[string]bool{}
	}
	if c.keys[key] {
		return nil
	}
	if err := fn(); err != nil {
		return err
	}
	c.keys[key] = true
	return nil
}

func (c *fakeCache) Set(key string, value []byte, ttl time.Duration) error {
	if c.values == nil {
		c.values = map[string][]byte{}
	}
	c.values[key] = value
	return nil
}

func (c *fakeCache) Get(key string) ([]byte, error) { return c.values[key], nil }

type recordingSender struct {
	sent   []int64
	failAt map[int64]bool
}

func (r *recordingSender) Send(ctx context.Context, chatID int64, text string, keyboard domain.Keyboard) error {
	if r.failAt[chatID] {
		return context.DeadlineExceeded
	}
	r.sent = append(r.sent, chatID)
	return nil
}

func TestStartEnqueuesAllActiveUsers(t *testing.T) {
	mailings := newStubMailings()
	users := &stubUsers{}
	for i := int64(1); i <= 5; i++ {
		users.users = append(users.users, domain.User{ID: i, TGUserID: 100 + i, Status: domain.UserStatusActive})
	}
	queue := &memQueue{}
	svc := NewService(mailings, users, queue, &fakeCache{}, 2)

	created, err := svc.Create(context.Background(), "запуск", "текст рассылки")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	total, err := svc.Start(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if total != 5 || len(queue.jobs) != 5 {
		t.Fatalf("ожидали 5 задач, получили %d", len(queue.jobs))
	}
	stored, _, _ := mailings.GetMailingByID(created.ID)
	if stored.Status != domain.MailingSending || stored.TotalCount != 5 {
		t.Fatalf("неожиданное состояние рассылки: %+v", stored)
	}
	for _, job := range queue.jobs {
		if job.ID == "" {
			t.Fatalf("задача без идентификатора")
		}
	}
}

func TestStartTwiceRejected(t *testing.T) {
	mailings := newStubMailings()
	users := &stubUsers{users: []domain.User{{ID: 1, TGUserID: 101}}}
	queue := &memQueue{}
	svc := NewService(mailings, users, queue, &fakeCache{}, 10)

	created, _ := svc.Create(context.Background(), "запуск", "текст")
	if _, err := svc.Start(context.Background(), created.ID); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, err := svc.Start(context.Background(), created.ID); err != ErrAlreadySending {
		t.Fatalf("ожидали ErrAlreadySending, получили %v", err)
	}
}

func TestStartUnknownMailing(t *testing.T) {
	svc := NewService(newStubMailings(), &stubUsers{}, &memQueue{}, &fakeCache{}, 10)
	if _, err := svc.Start(context.Background(), 99); err != ErrMailingNotFound {
		t.Fatalf("ожидали ErrMailingNotFound, получили %v", err)
	}
}

func TestWorkerProcessesJobs(t *testing.T) {
	mailings := newStubMailings()
	users := &stubUsers{users: []domain.User{
		{ID: 1, TGUserID: 101},
		{ID: 2, TGUserID: 102},
	}}
	queue := &memQueue{}
	cache := &fakeCache{}
	svc := NewService(mailings, users, queue, cache, 10)
	created, _ := svc.Create(context.Background(), "запуск", "привет")
	if _, err := svc.Start(context.Background(), created.ID); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	sender := &recordingSender{failAt: map[int64]bool{102: true}}
	worker := NewWorker(mailings, queue, sender, cache, zerolog.Nop())
	for i := 0; i < 2; i++ {
		job, ack, err := queue.Receive(context.Background())
		if err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
		if err := worker.process(context.Background(), job); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
		_ = ack(true)
	}

	stored, _, _ := mailings.GetMailingByID(created.ID)
	if stored.SentCount != 1 || stored.FailedCount != 1 {
		t.Fatalf("неожиданные счётчики: %+v", stored)
	}
	if stored.Status != domain.MailingSent {
		t.Fatalf("рассылка должна быть завершена, статус %s", stored.Status)
	}
	if len(sender.sent) != 1 || sender.sent[0] != 101 {
		t.Fatalf("ожидали отправку только в чат 101: %+v", sender.sent)
	}
}
