package warmup

import (
	"context"
	"sort"
	"testing"
	"time"

	"tg-funnel-bot/internal/domain"
)

type stubStore struct {
	scenarios  []domain.WarmupScenario
	warmups    []*domain.UserWarmup
	users      map[int64]domain.User
	deliveries []domain.UserWarmupMessage
	nextID     int64
}

func newStubStore() *stubStore {
	return &stubStore{users: map[int64]domain.User{}, nextID: 1}
}

func (s *stubStore) id() int64 {
	id := s.nextID
	s.nextID++
	return id
}

func (s *stubStore) GetActiveScenario() (domain.WarmupScenario, bool, error) {
	for _, sc := range s.scenarios {
		if sc.IsActive {
			return sc, true, nil
		}
	}
	return domain.WarmupScenario{}, false, nil
}

func (s *stubStore) GetScenarioByID(id int64) (domain.WarmupScenario, bool, error) {
	for _, sc := range s.scenarios {
		if sc.ID == id {
			return sc, true, nil
		}
	}
	return domain.WarmupScenario{}, false, nil
}

func (s *stubStore) ListScenarios() ([]domain.WarmupScenario, error) {
	return append([]domain.WarmupScenario(nil), s.scenarios...), nil
}

func (s *stubStore) CreateScenario(name, description string) (domain.WarmupScenario, error) {
	for i := range s.scenarios {
		s.scenarios[i].IsActive = false
	}
	sc := domain.WarmupScenario{ID: s.id(), Name: name, Description: description, IsActive: true}
	s.scenarios = append(s.scenarios, sc)
	return sc, nil
}

func (s *stubStore) DeleteScenario(id int64) error {
	kept := s.scenarios[:0]
	for _, sc := range s.scenarios {
		if sc.ID != id {
			kept = append(kept, sc)
		}
	}
	s.scenarios = kept
	for _, w := range s.warmups {
		if w.ScenarioID == id {
			w.IsStopped = true
		}
	}
	return nil
}

func (s *stubStore) AddMessage(msg domain.WarmupMessage) (domain.WarmupMessage, error) {
	msg.ID = s.id()
	for i := range s.scenarios {
		if s.scenarios[i].ID == msg.ScenarioID {
			s.scenarios[i].Messages = append(s.scenarios[i].Messages, msg)
		}
	}
	return msg, nil
}

func (s *stubStore) GetActiveWarmup(userID int64) (domain.UserWarmup, bool, error) {
	for _, w := range s.warmups {
		if w.UserID == userID && !w.IsCompleted && !w.IsStopped {
			return *w, true, nil
		}
	}
	return domain.UserWarmup{}, false, nil
}

func (s *stubStore) CreateWarmup(userID, scenarioID int64, startedAt time.Time) (domain.UserWarmup, error) {
	w := &domain.UserWarmup{ID: s.id(), UserID: userID, ScenarioID: scenarioID, StartedAt: startedAt}
	s.warmups = append(s.warmups, w)
	return *w, nil
}

func (s *stubStore) ListActiveWarmups() ([]domain.ActiveWarmup, error) {
	var out []domain.ActiveWarmup
	for _, w := range s.warmups {
		if w.IsCompleted || w.IsStopped {
			continue
		}
		sc, ok, _ := s.GetScenarioByID(w.ScenarioID)
		if !ok {
			continue
		}
		sort.Slice(sc.Messages, func(i, j int) bool { return sc.Messages[i].Order < sc.Messages[j].Order })
		out = append(out, domain.ActiveWarmup{Warmup: *w, Scenario: sc, User: s.users[w.UserID]})
	}
	return out, nil
}

func (s *stubStore) AdvanceWarmup(userID int64, at time.Time) error {
	for _, w := range s.warmups {
		if w.UserID == userID && !w.IsCompleted && !w.IsStopped {
			w.CurrentStep++
			ts := at
			w.LastMessageAt = &ts
		}
	}
	return nil
}

func (s *stubStore) StopWarmup(userID int64) (bool, error) {
	for _, w := range s.warmups {
		if w.UserID == userID && !w.IsCompleted && !w.IsStopped {
			w.IsStopped = true
			return true, nil
		}
	}
	return false, nil
}

func (s *stubStore) CompleteWarmup(warmupID int64) error {
	for _, w := range s.warmups {
		if w.ID == warmupID {
			w.IsCompleted = true
		}
	}
	return nil
}

func (s *stubStore) CountActiveWarmups() (int, error) {
	count := 0
	for _, w := range s.warmups {
		if !w.IsCompleted && !w.IsStopped {
			count++
		}
	}
	return count, nil
}

func (s *stubStore) WasMessageSent(userID, messageID int64) (bool, error) {
	for _, rec := range s.deliveries {
		if rec.UserID == userID && rec.MessageID == messageID && rec.IsSent {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubStore) RecordDelivery(rec domain.UserWarmupMessage) error {
	rec.ID = s.id()
	s.deliveries = append(s.deliveries, rec)
	return nil
}

func newTestService(store *stubStore) *Service {
	return NewService(store, store, store, nil)
}

func seedScenario(store *stubStore, messages ...domain.WarmupMessage) domain.WarmupScenario {
	sc, _ := store.CreateScenario("тест", "")
	for _, msg := range messages {
		msg.ScenarioID = sc.ID
		store.AddMessage(msg)
	}
	sc, _, _ = store.GetScenarioByID(sc.ID)
	return sc
}

func TestEnrollIdempotent(t *testing.T) {
	store := newStubStore()
	seedScenario(store, domain.WarmupMessage{Type: domain.WarmupMessageWelcome, Order: 0, IsActive: true})
	svc := newTestService(store)

	first, started, err := svc.Enroll(context.Background(), 10)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !started {
		t.Fatalf("ожидали новую запись на прогрев")
	}
	second, started, err := svc.Enroll(context.Background(), 10)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if started {
		t.Fatalf("повторная запись не должна создавать новый прогрев")
	}
	if first.ID != second.ID {
		t.Fatalf("ожидали ту же запись, получили %d и %d", first.ID, second.ID)
	}
}

func TestEnrollWithoutScenario(t *testing.T) {
	store := newStubStore()
	svc := newTestService(store)
	_, _, err := svc.Enroll(context.Background(), 10)
	if err != ErrNoActiveScenario {
		t.Fatalf("ожидали ErrNoActiveScenario, получили %v", err)
	}
	if len(store.warmups) != 0 {
		t.Fatalf("запись не должна создаваться без сценария")
	}
}

func TestFirstMessageDueImmediately(t *testing.T) {
	store := newStubStore()
	seedScenario(store,
		domain.WarmupMessage{Type: domain.WarmupMessageWelcome, Order: 0, DelayHours: 0, IsActive: true},
		domain.WarmupMessage{Type: domain.WarmupMessageOffer, Order: 1, DelayHours: 48, IsActive: true},
	)
	svc := newTestService(store)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.CreateWarmup(10, store.scenarios[0].ID, start)

	due, err := svc.DueMessages(context.Background(), start.Add(5*time.Second))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("ожидали 1 сообщение, получили %d", len(due))
	}
	if due[0].Message.Type != domain.WarmupMessageWelcome {
		t.Fatalf("ожидали приветственное сообщение, получили %s", due[0].Message.Type)
	}
}

func TestDelayGatesNextMessage(t *testing.T) {
	store := newStubStore()
	seedScenario(store,
		domain.WarmupMessage{Type: domain.WarmupMessageWelcome, Order: 0, DelayHours: 0, IsActive: true},
		domain.WarmupMessage{Type: domain.WarmupMessageOffer, Order: 1, DelayHours: 48, IsActive: true},
	)
	svc := newTestService(store)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.CreateWarmup(10, store.scenarios[0].ID, start)

	firstPass := start.Add(5 * time.Second)
	due, err := svc.DueMessages(context.Background(), firstPass)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if err := svc.MarkDelivery(context.Background(), 10, due[0].Message.ID, true, "", firstPass); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if store.warmups[0].CurrentStep != 1 {
		t.Fatalf("ожидали шаг 1, получили %d", store.warmups[0].CurrentStep)
	}

	// 26 часов спустя: 48 ещё не прошли.
	due, err = svc.DueMessages(context.Background(), start.Add(24*time.Hour).Add(10*time.Second))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("оффер ещё не должен быть готов, получили %d сообщений", len(due))
	}

	due, err = svc.DueMessages(context.Background(), start.Add(48*time.Hour).Add(10*time.Second))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(due) != 1 || due[0].Message.Type != domain.WarmupMessageOffer {
		t.Fatalf("ожидали оффер через 48 часов")
	}
}

func TestStoppedWarmupExcluded(t *testing.T) {
	store := newStubStore()
	seedScenario(store, domain.WarmupMessage{Type: domain.WarmupMessageWelcome, Order: 0, IsActive: true})
	svc := newTestService(store)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.CreateWarmup(10, store.scenarios[0].ID, start)

	stopped, err := svc.Stop(context.Background(), 10)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !stopped {
		t.Fatalf("ожидали остановку прогрева")
	}
	due, err := svc.DueMessages(context.Background(), start.Add(time.Hour))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("остановленный прогрев не должен получать сообщения")
	}

	stopped, err = svc.Stop(context.Background(), 10)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if stopped {
		t.Fatalf("повторная остановка должна вернуть false")
	}
}

func TestWarmupCompletesAfterLastStep(t *testing.T) {
	store := newStubStore()
	seedScenario(store, domain.WarmupMessage{Type: domain.WarmupMessageWelcome, Order: 0, IsActive: true})
	svc := newTestService(store)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.CreateWarmup(10, store.scenarios[0].ID, start)

	due, _ := svc.DueMessages(context.Background(), start.Add(time.Second))
	if len(due) != 1 {
		t.Fatalf("ожидали 1 сообщение")
	}
	if err := svc.MarkDelivery(context.Background(), 10, due[0].Message.ID, true, "", start.Add(time.Second)); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	// Следующий проход видит, что шаги закончились, и завершает прогрев.
	due, err := svc.DueMessages(context.Background(), start.Add(time.Minute))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("сообщений больше быть не должно")
	}
	if !store.warmups[0].IsCompleted {
		t.Fatalf("ожидали завершённый прогрев")
	}
}

func TestSuccessfulDeliveryNotRepeated(t *testing.T) {
	store := newStubStore()
	seedScenario(store,
		domain.WarmupMessage{Type: domain.WarmupMessageWelcome, Order: 0, IsActive: true},
		domain.WarmupMessage{Type: domain.WarmupMessageOffer, Order: 1, DelayHours: 48, IsActive: true},
	)
	svc := newTestService(store)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.CreateWarmup(10, store.scenarios[0].ID, start)

	due, _ := svc.DueMessages(context.Background(), start.Add(time.Second))
	welcomeID := due[0].Message.ID
	_ = svc.MarkDelivery(context.Background(), 10, welcomeID, true, "", start.Add(time.Second))

	due, _ = svc.DueMessages(context.Background(), start.Add(time.Minute))
	for _, item := range due {
		if item.Message.ID == welcomeID {
			t.Fatalf("успешно доставленное сообщение выбрано повторно")
		}
	}
}

func TestFailedDeliveryRetried(t *testing.T) {
	store := newStubStore()
	seedScenario(store, domain.WarmupMessage{Type: domain.WarmupMessageWelcome, Order: 0, IsActive: true})
	svc := newTestService(store)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.CreateWarmup(10, store.scenarios[0].ID, start)

	due, _ := svc.DueMessages(context.Background(), start.Add(time.Second))
	if err := svc.MarkDelivery(context.Background(), 10, due[0].Message.ID, false, "bot was blocked", start.Add(time.Second)); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if store.warmups[0].CurrentStep != 0 {
		t.Fatalf("неуспешная отправка не должна сдвигать шаг")
	}

	due, err := svc.DueMessages(context.Background(), start.Add(time.Minute))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("ожидали повтор сообщения после неуспешной отправки")
	}
}

func TestInactiveMessageSkipped(t *testing.T) {
	store := newStubStore()
	seedScenario(store,
		domain.WarmupMessage{Type: domain.WarmupMessageWelcome, Order: 0, IsActive: false},
		domain.WarmupMessage{Type: domain.WarmupMessageOffer, Order: 1, DelayHours: 0, IsActive: true},
	)
	svc := newTestService(store)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.CreateWarmup(10, store.scenarios[0].ID, start)

	due, err := svc.DueMessages(context.Background(), start.Add(time.Second))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("выключенное сообщение не должно отправляться")
	}
	if store.warmups[0].CurrentStep != 1 {
		t.Fatalf("ожидали пропуск шага, получили %d", store.warmups[0].CurrentStep)
	}

	due, err = svc.DueMessages(context.Background(), start.Add(time.Minute))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(due) != 1 || due[0].Message.Type != domain.WarmupMessageOffer {
		t.Fatalf("ожидали следующее активное сообщение")
	}
}

func TestDeleteScenarioStopsEnrollments(t *testing.T) {
	store := newStubStore()
	sc := seedScenario(store, domain.WarmupMessage{Type: domain.WarmupMessageWelcome, Order: 0, IsActive: true})
	svc := newTestService(store)
	store.CreateWarmup(10, sc.ID, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	if err := svc.DeleteScenario(context.Background(), sc.ID); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !store.warmups[0].IsStopped {
		t.Fatalf("прогрев удалённого сценария должен быть остановлен")
	}
}

func TestStats(t *testing.T) {
	store := newStubStore()
	seedScenario(store,
		domain.WarmupMessage{Type: domain.WarmupMessageWelcome, Order: 0, IsActive: true},
		domain.WarmupMessage{Type: domain.WarmupMessageOffer, Order: 1, IsActive: true},
	)
	svc := newTestService(store)
	store.CreateWarmup(10, store.scenarios[0].ID, time.Now())

	stats, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if stats.TotalScenarios != 1 || stats.ActiveScenarios != 1 {
		t.Fatalf("неожиданная статистика сценариев: %+v", stats)
	}
	if stats.TotalMessages != 2 || stats.ActiveUsers != 1 {
		t.Fatalf("неожиданная статистика сообщений: %+v", stats)
	}
	if stats.MessageTypes[domain.WarmupMessageOffer] != 1 {
		t.Fatalf("ожидали 1 оффер в статистике")
	}
}

func TestKeyboardFor(t *testing.T) {
	offer := KeyboardFor(domain.WarmupMessageOffer)
	if len(offer) != 2 || offer[0][0].Data != CallbackOffer {
		t.Fatalf("ожидали кнопку оффера: %+v", offer)
	}
	info := KeyboardFor(domain.WarmupMessageSolution)
	if len(info) != 2 || info[0][0].Data != CallbackInfo {
		t.Fatalf("ожидали кнопку подробностей: %+v", info)
	}
	welcome := KeyboardFor(domain.WarmupMessageWelcome)
	if len(welcome) != 1 || welcome[0][0].Data != CallbackStop {
		t.Fatalf("приветствие должно нести только кнопку остановки: %+v", welcome)
	}
}
