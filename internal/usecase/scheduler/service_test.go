package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tg-funnel-bot/internal/domain"
)

type fakeWarmups struct {
	due        []domain.WarmupDueItem
	deliveries []struct {
		userID, messageID int64
		success           bool
		errorMessage      string
	}
}

func (f *fakeWarmups) DueMessages(ctx context.Context, now time.Time) ([]domain.WarmupDueItem, error) {
	return f.due, nil
}

func (f *fakeWarmups) MarkDelivery(ctx context.Context, userID, messageID int64, success bool, errorMessage string, at time.Time) error {
	f.deliveries = append(f.deliveries, struct {
		userID, messageID int64
		success           bool
		errorMessage      string
	}{userID, messageID, success, errorMessage})
	return nil
}

type fakeFollowups struct {
	candidates []domain.FollowUpCandidate
	sent       [][2]int64
}

func (f *fakeFollowups) Candidates(ctx context.Context, now time.Time) ([]domain.FollowUpCandidate, error) {
	return f.candidates, nil
}

func (f *fakeFollowups) MarkSent(ctx context.Context, userID, offerID int64, at time.Time) error {
	f.sent = append(f.sent, [2]int64{userID, offerID})
	return nil
}

func (f *fakeFollowups) Text(offer domain.ProductOffer) string { return "дожим" }
func (f *fakeFollowups) Keyboard() domain.Keyboard             { return nil }

type fakeSender struct {
	sent   []int64
	failAt map[int64]error
}

func (f *fakeSender) Send(ctx context.Context, chatID int64, text string, keyboard domain.Keyboard) error {
	if err := f.failAt[chatID]; err != nil {
		return err
	}
	f.sent = append(f.sent, chatID)
	return nil
}

func dueItem(userID, tgID, messageID int64) domain.WarmupDueItem {
	return domain.WarmupDueItem{
		User:    domain.User{ID: userID, TGUserID: tgID},
		Warmup:  domain.UserWarmup{UserID: userID},
		Message: domain.WarmupMessage{ID: messageID, Type: domain.WarmupMessageWelcome, Text: "привет"},
	}
}

func TestRunOnceDispatchesDueMessages(t *testing.T) {
	warmups := &fakeWarmups{due: []domain.WarmupDueItem{dueItem(1, 101, 7)}}
	sender := &fakeSender{}
	runner := NewRunner(warmups, nil, sender, zerolog.Nop(), time.Minute, 0)

	runner.RunOnce(context.Background(), time.Now())

	if len(sender.sent) != 1 || sender.sent[0] != 101 {
		t.Fatalf("ожидали отправку в чат 101: %+v", sender.sent)
	}
	if len(warmups.deliveries) != 1 || !warmups.deliveries[0].success {
		t.Fatalf("ожидали успешную запись доставки: %+v", warmups.deliveries)
	}
}

func TestRunOnceRecordsFailedSend(t *testing.T) {
	warmups := &fakeWarmups{due: []domain.WarmupDueItem{
		dueItem(1, 101, 7),
		dueItem(2, 102, 7),
	}}
	sender := &fakeSender{failAt: map[int64]error{101: errors.New("bot was blocked")}}
	runner := NewRunner(warmups, nil, sender, zerolog.Nop(), time.Minute, 0)

	runner.RunOnce(context.Background(), time.Now())

	if len(warmups.deliveries) != 2 {
		t.Fatalf("ожидали две записи доставки, получили %d", len(warmups.deliveries))
	}
	if warmups.deliveries[0].success || warmups.deliveries[0].errorMessage == "" {
		t.Fatalf("первая доставка должна быть неуспешной: %+v", warmups.deliveries[0])
	}
	if !warmups.deliveries[1].success {
		t.Fatalf("вторая доставка должна пройти: %+v", warmups.deliveries[1])
	}
	if len(sender.sent) != 1 || sender.sent[0] != 102 {
		t.Fatalf("ожидали отправку только в чат 102: %+v", sender.sent)
	}
}

func TestRunOnceSendsFollowups(t *testing.T) {
	followups := &fakeFollowups{candidates: []domain.FollowUpCandidate{
		{User: domain.User{ID: 1, TGUserID: 101}, Offer: domain.ProductOffer{ID: 5}},
	}}
	sender := &fakeSender{}
	runner := NewRunner(&fakeWarmups{}, followups, sender, zerolog.Nop(), time.Minute, 0)

	runner.RunOnce(context.Background(), time.Now())

	if len(followups.sent) != 1 || followups.sent[0] != [2]int64{1, 5} {
		t.Fatalf("ожидали запись дожима: %+v", followups.sent)
	}
}

func TestFollowupNotMarkedOnSendError(t *testing.T) {
	followups := &fakeFollowups{candidates: []domain.FollowUpCandidate{
		{User: domain.User{ID: 1, TGUserID: 101}, Offer: domain.ProductOffer{ID: 5}},
	}}
	sender := &fakeSender{failAt: map[int64]error{101: errors.New("bot was blocked")}}
	runner := NewRunner(&fakeWarmups{}, followups, sender, zerolog.Nop(), time.Minute, 0)

	runner.RunOnce(context.Background(), time.Now())

	if len(followups.sent) != 0 {
		t.Fatalf("дожим не должен быть записан при ошибке отправки")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	runner := NewRunner(&fakeWarmups{}, nil, &fakeSender{}, zerolog.Nop(), 10*time.Millisecond, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := runner.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("ожидали завершение по контексту, получили %v", err)
	}
}
