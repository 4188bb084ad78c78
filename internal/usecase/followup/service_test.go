package followup

import (
	"context"
	"testing"
	"time"

	"tg-funnel-bot/internal/domain"
)

type stubTracking struct {
	candidates []domain.FollowUpCandidate
	sent       map[[2]int64]bool
}

func newStubTracking() *stubTracking {
	return &stubTracking{sent: map[[2]int64]bool{}}
}

func (s *stubTracking) HasSeenOffer(int64, int64) (bool, error)           { return false, nil }
func (s *stubTracking) RecordOfferShown(int64, int64, time.Time) error    { return nil }
func (s *stubTracking) MarkOfferClicked(int64, int64, time.Time) (bool, error) {
	return false, nil
}
func (s *stubTracking) GetOfferStats(int64) (domain.OfferStats, error) {
	return domain.OfferStats{}, nil
}

func (s *stubTracking) ListFollowUpCandidates(cutoff time.Time) ([]domain.FollowUpCandidate, error) {
	var out []domain.FollowUpCandidate
	for _, c := range s.candidates {
		if !c.UserOffer.ShownAt.After(cutoff) && !c.UserOffer.Clicked {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *stubTracking) WasFollowUpSent(userID, offerID int64) (bool, error) {
	return s.sent[[2]int64{userID, offerID}], nil
}

func (s *stubTracking) RecordFollowUpSent(userID, offerID int64, at time.Time) error {
	s.sent[[2]int64{userID, offerID}] = true
	return nil
}

func TestCandidatesAfterCutoff(t *testing.T) {
	tracking := newStubTracking()
	now := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	tracking.candidates = []domain.FollowUpCandidate{
		{
			User:      domain.User{ID: 1},
			Offer:     domain.ProductOffer{ID: 5},
			UserOffer: domain.UserProductOffer{UserID: 1, OfferID: 5, ShownAt: now.Add(-49 * time.Hour)},
		},
		{
			User:      domain.User{ID: 2},
			Offer:     domain.ProductOffer{ID: 5},
			UserOffer: domain.UserProductOffer{UserID: 2, OfferID: 5, ShownAt: now.Add(-10 * time.Hour)},
		},
	}
	svc := NewService(tracking, nil, 48*time.Hour)

	candidates, err := svc.Candidates(context.Background(), now)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(candidates) != 1 || candidates[0].User.ID != 1 {
		t.Fatalf("ожидали одного кандидата с ID 1, получили %+v", candidates)
	}
}

func TestFollowUpSentOnlyOnce(t *testing.T) {
	tracking := newStubTracking()
	now := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	tracking.candidates = []domain.FollowUpCandidate{
		{
			User:      domain.User{ID: 1},
			Offer:     domain.ProductOffer{ID: 5},
			UserOffer: domain.UserProductOffer{UserID: 1, OfferID: 5, ShownAt: now.Add(-72 * time.Hour)},
		},
	}
	svc := NewService(tracking, nil, 48*time.Hour)

	if err := svc.MarkSent(context.Background(), 1, 5, now); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	candidates, err := svc.Candidates(context.Background(), now)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("повторный дожим не должен отправляться: %+v", candidates)
	}
}

func TestTextFallback(t *testing.T) {
	svc := NewService(newStubTracking(), nil, 48*time.Hour)
	if got := svc.Text(domain.ProductOffer{Text: "спец. предложение"}); got != "спец. предложение" {
		t.Fatalf("ожидали текст оффера, получили %q", got)
	}
	if got := svc.Text(domain.ProductOffer{}); got != defaultText {
		t.Fatalf("ожидали текст по умолчанию, получили %q", got)
	}
}
