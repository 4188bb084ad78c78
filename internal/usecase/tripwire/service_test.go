package tripwire

import (
	"context"
	"testing"
	"time"

	"tg-funnel-bot/internal/domain"
)

type stubProducts struct {
	product domain.Product
	offer   domain.ProductOffer
}

func (s *stubProducts) GetActiveProductByType(t domain.ProductType) (domain.Product, bool, error) {
	if s.product.ID == 0 || s.product.Type != t {
		return domain.Product{}, false, nil
	}
	return s.product, true, nil
}

func (s *stubProducts) GetActiveOffer(productID int64) (domain.ProductOffer, bool, error) {
	if s.offer.ID == 0 || s.offer.ProductID != productID {
		return domain.ProductOffer{}, false, nil
	}
	return s.offer, true, nil
}

func (s *stubProducts) GetOfferByID(offerID int64) (domain.ProductOffer, bool, error) {
	if s.offer.ID == offerID {
		return s.offer, true, nil
	}
	return domain.ProductOffer{}, false, nil
}

func (s *stubProducts) ListProducts(int) ([]domain.Product, error) {
	return []domain.Product{s.product}, nil
}

func (s *stubProducts) CreateProduct(p domain.Product) (domain.Product, error) { return p, nil }

type stubTracking struct {
	shown   map[[2]int64]time.Time
	clicked map[[2]int64]bool
}

func newStubTracking() *stubTracking {
	return &stubTracking{shown: map[[2]int64]time.Time{}, clicked: map[[2]int64]bool{}}
}

func (s *stubTracking) HasSeenOffer(userID, offerID int64) (bool, error) {
	_, ok := s.shown[[2]int64{userID, offerID}]
	return ok, nil
}

func (s *stubTracking) RecordOfferShown(userID, offerID int64, at time.Time) error {
	s.shown[[2]int64{userID, offerID}] = at
	return nil
}

func (s *stubTracking) MarkOfferClicked(userID, offerID int64, at time.Time) (bool, error) {
	key := [2]int64{userID, offerID}
	if s.clicked[key] {
		return false, nil
	}
	s.clicked[key] = true
	return true, nil
}

func (s *stubTracking) ListFollowUpCandidates(time.Time) ([]domain.FollowUpCandidate, error) {
	return nil, nil
}
func (s *stubTracking) WasFollowUpSent(int64, int64) (bool, error)        { return false, nil }
func (s *stubTracking) RecordFollowUpSent(int64, int64, time.Time) error { return nil }

func (s *stubTracking) GetOfferStats(offerID int64) (domain.OfferStats, error) {
	stats := domain.OfferStats{}
	for key := range s.shown {
		if key[1] == offerID {
			stats.Shows++
		}
	}
	for key, ok := range s.clicked {
		if ok && key[1] == offerID {
			stats.Clicks++
		}
	}
	if stats.Shows > 0 {
		stats.CTR = float64(stats.Clicks) / float64(stats.Shows)
	}
	return stats, nil
}

func testService(tracking *stubTracking) *Service {
	products := &stubProducts{
		product: domain.Product{ID: 1, Type: domain.ProductTripwire, IsActive: true},
		offer:   domain.ProductOffer{ID: 5, ProductID: 1, Text: "оффер", IsActive: true},
	}
	return NewService(products, tracking, nil)
}

func TestShowOfferRecordsFirstShow(t *testing.T) {
	tracking := newStubTracking()
	svc := testService(tracking)

	_, offer, err := svc.ShowOffer(context.Background(), 10)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if offer.ID != 5 {
		t.Fatalf("ожидали оффер 5, получили %d", offer.ID)
	}
	if _, ok := tracking.shown[[2]int64{10, 5}]; !ok {
		t.Fatalf("показ не записан")
	}

	// Повторный показ не создаёт второй записи.
	if _, _, err := svc.ShowOffer(context.Background(), 10); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	stats, _ := svc.Stats(context.Background(), 5)
	if stats.Shows != 1 {
		t.Fatalf("ожидали 1 показ, получили %d", stats.Shows)
	}
}

func TestShowOfferWithoutProduct(t *testing.T) {
	svc := NewService(&stubProducts{}, newStubTracking(), nil)
	_, _, err := svc.ShowOffer(context.Background(), 10)
	if err != ErrNoActiveOffer {
		t.Fatalf("ожидали ErrNoActiveOffer, получили %v", err)
	}
}

func TestClickCountedOnce(t *testing.T) {
	tracking := newStubTracking()
	svc := testService(tracking)

	if _, _, err := svc.ShowOffer(context.Background(), 10); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	clicked, err := svc.Click(context.Background(), 10, 5)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !clicked {
		t.Fatalf("первый клик должен быть учтён")
	}
	clicked, err = svc.Click(context.Background(), 10, 5)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if clicked {
		t.Fatalf("повторный клик не должен учитываться")
	}

	stats, _ := svc.Stats(context.Background(), 5)
	if stats.Clicks != 1 || stats.CTR != 1 {
		t.Fatalf("неожиданная статистика: %+v", stats)
	}
}

func TestClickUnknownOffer(t *testing.T) {
	svc := testService(newStubTracking())
	if _, err := svc.Click(context.Background(), 10, 99); err != ErrOfferNotFound {
		t.Fatalf("ожидали ErrOfferNotFound, получили %v", err)
	}
}
