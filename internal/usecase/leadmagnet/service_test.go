package leadmagnet

import (
	"context"
	"testing"
	"time"

	"tg-funnel-bot/internal/domain"
)

type stubMagnets struct {
	magnet domain.LeadMagnet
	issued map[int64]bool
}

func newStubMagnets(magnet domain.LeadMagnet) *stubMagnets {
	return &stubMagnets{magnet: magnet, issued: map[int64]bool{}}
}

func (s *stubMagnets) GetActiveLeadMagnet() (domain.LeadMagnet, bool, error) {
	if s.magnet.ID == 0 {
		return domain.LeadMagnet{}, false, nil
	}
	return s.magnet, true, nil
}

func (s *stubMagnets) ListLeadMagnets() ([]domain.LeadMagnet, error) {
	return []domain.LeadMagnet{s.magnet}, nil
}

func (s *stubMagnets) CreateLeadMagnet(m domain.LeadMagnet) (domain.LeadMagnet, error) {
	return m, nil
}

func (s *stubMagnets) UserHasLeadMagnet(userID int64) (bool, error) {
	return s.issued[userID], nil
}

func (s *stubMagnets) RecordLeadMagnetIssued(userID, magnetID int64, at time.Time) error {
	s.issued[userID] = true
	return nil
}

type fakeCache struct {
	keys map[string]bool
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

func (c *fakeCache) Set(string, []byte, time.Duration) error { return nil }
func (c *fakeCache) Get(string) ([]byte, error)              { return nil, nil }

func TestClaimIssuesOnce(t *testing.T) {
	magnets := newStubMagnets(domain.LeadMagnet{ID: 1, Name: "чек-лист", IsActive: true})
	svc := NewService(magnets, &fakeCache{}, nil)

	magnet, issued, err := svc.Claim(context.Background(), 10)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !issued || magnet.ID != 1 {
		t.Fatalf("ожидали выдачу лид-магнита")
	}

	_, issued, err = svc.Claim(context.Background(), 10)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if issued {
		t.Fatalf("повторная выдача не должна выполняться")
	}
}

func TestClaimWithoutActiveMagnet(t *testing.T) {
	svc := NewService(newStubMagnets(domain.LeadMagnet{}), &fakeCache{}, nil)
	_, _, err := svc.Claim(context.Background(), 10)
	if err != ErrNoActiveLeadMagnet {
		t.Fatalf("ожидали ErrNoActiveLeadMagnet, получили %v", err)
	}
}
