package bot

import (
	"strings"
	"testing"

	"tg-funnel-bot/internal/domain"
)

func TestSplitMailingPayload(t *testing.T) {
	title, text, ok := splitMailingPayload("Запуск | Привет, это рассылка")
	if !ok || title != "Запуск" || text != "Привет, это рассылка" {
		t.Fatalf("неожиданный разбор: %q %q %v", title, text, ok)
	}
	if _, _, ok := splitMailingPayload("без разделителя"); ok {
		t.Fatalf("ожидали ошибку разбора")
	}
	if _, _, ok := splitMailingPayload(" | пустой заголовок"); ok {
		t.Fatalf("пустой заголовок не должен проходить")
	}
}

func TestParseID(t *testing.T) {
	if id := parseID("offer_click:42"); id != 42 {
		t.Fatalf("ожидали 42, получили %d", id)
	}
	if id := parseID("мусор"); id != 0 {
		t.Fatalf("ожидали 0, получили %d", id)
	}
}

func TestIsSubscribedStatus(t *testing.T) {
	for _, status := range []string{"creator", "administrator", "member", "restricted"} {
		if !isSubscribedStatus(status) {
			t.Fatalf("статус %s должен считаться подпиской", status)
		}
	}
	for _, status := range []string{"left", "kicked", ""} {
		if isSubscribedStatus(status) {
			t.Fatalf("статус %s не должен считаться подпиской", status)
		}
	}
}

func TestFormatStats(t *testing.T) {
	out := formatStats(domain.WarmupStats{TotalScenarios: 2, ActiveScenarios: 1, TotalMessages: 7, ActiveUsers: 3},
		domain.OfferStats{Shows: 10, Clicks: 4, CTR: 0.4}, 25)
	if !strings.Contains(out, "Активных пользователей: 25") {
		t.Fatalf("нет числа пользователей: %s", out)
	}
	if !strings.Contains(out, "CTR: 40.0%") {
		t.Fatalf("нет CTR: %s", out)
	}
}
