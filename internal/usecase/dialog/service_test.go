package dialog

import (
	"context"
	"testing"

	"tg-funnel-bot/internal/domain"
)

type stubDialogs struct {
	dialogs []domain.Dialog
}

func (s *stubDialogs) ListActiveDialogs() ([]domain.Dialog, error) { return s.dialogs, nil }
func (s *stubDialogs) ListDialogs() ([]domain.Dialog, error)       { return s.dialogs, nil }
func (s *stubDialogs) CreateDialog(d domain.Dialog) (domain.Dialog, error) {
	return d, nil
}
func (s *stubDialogs) DeleteDialog(int64) error { return nil }

func question(id int64, text, keywords string) domain.DialogQuestion {
	return domain.DialogQuestion{
		ID:           id,
		QuestionText: text,
		Keywords:     keywords,
		IsActive:     true,
		Answers:      []domain.DialogAnswer{{ID: id * 10, QuestionID: id, AnswerText: "ответ", IsActive: true}},
	}
}

func TestRelevanceExactMatch(t *testing.T) {
	q := question(1, "сколько стоит программа", "цена,стоимость")
	score := Relevance("сколько стоит программа", q)
	if score != 1.0 {
		t.Fatalf("ожидали 1.0 для точного совпадения, получили %v", score)
	}
}

func TestRelevanceSubstring(t *testing.T) {
	q := question(1, "сколько стоит программа обучения", "")
	score := Relevance("сколько стоит", q)
	if score < 0.8 {
		t.Fatalf("ожидали не меньше 0.8 для вхождения, получили %v", score)
	}
}

func TestRelevanceKeywords(t *testing.T) {
	q := question(1, "про деньги", "цена,стоимость")
	score := Relevance("какая цена", q)
	if score < 0.3 {
		t.Fatalf("ожидали вклад ключевого слова, получили %v", score)
	}
}

func TestRelevanceFuzzyTypo(t *testing.T) {
	// Опечатка в одном символе слова той же длины.
	if !fuzzyMatch("карова", "корова") {
		t.Fatalf("ожидали нечёткое совпадение с опечаткой")
	}
	if fuzzyMatch("да", "нет") {
		t.Fatalf("короткие слова не сравниваются")
	}
}

func TestRelevanceNoMatch(t *testing.T) {
	q := question(1, "как проходит обучение", "формат,занятия")
	if score := Relevance("погода завтра", q); score != 0 {
		t.Fatalf("ожидали 0, получили %v", score)
	}
}

func TestSearchOrdersAndLimits(t *testing.T) {
	store := &stubDialogs{dialogs: []domain.Dialog{
		{
			ID:     1,
			Status: domain.DialogActive,
			Questions: []domain.DialogQuestion{
				question(1, "сколько стоит программа", "цена"),
				question(2, "как оплатить участие", "оплата"),
				question(3, "когда старт потока", "старт,дата"),
			},
		},
	}}
	svc := NewService(store, 2)

	matches, err := svc.Search(context.Background(), "Сколько стоит программа")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("ожидали совпадения")
	}
	if len(matches) > 2 {
		t.Fatalf("лимит результатов нарушен: %d", len(matches))
	}
	if matches[0].Question.ID != 1 {
		t.Fatalf("ожидали самый релевантный вопрос первым, получили %d", matches[0].Question.ID)
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Relevance > matches[i-1].Relevance {
			t.Fatalf("результаты не отсортированы по релевантности")
		}
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	svc := NewService(&stubDialogs{}, 3)
	matches, err := svc.Search(context.Background(), "   ")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if matches != nil {
		t.Fatalf("пустой запрос не должен давать результатов")
	}
}

func TestSearchSkipsInactiveQuestions(t *testing.T) {
	inactive := question(1, "сколько стоит программа", "цена")
	inactive.IsActive = false
	store := &stubDialogs{dialogs: []domain.Dialog{{ID: 1, Status: domain.DialogActive, Questions: []domain.DialogQuestion{inactive}}}}
	svc := NewService(store, 3)

	matches, err := svc.Search(context.Background(), "сколько стоит программа")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("неактивный вопрос не должен попадать в результаты")
	}
}
