package dialog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"tg-funnel-bot/internal/domain"
)

// Service ищет ответы на свободные вопросы пользователей по
// настроенным диалогам FAQ.
type Service struct {
	dialogs domain.DialogRepo
	limit   int
}

// NewService создаёт сервис диалогов. limit ограничивает число
// результатов поиска.
func NewService(dialogs domain.DialogRepo, limit int) *Service {
	if limit <= 0 {
		limit = 3
	}
	return &Service{dialogs: dialogs, limit: limit}
}

// Search подбирает вопросы, релевантные свободному тексту пользователя.
// Результаты отсортированы по убыванию релевантности.
func (s *Service) Search(ctx context.Context, query string) ([]domain.DialogMatch, error) {
	normalized := strings.ToLower(strings.TrimSpace(query))
	if normalized == "" {
		return nil, nil
	}
	dialogs, err := s.dialogs.ListActiveDialogs()
	if err != nil {
		return nil, fmt.Errorf("получение диалогов: %w", err)
	}

	var matches []domain.DialogMatch
	for _, d := range dialogs {
		for _, q := range d.Questions {
			if !q.IsActive || len(q.Answers) == 0 {
				continue
			}
			score := Relevance(normalized, q)
			if score <= 0 {
				continue
			}
			matches = append(matches, domain.DialogMatch{
				Dialog:    d,
				Question:  q,
				Answers:   q.Answers,
				Relevance: score,
			})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Relevance > matches[j].Relevance })
	if len(matches) > s.limit {
		matches = matches[:s.limit]
	}
	return matches, nil
}

// ListDialogs возвращает все диалоги.
func (s *Service) ListDialogs(ctx context.Context) ([]domain.Dialog, error) {
	return s.dialogs.ListDialogs()
}

// CreateDialog добавляет новый диалог.
func (s *Service) CreateDialog(ctx context.Context, d domain.Dialog) (domain.Dialog, error) {
	created, err := s.dialogs.CreateDialog(d)
	if err != nil {
		return domain.Dialog{}, fmt.Errorf("создание диалога: %w", err)
	}
	return created, nil
}

// DeleteDialog удаляет диалог вместе с вопросами и ответами.
func (s *Service) DeleteDialog(ctx context.Context, id int64) error {
	if err := s.dialogs.DeleteDialog(id); err != nil {
		return fmt.Errorf("удаление диалога: %w", err)
	}
	return nil
}

// Relevance оценивает близость вопроса к запросу. Запрос ожидается
// приведённым к нижнему регистру. Оценка ограничена единицей.
func Relevance(query string, question domain.DialogQuestion) float64 {
	score := 0.0
	questionText := strings.ToLower(question.QuestionText)

	if strings.Contains(questionText, query) {
		if query == questionText {
			score += 1.0
		} else {
			score += 0.8
		}
	}

	queryWords := words(query)
	if question.Keywords != "" {
		var keywords []string
		for _, kw := range strings.Split(question.Keywords, ",") {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				keywords = append(keywords, kw)
			}
		}
		for _, qw := range strings.Fields(query) {
			for _, kw := range keywords {
				if strings.Contains(kw, qw) || strings.Contains(qw, kw) {
					score += 0.3
				} else if fuzzyMatch(qw, kw) {
					score += 0.2
				}
			}
		}
	}

	questionWords := words(questionText)
	for _, qw := range queryWords {
		for _, word := range questionWords {
			if qw == word {
				score += 0.1
			} else if fuzzyMatch(qw, word) {
				score += 0.05
			}
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// fuzzyMatch считает слова близкими при совпадении первых трёх символов
// или при отличии не более чем в одном символе у слов равной длины.
func fuzzyMatch(a, b string) bool {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) < 3 || len(rb) < 3 {
		return false
	}
	if string(ra[:3]) == string(rb[:3]) {
		return true
	}
	if len(ra) == len(rb) {
		diff := 0
		for i := range ra {
			if ra[i] != rb[i] {
				diff++
			}
		}
		if diff <= 1 {
			return true
		}
	}
	return false
}
