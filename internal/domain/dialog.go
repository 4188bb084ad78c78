package domain

import "time"

// DialogStatus описывает состояние диалога.
type DialogStatus string

const (
	DialogActive   DialogStatus = "active"
	DialogInactive DialogStatus = "inactive"
)

// Dialog — тематическая группа вопросов и ответов для FAQ.
type Dialog struct {
	ID          int64
	Name        string
	Description string
	Status      DialogStatus
	SortOrder   int
	CreatedAt   time.Time
	Questions   []DialogQuestion
}

// DialogQuestion — настроенный вопрос. Keywords — список ключевых слов
// через запятую, по которым ищется совпадение.
type DialogQuestion struct {
	ID           int64
	DialogID     int64
	QuestionText string
	Keywords     string
	IsActive     bool
	SortOrder    int
	Answers      []DialogAnswer
}

// DialogAnswer — ответ на вопрос диалога.
type DialogAnswer struct {
	ID         int64
	QuestionID int64
	AnswerText string
	IsActive   bool
	SortOrder  int
}

// DialogMatch — вопрос, сопоставленный свободному тексту пользователя.
type DialogMatch struct {
	Dialog    Dialog
	Question  DialogQuestion
	Answers   []DialogAnswer
	Relevance float64
}
