package domain

import "time"

// UserStatus описывает статус пользователя в воронке.
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
	UserStatusBanned   UserStatus = "banned"
	UserStatusPending  UserStatus = "pending"
)

// TelegramProfile содержит данные профиля из апдейта Telegram.
type TelegramProfile struct {
	TGUserID  int64
	Username  string
	FirstName string
	LastName  string
	Locale    string
	IsBot     bool
}

// User описывает пользователя Telegram в системе.
type User struct {
	ID                    int64
	TGUserID              int64
	Username              string
	FirstName             string
	LastName              string
	Locale                string
	Status                UserStatus
	IsSubscribedToChannel bool
	IsBot                 bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Button описывает одну кнопку исходящей клавиатуры.
// URL-кнопки открывают ссылку, остальные возвращают Data как callback.
type Button struct {
	Label string
	Data  string
	URL   string
}

// Keyboard описывает inline-клавиатуру как строки кнопок.
type Keyboard [][]Button

// Row собирает строку кнопок клавиатуры.
func Row(buttons ...Button) []Button {
	return buttons
}
