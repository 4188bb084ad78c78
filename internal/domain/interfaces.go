package domain

import (
	"context"
	"time"
)

// MessageSender отправляет сообщение пользователю через мессенджер.
// Реализация сама решает, как преобразовать клавиатуру в разметку платформы.
type MessageSender interface {
	Send(ctx context.Context, chatID int64, text string, keyboard Keyboard) error
}

// UserRepo управляет пользователями.
type UserRepo interface {
	UpsertByTGID(profile TelegramProfile) (User, bool, error)
	GetByTGID(tgUserID int64) (User, error)
	GetByID(id int64) (User, error)
	ListActive(limit, offset int) ([]User, error)
	CountByStatus(status UserStatus) (int, error)
	UpdateStatus(userID int64, status UserStatus) error
	SetChannelSubscription(userID int64, subscribed bool) error
}

// ScenarioRepo управляет сценариями прогрева и их сообщениями.
type ScenarioRepo interface {
	// GetActiveScenario возвращает активный сценарий с сообщениями,
	// отсортированными по порядку.
	GetActiveScenario() (WarmupScenario, bool, error)
	GetScenarioByID(id int64) (WarmupScenario, bool, error)
	ListScenarios() ([]WarmupScenario, error)
	// CreateScenario в одной транзакции деактивирует остальные сценарии
	// и вставляет новый как активный.
	CreateScenario(name, description string) (WarmupScenario, error)
	// DeleteScenario удаляет сценарий вместе с его сообщениями.
	DeleteScenario(id int64) error
	AddMessage(msg WarmupMessage) (WarmupMessage, error)
}

// WarmupProgressRepo управляет записями прохождения прогрева.
type WarmupProgressRepo interface {
	GetActiveWarmup(userID int64) (UserWarmup, bool, error)
	CreateWarmup(userID, scenarioID int64, startedAt time.Time) (UserWarmup, error)
	// ListActiveWarmups возвращает незавершённые и неостановленные записи
	// вместе с пользователем и сценарием (сообщения загружены и отсортированы).
	// Записи, ссылающиеся на неактивный сценарий, тоже возвращаются.
	ListActiveWarmups() ([]ActiveWarmup, error)
	AdvanceWarmup(userID int64, at time.Time) error
	StopWarmup(userID int64) (bool, error)
	CompleteWarmup(warmupID int64) error
	CountActiveWarmups() (int, error)
}

// DeliveryLogRepo — журнал попыток доставки сообщений прогрева.
type DeliveryLogRepo interface {
	// WasMessageSent сообщает, была ли успешная доставка пары
	// (пользователь, сообщение). Неуспешные попытки не учитываются.
	WasMessageSent(userID, messageID int64) (bool, error)
	RecordDelivery(rec UserWarmupMessage) error
}

// ProductRepo управляет продуктами и офферами.
type ProductRepo interface {
	GetActiveProductByType(t ProductType) (Product, bool, error)
	GetActiveOffer(productID int64) (ProductOffer, bool, error)
	GetOfferByID(offerID int64) (ProductOffer, bool, error)
	ListProducts(limit int) ([]Product, error)
	CreateProduct(p Product) (Product, error)
}

// OfferTrackingRepo отслеживает показы офферов, клики и дожимы.
type OfferTrackingRepo interface {
	HasSeenOffer(userID, offerID int64) (bool, error)
	RecordOfferShown(userID, offerID int64, at time.Time) error
	MarkOfferClicked(userID, offerID int64, at time.Time) (bool, error)
	// ListFollowUpCandidates возвращает активных пользователей, которым
	// оффер трипвайера показан не позже cutoff и которые не кликнули.
	ListFollowUpCandidates(cutoff time.Time) ([]FollowUpCandidate, error)
	WasFollowUpSent(userID, offerID int64) (bool, error)
	RecordFollowUpSent(userID, offerID int64, at time.Time) error
	GetOfferStats(offerID int64) (OfferStats, error)
}

// LeadMagnetRepo управляет лид-магнитами и журналом выдачи.
type LeadMagnetRepo interface {
	GetActiveLeadMagnet() (LeadMagnet, bool, error)
	ListLeadMagnets() ([]LeadMagnet, error)
	CreateLeadMagnet(m LeadMagnet) (LeadMagnet, error)
	UserHasLeadMagnet(userID int64) (bool, error)
	RecordLeadMagnetIssued(userID, magnetID int64, at time.Time) error
}

// MailingRepo управляет рассылками.
type MailingRepo interface {
	CreateMailing(m Mailing) (Mailing, error)
	GetMailingByID(id int64) (Mailing, bool, error)
	ListMailings() ([]Mailing, error)
	UpdateMailingStatus(id int64, status MailingStatus, total int) error
	IncrementMailingCounters(id int64, sent, failed int) error
	MarkMailingSent(id int64, at time.Time) error
}

// DialogRepo управляет диалогами FAQ.
type DialogRepo interface {
	// ListActiveDialogs возвращает активные диалоги с активными
	// вопросами и ответами.
	ListActiveDialogs() ([]Dialog, error)
	ListDialogs() ([]Dialog, error)
	CreateDialog(d Dialog) (Dialog, error)
	DeleteDialog(id int64) error
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}
