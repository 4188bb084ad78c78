package domain

import "time"

// ProductType описывает тип продукта воронки.
type ProductType string

const (
	ProductTripwire     ProductType = "tripwire"
	ProductCourse       ProductType = "course"
	ProductConsultation ProductType = "consultation"
	ProductMain         ProductType = "main_product"
	ProductUpsell       ProductType = "upsell"
	ProductDownsell     ProductType = "downsell"
)

// Product описывает продаваемый продукт. Цена хранится в минорных единицах.
type Product struct {
	ID          int64
	Name        string
	Description string
	Type        ProductType
	Price       int64
	Currency    string
	PaymentURL  string
	OfferText   string
	IsActive    bool
	SortOrder   int
	CreatedAt   time.Time
}

// ProductOffer описывает оффер продукта. Цена оффера может
// переопределять цену продукта.
type ProductOffer struct {
	ID        int64
	ProductID int64
	Name      string
	Text      string
	Price     *int64
	IsActive  bool
}

// UserProductOffer фиксирует показ оффера пользователю и клик по нему.
type UserProductOffer struct {
	ID        int64
	UserID    int64
	OfferID   int64
	ShownAt   time.Time
	Clicked   bool
	ClickedAt *time.Time
}

// UserFollowUp — журнал отправленных дожимов: один дожим на пару
// (пользователь, оффер).
type UserFollowUp struct {
	ID      int64
	UserID  int64
	OfferID int64
	SentAt  time.Time
}

// FollowUpCandidate — пользователь, которому показали оффер трипвайера,
// но он не кликнул.
type FollowUpCandidate struct {
	User      User
	Offer     ProductOffer
	UserOffer UserProductOffer
}

// OfferStats агрегирует статистику по офферу.
type OfferStats struct {
	Shows  int
	Clicks int
	CTR    float64
}
