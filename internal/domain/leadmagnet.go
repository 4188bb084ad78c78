package domain

import "time"

// LeadMagnetType описывает форму лид-магнита.
type LeadMagnetType string

const (
	LeadMagnetPDF         LeadMagnetType = "pdf"
	LeadMagnetGoogleSheet LeadMagnetType = "google_sheet"
	LeadMagnetLink        LeadMagnetType = "link"
	LeadMagnetText        LeadMagnetType = "text"
)

// LeadMagnet описывает подарок, выдаваемый новому подписчику.
type LeadMagnet struct {
	ID          int64
	Name        string
	Description string
	Type        LeadMagnetType
	FileURL     string
	MessageText string
	IsActive    bool
	SortOrder   int
}

// UserLeadMagnet фиксирует выдачу лид-магнита пользователю.
type UserLeadMagnet struct {
	ID           int64
	UserID       int64
	LeadMagnetID int64
	IssuedAt     time.Time
}
