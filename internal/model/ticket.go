package model

import "time"

// TicketStatus is the lifecycle state of a support ticket.
type TicketStatus string

const (
	TicketPending  TicketStatus = "pending"
	TicketAnswered TicketStatus = "answered"
	TicketClosed   TicketStatus = "closed"
)

// SupportTicket is a user message waiting for the support desk.
type SupportTicket struct {
	ID            uint         `gorm:"primaryKey"`
	TicketNumber  string       `gorm:"size:32;uniqueIndex;not null"`
	UserID        int64        `gorm:"index;not null"`
	Category      string       `gorm:"size:32;not null"`
	Message       string       `gorm:"type:text;not null"`
	Status        TicketStatus `gorm:"size:16;not null;default:pending"`
	AdminResponse *string      `gorm:"type:text"`
	User          User         `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// All lists every model for migration.
func All() []any {
	return []any{&User{}, &Birthday{}, &GiftPreference{}, &WatchEdge{}, &ReminderLog{}, &SupportTicket{}}
}
