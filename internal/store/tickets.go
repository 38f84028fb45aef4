package store

import (
	"context"
	"strings"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pathakanu/birthdaybot/internal/apperr"
	"github.com/pathakanu/birthdaybot/internal/model"
)

const (
	ticketPrefix = "TKT-"
	// ticketAlphabet is shortuuid's default alphabet restricted to upper case.
	ticketAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"
	ticketDigits   = 8
	ticketAttempts = 3
)

// newTicketNumber takes the low-order digits of an encoded random UUID.
var newTicketNumber = func() string {
	id := shortuuid.NewWithAlphabet(ticketAlphabet)
	return ticketPrefix + id[len(id)-ticketDigits:]
}

// NormalizeTicketNumber upper-cases a number typed by the admin.
func NormalizeTicketNumber(number string) string {
	return strings.ToUpper(strings.TrimSpace(number))
}

// CreateTicket files a pending ticket for userID. A number already in use is
// replaced by a fresh one.
func (s *Store) CreateTicket(ctx context.Context, userID int64, category, message string) (*model.SupportTicket, error) {
	for attempt := 0; attempt < ticketAttempts; attempt++ {
		ticket := &model.SupportTicket{
			TicketNumber: newTicketNumber(),
			UserID:       userID,
			Category:     category,
			Message:      message,
			Status:       model.TicketPending,
		}
		res := s.db.WithContext(ctx).
			Omit(clause.Associations).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "ticket_number"}}, DoNothing: true}).
			Create(ticket)
		if res.Error != nil {
			return nil, storageErr(res.Error, "create ticket")
		}
		if res.RowsAffected == 1 {
			return ticket, nil
		}
	}
	return nil, storageErr(errors.Errorf("no free ticket number after %d attempts", ticketAttempts), "create ticket")
}

// AnswerTicket stores the admin's response and marks the ticket answered.
func (s *Store) AnswerTicket(ctx context.Context, number, response string) (*model.SupportTicket, error) {
	return s.updateTicket(ctx, number, map[string]any{
		"admin_response": response,
		"status":         model.TicketAnswered,
	})
}

// CloseTicket marks the ticket closed.
func (s *Store) CloseTicket(ctx context.Context, number string) (*model.SupportTicket, error) {
	return s.updateTicket(ctx, number, map[string]any{"status": model.TicketClosed})
}

func (s *Store) updateTicket(ctx context.Context, number string, updates map[string]any) (*model.SupportTicket, error) {
	number = NormalizeTicketNumber(number)
	var ticket model.SupportTicket
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("ticket_number = ?", number).Take(&ticket).Error; err != nil {
			return err
		}
		if err := tx.Model(&ticket).Omit(clause.Associations).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", ticket.ID).Take(&ticket).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("ticket", number)
	}
	if err != nil {
		return nil, storageErr(err, "update ticket")
	}
	return &ticket, nil
}

// Tickets lists a user's tickets, newest first.
func (s *Store) Tickets(ctx context.Context, userID int64) ([]model.SupportTicket, error) {
	var tickets []model.SupportTicket
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&tickets).Error; err != nil {
		return nil, storageErr(err, "list tickets")
	}
	return tickets, nil
}
