// Package store holds the gorm-backed persistence for users, birthdays, gift
// preferences, the watchlist, the reminder ledger and support tickets.
package store

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/pathakanu/birthdaybot/internal/apperr"
	"github.com/pathakanu/birthdaybot/internal/model"
)

// Store serves user profile, birthday, gift and ticket queries.
type Store struct {
	db *gorm.DB
}

// New wraps an open, migrated database.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// storageErr classifies a driver error as StorageUnavailable and keeps the
// operation name for the server log.
func storageErr(err error, op string) error {
	if err == nil {
		return nil
	}
	return apperr.StorageUnavailable(errors.Wrap(err, op))
}

// Stats summarises the bot's data for the admin.
type Stats struct {
	Users           int64 `json:"users"`
	Birthdays       int64 `json:"birthdays"`
	GiftPreferences int64 `json:"gift_preferences"`
	WatchEdges      int64 `json:"watch_edges"`
	RemindersSent   int64 `json:"reminders_sent"`
	PendingTickets  int64 `json:"pending_tickets"`
}

// Stats counts the rows of every table.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	db := s.db.WithContext(ctx)
	counts := []struct {
		query *gorm.DB
		dest  *int64
	}{
		{db.Model(&model.User{}), &st.Users},
		{db.Model(&model.Birthday{}), &st.Birthdays},
		{db.Model(&model.GiftPreference{}), &st.GiftPreferences},
		{db.Model(&model.WatchEdge{}), &st.WatchEdges},
		{db.Model(&model.ReminderLog{}), &st.RemindersSent},
		{db.Model(&model.SupportTicket{}).Where("status = ?", model.TicketPending), &st.PendingTickets},
	}
	for _, c := range counts {
		if err := c.query.Count(c.dest).Error; err != nil {
			return Stats{}, storageErr(err, "stats")
		}
	}
	return st, nil
}
