package store

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pathakanu/birthdaybot/internal/apperr"
	"github.com/pathakanu/birthdaybot/internal/model"
)

// ReminderKey identifies one reminder: a watcher, a watched user, the
// threshold name and the Jalali year of the birthday it announces.
type ReminderKey struct {
	WatcherID int64
	WatchedID int64
	Type      string
	Year      int
}

// Ledger is the append-only record of delivered reminders.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// HasSent reports whether key was already recorded.
func (l *Ledger) HasSent(ctx context.Context, key ReminderKey) (bool, error) {
	var count int64
	err := l.db.WithContext(ctx).
		Model(&model.ReminderLog{}).
		Where("watcher_id = ? AND watched_id = ? AND reminder_type = ? AND birthday_year = ?",
			key.WatcherID, key.WatchedID, key.Type, key.Year).
		Count(&count).Error
	if err != nil {
		return false, storageErr(err, "check reminder ledger")
	}
	return count > 0, nil
}

// RecordSent inserts key if absent. When the row already exists it returns a
// DuplicateRecord error and leaves the ledger untouched.
func (l *Ledger) RecordSent(ctx context.Context, key ReminderKey) error {
	row := &model.ReminderLog{
		WatcherID:    key.WatcherID,
		WatchedID:    key.WatchedID,
		ReminderType: key.Type,
		BirthdayYear: key.Year,
	}
	res := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(row)
	if res.Error != nil {
		return storageErr(res.Error, "record reminder")
	}
	if res.RowsAffected == 0 {
		return apperr.DuplicateRecord("reminder")
	}
	return nil
}
