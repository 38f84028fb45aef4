package model

import "time"

// WatchEdge records that WatcherID follows WatchedID's birthday.
type WatchEdge struct {
	ID        uint  `gorm:"primaryKey"`
	WatcherID int64 `gorm:"not null;uniqueIndex:idx_watch_pair;index:idx_watch_watcher"`
	WatchedID int64 `gorm:"not null;uniqueIndex:idx_watch_pair"`
	Watcher   User  `gorm:"foreignKey:WatcherID;references:ID;constraint:OnDelete:CASCADE"`
	Watched   User  `gorm:"foreignKey:WatchedID;references:ID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time
}

func (WatchEdge) TableName() string { return "watchlist" }

// ReminderLog is an append-only ledger row: one per delivered reminder.
type ReminderLog struct {
	ID           uint      `gorm:"primaryKey"`
	WatcherID    int64     `gorm:"not null;uniqueIndex:idx_reminder_once"`
	WatchedID    int64     `gorm:"not null;uniqueIndex:idx_reminder_once"`
	ReminderType string    `gorm:"size:20;not null;uniqueIndex:idx_reminder_once"`
	BirthdayYear int       `gorm:"not null;uniqueIndex:idx_reminder_once"`
	SentAt       time.Time `gorm:"autoCreateTime"`
}
