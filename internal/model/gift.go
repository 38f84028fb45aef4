package model

import "time"

// GiftPreference is an item a user would like to receive.
type GiftPreference struct {
	ID          uint    `gorm:"primaryKey"`
	UserID      int64   `gorm:"not null;uniqueIndex:idx_gift_user_item"`
	ItemName    string  `gorm:"size:255;not null;uniqueIndex:idx_gift_user_item"`
	Description *string `gorm:"type:text"`
	User        User    `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time
}
