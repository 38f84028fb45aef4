package model

import "time"

// User is a chat account that has interacted with the bot.
type User struct {
	ID        int64   `gorm:"primaryKey;column:user_id;autoIncrement:false"`
	Username  *string `gorm:"size:255;uniqueIndex"`
	FirstName string  `gorm:"size:255"`
	LastName  string  `gorm:"size:255"`
	BotName   string  `gorm:"size:255"`
	CreatedAt time.Time
}

// Handle returns the username without the leading @, or "" when unset.
func (u User) Handle() string {
	if u.Username == nil {
		return ""
	}
	return *u.Username
}

// DisplayName prefers the first name and falls back to the handle.
func (u User) DisplayName() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	if h := u.Handle(); h != "" {
		return "@" + h
	}
	return "someone"
}

// Birthday is stored as a Gregorian date, at most one per user.
type Birthday struct {
	UserID    int64     `gorm:"primaryKey;autoIncrement:false"`
	BirthDate time.Time `gorm:"type:date;not null"`
	User      User      `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
