package store

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pathakanu/birthdaybot/internal/apperr"
	"github.com/pathakanu/birthdaybot/internal/calendar"
	"github.com/pathakanu/birthdaybot/internal/model"
)

// Profile is what the chat platform tells us about a sender.
type Profile struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	BotName   string
}

// NormalizeHandle strips whitespace and a leading @ and lower-cases the rest.
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
}

// SaveUser creates or refreshes a user. A handle now owned by p.ID is
// released from any other user that still carries it.
func (s *Store) SaveUser(ctx context.Context, p Profile) error {
	user := model.User{
		ID:        p.ID,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		BotName:   p.BotName,
	}
	if handle := NormalizeHandle(p.Username); handle != "" {
		user.Username = &handle
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if user.Username != nil {
			if err := tx.Model(&model.User{}).
				Where("username = ? AND user_id <> ?", *user.Username, user.ID).
				Update("username", nil).Error; err != nil {
				return err
			}
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "first_name", "last_name", "bot_name"}),
		}).Create(&user).Error
	})
	return storageErr(err, "save user")
}

// User loads a user by id.
func (s *Store) User(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).Where("user_id = ?", id).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("user", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, storageErr(err, "load user")
	}
	return &user, nil
}

// UserByHandle resolves a handle, with or without the @.
func (s *Store) UserByHandle(ctx context.Context, handle string) (*model.User, error) {
	return userByHandle(ctx, s.db, handle)
}

func userByHandle(ctx context.Context, db *gorm.DB, handle string) (*model.User, error) {
	handle = NormalizeHandle(handle)
	if handle == "" {
		return nil, apperr.TargetNotFound(handle)
	}
	var user model.User
	err := db.WithContext(ctx).Where("username = ?", handle).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.TargetNotFound(handle)
	}
	if err != nil {
		return nil, storageErr(err, "load user by handle")
	}
	return &user, nil
}

// UserIDs lists every known user id in ascending order.
func (s *Store) UserIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Order("user_id").Pluck("user_id", &ids).Error; err != nil {
		return nil, storageErr(err, "list users")
	}
	return ids, nil
}

// SetBirthday stores or replaces a user's birthday. date must be canonical.
func (s *Store) SetBirthday(ctx context.Context, userID int64, date calendar.Date) error {
	birthday := model.Birthday{UserID: userID, BirthDate: date.Time()}
	err := s.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"birth_date", "updated_at"}),
		}).
		Create(&birthday).Error
	return storageErr(err, "set birthday")
}

// Birthday returns the user's canonical birthday; ok is false when none is set.
func (s *Store) Birthday(ctx context.Context, userID int64) (date calendar.Date, ok bool, err error) {
	var birthday model.Birthday
	err = s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&birthday).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return calendar.Date{}, false, nil
	}
	if err != nil {
		return calendar.Date{}, false, storageErr(err, "load birthday")
	}
	return calendar.FromTime(birthday.BirthDate), true, nil
}
