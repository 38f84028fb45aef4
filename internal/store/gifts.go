package store

import (
	"context"
	"strings"

	"gorm.io/gorm/clause"

	"github.com/pathakanu/birthdaybot/internal/model"
)

// AddGiftPreference records an item for userID. Adding an item name the user
// already has replaces its description.
func (s *Store) AddGiftPreference(ctx context.Context, userID int64, itemName, description string) error {
	pref := model.GiftPreference{UserID: userID, ItemName: strings.TrimSpace(itemName)}
	if d := strings.TrimSpace(description); d != "" {
		pref.Description = &d
	}

	err := s.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "item_name"}},
			DoUpdates: clause.AssignmentColumns([]string{"description"}),
		}).
		Create(&pref).Error
	return storageErr(err, "add gift preference")
}

// RemoveGiftPreference deletes an item and reports whether one existed.
func (s *Store) RemoveGiftPreference(ctx context.Context, userID int64, itemName string) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND item_name = ?", userID, strings.TrimSpace(itemName)).
		Delete(&model.GiftPreference{})
	if res.Error != nil {
		return false, storageErr(res.Error, "remove gift preference")
	}
	return res.RowsAffected > 0, nil
}

// GiftPreferences lists a user's items in the order they were added.
func (s *Store) GiftPreferences(ctx context.Context, userID int64) ([]model.GiftPreference, error) {
	var prefs []model.GiftPreference
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id").
		Find(&prefs).Error; err != nil {
		return nil, storageErr(err, "list gift preferences")
	}
	return prefs, nil
}
