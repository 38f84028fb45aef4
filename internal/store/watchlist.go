package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pathakanu/birthdaybot/internal/apperr"
	"github.com/pathakanu/birthdaybot/internal/calendar"
	"github.com/pathakanu/birthdaybot/internal/model"
)

// Watchlist is the follow graph: directed watcher -> watched edges.
type Watchlist struct {
	db *gorm.DB
}

func NewWatchlist(db *gorm.DB) *Watchlist {
	return &Watchlist{db: db}
}

// Follow adds an edge from watcherID to the user holding handle. Following
// someone twice is a no-op.
func (w *Watchlist) Follow(ctx context.Context, watcherID int64, handle string) (*model.User, error) {
	target, err := userByHandle(ctx, w.db, handle)
	if err != nil {
		return nil, err
	}
	if target.ID == watcherID {
		return nil, apperr.SelfFollow()
	}

	edge := &model.WatchEdge{WatcherID: watcherID, WatchedID: target.ID}
	if err := w.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(edge).Error; err != nil {
		return nil, storageErr(err, "follow")
	}
	return target, nil
}

// Unfollow removes the edge if present.
func (w *Watchlist) Unfollow(ctx context.Context, watcherID int64, handle string) (*model.User, error) {
	target, err := userByHandle(ctx, w.db, handle)
	if err != nil {
		return nil, err
	}
	if err := w.db.WithContext(ctx).
		Where("watcher_id = ? AND watched_id = ?", watcherID, target.ID).
		Delete(&model.WatchEdge{}).Error; err != nil {
		return nil, storageErr(err, "unfollow")
	}
	return target, nil
}

// Followed is one entry of a watcher's list.
type Followed struct {
	User     model.User
	Birthday *calendar.Date
}

type followedRow struct {
	UserID    int64
	Username  *string
	FirstName string
	LastName  string
	BirthDate *time.Time
}

// ListFollowed returns the users watcherID follows, ordered by handle. Users
// whose handle was released come last.
func (w *Watchlist) ListFollowed(ctx context.Context, watcherID int64) ([]Followed, error) {
	var rows []followedRow
	err := w.db.WithContext(ctx).
		Table("watchlist").
		Select("users.user_id, users.username, users.first_name, users.last_name, birthdays.birth_date").
		Joins("JOIN users ON users.user_id = watchlist.watched_id").
		Joins("LEFT JOIN birthdays ON birthdays.user_id = watchlist.watched_id").
		Where("watchlist.watcher_id = ?", watcherID).
		Order("users.username IS NULL, users.username, users.user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, storageErr(err, "list followed")
	}

	out := make([]Followed, 0, len(rows))
	for _, r := range rows {
		f := Followed{User: model.User{ID: r.UserID, Username: r.Username, FirstName: r.FirstName, LastName: r.LastName}}
		if r.BirthDate != nil {
			d := calendar.FromTime(*r.BirthDate)
			f.Birthday = &d
		}
		out = append(out, f)
	}
	return out, nil
}

// Edge is a follow relationship whose watched user has a birthday.
type Edge struct {
	WatcherID     int64
	WatchedID     int64
	WatchedHandle string
	WatchedName   string
	BirthDate     calendar.Date
}

type edgeRow struct {
	WatcherID int64
	WatchedID int64
	Username  *string
	FirstName string
	BirthDate time.Time
}

// Edges lists every edge with a known birthday, ordered by (watcher, watched).
func (w *Watchlist) Edges(ctx context.Context) ([]Edge, error) {
	var rows []edgeRow
	err := w.db.WithContext(ctx).
		Table("watchlist").
		Select("watchlist.watcher_id, watchlist.watched_id, users.username, users.first_name, birthdays.birth_date").
		Joins("JOIN users ON users.user_id = watchlist.watched_id").
		Joins("JOIN birthdays ON birthdays.user_id = watchlist.watched_id").
		Order("watchlist.watcher_id, watchlist.watched_id").
		Scan(&rows).Error
	if err != nil {
		return nil, storageErr(err, "list reminder edges")
	}

	edges := make([]Edge, 0, len(rows))
	for _, r := range rows {
		u := model.User{Username: r.Username, FirstName: r.FirstName}
		edges = append(edges, Edge{
			WatcherID:     r.WatcherID,
			WatchedID:     r.WatchedID,
			WatchedHandle: u.Handle(),
			WatchedName:   u.DisplayName(),
			BirthDate:     calendar.FromTime(r.BirthDate),
		})
	}
	return edges, nil
}
