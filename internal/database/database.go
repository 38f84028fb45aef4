package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pathakanu/birthdaybot/internal/model"
)

// Options controls how the database is opened.
type Options struct {
	// DatabaseURL selects PostgreSQL when set; SQLitePath is used otherwise.
	DatabaseURL string
	SQLitePath  string
	Retries     int
	Backoff     time.Duration
}

// New opens the database, retrying the initial connection up to opts.Retries
// times, and migrates the schema.
func New(ctx context.Context, opts Options, log *zap.Logger) (*gorm.DB, error) {
	retries := opts.Retries
	if retries < 1 {
		retries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		db, err := open(opts)
		if err == nil {
			err = ping(ctx, db)
		}
		if err == nil {
			if err := Migrate(db); err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
			logBackend(db, log)
			return db, nil
		}

		lastErr = err
		log.Warn("database: connect failed",
			zap.Int("attempt", attempt),
			zap.Int("retries_left", retries-attempt),
			zap.Error(err))
		if attempt == retries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opts.Backoff):
		}
	}
	return nil, fmt.Errorf("database: giving up after %d attempts: %w", retries, lastErr)
}

func open(opts Options) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	if opts.DatabaseURL != "" {
		return gorm.Open(postgres.Open(opts.DatabaseURL), gormConfig)
	}

	path := opts.SQLitePath
	if path == "" {
		path = "birthdays.db"
	}
	db, err := gorm.Open(sqlite.Open(withForeignKeys(path)), gormConfig)
	if err != nil {
		return nil, err
	}
	// SQLite serialises writers anyway; one connection avoids "database is locked".
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func withForeignKeys(path string) string {
	if strings.Contains(path, "_fk=") {
		return path
	}
	if strings.Contains(path, "?") {
		return path + "&_fk=1"
	}
	return path + "?_fk=1"
}

func ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

// Migrate creates or updates every table the bot uses.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(model.All()...)
}

func logBackend(db *gorm.DB, log *zap.Logger) {
	dialector := db.Dialector.Name()
	switch strings.ToLower(dialector) {
	case "postgres":
		log.Info("database: connected to PostgreSQL")
	case "sqlite":
		log.Info("database: using SQLite")
	default:
		log.Info("database: connected", zap.String("dialector", dialector))
	}
}
