package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	TelegramToken       string
	WebhookURL          string
	AdminUserID         int64
	Port                string
	DatabaseURL         string
	SQLitePath          string
	DBConnectRetries    int
	DBConnectBackoff    time.Duration
	LocalTimezone       *time.Location
	SweepSchedule       string
	SweepConcurrency    int
	SendRatePerSecond   float64
	SessionTTL          time.Duration
	RedisAddr           string
	OpenAIAPIKey        string
	TwilioAccountSID    string
	TwilioAuthToken     string
	TwilioWhatsApp      string
	AdminWhatsAppNumber string
	LogLevel            string

	// Warnings collects non-fatal problems found while loading, logged once
	// the logger exists.
	Warnings []string
}

var defaults = map[string]any{
	"PORT":                 "8080",
	"SQLITE_PATH":          "birthdays.db",
	"LOCAL_TIMEZONE":       "Local",
	"SWEEP_SCHEDULE":       "@every 1h",
	"SWEEP_CONCURRENCY":    4,
	"SEND_RATE_PER_SECOND": 25.0,
	"SESSION_TTL":          "30m",
	"LOG_LEVEL":            "info",
	"DB_CONNECT_RETRIES":   5,
	"DB_CONNECT_BACKOFF":   "5s",
}

// Load reads configuration values and prepares defaults where applicable.
// A .env file in the working directory is honoured when present.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return fromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()
	return v
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		TelegramToken:       strings.TrimSpace(v.GetString("TELEGRAM_BOT_TOKEN")),
		WebhookURL:          strings.TrimSpace(v.GetString("TELEGRAM_WEBHOOK_URL")),
		Port:                v.GetString("PORT"),
		DatabaseURL:         v.GetString("DATABASE_URL"),
		SQLitePath:          v.GetString("SQLITE_PATH"),
		DBConnectBackoff:    v.GetDuration("DB_CONNECT_BACKOFF"),
		SweepSchedule:       v.GetString("SWEEP_SCHEDULE"),
		SendRatePerSecond:   v.GetFloat64("SEND_RATE_PER_SECOND"),
		SessionTTL:          v.GetDuration("SESSION_TTL"),
		RedisAddr:           v.GetString("REDIS_ADDR"),
		OpenAIAPIKey:        v.GetString("OPENAI_API_KEY"),
		TwilioAccountSID:    v.GetString("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:     v.GetString("TWILIO_AUTH_TOKEN"),
		TwilioWhatsApp:      v.GetString("TWILIO_WHATSAPP_NUMBER"),
		AdminWhatsAppNumber: v.GetString("ADMIN_WHATSAPP_NUMBER"),
		LogLevel:            v.GetString("LOG_LEVEL"),
	}

	cfg.AdminUserID = int64(cfg.parseInt(v, "ADMIN_USER_ID"))
	cfg.DBConnectRetries = cfg.parseInt(v, "DB_CONNECT_RETRIES")
	cfg.SweepConcurrency = cfg.parseInt(v, "SWEEP_CONCURRENCY")

	timezoneName := v.GetString("LOCAL_TIMEZONE")
	location, err := time.LoadLocation(timezoneName)
	if err != nil {
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("invalid LOCAL_TIMEZONE %q, defaulting to system local: %v", timezoneName, err))
		location = time.Local
	}
	cfg.LocalTimezone = location

	if cfg.SweepConcurrency < 1 {
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("SWEEP_CONCURRENCY=%d is below 1, using 1", cfg.SweepConcurrency))
		cfg.SweepConcurrency = 1
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	if cfg.DBConnectRetries < 1 {
		cfg.DBConnectRetries = 1
	}
	return cfg, nil
}

// parseInt returns the integer value for key or its default. A malformed
// value is reported in Warnings.
func (c *Config) parseInt(v *viper.Viper, key string) int {
	def, _ := defaults[key].(int)
	value := strings.TrimSpace(v.GetString(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		c.Warnings = append(c.Warnings, fmt.Sprintf("unable to parse %s=%q as int: %v", key, value, err))
		return def
	}
	return int(parsed)
}

// Validate checks the settings required to run the bot itself.
func (c *Config) Validate() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if c.AdminUserID == 0 {
		return fmt.Errorf("ADMIN_USER_ID is required")
	}
	return nil
}

// NewLogger builds the process logger at the given level.
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}
	zc := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc.Build()
}
