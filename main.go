package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/pathakanu/birthdaybot/internal/bot"
	"github.com/pathakanu/birthdaybot/internal/config"
	"github.com/pathakanu/birthdaybot/internal/database"
	myopenai "github.com/pathakanu/birthdaybot/internal/openai"
	"github.com/pathakanu/birthdaybot/internal/reminder"
	"github.com/pathakanu/birthdaybot/internal/server"
	"github.com/pathakanu/birthdaybot/internal/session"
	"github.com/pathakanu/birthdaybot/internal/store"
	"github.com/pathakanu/birthdaybot/internal/telegram"
	"github.com/pathakanu/birthdaybot/internal/twilio"
)

const defaultWebhookPath = "/telegram/webhook"

type app struct {
	cfg    *config.Config
	logger *zap.Logger
}

func main() {
	a := &app{}
	root := &cobra.Command{
		Use:           "birthdaybot",
		Short:         "Birthday reminder and gift list bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		RunE: a.runServe,
	}
	root.AddCommand(
		&cobra.Command{Use: "serve", Short: "Run the bot, the reminder scheduler and the HTTP server", RunE: a.runServe},
		&cobra.Command{Use: "sweep", Short: "Run one reminder sweep and print its report", RunE: a.runSweep},
		&cobra.Command{Use: "migrate", Short: "Create or update the database schema", RunE: a.runMigrate},
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "birthdaybot:", err)
		os.Exit(1)
	}
}

func (a *app) init() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	for _, w := range cfg.Warnings {
		logger.Warn("config: " + w)
	}
	zap.ReplaceGlobals(logger)
	a.cfg, a.logger = cfg, logger
	return nil
}

func (a *app) openDatabase(ctx context.Context) (*gorm.DB, error) {
	return database.New(ctx, database.Options{
		DatabaseURL: a.cfg.DatabaseURL,
		SQLitePath:  a.cfg.SQLitePath,
		Retries:     a.cfg.DBConnectRetries,
		Backoff:     a.cfg.DBConnectBackoff,
	}, a.logger)
}

func (a *app) newScheduler(db *gorm.DB, notifier reminder.Notifier) *reminder.Scheduler {
	return reminder.New(store.NewWatchlist(db), store.NewLedger(db), notifier, a.logger, reminder.Options{
		Schedule:    a.cfg.SweepSchedule,
		Location:    a.cfg.LocalTimezone,
		Concurrency: a.cfg.SweepConcurrency,
	})
}

func (a *app) newSessions(ctx context.Context) (session.Store, error) {
	if a.cfg.RedisAddr == "" {
		return session.NewMemory(a.cfg.SessionTTL), nil
	}
	client := redis.NewClient(&redis.Options{Addr: a.cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis %s: %w", a.cfg.RedisAddr, err)
	}
	a.logger.Info("sessions stored in redis", zap.String("addr", a.cfg.RedisAddr))
	return session.NewRedis(client, a.cfg.SessionTTL), nil
}

func (a *app) runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	db, err := a.openDatabase(ctx)
	if err != nil {
		return fmt.Errorf("database init failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	sessions, err := a.newSessions(ctx)
	if err != nil {
		return err
	}

	tg, err := telegram.New(a.cfg.TelegramToken, a.cfg.SendRatePerSecond, a.logger)
	if err != nil {
		return err
	}

	opts := bot.Options{
		AdminID:  a.cfg.AdminUserID,
		BotName:  tg.BotName(),
		Location: a.cfg.LocalTimezone,
	}
	if gifts := myopenai.New(a.cfg.OpenAIAPIKey); gifts.Enabled() {
		opts.Gifts = gifts
	}
	if alerter := twilio.New(a.cfg.TwilioAccountSID, a.cfg.TwilioAuthToken, a.cfg.TwilioWhatsApp, a.cfg.AdminWhatsAppNumber, a.logger); alerter != nil {
		opts.Alerter = alerter
	}
	st := store.New(db)
	birthdayBot := bot.New(st, store.NewWatchlist(db), sessions, tg, a.logger, opts)

	scheduler := a.newScheduler(db, tg)
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("scheduler start: %w", err)
	}
	defer scheduler.Stop()

	g, gctx := errgroup.WithContext(ctx)

	srvCfg := server.Config{Addr: ":" + a.cfg.Port}
	if a.cfg.WebhookURL != "" {
		hook, err := tg.WebhookHandler(gctx, a.cfg.WebhookURL, birthdayBot)
		if err != nil {
			return err
		}
		srvCfg.WebhookPath, srvCfg.Webhook = webhookPath(a.cfg.WebhookURL), hook
		a.logger.Info("receiving updates by webhook", zap.String("path", srvCfg.WebhookPath))
	} else {
		g.Go(func() error {
			a.logger.Info("receiving updates by long polling")
			tg.Poll(gctx, birthdayBot)
			return nil
		})
	}

	srv := server.New(srvCfg, st, sqlDB, a.logger)
	g.Go(func() error { return srv.Run(gctx) })

	a.logger.Info("birthdaybot started", zap.String("bot", tg.BotName()), zap.String("timezone", a.cfg.LocalTimezone.String()))
	<-gctx.Done()
	a.logger.Info("shutting down...")
	return g.Wait()
}

func webhookPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" || u.Path == "/" {
		return defaultWebhookPath
	}
	return u.Path
}

func (a *app) runSweep(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if a.cfg.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	db, err := a.openDatabase(ctx)
	if err != nil {
		return fmt.Errorf("database init failed: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	tg, err := telegram.New(a.cfg.TelegramToken, a.cfg.SendRatePerSecond, a.logger)
	if err != nil {
		return err
	}
	report, err := a.newScheduler(db, tg).Sweep(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func (a *app) runMigrate(cmd *cobra.Command, _ []string) error {
	db, err := a.openDatabase(cmd.Context())
	if err != nil {
		return fmt.Errorf("database init failed: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	a.logger.Info("schema up to date", zap.String("dialect", db.Dialector.Name()))
	return nil
}
