// Package telegram connects the bot to the Telegram Bot API: it implements
// chat.Messenger and turns updates into chat.Events.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pathakanu/birthdaybot/internal/chat"
)

// Client wraps the Bot API with an outbound rate limit.
type Client struct {
	api     *tgbotapi.BotAPI
	limiter *rate.Limiter
	log     *zap.Logger
	wg      sync.WaitGroup
}

// New authenticates with token. perSecond caps outgoing messages; Telegram
// rejects bursts above roughly 30 per second.
func New(token string, perSecond float64, log *zap.Logger) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("telegram: bot token is not configured")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}
	return &Client{
		api:     api,
		limiter: newLimiter(perSecond),
		log:     log,
	}, nil
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// BotName is the bot's own username.
func (c *Client) BotName() string {
	return c.api.Self.UserName
}

// SendMessage implements chat.Messenger.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, opts *chat.Options) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if markup, ok := keyboard(opts); ok {
		msg.ReplyMarkup = markup
	}
	sent, err := c.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("telegram send to %d: %w", chatID, err)
	}
	return sent.MessageID, nil
}

// EditMessage implements chat.Messenger.
func (c *Client) EditMessage(ctx context.Context, chatID int64, messageID int, text string, opts *chat.Options) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if markup, ok := keyboard(opts); ok {
		edit.ReplyMarkup = &markup
	}
	if _, err := c.api.Send(edit); err != nil {
		return fmt.Errorf("telegram edit %d/%d: %w", chatID, messageID, err)
	}
	return nil
}

func keyboard(opts *chat.Options) (tgbotapi.InlineKeyboardMarkup, bool) {
	if opts == nil || opts.Keyboard == nil {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(opts.Keyboard))
	for _, row := range opts.Keyboard {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, buttons)
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}, true
}

// Poll receives updates by long polling until ctx is cancelled. Each event is
// handled on its own goroutine.
func (c *Client) Poll(ctx context.Context, h chat.Handler) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.api.GetUpdatesChan(u)
	defer c.api.StopReceivingUpdates()

	c.consume(ctx, updates, h)
}

// WebhookHandler registers url with Telegram and returns the HTTP handler that
// receives updates. Events are dispatched until ctx is cancelled.
func (c *Client) WebhookHandler(ctx context.Context, url string, h chat.Handler) (http.Handler, error) {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return nil, fmt.Errorf("telegram webhook: %w", err)
	}
	if _, err := c.api.Request(wh); err != nil {
		return nil, fmt.Errorf("telegram set webhook: %w", err)
	}

	updates := make(chan tgbotapi.Update, c.api.Buffer)
	go c.consume(ctx, updates, h)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		update, err := c.api.HandleUpdate(r)
		if err != nil {
			c.log.Warn("telegram: bad webhook payload", zap.Error(err))
			http.Error(w, "bad update", http.StatusBadRequest)
			return
		}
		select {
		case updates <- *update:
		case <-ctx.Done():
		}
		w.WriteHeader(http.StatusOK)
	}), nil
}

func (c *Client) consume(ctx context.Context, updates <-chan tgbotapi.Update, h chat.Handler) {
	for {
		select {
		case <-ctx.Done():
			c.wg.Wait()
			return
		case update, ok := <-updates:
			if !ok {
				c.wg.Wait()
				return
			}
			ev, ok := toEvent(update)
			if !ok {
				continue
			}
			if update.CallbackQuery != nil {
				if _, err := c.api.Request(tgbotapi.NewCallback(update.CallbackQuery.ID, "")); err != nil {
					c.log.Debug("telegram: answer callback", zap.Error(err))
				}
			}
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				c.dispatch(ctx, h, ev)
			}()
		}
	}
}

// dispatch hands ev to h. A panicking handler is logged and the update dropped.
func (c *Client) dispatch(ctx context.Context, h chat.Handler, ev chat.Event) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("telegram: handler panicked",
				zap.Int64("user_id", ev.Sender.ID),
				zap.String("command", ev.Command),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()
	h.HandleEvent(ctx, ev)
}

// toEvent converts an update into a chat.Event; ok is false for update kinds
// the bot ignores.
func toEvent(update tgbotapi.Update) (chat.Event, bool) {
	switch {
	case update.CallbackQuery != nil:
		q := update.CallbackQuery
		if q.From == nil || q.Message == nil || q.Message.Chat == nil {
			return chat.Event{}, false
		}
		return chat.Event{
			Kind:      chat.EventCallback,
			Sender:    sender(q.From),
			ChatID:    q.Message.Chat.ID,
			MessageID: q.Message.MessageID,
			Data:      q.Data,
		}, true

	case update.Message != nil:
		m := update.Message
		if m.From == nil || m.Chat == nil {
			return chat.Event{}, false
		}
		ev := chat.Event{
			Sender:    sender(m.From),
			ChatID:    m.Chat.ID,
			MessageID: m.MessageID,
		}
		if m.IsCommand() {
			ev.Kind = chat.EventCommand
			ev.Command = strings.ToLower(m.Command())
			ev.Args = strings.TrimSpace(m.CommandArguments())
			return ev, true
		}
		if strings.TrimSpace(m.Text) == "" {
			return chat.Event{}, false
		}
		ev.Kind = chat.EventText
		ev.Text = strings.TrimSpace(m.Text)
		return ev, true
	}
	return chat.Event{}, false
}

func sender(u *tgbotapi.User) chat.Sender {
	return chat.Sender{
		ID:        u.ID,
		Username:  u.UserName,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}
