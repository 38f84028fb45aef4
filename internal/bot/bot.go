package bot

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pathakanu/birthdaybot/internal/apperr"
	"github.com/pathakanu/birthdaybot/internal/calendar"
	"github.com/pathakanu/birthdaybot/internal/chat"
	"github.com/pathakanu/birthdaybot/internal/session"
	"github.com/pathakanu/birthdaybot/internal/store"
)

// GiftSuggester produces free-form gift ideas from a list of preferences.
type GiftSuggester interface {
	SuggestGiftIdeas(ctx context.Context, name string, preferences []string) (string, error)
}

// AdminAlerter pushes support desk alerts to the admin outside the chat.
type AdminAlerter interface {
	AlertAdmin(ctx context.Context, body string) error
}

// Options configures a Bot.
type Options struct {
	AdminID  int64
	BotName  string
	Location *time.Location
	// Gifts and Alerter are optional.
	Gifts   GiftSuggester
	Alerter AdminAlerter
	Now     func() time.Time
}

type commandFunc func(ctx context.Context, ev chat.Event) error

type command struct {
	run       commandFunc
	adminOnly bool
}

// Bot turns inbound chat events into store operations and replies.
type Bot struct {
	store     *store.Store
	watchlist *store.Watchlist
	sessions  session.Store
	messenger chat.Messenger
	gifts     GiftSuggester
	alerter   AdminAlerter
	adminID   int64
	botName   string
	location  *time.Location
	now       func() time.Time
	log       *zap.Logger

	commands map[string]command
	awaiting map[session.Awaiting]func(ctx context.Context, ev chat.Event, state session.State) error
}

// New creates a fully configured Bot instance.
func New(st *store.Store, wl *store.Watchlist, sessions session.Store, messenger chat.Messenger, log *zap.Logger, opts Options) *Bot {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	b := &Bot{
		store:     st,
		watchlist: wl,
		sessions:  sessions,
		messenger: messenger,
		gifts:     opts.Gifts,
		alerter:   opts.Alerter,
		adminID:   opts.AdminID,
		botName:   opts.BotName,
		location:  opts.Location,
		now:       opts.Now,
		log:       log.Named("bot"),
	}
	b.commands = map[string]command{
		"start":       {run: b.cmdStart},
		"help":        {run: b.cmdHelp},
		"setbirthday": {run: b.cmdSetBirthday},
		"birthday":    {run: b.cmdBirthday},
		"addgift":     {run: b.cmdAddGift},
		"removegift":  {run: b.cmdRemoveGift},
		"gifts":       {run: b.cmdGifts},
		"suggest":     {run: b.cmdSuggest},
		"watch":       {run: b.cmdWatch},
		"unwatch":     {run: b.cmdUnwatch},
		"watchlist":   {run: b.cmdWatchlist},
		"upcoming":    {run: b.cmdUpcoming},
		"support":     {run: b.cmdSupport},
		"tickets":     {run: b.cmdTickets},
		"cancel":      {run: b.cmdCancel},
		"reply":       {run: b.cmdReply, adminOnly: true},
		"close":       {run: b.cmdClose, adminOnly: true},
		"stats":       {run: b.cmdStats, adminOnly: true},
		"broadcast":   {run: b.cmdBroadcast, adminOnly: true},
	}
	b.awaiting = map[session.Awaiting]func(ctx context.Context, ev chat.Event, state session.State) error{
		session.AwaitBirthday: func(ctx context.Context, ev chat.Event, _ session.State) error {
			return b.saveBirthday(ctx, ev, ev.Text)
		},
		session.AwaitSupportMessage: b.submitTicket,
	}
	return b
}

// HandleEvent records the sender and routes the event. Errors never escape:
// they are logged and turned into a reply.
func (b *Bot) HandleEvent(ctx context.Context, ev chat.Event) {
	err := b.store.SaveUser(ctx, store.Profile{
		ID:        ev.Sender.ID,
		Username:  ev.Sender.Username,
		FirstName: ev.Sender.FirstName,
		LastName:  ev.Sender.LastName,
		BotName:   b.botName,
	})
	if err == nil {
		switch ev.Kind {
		case chat.EventCommand:
			err = b.handleCommand(ctx, ev)
		case chat.EventText:
			err = b.handleText(ctx, ev)
		case chat.EventCallback:
			err = b.handleCallback(ctx, ev)
		}
	}
	if err != nil {
		b.fail(ctx, ev, err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, ev chat.Event) error {
	cmd, ok := b.commands[ev.Command]
	if !ok {
		b.reply(ctx, ev, "I don't know that command. Send /help to see what I can do.")
		return nil
	}
	if cmd.adminOnly && !b.isAdmin(ev.Sender.ID) {
		return apperr.Forbidden("/" + ev.Command + " is admin only")
	}
	return cmd.run(ctx, ev)
}

func (b *Bot) handleText(ctx context.Context, ev chat.Event) error {
	state, ok, err := b.sessions.Get(ctx, ev.Sender.ID)
	if err != nil {
		return err
	}
	if handler, found := b.awaiting[state.Awaiting]; ok && found {
		return handler(ctx, ev, state)
	}
	b.reply(ctx, ev, "I only understand commands. Send /help to see them.")
	return nil
}

var kindReplies = map[apperr.Kind]string{
	apperr.KindInvalidDate:    "That isn't a valid date. Send it as YYYY-MM-DD, for example 1370-06-15 (Jalali) or 1991-09-06 (Gregorian).",
	apperr.KindTargetNotFound: "I don't know that user yet. They need to open the bot and press /start first.",
	apperr.KindSelfFollow:     "You can't add yourself to your own watchlist.",
	apperr.KindNotFound:       "I couldn't find that. Please check and try again.",
	apperr.KindForbidden:      "Sorry, that command is only available to the admin.",
}

const genericFailure = "Sorry, something went wrong on my side. Please try again later."

func (b *Bot) fail(ctx context.Context, ev chat.Event, err error) {
	kind := apperr.KindOf(err)
	text, ok := kindReplies[kind]
	if !ok {
		text = genericFailure
		b.log.Error("event failed",
			zap.Int64("user_id", ev.Sender.ID),
			zap.String("command", ev.Command),
			zap.Stringer("kind", kind),
			zap.Error(err))
	} else {
		b.log.Debug("event rejected", zap.Int64("user_id", ev.Sender.ID), zap.Stringer("kind", kind), zap.Error(err))
	}
	b.reply(ctx, ev, text)
}

func (b *Bot) reply(ctx context.Context, ev chat.Event, text string) {
	b.send(ctx, ev.ChatID, text, nil)
}

func (b *Bot) send(ctx context.Context, chatID int64, text string, opts *chat.Options) bool {
	if _, err := b.messenger.SendMessage(ctx, chatID, text, opts); err != nil {
		b.log.Warn("send message", zap.Int64("chat_id", chatID), zap.Error(err))
		return false
	}
	return true
}

func (b *Bot) isAdmin(userID int64) bool {
	return b.adminID != 0 && userID == b.adminID
}

func (b *Bot) today() calendar.Date {
	return calendar.FromTime(b.now().In(b.location))
}

// splitFirst cuts s at the first run of whitespace.
func splitFirst(s string) (head, rest string) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " \t\n"); i >= 0 {
		return s[:i], strings.TrimSpace(s[i+1:])
	}
	return s, ""
}
