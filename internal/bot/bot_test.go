package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pathakanu/birthdaybot/internal/apperr"
	"github.com/pathakanu/birthdaybot/internal/calendar"
	"github.com/pathakanu/birthdaybot/internal/chat"
	"github.com/pathakanu/birthdaybot/internal/database"
	"github.com/pathakanu/birthdaybot/internal/model"
	"github.com/pathakanu/birthdaybot/internal/session"
	"github.com/pathakanu/birthdaybot/internal/store"
)

const adminID = 99

var (
	alice = chat.Sender{ID: 1, Username: "alice", FirstName: "Alice"}
	bob   = chat.Sender{ID: 2, Username: "Bob", FirstName: "Bob"}
	admin = chat.Sender{ID: adminID, Username: "boss", FirstName: "Admin"}
)

// 1 Shahrivar 1403.
var testNow = time.Date(2024, time.August, 22, 10, 0, 0, 0, time.UTC)

type sentMessage struct {
	chatID    int64
	messageID int
	text      string
	opts      *chat.Options
}

type fakeMessenger struct {
	mu     sync.Mutex
	sent   []sentMessage
	edits  []sentMessage
	failTo map[int64]bool
}

func (f *fakeMessenger) SendMessage(_ context.Context, chatID int64, text string, opts *chat.Options) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTo[chatID] {
		return 0, errors.New("bot was blocked by the user")
	}
	f.sent = append(f.sent, sentMessage{chatID: chatID, messageID: len(f.sent) + 1, text: text, opts: opts})
	return len(f.sent), nil
}

func (f *fakeMessenger) EditMessage(_ context.Context, chatID int64, messageID int, text string, opts *chat.Options) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, sentMessage{chatID: chatID, messageID: messageID, text: text, opts: opts})
	return nil
}

// last returns the most recent message sent to chatID.
func (f *fakeMessenger) last(t *testing.T, chatID int64) sentMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if f.sent[i].chatID == chatID {
			return f.sent[i]
		}
	}
	t.Fatalf("nothing sent to %d", chatID)
	return sentMessage{}
}

func (f *fakeMessenger) count(chatID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.sent {
		if m.chatID == chatID {
			n++
		}
	}
	return n
}

type fakeSuggester struct {
	ideas string
	err   error
	got   []string
}

func (f *fakeSuggester) SuggestGiftIdeas(_ context.Context, _ string, preferences []string) (string, error) {
	f.got = preferences
	return f.ideas, f.err
}

type fakeAlerter struct {
	bodies []string
}

func (f *fakeAlerter) AlertAdmin(_ context.Context, body string) error {
	f.bodies = append(f.bodies, body)
	return nil
}

type harness struct {
	bot       *Bot
	messenger *fakeMessenger
	store     *store.Store
	sessions  *session.Memory
	db        *gorm.DB
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := database.New(context.Background(), database.Options{SQLitePath: dsn, Retries: 1}, zap.NewNop())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	opts.AdminID = adminID
	opts.Location = time.UTC
	opts.Now = func() time.Time { return testNow }

	h := &harness{
		messenger: &fakeMessenger{failTo: map[int64]bool{}},
		store:     store.New(db),
		sessions:  session.NewMemory(time.Hour),
		db:        db,
	}
	h.bot = New(h.store, store.NewWatchlist(db), h.sessions, h.messenger, zap.NewNop(), opts)
	return h
}

func (h *harness) command(from chat.Sender, name, args string) {
	h.bot.HandleEvent(context.Background(), chat.Event{Kind: chat.EventCommand, Sender: from, ChatID: from.ID, Command: name, Args: args})
}

func (h *harness) text(from chat.Sender, body string) {
	h.bot.HandleEvent(context.Background(), chat.Event{Kind: chat.EventText, Sender: from, ChatID: from.ID, Text: body})
}

func (h *harness) press(from chat.Sender, messageID int, data string) {
	h.bot.HandleEvent(context.Background(), chat.Event{Kind: chat.EventCallback, Sender: from, ChatID: from.ID, MessageID: messageID, Data: data})
}

func (h *harness) setJalaliBirthday(t *testing.T, userID int64, y, m, d int) {
	t.Helper()
	date, err := calendar.ToCanonical(calendar.Jalali, y, m, d)
	require.NoError(t, err)
	require.NoError(t, h.store.SetBirthday(context.Background(), userID, date))
}

func TestStartRegistersUser(t *testing.T) {
	h := newHarness(t, Options{})
	h.command(alice, "start", "")

	user, err := h.store.User(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Handle())
	assert.Contains(t, h.messenger.last(t, alice.ID).text, "Hi Alice!")
	assert.NotContains(t, h.messenger.last(t, alice.ID).text, "/broadcast")

	h.command(admin, "help", "")
	assert.Contains(t, h.messenger.last(t, adminID).text, "/broadcast")
}

func TestSetBirthdayWithArguments(t *testing.T) {
	h := newHarness(t, Options{})
	h.command(alice, "setbirthday", "1370/06/15")

	date, ok, err := h.store.Birthday(context.Background(), alice.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, calendar.Date{System: calendar.Gregorian, Year: 1991, Month: 9, Day: 6}, date)
	assert.Contains(t, h.messenger.last(t, alice.ID).text, "15 Shahrivar 1370 (September 6, 1991)")

	h.command(alice, "birthday", "")
	reply := h.messenger.last(t, alice.ID).text
	assert.Contains(t, reply, "15 Shahrivar 1370")
	assert.Contains(t, reply, "in 14 days")
}

func TestSetBirthdayPromptRetriesOnInvalidDate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{})

	h.command(alice, "setbirthday", "")
	state, ok, err := h.sessions.Get(ctx, alice.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, session.AwaitBirthday, state.Awaiting)

	h.text(alice, "1402-12-30")
	assert.Equal(t, kindReplies[apperr.KindInvalidDate], h.messenger.last(t, alice.ID).text)
	_, ok, _ = h.sessions.Get(ctx, alice.ID)
	assert.True(t, ok, "prompt should stay pending after a bad date")

	h.text(alice, "1991-09-06")
	assert.Contains(t, h.messenger.last(t, alice.ID).text, "Saved")
	_, ok, _ = h.sessions.Get(ctx, alice.ID)
	assert.False(t, ok)

	h.text(alice, "hello?")
	assert.Contains(t, h.messenger.last(t, alice.ID).text, "only understand commands")
}

func TestSetBirthdayRejectsFutureDate(t *testing.T) {
	h := newHarness(t, Options{})
	h.command(alice, "setbirthday", "2030-01-01")

	_, ok, err := h.store.Birthday(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, h.messenger.last(t, alice.ID).text, "future")
}

func TestWatchErrorsAreExplained(t *testing.T) {
	h := newHarness(t, Options{})
	h.command(bob, "start", "")

	h.command(alice, "watch", "@nobody")
	assert.Equal(t, kindReplies[apperr.KindTargetNotFound], h.messenger.last(t, alice.ID).text)

	h.command(alice, "watch", "@alice")
	assert.Equal(t, kindReplies[apperr.KindSelfFollow], h.messenger.last(t, alice.ID).text)

	h.command(alice, "watch", "@BOB")
	assert.Contains(t, h.messenger.last(t, alice.ID).text, "You're watching @bob (Bob)")
	assert.Contains(t, h.messenger.last(t, alice.ID).text, "haven't set a birthday")

	h.command(alice, "watch", "bob")
	var edges int64
	require.NoError(t, h.db.Model(&model.WatchEdge{}).Count(&edges).Error)
	assert.Equal(t, int64(1), edges)

	h.command(alice, "watchlist", "")
	assert.Contains(t, h.messenger.last(t, alice.ID).text, "@bob (Bob): birthday not set")

	h.command(alice, "unwatch", "@bob")
	h.command(alice, "watchlist", "")
	assert.Contains(t, h.messenger.last(t, alice.ID).text, "watchlist is empty")
}

func TestUpcomingOrdersSoonestFirst(t *testing.T) {
	h := newHarness(t, Options{})
	carol := chat.Sender{ID: 3, Username: "carol", FirstName: "Carol"}
	dave := chat.Sender{ID: 4, Username: "dave"}
	erin := chat.Sender{ID: 5, Username: "erin"}
	for _, s := range []chat.Sender{alice, bob, carol, dave, erin} {
		h.command(s, "start", "")
	}
	h.setJalaliBirthday(t, dave.ID, 1368, 6, 4)
	h.setJalaliBirthday(t, bob.ID, 1370, 6, 4)
	h.setJalaliBirthday(t, carol.ID, 1365, 6, 1)
	h.setJalaliBirthday(t, erin.ID, 1360, 6, 20)
	for _, handle := range []string{"dave", "bob", "carol", "erin"} {
		h.command(alice, "watch", handle)
	}

	h.command(alice, "upcoming", "")
	reply := h.messenger.last(t, alice.ID).text
	assert.NotContains(t, reply, "erin")

	iCarol := strings.Index(reply, "@carol (Carol): 1 Shahrivar, today")
	iBob := strings.Index(reply, "@bob (Bob): 4 Shahrivar, in 3 days")
	iDave := strings.Index(reply, "@dave: 4 Shahrivar, in 3 days")
	require.True(t, iCarol >= 0 && iBob >= 0 && iDave >= 0, reply)
	assert.True(t, iCarol < iBob && iBob < iDave, reply)
}

func TestGiftPreferencesAndSuggest(t *testing.T) {
	ctx := context.Background()
	suggester := &fakeSuggester{ideas: "• A reading lamp"}
	h := newHarness(t, Options{Gifts: suggester})
	h.command(alice, "start", "")

	h.command(bob, "addgift", "Book | fantasy")
	h.command(bob, "addgift", "Book | sci-fi")
	prefs, err := h.store.GiftPreferences(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, prefs, 1)
	require.NotNil(t, prefs[0].Description)
	assert.Equal(t, "sci-fi", *prefs[0].Description)

	h.command(alice, "suggest", "@bob")
	reply := h.messenger.last(t, alice.ID).text
	assert.Contains(t, reply, "• Book: sci-fi")
	assert.Contains(t, reply, "A reading lamp")
	assert.Equal(t, []string{"Book - sci-fi"}, suggester.got)

	suggester.err = errors.New("quota exceeded")
	h.command(alice, "suggest", "bob")
	reply = h.messenger.last(t, alice.ID).text
	assert.Contains(t, reply, "• Book: sci-fi")
	assert.NotContains(t, reply, "more ideas")

	h.command(bob, "removegift", "book")
	assert.Contains(t, h.messenger.last(t, bob.ID).text, "isn't on your gift list")
	h.command(bob, "removegift", "Book")
	h.command(bob, "gifts", "")
	assert.Contains(t, h.messenger.last(t, bob.ID).text, "gift list is empty")
}

func TestSupportFlowCreatesTicket(t *testing.T) {
	ctx := context.Background()
	alerter := &fakeAlerter{}
	h := newHarness(t, Options{Alerter: alerter})

	h.command(alice, "support", "")
	menu := h.messenger.last(t, alice.ID)
	require.NotNil(t, menu.opts)
	require.Len(t, menu.opts.Keyboard, 3)
	assert.Len(t, menu.opts.Keyboard[0], 2)
	assert.Equal(t, "support:bot", menu.opts.Keyboard[0][0].Data)

	h.press(alice, menu.messageID, "support:gifts")
	require.Len(t, h.messenger.edits, 1)
	edit := h.messenger.edits[0]
	assert.Equal(t, menu.messageID, edit.messageID)
	assert.Contains(t, edit.text, "Gift lists")
	assert.Equal(t, "support:back", edit.opts.Keyboard[0][0].Data)

	h.text(alice, "Suggestions show nothing")
	tickets, err := h.store.Tickets(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	ticket := tickets[0]
	assert.Equal(t, "gifts", ticket.Category)
	assert.Equal(t, model.TicketPending, ticket.Status)
	assert.Regexp(t, `^TKT-[0-9A-Z]{8}$`, ticket.TicketNumber)

	assert.Contains(t, h.messenger.last(t, alice.ID).text, ticket.TicketNumber)
	adminMsg := h.messenger.last(t, adminID).text
	assert.Contains(t, adminMsg, ticket.TicketNumber)
	assert.Contains(t, adminMsg, "Suggestions show nothing")
	assert.Contains(t, adminMsg, "@alice")
	require.Len(t, alerter.bodies, 1)
	assert.Equal(t, adminMsg, alerter.bodies[0])

	_, ok, err := h.sessions.Get(ctx, alice.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	h.command(alice, "tickets", "")
	assert.Contains(t, h.messenger.last(t, alice.ID).text, ticket.TicketNumber+" [pending]")
}

func TestSupportBackReturnsToMenu(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{})

	h.press(alice, 7, "support:technical")
	_, ok, _ := h.sessions.Get(ctx, alice.ID)
	require.True(t, ok)

	h.press(alice, 7, "support:back")
	_, ok, _ = h.sessions.Get(ctx, alice.ID)
	assert.False(t, ok)
	require.Len(t, h.messenger.edits, 2)
	assert.Equal(t, supportMenuText, h.messenger.edits[1].text)

	h.press(alice, 7, "support:unknown")
	h.press(alice, 7, "something-else")
	assert.Len(t, h.messenger.edits, 2)
}

func TestAdminCommands(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{})
	h.command(admin, "start", "")
	h.command(alice, "start", "")
	ticket, err := h.store.CreateTicket(ctx, alice.ID, "bot", "How do I start?")
	require.NoError(t, err)

	h.command(alice, "reply", ticket.TicketNumber+" nope")
	assert.Equal(t, kindReplies[apperr.KindForbidden], h.messenger.last(t, alice.ID).text)

	h.command(admin, "reply", strings.ToLower(ticket.TicketNumber)+" Send /start")
	assert.Contains(t, h.messenger.last(t, alice.ID).text, "Send /start")
	assert.Contains(t, h.messenger.last(t, adminID).text, "delivered")
	tickets, err := h.store.Tickets(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TicketAnswered, tickets[0].Status)

	h.command(admin, "close", ticket.TicketNumber)
	tickets, err = h.store.Tickets(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TicketClosed, tickets[0].Status)

	h.command(admin, "close", "TKT-NOPE0000")
	assert.Equal(t, kindReplies[apperr.KindNotFound], h.messenger.last(t, adminID).text)

	h.command(admin, "stats", "")
	stats := h.messenger.last(t, adminID).text
	assert.Contains(t, stats, "Users: 2")
	assert.Contains(t, stats, "Pending tickets: 0")
}

func TestBroadcastCountsFailures(t *testing.T) {
	h := newHarness(t, Options{})
	for _, s := range []chat.Sender{alice, bob, admin} {
		h.command(s, "start", "")
	}
	h.messenger.failTo[bob.ID] = true

	h.command(admin, "broadcast", "New feature: /upcoming")
	assert.Equal(t, "📢 New feature: /upcoming", h.messenger.last(t, alice.ID).text)
	assert.Contains(t, h.messenger.last(t, adminID).text, "sent to 2 users, 1 failed")
}

func TestUnknownCommandAndCancel(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{})

	h.command(alice, "frobnicate", "")
	assert.Contains(t, h.messenger.last(t, alice.ID).text, "don't know that command")

	h.command(alice, "setbirthday", "")
	h.command(alice, "cancel", "")
	_, ok, err := h.sessions.Get(ctx, alice.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, h.messenger.last(t, alice.ID).text, "Cancelled")
}

func TestStorageFailureGetsGenericReply(t *testing.T) {
	h := newHarness(t, Options{})
	sqlDB, err := h.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	h.command(alice, "gifts", "")
	assert.Equal(t, 1, h.messenger.count(alice.ID))
	assert.Equal(t, genericFailure, h.messenger.last(t, alice.ID).text)
}
