package bot

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pathakanu/birthdaybot/internal/chat"
	"github.com/pathakanu/birthdaybot/internal/model"
	"github.com/pathakanu/birthdaybot/internal/session"
	"github.com/pathakanu/birthdaybot/internal/store"
)

// SupportCategory is a topic in the /support menu.
type SupportCategory string

const (
	CategoryBot       SupportCategory = "bot"
	CategoryGifts     SupportCategory = "gifts"
	CategoryBirthday  SupportCategory = "birthday"
	CategoryWatchlist SupportCategory = "watchlist"
	CategoryTechnical SupportCategory = "technical"
	CategoryOther     SupportCategory = "other"
)

type categoryInfo struct {
	label  string
	prompt string
}

var supportCategories = map[SupportCategory]categoryInfo{
	CategoryBot:       {label: "🤖 Using the bot", prompt: "Tell me what you'd like to know about the bot."},
	CategoryGifts:     {label: "🎁 Gift lists", prompt: "What's the problem with gift lists or suggestions?"},
	CategoryBirthday:  {label: "🎂 My birthday", prompt: "What's wrong with your saved birthday?"},
	CategoryWatchlist: {label: "👀 Watchlist & reminders", prompt: "What's going on with your watchlist or reminders?"},
	CategoryTechnical: {label: "🛠 Technical problem", prompt: "Describe the problem and what you were doing when it happened."},
	CategoryOther:     {label: "💬 Something else", prompt: "Go ahead, I'm listening."},
}

// supportMenuOrder fixes the button order of the menu.
var supportMenuOrder = []SupportCategory{
	CategoryBot, CategoryGifts, CategoryBirthday, CategoryWatchlist, CategoryTechnical, CategoryOther,
}

const (
	supportCallbackPrefix = "support:"
	supportBack           = "back"
	supportMenuText       = "🆘 Support\n\nWhat do you need help with?"
)

func supportMenu() *chat.Options {
	var rows [][]chat.Button
	for i := 0; i < len(supportMenuOrder); i += 2 {
		var row []chat.Button
		for _, c := range supportMenuOrder[i:min(i+2, len(supportMenuOrder))] {
			row = append(row, chat.Button{Text: supportCategories[c].label, Data: supportCallbackPrefix + string(c)})
		}
		rows = append(rows, row)
	}
	return &chat.Options{Keyboard: rows}
}

func backButton() *chat.Options {
	return &chat.Options{Keyboard: [][]chat.Button{{{Text: "⬅️ Back", Data: supportCallbackPrefix + supportBack}}}}
}

func (b *Bot) cmdSupport(ctx context.Context, ev chat.Event) error {
	b.send(ctx, ev.ChatID, supportMenuText, supportMenu())
	return nil
}

func (b *Bot) handleCallback(ctx context.Context, ev chat.Event) error {
	choice, ok := strings.CutPrefix(ev.Data, supportCallbackPrefix)
	if !ok {
		b.log.Debug("unknown callback", zap.String("data", ev.Data))
		return nil
	}

	if choice == supportBack {
		if err := b.sessions.Clear(ctx, ev.Sender.ID); err != nil {
			return err
		}
		return b.edit(ctx, ev, supportMenuText, supportMenu())
	}

	category := SupportCategory(choice)
	info, ok := supportCategories[category]
	if !ok {
		b.log.Debug("unknown support category", zap.String("category", choice))
		return nil
	}
	state := session.State{Awaiting: session.AwaitSupportMessage, Category: string(category)}
	if err := b.sessions.Set(ctx, ev.Sender.ID, state); err != nil {
		return err
	}
	return b.edit(ctx, ev, fmt.Sprintf("%s\n\n%s\nSend it as one message, or /cancel.", info.label, info.prompt), backButton())
}

func (b *Bot) edit(ctx context.Context, ev chat.Event, text string, opts *chat.Options) error {
	if err := b.messenger.EditMessage(ctx, ev.ChatID, ev.MessageID, text, opts); err != nil {
		b.log.Warn("edit message", zap.Int64("chat_id", ev.ChatID), zap.Int("message_id", ev.MessageID), zap.Error(err))
	}
	return nil
}

// submitTicket turns the awaited support message into a ticket and tells
// the admin about it.
func (b *Bot) submitTicket(ctx context.Context, ev chat.Event, state session.State) error {
	category := SupportCategory(state.Category)
	if _, ok := supportCategories[category]; !ok {
		category = CategoryOther
	}
	ticket, err := b.store.CreateTicket(ctx, ev.Sender.ID, string(category), ev.Text)
	if err != nil {
		return err
	}
	if err := b.sessions.Clear(ctx, ev.Sender.ID); err != nil {
		b.log.Warn("clear session", zap.Int64("user_id", ev.Sender.ID), zap.Error(err))
	}
	b.log.Info("support ticket created", zap.String("ticket", ticket.TicketNumber), zap.Int64("user_id", ev.Sender.ID))

	b.reply(ctx, ev, fmt.Sprintf("✅ Thanks! Your message was sent to the admin.\nTicket number: %s\nYou can follow it with /tickets.", ticket.TicketNumber))
	b.notifyAdmin(ctx, adminTicketAlert(ticket, ev.Sender, category))
	return nil
}

func adminTicketAlert(ticket *model.SupportTicket, from chat.Sender, category SupportCategory) string {
	who := strings.TrimSpace(from.FirstName + " " + from.LastName)
	if from.Username != "" {
		who += " @" + store.NormalizeHandle(from.Username)
	}
	return fmt.Sprintf("🆘 New support ticket %s\nFrom: %s (id %d)\nCategory: %s\n\n%s\n\nAnswer with /reply %s your answer",
		ticket.TicketNumber, strings.TrimSpace(who), from.ID, supportCategories[category].label, ticket.Message, ticket.TicketNumber)
}

func (b *Bot) notifyAdmin(ctx context.Context, text string) {
	if b.adminID != 0 {
		b.send(ctx, b.adminID, text, nil)
	}
	if b.alerter != nil {
		if err := b.alerter.AlertAdmin(ctx, text); err != nil {
			b.log.Warn("admin alert", zap.Error(err))
		}
	}
}

func (b *Bot) cmdTickets(ctx context.Context, ev chat.Event) error {
	tickets, err := b.store.Tickets(ctx, ev.Sender.ID)
	if err != nil {
		return err
	}
	if len(tickets) == 0 {
		b.reply(ctx, ev, "You have no support tickets. Use /support to contact the admin.")
		return nil
	}

	var sb strings.Builder
	sb.WriteString("🎫 Your tickets:")
	for _, t := range tickets {
		fmt.Fprintf(&sb, "\n\n%s [%s] %s\n%s", t.TicketNumber, t.Status, t.CreatedAt.In(b.location).Format("2006-01-02"), excerpt(t.Message, 80))
		if t.AdminResponse != nil {
			fmt.Fprintf(&sb, "\n↳ %s", excerpt(*t.AdminResponse, 80))
		}
	}
	b.reply(ctx, ev, sb.String())
	return nil
}

func excerpt(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}

func (b *Bot) cmdReply(ctx context.Context, ev chat.Event) error {
	number, text := splitFirst(ev.Args)
	if number == "" || text == "" {
		b.reply(ctx, ev, "Usage: /reply TKT-XXXXXXXX your answer")
		return nil
	}
	ticket, err := b.store.AnswerTicket(ctx, number, text)
	if err != nil {
		return err
	}

	delivered := b.send(ctx, ticket.UserID, fmt.Sprintf("📬 The admin replied to your ticket %s:\n\n%s", ticket.TicketNumber, text), nil)
	if !delivered {
		b.reply(ctx, ev, fmt.Sprintf("Saved the answer to %s, but I couldn't deliver it to the user.", ticket.TicketNumber))
		return nil
	}
	b.reply(ctx, ev, fmt.Sprintf("✅ Answer to %s delivered.", ticket.TicketNumber))
	return nil
}

func (b *Bot) cmdClose(ctx context.Context, ev chat.Event) error {
	number, _ := splitFirst(ev.Args)
	if number == "" {
		b.reply(ctx, ev, "Usage: /close TKT-XXXXXXXX")
		return nil
	}
	ticket, err := b.store.CloseTicket(ctx, number)
	if err != nil {
		return err
	}
	b.send(ctx, ticket.UserID, fmt.Sprintf("Your ticket %s has been closed. Use /support if you need anything else.", ticket.TicketNumber), nil)
	b.reply(ctx, ev, fmt.Sprintf("Closed %s.", ticket.TicketNumber))
	return nil
}

func (b *Bot) cmdStats(ctx context.Context, ev chat.Event) error {
	st, err := b.store.Stats(ctx)
	if err != nil {
		return err
	}
	b.reply(ctx, ev, fmt.Sprintf("📊 Stats\nUsers: %d\nBirthdays: %d\nGift preferences: %d\nWatch edges: %d\nReminders sent: %d\nPending tickets: %d",
		st.Users, st.Birthdays, st.GiftPreferences, st.WatchEdges, st.RemindersSent, st.PendingTickets))
	return nil
}

// cmdBroadcast messages every known user. A failed recipient is counted and
// skipped.
func (b *Bot) cmdBroadcast(ctx context.Context, ev chat.Event) error {
	text := strings.TrimSpace(ev.Args)
	if text == "" {
		b.reply(ctx, ev, "Usage: /broadcast your message")
		return nil
	}
	ids, err := b.store.UserIDs(ctx)
	if err != nil {
		return err
	}

	var sent, failed int
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if b.send(ctx, id, "📢 "+text, nil) {
			sent++
		} else {
			failed++
		}
	}
	b.log.Info("broadcast finished", zap.Int("sent", sent), zap.Int("failed", failed), zap.Int("users", len(ids)))
	b.reply(ctx, ev, fmt.Sprintf("📢 Broadcast sent to %d users, %d failed.", sent, failed))
	return nil
}
