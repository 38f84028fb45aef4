package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/pathakanu/birthdaybot/internal/calendar"
	"github.com/pathakanu/birthdaybot/internal/chat"
	"github.com/pathakanu/birthdaybot/internal/model"
	"github.com/pathakanu/birthdaybot/internal/session"
)

// upcomingWindow is how many days ahead /upcoming looks.
const upcomingWindow = 7

const helpText = `Here is what I can do:

🎂 /setbirthday YYYY-MM-DD: save your birthday (Jalali like 1370-06-15 or Gregorian like 1991-09-06)
📅 /birthday: show your birthday and how far away it is

🎁 /addgift name | description: add something you'd like
🗑 /removegift name: remove it again
📝 /gifts: your gift list
💡 /suggest @username: see what a friend would like

👀 /watch @username: get reminders 14, 7 and 3 days before their birthday
🙈 /unwatch @username: stop the reminders
📋 /watchlist: everyone you watch
⏳ /upcoming: birthdays in the next 7 days

🆘 /support: contact the admin
🎫 /tickets: your support tickets
✖️ /cancel: abort the current step`

const adminHelpText = `

Admin:
/reply TKT-XXXXXXXX text
/close TKT-XXXXXXXX
/stats
/broadcast text`

func (b *Bot) cmdStart(ctx context.Context, ev chat.Event) error {
	name := ev.Sender.FirstName
	if name == "" {
		name = "there"
	}
	b.reply(ctx, ev, fmt.Sprintf("Hi %s! 👋 I keep track of birthdays so you never miss one.\n\n%s", name, b.help(ev.Sender.ID)))
	return nil
}

func (b *Bot) cmdHelp(ctx context.Context, ev chat.Event) error {
	b.reply(ctx, ev, b.help(ev.Sender.ID))
	return nil
}

func (b *Bot) help(userID int64) string {
	if b.isAdmin(userID) {
		return helpText + adminHelpText
	}
	return helpText
}

func (b *Bot) cmdCancel(ctx context.Context, ev chat.Event) error {
	if err := b.sessions.Clear(ctx, ev.Sender.ID); err != nil {
		return err
	}
	b.reply(ctx, ev, "Cancelled. Send /help if you need anything else.")
	return nil
}

func (b *Bot) cmdSetBirthday(ctx context.Context, ev chat.Event) error {
	if ev.Args == "" {
		if err := b.sessions.Set(ctx, ev.Sender.ID, session.State{Awaiting: session.AwaitBirthday}); err != nil {
			return err
		}
		b.reply(ctx, ev, "When is your birthday? Send it as YYYY-MM-DD, for example 1370-06-15 or 1991-09-06.")
		return nil
	}
	return b.saveBirthday(ctx, ev, ev.Args)
}

// saveBirthday parses input in either calendar and stores it. A bad date
// leaves any pending birthday prompt in place so the user can retry.
func (b *Bot) saveBirthday(ctx context.Context, ev chat.Event, input string) error {
	date, _, err := calendar.Parse(input)
	if err != nil {
		return err
	}
	if !date.Time().Before(b.today().Time().AddDate(0, 0, 1)) {
		b.reply(ctx, ev, "That date is in the future. Please send the day you were born.")
		return nil
	}
	if err := b.store.SetBirthday(ctx, ev.Sender.ID, date); err != nil {
		return err
	}
	if err := b.sessions.Clear(ctx, ev.Sender.ID); err != nil {
		b.log.Warn("clear session", zap.Int64("user_id", ev.Sender.ID), zap.Error(err))
	}

	jalali, _ := calendar.Format(calendar.Jalali, date)
	gregorian, _ := calendar.Format(calendar.Gregorian, date)
	b.reply(ctx, ev, fmt.Sprintf("✅ Saved! Your birthday is %s (%s).", jalali, gregorian))
	return nil
}

func (b *Bot) cmdBirthday(ctx context.Context, ev chat.Event) error {
	date, ok, err := b.store.Birthday(ctx, ev.Sender.ID)
	if err != nil {
		return err
	}
	if !ok {
		b.reply(ctx, ev, "You haven't set your birthday yet. Use /setbirthday YYYY-MM-DD.")
		return nil
	}

	occ, err := calendar.NextOccurrence(date, b.today())
	if err != nil {
		return err
	}
	jalali, _ := calendar.Format(calendar.Jalali, date)
	gregorian, _ := calendar.Format(calendar.Gregorian, date)
	b.reply(ctx, ev, fmt.Sprintf("🎂 Your birthday: %s (%s)\n%s", jalali, gregorian, countdown(occ.Days)))
	return nil
}

func countdown(days int) string {
	switch days {
	case 0:
		return "It's today! Happy birthday! 🎉"
	case 1:
		return "Your next birthday is tomorrow."
	default:
		return fmt.Sprintf("Your next birthday is in %d days.", days)
	}
}

func (b *Bot) cmdAddGift(ctx context.Context, ev chat.Event) error {
	name, description, _ := strings.Cut(ev.Args, "|")
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	if name == "" {
		b.reply(ctx, ev, "Usage: /addgift name | description\nFor example: /addgift Book | any sci-fi novel")
		return nil
	}
	if err := b.store.AddGiftPreference(ctx, ev.Sender.ID, name, description); err != nil {
		return err
	}
	b.reply(ctx, ev, fmt.Sprintf("🎁 %q is on your gift list.", name))
	return nil
}

func (b *Bot) cmdRemoveGift(ctx context.Context, ev chat.Event) error {
	name := strings.TrimSpace(ev.Args)
	if name == "" {
		b.reply(ctx, ev, "Usage: /removegift name")
		return nil
	}
	removed, err := b.store.RemoveGiftPreference(ctx, ev.Sender.ID, name)
	if err != nil {
		return err
	}
	if !removed {
		b.reply(ctx, ev, fmt.Sprintf("%q isn't on your gift list.", name))
		return nil
	}
	b.reply(ctx, ev, fmt.Sprintf("🗑 Removed %q from your gift list.", name))
	return nil
}

func (b *Bot) cmdGifts(ctx context.Context, ev chat.Event) error {
	prefs, err := b.store.GiftPreferences(ctx, ev.Sender.ID)
	if err != nil {
		return err
	}
	if len(prefs) == 0 {
		b.reply(ctx, ev, "Your gift list is empty. Add something with /addgift name | description.")
		return nil
	}
	b.reply(ctx, ev, "📝 Your gift list:\n"+formatGifts(prefs))
	return nil
}

func (b *Bot) cmdSuggest(ctx context.Context, ev chat.Event) error {
	if strings.TrimSpace(ev.Args) == "" {
		b.reply(ctx, ev, "Usage: /suggest @username")
		return nil
	}
	target, err := b.store.UserByHandle(ctx, ev.Args)
	if err != nil {
		return err
	}
	prefs, err := b.store.GiftPreferences(ctx, target.ID)
	if err != nil {
		return err
	}
	if len(prefs) == 0 {
		b.reply(ctx, ev, fmt.Sprintf("%s hasn't added any gift ideas yet.", mention(*target)))
		return nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "💡 %s would like:\n%s", mention(*target), formatGifts(prefs))
	if ideas := b.generatedIdeas(ctx, target.DisplayName(), prefs); ideas != "" {
		sb.WriteString("\n\nA few more ideas:\n")
		sb.WriteString(ideas)
	}
	b.reply(ctx, ev, sb.String())
	return nil
}

// generatedIdeas returns "" whenever no suggester is configured or it fails.
func (b *Bot) generatedIdeas(ctx context.Context, name string, prefs []model.GiftPreference) string {
	if b.gifts == nil {
		return ""
	}
	items := make([]string, 0, len(prefs))
	for _, p := range prefs {
		item := p.ItemName
		if p.Description != nil && *p.Description != "" {
			item += " - " + *p.Description
		}
		items = append(items, item)
	}
	ideas, err := b.gifts.SuggestGiftIdeas(ctx, name, items)
	if err != nil {
		b.log.Debug("gift ideas unavailable", zap.Error(err))
		return ""
	}
	return ideas
}

func formatGifts(prefs []model.GiftPreference) string {
	var sb strings.Builder
	for i, p := range prefs {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString("• " + p.ItemName)
		if p.Description != nil && *p.Description != "" {
			sb.WriteString(": " + *p.Description)
		}
	}
	return sb.String()
}

func (b *Bot) cmdWatch(ctx context.Context, ev chat.Event) error {
	if strings.TrimSpace(ev.Args) == "" {
		b.reply(ctx, ev, "Usage: /watch @username")
		return nil
	}
	target, err := b.watchlist.Follow(ctx, ev.Sender.ID, ev.Args)
	if err != nil {
		return err
	}
	_, hasBirthday, err := b.store.Birthday(ctx, target.ID)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("👀 You're watching %s. I'll remind you 14, 7 and 3 days before their birthday.", mention(*target))
	if !hasBirthday {
		text += "\nThey haven't set a birthday yet, so there is nothing to remind you about for now."
	}
	b.reply(ctx, ev, text)
	return nil
}

func (b *Bot) cmdUnwatch(ctx context.Context, ev chat.Event) error {
	if strings.TrimSpace(ev.Args) == "" {
		b.reply(ctx, ev, "Usage: /unwatch @username")
		return nil
	}
	target, err := b.watchlist.Unfollow(ctx, ev.Sender.ID, ev.Args)
	if err != nil {
		return err
	}
	b.reply(ctx, ev, fmt.Sprintf("🙈 %s is no longer on your watchlist.", mention(*target)))
	return nil
}

func (b *Bot) cmdWatchlist(ctx context.Context, ev chat.Event) error {
	followed, err := b.watchlist.ListFollowed(ctx, ev.Sender.ID)
	if err != nil {
		return err
	}
	if len(followed) == 0 {
		b.reply(ctx, ev, "Your watchlist is empty. Add someone with /watch @username.")
		return nil
	}

	var sb strings.Builder
	sb.WriteString("📋 Your watchlist:")
	for _, f := range followed {
		when := "birthday not set"
		if f.Birthday != nil {
			when, _ = calendar.FormatDayMonth(calendar.Jalali, *f.Birthday)
		}
		fmt.Fprintf(&sb, "\n• %s: %s", mention(f.User), when)
	}
	b.reply(ctx, ev, sb.String())
	return nil
}

type upcomingEntry struct {
	user model.User
	occ  calendar.Occurrence
}

func (b *Bot) cmdUpcoming(ctx context.Context, ev chat.Event) error {
	followed, err := b.watchlist.ListFollowed(ctx, ev.Sender.ID)
	if err != nil {
		return err
	}

	today := b.today()
	var entries []upcomingEntry
	for _, f := range followed {
		if f.Birthday == nil {
			continue
		}
		occ, err := calendar.NextOccurrence(*f.Birthday, today)
		if err != nil {
			b.log.Warn("next occurrence", zap.Int64("user_id", f.User.ID), zap.Error(err))
			continue
		}
		if occ.Days <= upcomingWindow {
			entries = append(entries, upcomingEntry{user: f.User, occ: occ})
		}
	}
	if len(entries) == 0 {
		b.reply(ctx, ev, "No birthdays on your watchlist in the next 7 days.")
		return nil
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].occ.Days != entries[j].occ.Days {
			return entries[i].occ.Days < entries[j].occ.Days
		}
		return entries[i].user.Handle() < entries[j].user.Handle()
	})

	var sb strings.Builder
	sb.WriteString("⏳ Coming up:")
	for _, e := range entries {
		day := fmt.Sprintf("%d %s", e.occ.Jalali.Day, calendar.MonthName(calendar.Jalali, e.occ.Jalali.Month))
		fmt.Fprintf(&sb, "\n• %s: %s, %s", mention(e.user), day, inDays(e.occ.Days))
	}
	b.reply(ctx, ev, sb.String())
	return nil
}

func inDays(days int) string {
	switch days {
	case 0:
		return "today 🎉"
	case 1:
		return "tomorrow"
	default:
		return fmt.Sprintf("in %d days", days)
	}
}

// mention renders a user as "@handle (Name)", or just the name.
func mention(u model.User) string {
	h := u.Handle()
	switch {
	case h == "":
		return u.DisplayName()
	case u.FirstName == "":
		return "@" + h
	default:
		return fmt.Sprintf("@%s (%s)", h, u.FirstName)
	}
}
