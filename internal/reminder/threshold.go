package reminder

import (
	"fmt"

	"github.com/pathakanu/birthdaybot/internal/calendar"
	"github.com/pathakanu/birthdaybot/internal/store"
)

// Threshold is one of the fixed lead times at which a reminder goes out.
type Threshold int

const (
	FourteenDays Threshold = iota + 1
	SevenDays
	ThreeDays
)

type thresholdInfo struct {
	days     int
	name     string
	template string
}

var thresholds = map[Threshold]thresholdInfo{
	FourteenDays: {days: 14, name: "two_week", template: "🎂 Reminder: two weeks until %s's birthday (%s)!"},
	SevenDays:    {days: 7, name: "one_week", template: "🎂 Reminder: one week until %s's birthday (%s)!"},
	ThreeDays:    {days: 3, name: "three_day", template: "🎂 Reminder: three days until %s's birthday (%s)!"},
}

var thresholdsByDays = func() map[int]Threshold {
	m := make(map[int]Threshold, len(thresholds))
	for t, info := range thresholds {
		m[info.days] = t
	}
	return m
}()

// ThresholdFor maps a days-until-birthday count to its threshold.
func ThresholdFor(days int) (Threshold, bool) {
	t, ok := thresholdsByDays[days]
	return t, ok
}

// Days returns the lead time in days.
func (t Threshold) Days() int {
	return thresholds[t].days
}

// String returns the name stored in the ledger.
func (t Threshold) String() string {
	if info, ok := thresholds[t]; ok {
		return info.name
	}
	return fmt.Sprintf("Threshold(%d)", int(t))
}

// Candidate is a reminder due in the current sweep.
type Candidate struct {
	Edge       store.Edge
	Threshold  Threshold
	Occurrence calendar.Occurrence
}

// Key is the ledger key: the Jalali year of the upcoming birthday makes it
// unique per year.
func (c Candidate) Key() store.ReminderKey {
	return store.ReminderKey{
		WatcherID: c.Edge.WatcherID,
		WatchedID: c.Edge.WatchedID,
		Type:      c.Threshold.String(),
		Year:      c.Occurrence.Jalali.Year,
	}
}

// Message renders the text delivered to the watcher.
func (c Candidate) Message() string {
	day := fmt.Sprintf("%d %s", c.Occurrence.Jalali.Day, calendar.MonthName(calendar.Jalali, c.Occurrence.Jalali.Month))
	msg := fmt.Sprintf(thresholds[c.Threshold].template, c.Edge.WatchedName, day)
	if c.Threshold == ThreeDays && c.Edge.WatchedHandle != "" {
		msg += fmt.Sprintf("\nSee what they would like with /suggest @%s", c.Edge.WatchedHandle)
	}
	return msg
}

// candidateFor returns the reminder due today for edge, if any.
func candidateFor(edge store.Edge, today calendar.Date) (Candidate, bool, error) {
	occ, err := calendar.NextOccurrence(edge.BirthDate, today)
	if err != nil {
		return Candidate{}, false, err
	}
	t, ok := ThresholdFor(occ.Days)
	if !ok {
		return Candidate{}, false, nil
	}
	return Candidate{Edge: edge, Threshold: t, Occurrence: occ}, true, nil
}
