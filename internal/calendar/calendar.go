// Package calendar converts between the Gregorian calendar used for storage
// and the Jalali (Solar Hijri) calendar in which birthdays are shown and
// reminded.
package calendar

import (
	"fmt"
	"time"

	"github.com/pathakanu/birthdaybot/internal/apperr"
)

// System identifies a supported calendar.
type System int

const (
	// Gregorian is the canonical calendar; every stored date uses it.
	Gregorian System = iota
	// Jalali is the Solar Hijri calendar.
	Jalali
)

func (s System) String() string {
	switch s {
	case Gregorian:
		return "gregorian"
	case Jalali:
		return "jalali"
	default:
		return fmt.Sprintf("System(%d)", int(s))
	}
}

// Accepted year ranges per calendar. Both cover the same span of days.
const (
	MinJalaliYear    = 1200
	MaxJalaliYear    = 1600
	MinGregorianYear = MinJalaliYear + 621
	MaxGregorianYear = MaxJalaliYear + 621
)

// Date is a calendar day in a particular System.
type Date struct {
	System System
	Year   int
	Month  int
	Day    int
}

// Time returns a canonical date as midnight UTC.
func (d Date) Time() time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d (%s)", d.Year, d.Month, d.Day, d.System)
}

// FromTime returns the canonical date of t's calendar day in t's location.
func FromTime(t time.Time) Date {
	y, m, d := t.Date()
	return Date{System: Gregorian, Year: y, Month: int(m), Day: d}
}

// MonthLength returns the number of days in month m of year y.
func MonthLength(sys System, y, m int) int {
	if sys == Jalali {
		return jalaliMonthLength(y, m)
	}
	return time.Date(y, time.Month(m)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Validate checks the year range, the month and the day against the month
// length rules of sys.
func Validate(sys System, y, m, d int) error {
	minYear, maxYear := MinGregorianYear, MaxGregorianYear
	if sys == Jalali {
		minYear, maxYear = MinJalaliYear, MaxJalaliYear
	}
	if y < minYear || y > maxYear {
		return apperr.InvalidDate(fmt.Sprintf("year %d is outside %d-%d", y, minYear, maxYear))
	}
	if m < 1 || m > 12 {
		return apperr.InvalidDate(fmt.Sprintf("month %d is outside 1-12", m))
	}
	if n := MonthLength(sys, y, m); d < 1 || d > n {
		return apperr.InvalidDate(fmt.Sprintf("day %d is outside 1-%d", d, n))
	}
	return nil
}

// ToCanonical validates a date given in sys and converts it to Gregorian.
func ToCanonical(sys System, y, m, d int) (Date, error) {
	if err := Validate(sys, y, m, d); err != nil {
		return Date{}, err
	}
	if sys == Gregorian {
		return Date{System: Gregorian, Year: y, Month: m, Day: d}, nil
	}
	jdn, err := jalaliToJDN(y, m, d)
	if err != nil {
		return Date{}, apperr.InvalidDate(err.Error())
	}
	gy, gm, gd := jdnToGregorian(jdn)
	return Date{System: Gregorian, Year: gy, Month: gm, Day: gd}, nil
}

// FromCanonical converts a Gregorian date into sys.
func FromCanonical(sys System, date Date) (Date, error) {
	if date.System != Gregorian {
		return Date{}, fmt.Errorf("calendar: %s is not a canonical date", date)
	}
	if sys == Gregorian {
		return date, nil
	}
	jy, jm, jd, err := jdnToJalali(gregorianToJDN(date.Year, date.Month, date.Day))
	if err != nil {
		return Date{}, apperr.InvalidDate(err.Error())
	}
	return Date{System: Jalali, Year: jy, Month: jm, Day: jd}, nil
}

// DaysBetween returns the signed number of days from a to b. Both must be canonical.
func DaysBetween(a, b Date) int {
	return gregorianToJDN(b.Year, b.Month, b.Day) - gregorianToJDN(a.Year, a.Month, a.Day)
}

// Occurrence is the next anniversary of a birthday.
type Occurrence struct {
	// Days from the reference date, 0 when the anniversary is today.
	Days int
	// Jalali is the anniversary in the Jalali calendar; Jalali.Year is the
	// occurrence year reminders are keyed on.
	Jalali Date
	// Canonical is the anniversary in the Gregorian calendar.
	Canonical Date
}

// anniversary places a Jalali (month, day) in year jy. A 30 Esfand birthday
// falls on 29 Esfand in years that are not leap years.
func anniversary(jy, jm, jd int) (Date, Date, error) {
	if n := jalaliMonthLength(jy, jm); jd > n {
		jd = n
	}
	canonical, err := ToCanonical(Jalali, jy, jm, jd)
	if err != nil {
		return Date{}, Date{}, err
	}
	return Date{System: Jalali, Year: jy, Month: jm, Day: jd}, canonical, nil
}

// NextOccurrence finds the next anniversary, today included, of birth's Jalali
// month and day as seen from ref. Both dates are canonical.
func NextOccurrence(birth, ref Date) (Occurrence, error) {
	jb, err := FromCanonical(Jalali, birth)
	if err != nil {
		return Occurrence{}, err
	}
	jr, err := FromCanonical(Jalali, ref)
	if err != nil {
		return Occurrence{}, err
	}

	for _, year := range []int{jr.Year, jr.Year + 1} {
		local, canonical, err := anniversary(year, jb.Month, jb.Day)
		if err != nil {
			return Occurrence{}, err
		}
		if days := DaysBetween(ref, canonical); days >= 0 {
			return Occurrence{Days: days, Jalali: local, Canonical: canonical}, nil
		}
	}
	// Every Jalali (month, day) recurs within a year of ref.
	return Occurrence{}, fmt.Errorf("calendar: no anniversary of %s after %s", birth, ref)
}

// DaysUntilNextOccurrence returns the number of days from ref to the next
// anniversary of birth in the Jalali calendar.
func DaysUntilNextOccurrence(birth, ref Date) (int, error) {
	occ, err := NextOccurrence(birth, ref)
	if err != nil {
		return 0, err
	}
	return occ.Days, nil
}
