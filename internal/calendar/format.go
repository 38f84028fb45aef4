package calendar

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pathakanu/birthdaybot/internal/apperr"
)

var jalaliMonthNames = [...]string{
	"Farvardin", "Ordibehesht", "Khordad", "Tir", "Mordad", "Shahrivar",
	"Mehr", "Aban", "Azar", "Dey", "Bahman", "Esfand",
}

var gregorianMonthNames = [...]string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// MonthName returns the display name of month m in sys.
func MonthName(sys System, m int) string {
	if m < 1 || m > 12 {
		return strconv.Itoa(m)
	}
	if sys == Jalali {
		return jalaliMonthNames[m-1]
	}
	return gregorianMonthNames[m-1]
}

// Format renders a canonical date in sys, e.g. "15 Shahrivar 1370" or
// "September 6, 1991".
func Format(sys System, date Date) (string, error) {
	local, err := FromCanonical(sys, date)
	if err != nil {
		return "", err
	}
	if sys == Jalali {
		return fmt.Sprintf("%d %s %d", local.Day, MonthName(Jalali, local.Month), local.Year), nil
	}
	return fmt.Sprintf("%s %d, %d", MonthName(Gregorian, local.Month), local.Day, local.Year), nil
}

// FormatDayMonth renders only the day and month of a canonical date in sys.
func FormatDayMonth(sys System, date Date) (string, error) {
	local, err := FromCanonical(sys, date)
	if err != nil {
		return "", err
	}
	if sys == Jalali {
		return fmt.Sprintf("%d %s", local.Day, MonthName(Jalali, local.Month)), nil
	}
	return fmt.Sprintf("%s %d", MonthName(Gregorian, local.Month), local.Day), nil
}

var dateInputRegex = regexp.MustCompile(`^(\d{3,4})\s*[-/.]\s*(\d{1,2})\s*[-/.]\s*(\d{1,2})$`)

// jalaliInputCutoff separates the two calendars in user input: four-digit years
// below it are Jalali.
const jalaliInputCutoff = 1700

// Parse reads a "YYYY-MM-DD" or "YYYY/MM/DD" date, picks the calendar from the
// year and returns the canonical date.
func Parse(input string) (Date, System, error) {
	matches := dateInputRegex.FindStringSubmatch(strings.TrimSpace(input))
	if matches == nil {
		return Date{}, Gregorian, apperr.InvalidDate(fmt.Sprintf("%q is not a YYYY-MM-DD date", input))
	}

	y, _ := strconv.Atoi(matches[1])
	m, _ := strconv.Atoi(matches[2])
	d, _ := strconv.Atoi(matches[3])

	sys := Gregorian
	if y < jalaliInputCutoff {
		sys = Jalali
	}
	date, err := ToCanonical(sys, y, m, d)
	if err != nil {
		return Date{}, sys, err
	}
	return date, sys, nil
}
