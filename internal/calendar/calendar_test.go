package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathakanu/birthdaybot/internal/apperr"
)

func gregorian(y, m, d int) Date {
	return Date{System: Gregorian, Year: y, Month: m, Day: d}
}

func mustJalali(t *testing.T, y, m, d int) Date {
	t.Helper()
	date, err := ToCanonical(Jalali, y, m, d)
	require.NoError(t, err)
	return date
}

func TestToCanonicalKnownDates(t *testing.T) {
	tests := []struct {
		jy, jm, jd int
		want       Date
	}{
		{1403, 1, 1, gregorian(2024, 3, 20)},
		{1404, 1, 1, gregorian(2025, 3, 21)},
		{1399, 1, 1, gregorian(2020, 3, 20)},
		{1370, 6, 15, gregorian(1991, 9, 6)},
		{1357, 11, 22, gregorian(1979, 2, 11)},
		{1403, 12, 30, gregorian(2025, 3, 20)},
		{1402, 12, 29, gregorian(2024, 3, 19)},
	}

	for _, tt := range tests {
		got, err := ToCanonical(Jalali, tt.jy, tt.jm, tt.jd)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%d/%d/%d", tt.jy, tt.jm, tt.jd)

		back, err := FromCanonical(Jalali, got)
		require.NoError(t, err)
		assert.Equal(t, Date{System: Jalali, Year: tt.jy, Month: tt.jm, Day: tt.jd}, back)
	}
}

func TestJalaliRoundTrip(t *testing.T) {
	for y := 1300; y <= 1500; y++ {
		for m := 1; m <= 12; m++ {
			for d := 1; d <= MonthLength(Jalali, y, m); d++ {
				canonical, err := ToCanonical(Jalali, y, m, d)
				if err != nil {
					t.Fatalf("ToCanonical(%d/%d/%d): %v", y, m, d, err)
				}
				back, err := FromCanonical(Jalali, canonical)
				if err != nil {
					t.Fatalf("FromCanonical(%s): %v", canonical, err)
				}
				if back.Year != y || back.Month != m || back.Day != d {
					t.Fatalf("round trip %d/%d/%d -> %s -> %d/%d/%d", y, m, d, canonical, back.Year, back.Month, back.Day)
				}
			}
		}
	}
}

func TestConsecutiveJalaliDaysAreConsecutiveGregorianDays(t *testing.T) {
	prev := mustJalali(t, 1390, 1, 1)
	for y := 1390; y <= 1420; y++ {
		for m := 1; m <= 12; m++ {
			for d := 1; d <= MonthLength(Jalali, y, m); d++ {
				if y == 1390 && m == 1 && d == 1 {
					continue
				}
				cur := mustJalali(t, y, m, d)
				require.Equal(t, 1, DaysBetween(prev, cur), "at %d/%d/%d", y, m, d)
				require.Equal(t, prev.Time().AddDate(0, 0, 1), cur.Time())
				prev = cur
			}
		}
	}
}

func TestJalaliLeapYears(t *testing.T) {
	leap := []int{1370, 1375, 1379, 1383, 1387, 1391, 1395, 1399, 1403, 1408}
	common := []int{1371, 1372, 1374, 1376, 1400, 1401, 1402, 1404, 1405, 1406, 1407}

	for _, y := range leap {
		assert.True(t, IsJalaliLeap(y), "%d should be leap", y)
		assert.Equal(t, 30, MonthLength(Jalali, y, 12), "Esfand %d", y)
		assert.Equal(t, 366, DaysBetween(mustJalali(t, y, 1, 1), mustJalali(t, y+1, 1, 1)))
	}
	for _, y := range common {
		assert.False(t, IsJalaliLeap(y), "%d should not be leap", y)
		assert.Equal(t, 29, MonthLength(Jalali, y, 12), "Esfand %d", y)
		assert.Equal(t, 365, DaysBetween(mustJalali(t, y, 1, 1), mustJalali(t, y+1, 1, 1)))
	}
}

func TestMonthLengths(t *testing.T) {
	for m := 1; m <= 6; m++ {
		assert.Equal(t, 31, MonthLength(Jalali, 1404, m))
	}
	for m := 7; m <= 11; m++ {
		assert.Equal(t, 30, MonthLength(Jalali, 1404, m))
	}
	assert.Equal(t, 29, MonthLength(Gregorian, 2024, 2))
	assert.Equal(t, 28, MonthLength(Gregorian, 2100, 2))
	assert.Equal(t, 29, MonthLength(Gregorian, 2000, 2))
}

func TestToCanonicalRejectsInvalidDates(t *testing.T) {
	tests := []struct {
		name    string
		sys     System
		y, m, d int
	}{
		{"esfand 30 in common year", Jalali, 1404, 12, 30},
		{"mehr 31", Jalali, 1404, 7, 31},
		{"month 13", Jalali, 1404, 13, 1},
		{"month 0", Jalali, 1404, 0, 1},
		{"day 0", Jalali, 1404, 1, 0},
		{"year too small", Jalali, 1100, 1, 1},
		{"year too large", Jalali, 1700, 1, 1},
		{"feb 29 common year", Gregorian, 2023, 2, 29},
		{"april 31", Gregorian, 2023, 4, 31},
		{"gregorian year too small", Gregorian, 1700, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ToCanonical(tt.sys, tt.y, tt.m, tt.d)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindInvalidDate))
		})
	}
}

func TestFromCanonicalRequiresGregorianInput(t *testing.T) {
	_, err := FromCanonical(Jalali, Date{System: Jalali, Year: 1403, Month: 1, Day: 1})
	require.Error(t, err)
}

func TestNextOccurrence(t *testing.T) {
	birth := gregorian(1991, 9, 6) // 15 Shahrivar 1370

	t.Run("fourteen days ahead", func(t *testing.T) {
		ref := mustJalali(t, 1405, 6, 1)
		occ, err := NextOccurrence(birth, ref)
		require.NoError(t, err)
		assert.Equal(t, 14, occ.Days)
		assert.Equal(t, Date{System: Jalali, Year: 1405, Month: 6, Day: 15}, occ.Jalali)
		assert.Equal(t, mustJalali(t, 1405, 6, 15), occ.Canonical)
	})

	t.Run("today", func(t *testing.T) {
		days, err := DaysUntilNextOccurrence(birth, mustJalali(t, 1405, 6, 15))
		require.NoError(t, err)
		assert.Equal(t, 0, days)
	})

	t.Run("already passed rolls over", func(t *testing.T) {
		ref := mustJalali(t, 1405, 6, 16)
		occ, err := NextOccurrence(birth, ref)
		require.NoError(t, err)
		assert.Equal(t, 1406, occ.Jalali.Year)
		assert.Equal(t, 364, occ.Days)
	})

	t.Run("across the jalali new year", func(t *testing.T) {
		nowruzBirth := mustJalali(t, 1380, 1, 2)
		ref := mustJalali(t, 1404, 12, 25)
		occ, err := NextOccurrence(nowruzBirth, ref)
		require.NoError(t, err)
		assert.Equal(t, 1405, occ.Jalali.Year)
		assert.Equal(t, 6, occ.Days) // 25..29 Esfand, then 1 and 2 Farvardin
	})

	t.Run("esfand 30 clamps in common years", func(t *testing.T) {
		leapBirth := mustJalali(t, 1403, 12, 30)
		occ, err := NextOccurrence(leapBirth, mustJalali(t, 1404, 12, 1))
		require.NoError(t, err)
		assert.Equal(t, Date{System: Jalali, Year: 1404, Month: 12, Day: 29}, occ.Jalali)
		assert.Equal(t, 28, occ.Days)

		occ, err = NextOccurrence(leapBirth, mustJalali(t, 1407, 12, 20))
		require.NoError(t, err)
		assert.Equal(t, 29, occ.Jalali.Day)

		occ, err = NextOccurrence(leapBirth, mustJalali(t, 1408, 12, 20))
		require.NoError(t, err)
		assert.Equal(t, 30, occ.Jalali.Day)
		assert.Equal(t, 10, occ.Days)
	})

	t.Run("never negative", func(t *testing.T) {
		start := gregorian(2024, 1, 1)
		for i := 0; i < 800; i++ {
			ref := FromTime(start.Time().AddDate(0, 0, i))
			days, err := DaysUntilNextOccurrence(birth, ref)
			require.NoError(t, err)
			require.GreaterOrEqual(t, days, 0)
			require.LessOrEqual(t, days, 365)
		}
	})
}

func TestFromTimeUsesLocalCalendarDay(t *testing.T) {
	tehran := time.FixedZone("IRST", 3*60*60+30*60)
	instant := time.Date(2025, 3, 20, 22, 0, 0, 0, time.UTC)

	assert.Equal(t, gregorian(2025, 3, 20), FromTime(instant))
	assert.Equal(t, gregorian(2025, 3, 21), FromTime(instant.In(tehran)))
}

func TestFormat(t *testing.T) {
	date := gregorian(1991, 9, 6)

	got, err := Format(Jalali, date)
	require.NoError(t, err)
	assert.Equal(t, "15 Shahrivar 1370", got)

	got, err = Format(Gregorian, date)
	require.NoError(t, err)
	assert.Equal(t, "September 6, 1991", got)

	got, err = FormatDayMonth(Jalali, date)
	require.NoError(t, err)
	assert.Equal(t, "15 Shahrivar", got)
}

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    Date
		sys     System
		invalid bool
	}{
		{input: "1370/06/15", want: gregorian(1991, 9, 6), sys: Jalali},
		{input: "1370-6-15", want: gregorian(1991, 9, 6), sys: Jalali},
		{input: "1991-09-06", want: gregorian(1991, 9, 6), sys: Gregorian},
		{input: " 2000/02/29 ", want: gregorian(2000, 2, 29), sys: Gregorian},
		{input: "1404/12/30", invalid: true},
		{input: "2023-02-29", invalid: true},
		{input: "1370/13/01", invalid: true},
		{input: "yesterday", invalid: true},
		{input: "", invalid: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, sys, err := Parse(tt.input)
			if tt.invalid {
				require.Error(t, err)
				assert.True(t, apperr.Is(err, apperr.KindInvalidDate))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.sys, sys)
		})
	}
}
