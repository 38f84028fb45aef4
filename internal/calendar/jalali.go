package calendar

import "fmt"

// Jalali leap years follow the break table below: years in which the 33-year
// sub-cycle restarts. The table covers Jalali years -61 to 3177.
var jalaliBreaks = [...]int{
	-61, 9, 38, 199, 426, 686, 756, 818, 1111, 1181, 1210,
	1635, 2060, 2097, 2192, 2262, 2324, 2394, 2456, 3178,
}

type jalaliYearInfo struct {
	// leap is 0 for a leap year, otherwise the number of years since the last one.
	leap int
	// gregorianYear is the Gregorian year in which the Jalali year starts.
	gregorianYear int
	// march is the day of March on which Farvardin 1 falls.
	march int
}

func jalaliYear(jy int) (jalaliYearInfo, error) {
	last := len(jalaliBreaks) - 1
	if jy < jalaliBreaks[0] || jy >= jalaliBreaks[last] {
		return jalaliYearInfo{}, fmt.Errorf("jalali year %d out of supported range", jy)
	}

	gy := jy + 621
	leapJ := -14
	jp := jalaliBreaks[0]
	jump := 0
	for i := 1; i <= last; i++ {
		jm := jalaliBreaks[i]
		jump = jm - jp
		if jy < jm {
			break
		}
		leapJ += jump/33*8 + (jump%33)/4
		jp = jm
	}

	n := jy - jp
	leapJ += n/33*8 + (n%33+3)/4
	if jump%33 == 4 && jump-n == 4 {
		leapJ++
	}

	leapG := gy/4 - (gy/100+1)*3/4 - 150
	march := 20 + leapJ - leapG

	if jump-n < 6 {
		n = n - jump + (jump+4)/33*33
	}
	leap := ((n+1)%33 - 1) % 4
	if leap == -1 {
		leap = 4
	}

	return jalaliYearInfo{leap: leap, gregorianYear: gy, march: march}, nil
}

// IsJalaliLeap reports whether Esfand of jy has 30 days.
func IsJalaliLeap(jy int) bool {
	info, err := jalaliYear(jy)
	if err != nil {
		return false
	}
	return info.leap == 0
}

func jalaliMonthLength(jy, jm int) int {
	switch {
	case jm <= 6:
		return 31
	case jm <= 11:
		return 30
	case IsJalaliLeap(jy):
		return 30
	default:
		return 29
	}
}

func jalaliToJDN(jy, jm, jd int) (int, error) {
	info, err := jalaliYear(jy)
	if err != nil {
		return 0, err
	}
	return gregorianToJDN(info.gregorianYear, 3, info.march) + (jm-1)*31 - jm/7*(jm-7) + jd - 1, nil
}

func jdnToJalali(jdn int) (int, int, int, error) {
	gy, _, _ := jdnToGregorian(jdn)
	jy := gy - 621
	info, err := jalaliYear(jy)
	if err != nil {
		return 0, 0, 0, err
	}

	k := jdn - gregorianToJDN(gy, 3, info.march)
	if k >= 0 {
		if k <= 185 {
			return jy, 1 + k/31, k%31 + 1, nil
		}
		k -= 186
	} else {
		// Farvardin 1 has not arrived yet in this Gregorian year.
		jy--
		k += 179
		if info.leap == 1 {
			k++
		}
	}
	return jy, 7 + k/30, k%30 + 1, nil
}

// gregorianToJDN returns the Julian day number of a proleptic Gregorian date.
func gregorianToJDN(gy, gm, gd int) int {
	d := (gy+(gm-8)/6+100100)*1461/4 + (153*((gm+9)%12)+2)/5 + gd - 34840408
	return d - (gy+100100+(gm-8)/6)/100*3/4 + 752
}

func jdnToGregorian(jdn int) (int, int, int) {
	j := 4*jdn + 139361631
	j += (4*jdn+183187720)/146097*3/4*4 - 3908
	i := (j%1461)/4*5 + 308
	gd := (i%153)/5 + 1
	gm := (i/153)%12 + 1
	gy := j/1461 - 100100 + (8-gm)/6
	return gy, gm, gd
}
