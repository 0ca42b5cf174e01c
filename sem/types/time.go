package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/teranos/semstore/errors"
)

// Calendar model of a Time value
type Calendar int

const (
	Gregorian Calendar = 1
	Julian    Calendar = 2
)

// Precision of a Time value
const (
	PrecisionYear  = 0
	PrecisionMonth = 1
	PrecisionDay   = 2
	PrecisionTime  = 3
)

// Time is a calendar date with optional time of day. It sorts by julian day.
type Time struct {
	Calendar Calendar
	Year     int
	Month    int // 0 when unspecified
	Day      int // 0 when unspecified
	Hour     int
	Minute   int
	Second   float64
}

// NewTime builds a Gregorian Time from a time.Time (UTC)
func NewTime(t time.Time) Time {
	t = t.UTC()
	return Time{
		Calendar: Gregorian,
		Year:     t.Year(),
		Month:    int(t.Month()),
		Day:      t.Day(),
		Hour:     t.Hour(),
		Minute:   t.Minute(),
		Second:   float64(t.Second()),
	}
}

func (Time) Kind() Kind { return KindTime }

func (t Time) Hash() string { return t.Serialization() }

// Precision reports how much of the date is specified
func (t Time) Precision() int {
	switch {
	case t.Month == 0:
		return PrecisionYear
	case t.Day == 0:
		return PrecisionMonth
	case t.Hour == 0 && t.Minute == 0 && t.Second == 0:
		return PrecisionDay
	}
	return PrecisionTime
}

// Serialization is "calendar/year[/month[/day[/hour/minute/second]]]"
func (t Time) Serialization() string {
	cal := t.Calendar
	if cal == 0 {
		cal = Gregorian
	}
	s := fmt.Sprintf("%d/%d", cal, t.Year)
	switch t.Precision() {
	case PrecisionMonth:
		s += fmt.Sprintf("/%d", t.Month)
	case PrecisionDay:
		s += fmt.Sprintf("/%d/%d", t.Month, t.Day)
	case PrecisionTime:
		s += fmt.Sprintf("/%d/%d/%d/%d/%s", t.Month, t.Day, t.Hour, t.Minute,
			strconv.FormatFloat(t.Second, 'f', -1, 64))
	}
	return s
}

// ParseTime restores a Time from its serialization
func ParseTime(s string) (Time, error) {
	parts := strings.Split(s, "/")
	if len(parts) < 2 || len(parts) > 7 {
		return Time{}, errors.DataCorruption("malformed time %q", s)
	}
	ints := make([]int, 0, 6)
	for _, p := range parts[:min(len(parts), 6)] {
		v, err := strconv.Atoi(p)
		if err != nil {
			return Time{}, errors.DataCorruption("malformed time %q", s)
		}
		ints = append(ints, v)
	}
	t := Time{Calendar: Calendar(ints[0]), Year: ints[1]}
	if t.Calendar != Gregorian && t.Calendar != Julian {
		return Time{}, errors.DataCorruption("unknown calendar in %q", s)
	}
	if len(ints) > 2 {
		t.Month = ints[2]
	}
	if len(ints) > 3 {
		t.Day = ints[3]
	}
	if len(ints) > 4 {
		t.Hour = ints[4]
	}
	if len(ints) > 5 {
		t.Minute = ints[5]
	}
	if len(parts) > 6 {
		sec, err := strconv.ParseFloat(parts[6], 64)
		if err != nil {
			return Time{}, errors.DataCorruption("malformed seconds in %q", s)
		}
		t.Second = sec
	}
	if t.Month < 0 || t.Month > 12 || t.Day < 0 || t.Day > 31 {
		return Time{}, errors.DataCorruption("date out of range %q", s)
	}
	return t, nil
}

// JulianDay returns the astronomical julian day, used as the sortkey
func (t Time) JulianDay() float64 {
	month, day := t.Month, t.Day
	if month == 0 {
		month = 1
	}
	if day == 0 {
		day = 1
	}
	a := (14 - month) / 12
	y := t.Year + 4800 - a
	m := month + 12*a - 3

	var jdn int
	if t.Calendar == Julian {
		jdn = day + (153*m+2)/5 + 365*y + y/4 - 32083
	} else {
		jdn = day + (153*m+2)/5 + 365*y + y/4 - y/100 + y/400 - 32045
	}
	frac := (float64(t.Hour)-12)/24 + float64(t.Minute)/1440 + t.Second/86400
	return math.Round((float64(jdn)+frac)*1e6) / 1e6
}
