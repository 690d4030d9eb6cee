package schedule

import (
	"encoding/json"
	"fmt"
	"time"
)

// Date is a calendar day without time or zone.
// The zero value is invalid (IsZero reports true).
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const (
	isoLayout   = "2006-01-02"
	labelLayout = "02.01.2006"
)

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// NewDate builds a Date and rejects days that do not exist (31.02, 00.13, ...).
func NewDate(year int, month time.Month, day int) (Date, error) {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != month || t.Day() != day {
		return Date{}, fmt.Errorf("invalid date %04d-%02d-%02d", year, int(month), day)
	}
	return Date{Year: year, Month: month, Day: day}, nil
}

// ParseISO parses YYYY-MM-DD.
func ParseISO(s string) (Date, error) {
	t, err := time.Parse(isoLayout, s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

func (d Date) IsZero() bool { return d == Date{} }

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) AddDays(n int) Date {
	return DateOf(d.In(time.UTC).AddDate(0, 0, n))
}

func (d Date) Weekday() time.Weekday { return d.In(time.UTC).Weekday() }

// Before reports whether d is strictly earlier than o.
func (d Date) Before(o Date) bool { return d.In(time.UTC).Before(o.In(time.UTC)) }

// String is the canonical ISO form used for cache keys and upstream query params.
func (d Date) String() string { return d.In(time.UTC).Format(isoLayout) }

// Label is the DD.MM.YYYY form shown to users.
func (d Date) Label() string { return d.In(time.UTC).Format(labelLayout) }

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseISO(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// MondayOf returns the Monday of d's ISO week.
func MondayOf(d Date) Date {
	off := (int(d.Weekday()) + 6) % 7
	return d.AddDays(-off)
}
