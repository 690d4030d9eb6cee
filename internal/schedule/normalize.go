package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

var errEmptyLabel = errors.New("empty label")

// NormalizeDate turns an upstream label such as "07.02.26 Суббота" into a Date.
//
// Only the first whitespace-separated token is used; a trailing weekday is ignored
// because it is recomputed from the date. Two-digit years are taken as 20YY.
// Canonical "DD.MM.YYYY" labels parse to the same Date, so the operation is idempotent.
func NormalizeDate(raw string) (Date, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return Date{}, &NormalizationError{Raw: raw, Err: errEmptyLabel}
	}
	parts := strings.Split(fields[0], ".")
	if len(parts) != 3 {
		return Date{}, &NormalizationError{Raw: raw, Err: fmt.Errorf("want DD.MM.YY, got %q", fields[0])}
	}

	day, err := atoiDigits(parts[0], 1, 2)
	if err != nil {
		return Date{}, &NormalizationError{Raw: raw, Err: fmt.Errorf("day: %w", err)}
	}
	month, err := atoiDigits(parts[1], 1, 2)
	if err != nil {
		return Date{}, &NormalizationError{Raw: raw, Err: fmt.Errorf("month: %w", err)}
	}
	yearStr := parts[2]
	switch len(yearStr) {
	case 2:
		yearStr = "20" + yearStr
	case 4:
	default:
		return Date{}, &NormalizationError{Raw: raw, Err: fmt.Errorf("year %q", parts[2])}
	}
	year, err := atoiDigits(yearStr, 4, 4)
	if err != nil {
		return Date{}, &NormalizationError{Raw: raw, Err: fmt.Errorf("year: %w", err)}
	}

	d, err := NewDate(year, time.Month(month), day)
	if err != nil {
		return Date{}, &NormalizationError{Raw: raw, Err: err}
	}
	return d, nil
}

func atoiDigits(s string, minLen, maxLen int) (int, error) {
	if len(s) < minLen || len(s) > maxLen {
		return 0, fmt.Errorf("%q has wrong length", s)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%q is not numeric", s)
		}
	}
	return strconv.Atoi(s)
}

// Bucket groups records by normalized date. Records whose label cannot be
// normalized are dropped and reported; the rest are kept in page order within
// their day and then stable-sorted by lesson number. Repeated lesson numbers
// within a day are reported as *DuplicateLessonError after the date issues.
func Bucket(records []LessonRecord, group string) (map[Date]DaySchedule, []error) {
	out := make(map[Date]DaySchedule)
	var issues []error
	for _, rec := range records {
		d, err := NormalizeDate(rec.RawDate)
		if err != nil {
			issues = append(issues, err)
			continue
		}
		day := out[d]
		day.Date = d
		day.Group = group
		day.Lessons = append(day.Lessons, rec)
		out[d] = day
	}
	for d, day := range out {
		sort.SliceStable(day.Lessons, func(i, j int) bool {
			return day.Lessons[i].Number < day.Lessons[j].Number
		})
		out[d] = day
	}
	return out, append(issues, duplicates(out)...)
}

func duplicates(days map[Date]DaySchedule) []error {
	var dups []*DuplicateLessonError
	for d, day := range days {
		ls := day.Lessons
		for i := 0; i < len(ls); {
			j := i + 1
			for j < len(ls) && ls[j].Number == ls[i].Number {
				j++
			}
			if ls[i].Number > 0 && j-i > 1 {
				dups = append(dups, &DuplicateLessonError{Date: d, Number: ls[i].Number, Count: j - i})
			}
			i = j
		}
	}
	sort.Slice(dups, func(i, j int) bool {
		if dups[i].Date != dups[j].Date {
			return dups[i].Date.Before(dups[j].Date)
		}
		return dups[i].Number < dups[j].Number
	})
	out := make([]error, len(dups))
	for i, e := range dups {
		out[i] = e
	}
	return out
}

// Week returns the 7 consecutive days starting at start.
// Days missing from buckets are present with no lessons.
func Week(start Date, group string, buckets map[Date]DaySchedule) []DaySchedule {
	return Span(start, start.AddDays(6), group, buckets)
}

// Span returns every day in [from, to], filling gaps with empty days.
func Span(from, to Date, group string, buckets map[Date]DaySchedule) []DaySchedule {
	var out []DaySchedule
	for d := from; !to.Before(d); d = d.AddDays(1) {
		day, ok := buckets[d]
		if !ok {
			day = DaySchedule{Date: d, Group: group}
		}
		if day.Lessons == nil {
			day.Lessons = []LessonRecord{}
		}
		out = append(out, day)
	}
	return out
}
