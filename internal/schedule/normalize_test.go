package schedule

import (
	"errors"
	"testing"
	"time"
)

func TestNormalizeDate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
		want Date
	}{
		{name: "short year with weekday", raw: "07.02.26 Суббота", want: Date{2026, time.February, 7}},
		{name: "short year", raw: "01.09.25", want: Date{2025, time.September, 1}},
		{name: "full year", raw: "31.12.2025", want: Date{2025, time.December, 31}},
		{name: "surrounding whitespace", raw: "  10.03.26\tВторник ", want: Date{2026, time.March, 10}},
		{name: "leap day", raw: "29.02.28", want: Date{2028, time.February, 29}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeDate(tt.raw)
			if err != nil {
				t.Fatalf("NormalizeDate(%q) error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("NormalizeDate(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeDateInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "   ", "Суббота", "07-02-26", "7.2", "31.02.26", "12.13.2026", "aa.bb.cc", "07.02.026"} {
		_, err := NormalizeDate(raw)
		if err == nil {
			t.Fatalf("NormalizeDate(%q): expected error", raw)
		}
		var ne *NormalizationError
		if !errors.As(err, &ne) {
			t.Fatalf("NormalizeDate(%q): error %T is not *NormalizationError", raw, err)
		}
		if ne.Raw != raw {
			t.Fatalf("Raw = %q, want %q", ne.Raw, raw)
		}
	}
}

func TestNormalizeDateIdempotent(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"07.02.26 Суббота", "01.01.2030", "15.06.24"} {
		first, err := NormalizeDate(raw)
		if err != nil {
			t.Fatalf("NormalizeDate(%q) error: %v", raw, err)
		}
		second, err := NormalizeDate(first.Label())
		if err != nil {
			t.Fatalf("NormalizeDate(%q) error: %v", first.Label(), err)
		}
		if first != second {
			t.Fatalf("not idempotent: %v then %v", first, second)
		}
	}
}

func TestWeekdayIsDerivedFromDate(t *testing.T) {
	t.Parallel()
	d, err := NormalizeDate("07.02.26 Понедельник")
	if err != nil {
		t.Fatal(err)
	}
	day := DaySchedule{Date: d}
	if day.WeekdayName() != "Суббота" {
		t.Fatalf("WeekdayName = %q, want Суббота", day.WeekdayName())
	}
}

func TestBucketMergesLabelsOfSameDay(t *testing.T) {
	t.Parallel()
	records := []LessonRecord{
		{Number: 3, Name: "c", RawDate: "07.02.26 Суббота"},
		{Number: 1, Name: "a", RawDate: "07.02.2026"},
		{Number: 0, Name: "z", RawDate: "07.02.26"},
		{Number: 1, Name: "a2", RawDate: "07.02.26 Суббота"},
		{Number: 2, Name: "next", RawDate: "08.02.26"},
		{Number: 1, Name: "bad", RawDate: "not a date"},
	}
	buckets, issues := Bucket(records, "БОЗИ24")
	if len(issues) != 2 {
		t.Fatalf("issues = %v, want 2", issues)
	}
	var ne *NormalizationError
	if !errors.As(issues[0], &ne) || ne.Raw != "not a date" {
		t.Fatalf("issues[0] = %v", issues[0])
	}
	var dup *DuplicateLessonError
	if !errors.As(issues[1], &dup) || dup.Number != 1 || dup.Count != 2 || dup.Date != (Date{2026, time.February, 7}) {
		t.Fatalf("issues[1] = %v", issues[1])
	}
	if len(buckets) != 2 {
		t.Fatalf("buckets = %d, want 2", len(buckets))
	}
	day := buckets[Date{2026, time.February, 7}]
	if day.Group != "БОЗИ24" {
		t.Fatalf("Group = %q", day.Group)
	}
	var names []string
	for _, l := range day.Lessons {
		names = append(names, l.Name)
	}
	want := []string{"z", "a", "a2", "c"}
	if len(names) != len(want) {
		t.Fatalf("lessons = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("lessons = %v, want %v", names, want)
		}
	}
}

func TestBucketIgnoresUnnumberedRepeats(t *testing.T) {
	t.Parallel()
	records := []LessonRecord{
		{Number: 0, Name: "a", RawDate: "07.02.26"},
		{Number: 0, Name: "b", RawDate: "07.02.26"},
		{Number: 2, Name: "c", RawDate: "07.02.26"},
		{Number: 2, Name: "d", RawDate: "08.02.26"},
	}
	buckets, issues := Bucket(records, "g")
	if len(issues) != 0 {
		t.Fatalf("issues = %v, want none", issues)
	}
	if n := len(buckets[Date{2026, time.February, 7}].Lessons); n != 3 {
		t.Fatalf("lessons = %d, want 3", n)
	}
}

func TestWeekAlwaysSevenDays(t *testing.T) {
	t.Parallel()
	start := Date{2026, time.February, 2}
	buckets := map[Date]DaySchedule{
		start.AddDays(2): {Date: start.AddDays(2), Group: "g", Lessons: []LessonRecord{{Number: 1}}},
	}
	week := Week(start, "g", buckets)
	if len(week) != 7 {
		t.Fatalf("len = %d, want 7", len(week))
	}
	for i, d := range week {
		if d.Date != start.AddDays(i) {
			t.Fatalf("day %d = %v, want %v", i, d.Date, start.AddDays(i))
		}
		if d.Group != "g" {
			t.Fatalf("day %d group = %q", i, d.Group)
		}
		if d.Lessons == nil {
			t.Fatalf("day %d lessons is nil", i)
		}
	}
	if len(week[2].Lessons) != 1 {
		t.Fatalf("day 2 lessons = %d, want 1", len(week[2].Lessons))
	}
}

func TestDateHelpers(t *testing.T) {
	t.Parallel()
	d := Date{2026, time.February, 7}
	if d.String() != "2026-02-07" {
		t.Fatalf("String = %s", d.String())
	}
	if d.Label() != "07.02.2026" {
		t.Fatalf("Label = %s", d.Label())
	}
	if got := MondayOf(d); got != (Date{2026, time.February, 2}) {
		t.Fatalf("MondayOf = %v", got)
	}
	if got := d.AddDays(30); got != (Date{2026, time.March, 9}) {
		t.Fatalf("AddDays = %v", got)
	}
	p, err := ParseISO("2026-02-07")
	if err != nil || p != d {
		t.Fatalf("ParseISO = %v, %v", p, err)
	}
	b, err := d.MarshalJSON()
	if err != nil || string(b) != `"2026-02-07"` {
		t.Fatalf("MarshalJSON = %s, %v", b, err)
	}
}
