package schedule

import "time"

// LessonRecord is one scheduled class as scraped from the upstream page.
// Number is 0 when the page has no parseable ordinal.
type LessonRecord struct {
	Number  int    `json:"number"`
	Time    string `json:"time"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Teacher string `json:"teacher"`
	Room    string `json:"room"`
	RawDate string `json:"raw_date,omitempty"`
}

// DaySchedule is the unit that is cached and rendered.
// The weekday is never stored; it is always derived from Date.
type DaySchedule struct {
	Date    Date           `json:"date"`
	Group   string         `json:"group"`
	Lessons []LessonRecord `json:"lessons"`
}

func (s DaySchedule) Weekday() time.Weekday { return s.Date.Weekday() }

func (s DaySchedule) WeekdayName() string { return WeekdayName(s.Date.Weekday()) }

func (s DaySchedule) Empty() bool { return len(s.Lessons) == 0 }

// GroupEntry is one hit from the group directory.
type GroupEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

var weekdayNames = [...]string{
	time.Sunday:    "Воскресенье",
	time.Monday:    "Понедельник",
	time.Tuesday:   "Вторник",
	time.Wednesday: "Среда",
	time.Thursday:  "Четверг",
	time.Friday:    "Пятница",
	time.Saturday:  "Суббота",
}

// WeekdayName returns the Russian weekday name used by the upstream site and the bot UI.
func WeekdayName(w time.Weekday) string {
	if w < time.Sunday || w > time.Saturday {
		return ""
	}
	return weekdayNames[w]
}
