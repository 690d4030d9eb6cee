// Package render turns schedules into Telegram HTML text.
package render

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"schedbot/internal/schedule"
)

const separator = "━━━━━━━━━━━━━━━━━"

// Day renders one day. An empty day renders the "no lessons" card.
func Day(day schedule.DaySchedule) string {
	if day.Empty() {
		return fmt.Sprintf("📅 %s - %s\n\n🎉 <b>РАСПИСАНИЕ ОТСУТСТВУЕТ</b>\n\nЗанятий в этот день нет!",
			day.Date.Label(), day.WeekdayName())
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📅 <b>%s</b> - %s\n", day.Date.Label(), day.WeekdayName())
	fmt.Fprintf(&b, "👥 Группа: <b>%s</b>\n\n", esc(day.Group))
	for _, l := range day.Lessons {
		b.WriteString(separator + "\n")
		fmt.Fprintf(&b, "🔢 <b>%s пара</b>", number(l.Number))
		if l.Time != "" {
			fmt.Fprintf(&b, " (%s)", esc(l.Time))
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "📚 %s\n", orDash(l.Name))
		if l.Type != "" {
			fmt.Fprintf(&b, "📝 Тип: %s\n", esc(l.Type))
		}
		if l.Teacher != "" {
			fmt.Fprintf(&b, "👨‍🏫 Преп.: %s\n", esc(l.Teacher))
		}
		if l.Room != "" {
			fmt.Fprintf(&b, "🚪 Ауд.: %s\n", esc(l.Room))
		}
	}
	return b.String()
}

// Week renders one message per day that has lessons, or a single
// "no lessons this week" message.
func Week(days []schedule.DaySchedule) []string {
	var out []string
	for _, d := range days {
		if !d.Empty() {
			out = append(out, Day(d))
		}
	}
	if len(out) == 0 {
		return []string{"🎉 На этой неделе занятий нет!"}
	}
	return out
}

// Short is the one-line summary used in lists.
func Short(day schedule.DaySchedule) string {
	abbr := []rune(day.WeekdayName())
	if len(abbr) > 2 {
		abbr = abbr[:2]
	}
	if day.Empty() {
		return fmt.Sprintf("📅 %s (%s) - нет занятий", day.Date.Label(), string(abbr))
	}
	return fmt.Sprintf("📅 %s (%s) - %d пар", day.Date.Label(), string(abbr), len(day.Lessons))
}

// Notification prefixes the day card with a greeting line.
func Notification(greeting string, day schedule.DaySchedule) string {
	greeting = strings.TrimSpace(greeting)
	if day.Empty() {
		body := fmt.Sprintf("📅 %s - %s\n\n🎉 Занятий нет, можно отдохнуть!", day.Date.Label(), day.WeekdayName())
		if greeting == "" {
			return body
		}
		return "<b>" + esc(greeting) + "</b>\n\n" + body
	}
	if greeting == "" {
		return Day(day)
	}
	return "<b>" + esc(greeting) + "</b>\n\n" + Day(day)
}

// Reminder announces lessons starting in lead minutes. lessons share one number.
func Reminder(number int, leadMinutes int, lessons []schedule.LessonRecord) string {
	var b strings.Builder
	b.WriteString("⏰ <b>Напоминание!</b>\n\n")
	fmt.Fprintf(&b, "Через %d мин. начнется %d пара:\n", leadMinutes, number)
	for _, l := range lessons {
		fmt.Fprintf(&b, "📚 %s\n", orDash(l.Name))
		if l.Time != "" {
			fmt.Fprintf(&b, "🕐 %s\n", esc(l.Time))
		}
		if l.Room != "" {
			fmt.Fprintf(&b, "🚪 Аудитория: %s\n", esc(l.Room))
		}
	}
	return b.String()
}

// Groups lists directory hits.
func Groups(entries []schedule.GroupEntry) string {
	if len(entries) == 0 {
		return "🔍 Группы не найдены"
	}
	var b strings.Builder
	b.WriteString("🔍 Найденные группы:\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "👥 <b>%s</b>\n", esc(e.Name))
	}
	return b.String()
}

// Unavailable is shown when the schedule could not be obtained at all.
func Unavailable() string {
	return "⚠️ Не удалось получить расписание. Попробуйте позже."
}

// DirectoryUnavailable is shown when group search is temporarily broken.
func DirectoryUnavailable() string {
	return "⚠️ Поиск групп временно недоступен. Попробуйте позже."
}

func number(n int) string {
	if n <= 0 {
		return "—"
	}
	return strconv.Itoa(n)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "—"
	}
	return esc(s)
}

func esc(s string) string { return html.EscapeString(s) }
