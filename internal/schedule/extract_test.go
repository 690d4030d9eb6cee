package schedule

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const samplePage = `<html><body>
<div class="schedule">
  <div class="date-bar"><span> 07.02.26 Суббота </span></div>
  <div class="lesson-item">
    <div class="lesson-number">2<span class="hint">пара</span></div>
    <div class="lesson-time">10:00 - 11:30</div>
    <div class="lesson-title">Математика</div>
    <div class="lesson-type">Лекция</div>
    <div class="lesson-details">Подгруппа: все<br>Преподаватель: Иванов И.И.<br></div>
    <span class="lesson-auditorium">А-101</span>
  </div>
  <div class="lesson-item">
    <div class="lesson-number">1</div>
    <div class="lesson-time">08:30 - 10:00</div>
    <div class="lesson-title">Физика</div>
  </div>
  <div class="date-bar"><span>09.02.26 Понедельник</span></div>
  <div class="lesson-item">
    <div class="lesson-number">x</div>
    <div class="lesson-title">История</div>
    <div class="lesson-details">Преподаватель: Петров П.П.</div>
  </div>
</div>
</body></html>`

func TestExtractRecords(t *testing.T) {
	t.Parallel()
	recs, issues, err := Extract(strings.NewReader(samplePage))
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
	if len(recs) != 3 {
		t.Fatalf("records = %d, want 3", len(recs))
	}

	first := recs[0]
	want := LessonRecord{
		Number:  2,
		Time:    "10:00 - 11:30",
		Name:    "Математика",
		Type:    "Лекция",
		Teacher: "Иванов И.И.",
		Room:    "А-101",
		RawDate: "07.02.26 Суббота",
	}
	if first != want {
		t.Fatalf("first record = %+v, want %+v", first, want)
	}

	partial := recs[1]
	if partial.Number != 1 || partial.Name != "Физика" {
		t.Fatalf("partial record = %+v", partial)
	}
	if partial.Teacher != "" || partial.Room != "" || partial.Type != "" {
		t.Fatalf("missing sub-fields must be empty: %+v", partial)
	}
	if partial.RawDate != "07.02.26 Суббота" {
		t.Fatalf("RawDate = %q", partial.RawDate)
	}

	last := recs[2]
	if last.Number != 0 {
		t.Fatalf("non-numeric ordinal: Number = %d, want 0", last.Number)
	}
	if last.Teacher != "Петров П.П." || last.RawDate != "09.02.26 Понедельник" {
		t.Fatalf("last record = %+v", last)
	}
}

func TestExtractLessonWithoutTitle(t *testing.T) {
	t.Parallel()
	page := `<div class="date-bar"><span>10.02.26 Вторник</span></div>
<div class="lesson-item">
  <div class="lesson-number">1</div>
  <div class="lesson-time">08:30 - 10:00</div>
  <div class="lesson-title">Химия</div>
</div>
<div class="lesson-item">
  <div class="lesson-number">2</div>
  <div class="lesson-time">10:10 - 11:40</div>
  <span class="lesson-auditorium">Б-204</span>
</div>`
	recs, issues, err := Extract(strings.NewReader(page))
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}
	if recs[0].Name != "Химия" {
		t.Fatalf("first name = %q", recs[0].Name)
	}
	if recs[1].Name != "" || recs[1].Number != 2 || recs[1].Room != "Б-204" || recs[1].Time != "10:10 - 11:40" {
		t.Fatalf("untitled record = %+v", recs[1])
	}
}

func TestExtractEmptyPage(t *testing.T) {
	t.Parallel()
	recs, issues, err := Extract(strings.NewReader("<html><body><p>Нет данных</p></body></html>"))
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if len(recs) != 0 || len(issues) != 0 {
		t.Fatalf("records=%d issues=%d, want none", len(recs), len(issues))
	}
}

func TestExtractLessonBeforeAnyDate(t *testing.T) {
	t.Parallel()
	page := `<div class="lesson-item"><div class="lesson-title">Ранняя</div></div>`
	recs, _, err := Extract(strings.NewReader(page))
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].RawDate != "" {
		t.Fatalf("records = %+v", recs)
	}
	_, issues := Bucket(recs, "g")
	if len(issues) != 1 {
		t.Fatalf("issues = %d, want 1", len(issues))
	}
	var ne *NormalizationError
	if !errors.As(issues[0], &ne) {
		t.Fatalf("issue %T is not *NormalizationError", issues[0])
	}
}

func TestExtractThenBucketSaturday(t *testing.T) {
	t.Parallel()
	recs, _, err := Extract(strings.NewReader(samplePage))
	if err != nil {
		t.Fatal(err)
	}
	buckets, issues := Bucket(recs, "БОЗИ24")
	if len(issues) != 0 {
		t.Fatalf("issues: %v", issues)
	}
	sat := buckets[Date{2026, time.February, 7}]
	if sat.WeekdayName() != "Суббота" {
		t.Fatalf("weekday = %q", sat.WeekdayName())
	}
	if len(sat.Lessons) != 2 || sat.Lessons[0].Number != 1 || sat.Lessons[1].Number != 2 {
		t.Fatalf("saturday lessons = %+v", sat.Lessons)
	}
}
