package schedule

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	selBlocks     = "div.date-bar, div.lesson-item"
	classDateBar  = "date-bar"
	teacherPrefix = "Преподаватель:"
	selNumber     = "div.lesson-number"
	selTime       = "div.lesson-time"
	selTitle      = "div.lesson-title"
	selType       = "div.lesson-type"
	selAuditorium = "span.lesson-auditorium"
	selDetails    = "div.lesson-details"
)

// Extract walks date markers and lesson units in document order and returns
// one record per lesson, tagged with the most recent date label.
//
// A lesson that cannot be read is reported in issues as *ExtractionError and
// skipped; its siblings are still returned. err is non-nil only when the
// document itself cannot be read.
func Extract(r io.Reader) (records []LessonRecord, issues []error, err error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("read document: %w", err)
	}

	cursor := ""
	index := 0
	doc.Find(selBlocks).Each(func(_ int, s *goquery.Selection) {
		if s.HasClass(classDateBar) {
			if span := s.Find("span").First(); span.Length() > 0 {
				cursor = strings.TrimSpace(span.Text())
			}
			return
		}
		index++
		rec, lerr := extractLesson(s)
		if lerr != nil {
			issues = append(issues, &ExtractionError{Index: index, Err: lerr})
			return
		}
		rec.RawDate = cursor
		records = append(records, rec)
	})
	return records, issues, nil
}

func extractLesson(s *goquery.Selection) (rec LessonRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	rec.Number = lessonNumber(s.Find(selNumber).First())
	rec.Time = fieldText(s, selTime)
	rec.Name = fieldText(s, selTitle)
	rec.Type = fieldText(s, selType)
	rec.Room = fieldText(s, selAuditorium)
	rec.Teacher = teacherOf(s.Find(selDetails).First())
	return rec, nil
}

func fieldText(s *goquery.Selection, sel string) string {
	return strings.TrimSpace(s.Find(sel).First().Text())
}

// lessonNumber reads the first child node only; the number div also carries
// nested decorations whose text must not leak into the ordinal.
func lessonNumber(s *goquery.Selection) int {
	if s.Length() == 0 {
		return 0
	}
	n := s.Get(0).FirstChild
	if n == nil || n.Type != html.TextNode {
		return 0
	}
	v, err := strconv.Atoi(strings.TrimSpace(n.Data))
	if err != nil || v < 1 {
		return 0
	}
	return v
}

func teacherOf(details *goquery.Selection) string {
	if details.Length() == 0 {
		return ""
	}
	var lines []string
	collectText(details.Get(0), &lines)
	for _, chunk := range lines {
		for _, line := range strings.Split(chunk, "\n") {
			if i := strings.Index(line, teacherPrefix); i >= 0 {
				return strings.TrimSpace(line[i+len(teacherPrefix):])
			}
		}
	}
	return ""
}

func collectText(n *html.Node, out *[]string) {
	if n.Type == html.TextNode {
		*out = append(*out, n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, out)
	}
}
