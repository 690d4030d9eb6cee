package timetable

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"schedbot/internal/schedule"
	"schedbot/pkg/logx"
)

// Fetcher downloads the raw schedule page for a date range.
type Fetcher interface {
	Fetch(ctx context.Context, group string, from, to schedule.Date) ([]byte, error)
}

// Directory lists known group identifiers.
type Directory interface {
	SearchGroups(ctx context.Context, query string) ([]schedule.GroupEntry, error)
}

// DayStore is the subset of the cache the read path needs.
type DayStore interface {
	Get(ctx context.Context, group string, date schedule.Date) (schedule.DaySchedule, bool, error)
	Put(ctx context.Context, group string, date schedule.Date, day schedule.DaySchedule) error
}

var ErrEmptyGroup = errors.New("group is required")

// Service is the cache-first read path used by notifications, the CLI and
// any interactive front end.
type Service struct {
	fetch Fetcher
	dir   Directory
	store DayStore
	log   logx.Logger

	flights singleflight.Group

	// bounds a shared upstream load once it no longer belongs to any single caller
	loadTimeout time.Duration
}

func New(fetch Fetcher, dir Directory, store DayStore, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		fetch:       fetch,
		dir:         dir,
		store:       store,
		log:         log.With(logx.String("comp", "timetable")),
		loadTimeout: 2 * time.Minute,
	}
}

// GetSchedule returns one day for group. A day with no lessons is a valid
// result; an error means the schedule could not be obtained at all.
func (s *Service) GetSchedule(ctx context.Context, group string, date schedule.Date) (schedule.DaySchedule, error) {
	group = strings.TrimSpace(group)
	if group == "" {
		return schedule.DaySchedule{}, ErrEmptyGroup
	}
	if day, ok := s.cached(ctx, group, date); ok {
		return day, nil
	}
	days, err := s.load(ctx, group, date, date)
	if err != nil {
		return schedule.DaySchedule{}, err
	}
	return days[0], nil
}

// GetWeekSchedule returns exactly 7 consecutive days starting at start.
// When any day is missing from the cache the whole range is fetched in one request.
func (s *Service) GetWeekSchedule(ctx context.Context, group string, start schedule.Date) ([]schedule.DaySchedule, error) {
	group = strings.TrimSpace(group)
	if group == "" {
		return nil, ErrEmptyGroup
	}
	week := make([]schedule.DaySchedule, 0, 7)
	for i := 0; i < 7; i++ {
		day, ok := s.cached(ctx, group, start.AddDays(i))
		if !ok {
			break
		}
		week = append(week, day)
	}
	if len(week) == 7 {
		return week, nil
	}
	return s.load(ctx, group, start, start.AddDays(6))
}

func (s *Service) SearchGroups(ctx context.Context, query string) ([]schedule.GroupEntry, error) {
	return s.dir.SearchGroups(ctx, query)
}

func (s *Service) cached(ctx context.Context, group string, date schedule.Date) (schedule.DaySchedule, bool) {
	day, ok, err := s.store.Get(ctx, group, date)
	if err != nil {
		// Storage trouble degrades to a fetch.
		s.log.Warn("cache read failed", logx.String("group", group), logx.String("date", date.String()), logx.Err(err))
		return schedule.DaySchedule{}, false
	}
	return day, ok
}

// load coalesces concurrent requests for the same range into one upstream call.
// The shared call runs detached from any one caller's cancellation; each
// caller still stops waiting when its own ctx ends.
func (s *Service) load(ctx context.Context, group string, from, to schedule.Date) ([]schedule.DaySchedule, error) {
	key := group + "|" + from.String() + "|" + to.String()
	ch := s.flights.DoChan(key, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTimeout)
		defer cancel()
		return s.fetchRange(lctx, group, from, to)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		days := res.Val.([]schedule.DaySchedule)
		return append([]schedule.DaySchedule(nil), days...), nil
	}
}

func (s *Service) fetchRange(ctx context.Context, group string, from, to schedule.Date) ([]schedule.DaySchedule, error) {
	body, err := s.fetch.Fetch(ctx, group, from, to)
	if err != nil {
		s.log.Warn("schedule fetch failed",
			logx.String("group", group),
			logx.String("from", from.String()),
			logx.String("to", to.String()),
			logx.Err(err),
		)
		return nil, err
	}

	records, issues, err := schedule.Extract(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for _, iss := range issues {
		s.log.Warn("lesson skipped", logx.String("group", group), logx.Err(iss))
	}
	buckets, issues := schedule.Bucket(records, group)
	for _, iss := range issues {
		var dup *schedule.DuplicateLessonError
		if errors.As(iss, &dup) {
			s.log.Debug("duplicate lesson number", logx.String("group", group), logx.Err(iss))
			continue
		}
		s.log.Warn("lesson date unparseable", logx.String("group", group), logx.Err(iss))
	}

	days := schedule.Span(from, to, group, buckets)
	for _, day := range days {
		if err := s.store.Put(ctx, group, day.Date, day); err != nil {
			s.log.Warn("cache write failed", logx.String("group", group), logx.String("date", day.Date.String()), logx.Err(err))
		}
	}
	s.log.Debug("schedule loaded",
		logx.String("group", group),
		logx.String("from", from.String()),
		logx.Int("days", len(days)),
		logx.Int("lessons", len(records)),
	)
	return days, nil
}
