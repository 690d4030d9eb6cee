package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"schedbot/internal/schedule"
	"schedbot/internal/storage"
	"schedbot/pkg/logx"
)

const (
	DefaultTTL           = 12 * time.Hour
	DefaultRetentionDays = 14
)

type Config struct {
	TTL time.Duration
}

// Cache keeps one DaySchedule per (group, date) with a freshness window.
// It is the only writer of the cache rows in storage.
type Cache struct {
	store storage.CacheStore
	ttl   time.Duration
	now   func() time.Time
	log   logx.Logger
}

type Option func(*Cache)

// WithClock overrides time.Now; tests use it to step across the TTL.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

func New(store storage.CacheStore, cfg Config, log logx.Logger, opts ...Option) *Cache {
	if log.IsZero() {
		log = logx.Nop()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		store: store,
		ttl:   ttl,
		now:   time.Now,
		log:   log.With(logx.String("comp", "cache")),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Cache) TTL() time.Duration { return c.ttl }

// Get returns the stored day when it is younger than the TTL.
//
// An expired row is removed before reporting a miss. A row whose payload no
// longer decodes is logged as *schedule.CacheCorruptionError, removed, and
// reported as a miss. Only storage failures are returned as errors.
func (c *Cache) Get(ctx context.Context, group string, date schedule.Date) (schedule.DaySchedule, bool, error) {
	key := date.String()
	row, ok, err := c.store.GetCache(ctx, group, key)
	if err != nil {
		return schedule.DaySchedule{}, false, fmt.Errorf("cache get %s/%s: %w", group, key, err)
	}
	if !ok {
		return schedule.DaySchedule{}, false, nil
	}

	if c.now().Sub(row.FetchedAt) >= c.ttl {
		if _, err := c.store.DeleteCacheIf(ctx, group, key, row.FetchedAt); err != nil {
			c.log.Warn("expired entry delete failed", logx.String("group", group), logx.String("date", key), logx.Err(err))
		}
		return schedule.DaySchedule{}, false, nil
	}

	day, derr := decode(row.Payload, group, date)
	if derr != nil {
		cerr := &schedule.CacheCorruptionError{Group: group, Date: key, Err: derr}
		c.log.Warn("corrupt cache entry dropped", logx.Err(cerr))
		if _, err := c.store.DeleteCacheIf(ctx, group, key, row.FetchedAt); err != nil {
			c.log.Warn("corrupt entry delete failed", logx.String("group", group), logx.String("date", key), logx.Err(err))
		}
		return schedule.DaySchedule{}, false, nil
	}
	return day, true, nil
}

func decode(payload []byte, group string, date schedule.Date) (schedule.DaySchedule, error) {
	var day schedule.DaySchedule
	if err := json.Unmarshal(payload, &day); err != nil {
		return schedule.DaySchedule{}, err
	}
	if day.Group != group || day.Date != date {
		return schedule.DaySchedule{}, fmt.Errorf("payload is for %s/%s", day.Group, day.Date)
	}
	if day.Lessons == nil {
		day.Lessons = []schedule.LessonRecord{}
	}
	return day, nil
}

// Put stores day with fetched_at = now, replacing any previous row.
func (c *Cache) Put(ctx context.Context, group string, date schedule.Date, day schedule.DaySchedule) error {
	if day.Group != group || day.Date != date {
		return fmt.Errorf("cache put %s/%s: schedule is for %s/%s", group, date, day.Group, day.Date)
	}
	if day.Lessons == nil {
		day.Lessons = []schedule.LessonRecord{}
	}
	payload, err := json.Marshal(day)
	if err != nil {
		return err
	}
	row := storage.CacheRow{Group: group, Date: date.String(), Payload: payload, FetchedAt: c.now()}
	if err := c.store.PutCache(ctx, row); err != nil {
		return fmt.Errorf("cache put %s/%s: %w", group, date, err)
	}
	return nil
}

// Sweep deletes rows fetched more than retentionDays ago and returns how many
// were removed. retentionDays <= 0 removes everything.
func (c *Cache) Sweep(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return c.InvalidateAll(ctx)
	}
	cutoff := c.now().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	n, err := c.store.DeleteCacheBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cache sweep: %w", err)
	}
	return n, nil
}

func (c *Cache) InvalidateAll(ctx context.Context) (int64, error) {
	n, err := c.store.DeleteAllCache(ctx)
	if err != nil {
		return 0, fmt.Errorf("cache clear: %w", err)
	}
	return n, nil
}

func (c *Cache) Count(ctx context.Context) (int64, error) {
	return c.store.CountCache(ctx)
}
