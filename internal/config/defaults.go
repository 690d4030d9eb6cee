package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"schedbot/internal/trigger"
)

const (
	DefaultPath          = "./config.yaml"
	DefaultBaseURL       = "https://lk.tolgas.ru/public-schedule/group"
	DefaultSearchURL     = "https://lk.tolgas.ru/public-schedule/search/"
	DefaultTimezone      = "Europe/Moscow"
	DefaultDatabasePath  = "./data/schedbot.db"
	DefaultNotifyAt      = "18:00"
	DefaultJanitorAt     = "03:30"
	DefaultEveningGreet  = "📅 Расписание на завтра"
	DefaultRetentionDays = 14
	DefaultReminderLead  = "15m"
)

// DefaultLessonStarts are the bell times of lessons 1-6.
var DefaultLessonStarts = []string{"08:30", "10:10", "12:00", "13:50", "15:30", "17:10"}

// ApplyDefaults fills every omitted field. It never overrides explicit values.
func ApplyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
	if !cfg.Logging.Console && !cfg.Logging.File.Enabled {
		cfg.Logging.Console = true
	}

	s := &cfg.Storage
	if strings.TrimSpace(s.Driver) == "" {
		s.Driver = "sqlite"
	}
	if strings.TrimSpace(s.Path) == "" {
		s.Path = DefaultDatabasePath
	}

	u := &cfg.Upstream
	if strings.TrimSpace(u.BaseURL) == "" {
		u.BaseURL = DefaultBaseURL
	}
	if strings.TrimSpace(u.SearchURL) == "" {
		u.SearchURL = DefaultSearchURL
	}
	if strings.TrimSpace(u.Timeout) == "" {
		u.Timeout = "15s"
	}

	if strings.TrimSpace(cfg.Cache.TTL) == "" {
		cfg.Cache.TTL = "12h"
	}
	if cfg.Cache.RetentionDays == 0 {
		cfg.Cache.RetentionDays = DefaultRetentionDays
	}

	if strings.TrimSpace(cfg.Scheduler.Timezone) == "" {
		cfg.Scheduler.Timezone = DefaultTimezone
	}
	if strings.TrimSpace(cfg.Scheduler.Poll) == "" {
		cfg.Scheduler.Poll = "60s"
	}

	n := &cfg.Notifications
	if strings.TrimSpace(n.DeliveryInterval) == "" {
		n.DeliveryInterval = "600ms"
	}
	if strings.TrimSpace(n.SubscriberTimeout) == "" {
		n.SubscriberTimeout = "30s"
	}
	if strings.TrimSpace(n.Cooldown) == "" {
		n.Cooldown = "23h50m"
	}
	if strings.TrimSpace(n.ErrorBackoff) == "" {
		n.ErrorBackoff = "60s"
	}
	if len(n.Jobs) == 0 {
		one := 1
		n.Jobs = []NotificationJob{{Name: "evening", At: DefaultNotifyAt, DayOffset: &one, Greeting: DefaultEveningGreet}}
	}
	for i := range n.Jobs {
		j := &n.Jobs[i]
		if strings.TrimSpace(j.Name) == "" {
			j.Name = fmt.Sprintf("notify-%d", i+1)
		}
		if strings.TrimSpace(j.At) == "" {
			j.At = DefaultNotifyAt
		}
		if j.DayOffset == nil {
			one := 1
			j.DayOffset = &one
		}
	}

	rm := &cfg.Reminders
	if strings.TrimSpace(rm.Lead) == "" {
		rm.Lead = DefaultReminderLead
	}
	if len(rm.Starts) == 0 {
		rm.Starts = append([]string(nil), DefaultLessonStarts...)
	}

	if strings.TrimSpace(cfg.Janitor.At) == "" {
		cfg.Janitor.At = DefaultJanitorAt
	}
	if strings.TrimSpace(cfg.Janitor.ErrorBackoff) == "" {
		cfg.Janitor.ErrorBackoff = "1h"
	}
	if strings.TrimSpace(cfg.Janitor.Timeout) == "" {
		cfg.Janitor.Timeout = "5m"
	}

	if cfg.Broadcast.RatePerSec <= 0 {
		cfg.Broadcast.RatePerSec = 10
	}
	if cfg.Broadcast.RetryMax == 0 {
		cfg.Broadcast.RetryMax = 2
	}
}

// Resolved holds the parsed form of a defaulted Config.
type Resolved struct {
	Location          *time.Location
	BusyTimeout       time.Duration
	UpstreamTimeout   time.Duration
	CacheTTL          time.Duration
	Poll              time.Duration
	DeliveryInterval  time.Duration
	SubscriberTimeout time.Duration
	NotifyCooldown    time.Duration
	NotifyBackoff     time.Duration
	JanitorBackoff    time.Duration
	JanitorTimeout    time.Duration
	ReminderLead      time.Duration
	Jobs              []ResolvedJob
	Reminders         []ResolvedReminder
	Janitor           trigger.Spec
}

type ResolvedJob struct {
	NotificationJob
	Trigger trigger.Spec
}

// ResolvedReminder fires ReminderLead before lesson Number starts.
type ResolvedReminder struct {
	Number  int
	Start   string
	Trigger trigger.Spec
}

// JanitorName is the runner name of the cache janitor.
const JanitorName = "cache-janitor"

// Resolve parses durations, the timezone and every trigger. All problems are
// reported together.
func Resolve(cfg *Config) (*Resolved, error) {
	var (
		r    Resolved
		errs []error
	)
	dur := func(dst *time.Duration, path, raw string, def time.Duration) {
		d, err := ParseDurationOrDefault(path, raw, def)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*dst = d
	}

	loc, err := time.LoadLocation(strings.TrimSpace(cfg.Scheduler.Timezone))
	if err != nil {
		errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		loc = time.UTC
	}
	r.Location = loc

	dur(&r.BusyTimeout, "storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	dur(&r.UpstreamTimeout, "upstream.timeout", cfg.Upstream.Timeout, 15*time.Second)
	dur(&r.CacheTTL, "cache.ttl", cfg.Cache.TTL, 12*time.Hour)
	dur(&r.Poll, "scheduler.poll", cfg.Scheduler.Poll, time.Minute)
	dur(&r.DeliveryInterval, "notifications.delivery_interval", cfg.Notifications.DeliveryInterval, 600*time.Millisecond)
	dur(&r.SubscriberTimeout, "notifications.subscriber_timeout", cfg.Notifications.SubscriberTimeout, 30*time.Second)
	dur(&r.NotifyCooldown, "notifications.cooldown", cfg.Notifications.Cooldown, 0)
	dur(&r.NotifyBackoff, "notifications.error_backoff", cfg.Notifications.ErrorBackoff, time.Minute)
	dur(&r.JanitorBackoff, "janitor.error_backoff", cfg.Janitor.ErrorBackoff, time.Hour)
	dur(&r.JanitorTimeout, "janitor.timeout", cfg.Janitor.Timeout, 5*time.Minute)
	dur(&r.ReminderLead, "reminders.lead", cfg.Reminders.Lead, 15*time.Minute)
	if r.ReminderLead >= 24*time.Hour {
		errs = append(errs, fmt.Errorf("reminders.lead: must be under 24h, got %s", r.ReminderLead))
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "sqlite", "sqlite3":
	case "redis":
		if strings.TrimSpace(cfg.Storage.RedisURL) == "" {
			errs = append(errs, errors.New("storage.redis_url: required for driver redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	if cfg.Cache.RetentionDays < 0 {
		errs = append(errs, errors.New("cache.retention_days: must be >= 0"))
	}

	seen := map[string]bool{}
	for i, j := range cfg.Notifications.Jobs {
		path := fmt.Sprintf("notifications.jobs[%d]", i)
		if seen[j.Name] {
			errs = append(errs, fmt.Errorf("%s.name: duplicate %q", path, j.Name))
		}
		seen[j.Name] = true
		if j.Name == JanitorName || strings.HasPrefix(j.Name, "reminder-") {
			errs = append(errs, fmt.Errorf("%s.name: %q is reserved", path, j.Name))
		}
		spec, err := trigger.Parse(j.At, loc)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s.at: %w", path, err))
			continue
		}
		r.Jobs = append(r.Jobs, ResolvedJob{NotificationJob: j, Trigger: spec})
	}

	for i, start := range cfg.Reminders.Starts {
		path := fmt.Sprintf("reminders.starts[%d]", i)
		at, err := reminderAt(start, r.ReminderLead)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		spec, err := trigger.Parse(at, loc)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		r.Reminders = append(r.Reminders, ResolvedReminder{Number: i + 1, Start: strings.TrimSpace(start), Trigger: spec})
	}

	spec, err := trigger.Parse(cfg.Janitor.At, loc)
	if err != nil {
		errs = append(errs, fmt.Errorf("janitor.at: %w", err))
	}
	r.Janitor = spec

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &r, nil
}

// reminderAt returns the "HH:MM" that is lead before start, wrapping past midnight.
func reminderAt(start string, lead time.Duration) (string, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(start))
	if err != nil {
		return "", fmt.Errorf("lesson start %q: want HH:MM", start)
	}
	mins := t.Hour()*60 + t.Minute() - int(lead/time.Minute)
	mins = ((mins % (24 * 60)) + 24*60) % (24 * 60)
	return fmt.Sprintf("%02d:%02d", mins/60, mins%60), nil
}
