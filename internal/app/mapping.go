package app

import (
	"strings"

	"schedbot/internal/config"
	"schedbot/internal/notify"
	"schedbot/internal/storage"
	"schedbot/internal/trigger"
	"schedbot/internal/upstream"
	"schedbot/pkg/logx"
)

func mapStorageConfig(cfg *config.Config, res *config.Resolved) storage.Config {
	sc := cfg.Storage
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        strings.TrimSpace(sc.Path),
		BusyTimeout: res.BusyTimeout,
		RedisURL:    strings.TrimSpace(sc.RedisURL),
		RedisPrefix: sc.RedisPrefix,
	}
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	if l.Telegram.Enabled && l.Telegram.ChatID == 0 && len(cfg.Telegram.AdminIDs) > 0 {
		l.Telegram.ChatID = cfg.Telegram.AdminIDs[0]
	}
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled,
			ChatID:     l.Telegram.ChatID,
			ThreadID:   l.Telegram.ThreadID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

func mapUpstreamConfig(cfg *config.Config, res *config.Resolved) upstream.Config {
	u := cfg.Upstream
	return upstream.Config{
		BaseURL:        u.BaseURL,
		SearchURL:      u.SearchURL,
		UserAgent:      u.UserAgent,
		Timeout:        res.UpstreamTimeout,
		MaxBody:        u.MaxBodyBytes,
		DirectoryLimit: u.DirectoryLimit,
	}
}

func mapNotifyConfig(res *config.Resolved) notify.Config {
	return notify.Config{
		Location:          res.Location,
		DeliveryInterval:  res.DeliveryInterval,
		SubscriberTimeout: res.SubscriberTimeout,
	}
}

func mapJob(j config.ResolvedJob) notify.Job {
	offset := 1
	if j.DayOffset != nil {
		offset = *j.DayOffset
	}
	return notify.Job{
		Name:      j.Name,
		DayOffset: offset,
		Greeting:  j.Greeting,
		SkipEmpty: j.SkipEmpty,
	}
}

func mapReminder(r config.ResolvedReminder, res *config.Resolved) notify.Reminder {
	return notify.Reminder{Number: r.Number, Lead: res.ReminderLead}
}

func notifyRunnerConfig(res *config.Resolved) trigger.Config {
	return trigger.Config{Poll: res.Poll, Cooldown: res.NotifyCooldown, ErrorBackoff: res.NotifyBackoff}
}

func janitorRunnerConfig(res *config.Resolved) trigger.Config {
	return trigger.Config{Poll: res.Poll, ErrorBackoff: res.JanitorBackoff}
}

// Reminders fire once per window, so they need no cooldown.
func reminderRunnerConfig(res *config.Resolved) trigger.Config {
	return trigger.Config{Poll: res.Poll, ErrorBackoff: res.NotifyBackoff}
}
