package notify

import (
	"context"
	"fmt"
	"time"

	"schedbot/internal/schedule"
	"schedbot/internal/storage"
	"schedbot/internal/transport"
)

// SubscriberSource lists users with notifications enabled.
type SubscriberSource interface {
	ListSubscribers(ctx context.Context) ([]storage.User, error)
}

// UserSource lists every known user (broadcast audience).
type UserSource interface {
	ListUsers(ctx context.Context) ([]storage.User, error)
}

// ScheduleSource is the cache-first read path.
type ScheduleSource interface {
	GetSchedule(ctx context.Context, group string, date schedule.Date) (schedule.DaySchedule, error)
}

// Deliverer sends rendered text to one user.
type Deliverer interface {
	Deliver(ctx context.Context, userID int64, text string) error
}

// SenderDeliverer delivers through a transport.Sender as a private chat message.
type SenderDeliverer struct {
	Sender transport.Sender
}

func (d SenderDeliverer) Deliver(ctx context.Context, userID int64, text string) error {
	_, err := d.Sender.SendText(ctx, transport.ChatTarget{ChatID: userID}, text, &transport.SendOptions{
		ParseMode:      transport.ParseModeHTML,
		DisablePreview: true,
	})
	return err
}

// Job describes one notification run.
type Job struct {
	Name      string
	DayOffset int    // 1 = tomorrow, 0 = today
	Greeting  string // optional first line
	SkipEmpty bool   // do not message users whose day has no lessons
}

// Reminder is the pre-lesson note for one lesson number, sent for today.
type Reminder struct {
	Number int
	Lead   time.Duration
}

func (r Reminder) Name() string { return fmt.Sprintf("reminder-%d", r.Number) }

type Config struct {
	Location          *time.Location
	DeliveryInterval  time.Duration // minimum spacing between subscribers
	SubscriberTimeout time.Duration // bound for one subscriber's fetch+render+deliver
}

const (
	DefaultDeliveryInterval  = 600 * time.Millisecond
	DefaultSubscriberTimeout = 30 * time.Second
)

func (c Config) withDefaults() Config {
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.DeliveryInterval <= 0 {
		c.DeliveryInterval = DefaultDeliveryInterval
	}
	if c.SubscriberTimeout <= 0 {
		c.SubscriberTimeout = DefaultSubscriberTimeout
	}
	return c
}

// Report summarizes one dispatch. Failures holds one entry per failed subscriber.
type Report struct {
	RunID       string
	Job         string
	Date        schedule.Date
	Total       int
	Sent        int
	Skipped     int
	Failed      int
	Failures    []*schedule.DeliveryError
	Interrupted bool
	Took        time.Duration
}
