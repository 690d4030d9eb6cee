package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"schedbot/internal/render"
	"schedbot/internal/schedule"
	"schedbot/internal/storage"
	"schedbot/internal/trigger"
	"schedbot/pkg/logx"
)

var errSkipped = errors.New("skipped")

// Dispatcher delivers one day's schedule to every subscriber, one at a time.
type Dispatcher struct {
	subs    SubscriberSource
	sched   ScheduleSource
	deliver Deliverer
	cfg     Config
	limiter *rate.Limiter
	now     func() time.Time
	log     logx.Logger
}

func NewDispatcher(subs SubscriberSource, sched ScheduleSource, deliver Deliverer, cfg Config, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Dispatcher{
		subs:    subs,
		sched:   sched,
		deliver: deliver,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.DeliveryInterval), 1),
		now:     time.Now,
		log:     log.With(logx.String("comp", "notify")),
	}
}

// SetClock replaces time.Now for target-date computation.
func (d *Dispatcher) SetClock(now func() time.Time) {
	if now != nil {
		d.now = now
	}
}

// Job adapts a notification job to a trigger runner. Per-subscriber failures
// are reported, not returned; only a failure to list subscribers fails the run.
func (d *Dispatcher) Job(job Job) trigger.Job {
	return func(ctx context.Context) error {
		_, err := d.Dispatch(ctx, job)
		return err
	}
}

// Dispatch runs job over all subscribers.
//
// Cancellation is honoured between subscribers only: the subscriber in
// progress finishes on a context detached from ctx, bounded by SubscriberTimeout.
func (d *Dispatcher) Dispatch(ctx context.Context, job Job) (Report, error) {
	target := schedule.DateOf(d.now().In(d.cfg.Location)).AddDays(job.DayOffset)
	return d.each(ctx, job.Name, target, func(uctx context.Context, u storage.User) error {
		return d.notifyOne(uctx, u, target, job)
	})
}

// RemindJob adapts a lesson reminder to a trigger runner.
func (d *Dispatcher) RemindJob(rem Reminder) trigger.Job {
	return func(ctx context.Context) error {
		_, err := d.Remind(ctx, rem)
		return err
	}
}

// Remind messages every subscriber whose group has lesson rem.Number today.
// Subscribers without that lesson are skipped.
func (d *Dispatcher) Remind(ctx context.Context, rem Reminder) (Report, error) {
	today := schedule.DateOf(d.now().In(d.cfg.Location))
	return d.each(ctx, rem.Name(), today, func(uctx context.Context, u storage.User) error {
		return d.remindOne(uctx, u, today, rem)
	})
}

func (d *Dispatcher) each(ctx context.Context, name string, target schedule.Date, one func(context.Context, storage.User) error) (Report, error) {
	start := time.Now()
	rep := Report{RunID: uuid.NewString(), Job: name, Date: target}
	log := d.log.With(logx.String("run", rep.RunID), logx.String("job", name), logx.String("date", target.String()))

	users, err := d.subs.ListSubscribers(ctx)
	if err != nil {
		return rep, fmt.Errorf("list subscribers: %w", err)
	}
	rep.Total = len(users)
	log.Info("notification dispatch started", logx.Int("subscribers", rep.Total))

	for _, u := range users {
		if ctx.Err() != nil {
			rep.Interrupted = true
			break
		}
		if err := d.limiter.Wait(ctx); err != nil {
			rep.Interrupted = true
			break
		}

		uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.SubscriberTimeout)
		derr := one(uctx, u)
		cancel()

		switch {
		case derr == nil:
			rep.Sent++
		case errors.Is(derr, errSkipped), errors.Is(derr, schedule.ErrNoGroup):
			rep.Skipped++
			log.Debug("subscriber skipped", logx.Int64("user", u.ID), logx.Err(derr))
		default:
			rep.Failed++
			var de *schedule.DeliveryError
			if !errors.As(derr, &de) {
				de = &schedule.DeliveryError{UserID: u.ID, Group: u.GroupName(), Stage: "deliver", Err: derr}
			}
			rep.Failures = append(rep.Failures, de)
			log.Warn("subscriber notification failed", logx.Err(de))
		}
	}

	rep.Took = time.Since(start)
	fields := []logx.Field{
		logx.Int("total", rep.Total),
		logx.Int("sent", rep.Sent),
		logx.Int("skipped", rep.Skipped),
		logx.Int("failed", rep.Failed),
		logx.Bool("interrupted", rep.Interrupted),
		logx.Duration("took", rep.Took),
	}
	if rep.Failed > 0 || rep.Interrupted {
		log.Warn("notification dispatch finished with failures", fields...)
	} else {
		log.Info("notification dispatch finished", fields...)
	}
	return rep, nil
}

func (d *Dispatcher) notifyOne(ctx context.Context, u storage.User, date schedule.Date, job Job) error {
	group := strings.TrimSpace(u.GroupName())
	if group == "" {
		return schedule.ErrNoGroup
	}
	day, err := d.sched.GetSchedule(ctx, group, date)
	if err != nil {
		return &schedule.DeliveryError{UserID: u.ID, Group: group, Stage: "fetch", Err: err}
	}
	if day.Empty() && job.SkipEmpty {
		return errSkipped
	}
	text := render.Notification(job.Greeting, day)
	if err := d.deliver.Deliver(ctx, u.ID, text); err != nil {
		return &schedule.DeliveryError{UserID: u.ID, Group: group, Stage: "deliver", Err: err}
	}
	return nil
}

func (d *Dispatcher) remindOne(ctx context.Context, u storage.User, date schedule.Date, rem Reminder) error {
	group := strings.TrimSpace(u.GroupName())
	if group == "" {
		return schedule.ErrNoGroup
	}
	day, err := d.sched.GetSchedule(ctx, group, date)
	if err != nil {
		return &schedule.DeliveryError{UserID: u.ID, Group: group, Stage: "fetch", Err: err}
	}
	var lessons []schedule.LessonRecord
	for _, l := range day.Lessons {
		if l.Number == rem.Number {
			lessons = append(lessons, l)
		}
	}
	if len(lessons) == 0 {
		return errSkipped
	}
	text := render.Reminder(rem.Number, int(rem.Lead/time.Minute), lessons)
	if err := d.deliver.Deliver(ctx, u.ID, text); err != nil {
		return &schedule.DeliveryError{UserID: u.ID, Group: group, Stage: "deliver", Err: err}
	}
	return nil
}
