package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"schedbot/internal/schedule"
	"schedbot/internal/storage"
	"schedbot/internal/transport"
	"schedbot/pkg/logx"
)

type staticUsers []storage.User

func (s staticUsers) ListSubscribers(context.Context) ([]storage.User, error) { return s, nil }
func (s staticUsers) ListUsers(context.Context) ([]storage.User, error)       { return s, nil }

type failingUsers struct{}

func (failingUsers) ListSubscribers(context.Context) ([]storage.User, error) {
	return nil, errors.New("db locked")
}

type stubSchedules struct {
	mu    sync.Mutex
	dates []schedule.Date
	empty map[string]bool
	fail  map[string]error
}

func (s *stubSchedules) GetSchedule(_ context.Context, group string, date schedule.Date) (schedule.DaySchedule, error) {
	s.mu.Lock()
	s.dates = append(s.dates, date)
	s.mu.Unlock()
	if err := s.fail[group]; err != nil {
		return schedule.DaySchedule{}, err
	}
	day := schedule.DaySchedule{Date: date, Group: group, Lessons: []schedule.LessonRecord{}}
	if !s.empty[group] {
		day.Lessons = append(day.Lessons, schedule.LessonRecord{Number: 1, Name: "Физика"})
	}
	return day, nil
}

type recordingDeliverer struct {
	mu     sync.Mutex
	sent   map[int64]string
	failOn map[int64]error
	hook   func(ctx context.Context, userID int64)
}

func (r *recordingDeliverer) Deliver(ctx context.Context, userID int64, text string) error {
	if r.hook != nil {
		r.hook(ctx, userID)
	}
	if err := r.failOn[userID]; err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent == nil {
		r.sent = map[int64]string{}
	}
	r.sent[userID] = text
	return nil
}

func ptr(s string) *string { return &s }

func testConfig() Config {
	return Config{Location: time.UTC, DeliveryInterval: time.Millisecond, SubscriberTimeout: time.Second}
}

func TestDispatchContinuesPastFailedSubscriber(t *testing.T) {
	t.Parallel()
	users := staticUsers{
		{ID: 1, Group: ptr("A1"), NotificationsEnabled: true},
		{ID: 2, Group: ptr("B2"), NotificationsEnabled: true},
		{ID: 3, Group: ptr("C3"), NotificationsEnabled: true},
	}
	del := &recordingDeliverer{failOn: map[int64]error{2: errors.New("bot was blocked by the user")}}
	sched := &stubSchedules{}
	d := NewDispatcher(users, sched, del, testConfig(), logx.Nop())
	d.SetClock(func() time.Time { return time.Date(2026, 2, 6, 18, 0, 0, 0, time.UTC) })

	rep, err := d.Dispatch(context.Background(), Job{Name: "evening", DayOffset: 1, Greeting: "Расписание на завтра"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if rep.Total != 3 || rep.Sent != 2 || rep.Failed != 1 || rep.Skipped != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if len(rep.Failures) != 1 || rep.Failures[0].UserID != 2 || rep.Failures[0].Stage != "deliver" {
		t.Fatalf("failures = %+v", rep.Failures)
	}
	if rep.RunID == "" {
		t.Fatal("missing run id")
	}
	want := schedule.Date{Year: 2026, Month: time.February, Day: 7}
	if rep.Date != want {
		t.Fatalf("Date = %v, want %v", rep.Date, want)
	}
	for _, dt := range sched.dates {
		if dt != want {
			t.Fatalf("fetched %v, want %v", dt, want)
		}
	}
	if _, ok := del.sent[1]; !ok {
		t.Fatal("user 1 not notified")
	}
	if txt := del.sent[3]; !strings.Contains(txt, "Расписание на завтра") || !strings.Contains(txt, "Суббота") {
		t.Fatalf("user 3 text = %q", txt)
	}
}

func TestDispatchSkipsAndFetchFailures(t *testing.T) {
	t.Parallel()
	users := staticUsers{
		{ID: 1, NotificationsEnabled: true},
		{ID: 2, Group: ptr("EMPTY"), NotificationsEnabled: true},
		{ID: 3, Group: ptr("DOWN"), NotificationsEnabled: true},
		{ID: 4, Group: ptr("OK"), NotificationsEnabled: true},
	}
	sched := &stubSchedules{
		empty: map[string]bool{"EMPTY": true},
		fail:  map[string]error{"DOWN": &schedule.TransportError{Op: "fetch", Status: 502}},
	}
	del := &recordingDeliverer{}
	d := NewDispatcher(users, sched, del, testConfig(), logx.Nop())

	rep, err := d.Dispatch(context.Background(), Job{Name: "morning", DayOffset: 0, SkipEmpty: true})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Sent != 1 || rep.Skipped != 2 || rep.Failed != 1 {
		t.Fatalf("report = %+v", rep)
	}
	var te *schedule.TransportError
	if rep.Failures[0].Stage != "fetch" || !errors.As(rep.Failures[0], &te) {
		t.Fatalf("failure = %+v", rep.Failures[0])
	}

	// Without SkipEmpty the empty day is delivered as a "no lessons" message.
	rep, err = d.Dispatch(context.Background(), Job{Name: "evening", DayOffset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Sent != 2 || rep.Skipped != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if txt := del.sent[2]; !strings.Contains(txt, "Занятий нет") {
		t.Fatalf("empty-day text = %q", txt)
	}
}

func TestDispatchStopsBetweenSubscribersOnCancel(t *testing.T) {
	t.Parallel()
	users := staticUsers{
		{ID: 1, Group: ptr("A"), NotificationsEnabled: true},
		{ID: 2, Group: ptr("A"), NotificationsEnabled: true},
		{ID: 3, Group: ptr("A"), NotificationsEnabled: true},
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var inflightErr error
	del := &recordingDeliverer{hook: func(dctx context.Context, userID int64) {
		if userID == 1 {
			cancel()
			inflightErr = dctx.Err()
		}
	}}
	d := NewDispatcher(users, &stubSchedules{}, del, testConfig(), logx.Nop())

	rep, err := d.Dispatch(ctx, Job{Name: "evening", DayOffset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if inflightErr != nil {
		t.Fatalf("in-flight subscriber saw cancellation: %v", inflightErr)
	}
	if !rep.Interrupted || rep.Sent != 1 || len(del.sent) != 1 {
		t.Fatalf("report = %+v sent=%v", rep, del.sent)
	}
}

func TestDispatchListFailureIsJobError(t *testing.T) {
	t.Parallel()
	d := NewDispatcher(failingUsers{}, &stubSchedules{}, &recordingDeliverer{}, testConfig(), logx.Nop())
	if err := d.Job(Job{Name: "evening"})(context.Background()); err == nil {
		t.Fatal("expected error when subscribers cannot be listed")
	}
}

func TestDeliveryIsRateLimited(t *testing.T) {
	t.Parallel()
	users := staticUsers{
		{ID: 1, Group: ptr("A")},
		{ID: 2, Group: ptr("A")},
		{ID: 3, Group: ptr("A")},
	}
	cfg := testConfig()
	cfg.DeliveryInterval = 40 * time.Millisecond
	d := NewDispatcher(users, &stubSchedules{}, &recordingDeliverer{}, cfg, logx.Nop())

	start := time.Now()
	if _, err := d.Dispatch(context.Background(), Job{Name: "x"}); err != nil {
		t.Fatal(err)
	}
	if took := time.Since(start); took < 70*time.Millisecond {
		t.Fatalf("3 deliveries took %v, want >= 2 intervals", took)
	}
}

type flakySender struct {
	mu       sync.Mutex
	attempts map[int64]int
	failFor  map[int64]int // fail the first N attempts
}

func (f *flakySender) SendText(_ context.Context, to transport.ChatTarget, _ string, _ *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attempts == nil {
		f.attempts = map[int64]int{}
	}
	f.attempts[to.ChatID]++
	if f.attempts[to.ChatID] <= f.failFor[to.ChatID] {
		return transport.MessageRef{}, errors.New("flood wait")
	}
	return transport.MessageRef{ChatID: to.ChatID, MessageID: f.attempts[to.ChatID]}, nil
}

func TestBroadcastRetriesAndCollectsFailures(t *testing.T) {
	t.Parallel()
	users := staticUsers{{ID: 10}, {ID: 20}, {ID: 30}}
	snd := &flakySender{failFor: map[int64]int{20: 1, 30: 5}}
	b := NewBroadcaster(users, snd, BroadcastConfig{RatePerSec: 100, RetryMax: 1}, logx.Nop())

	res, err := b.Broadcast(context.Background(), "Технические работы")
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if res.Total != 3 || res.Done != 3 || res.Failed != 1 {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Failures) != 1 || res.Failures[0] != 30 {
		t.Fatalf("failures = %v", res.Failures)
	}
	if snd.attempts[20] != 2 || snd.attempts[30] != 2 {
		t.Fatalf("attempts = %v", snd.attempts)
	}
}

func TestRemindOnlyUsersWithThatLesson(t *testing.T) {
	t.Parallel()
	users := staticUsers{
		{ID: 1, Group: ptr("A1"), NotificationsEnabled: true},
		{ID: 2, Group: ptr("FREE"), NotificationsEnabled: true},
		{ID: 3, NotificationsEnabled: true},
	}
	sched := &stubSchedules{empty: map[string]bool{"FREE": true}}
	del := &recordingDeliverer{}
	d := NewDispatcher(users, sched, del, testConfig(), logx.Nop())
	d.SetClock(func() time.Time { return time.Date(2026, 2, 6, 8, 15, 0, 0, time.UTC) })

	rep, err := d.Remind(context.Background(), Reminder{Number: 1, Lead: 15 * time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Job != "reminder-1" || rep.Sent != 1 || rep.Skipped != 2 || rep.Failed != 0 {
		t.Fatalf("report = %+v", rep)
	}
	today := schedule.Date{Year: 2026, Month: time.February, Day: 6}
	if rep.Date != today {
		t.Fatalf("Date = %v, want %v", rep.Date, today)
	}
	if txt := del.sent[1]; !strings.Contains(txt, "Через 15 мин. начнется 1 пара") || !strings.Contains(txt, "Физика") {
		t.Fatalf("reminder text = %q", txt)
	}

	rep, err = d.Remind(context.Background(), Reminder{Number: 2, Lead: 15 * time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Sent != 0 || rep.Skipped != 3 {
		t.Fatalf("report for lesson 2 = %+v", rep)
	}
}
