// Package app wires configuration, storage, the schedule read path and the
// background runners into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"schedbot/internal/cache"
	"schedbot/internal/config"
	"schedbot/internal/janitor"
	"schedbot/internal/notify"
	"schedbot/internal/runtime/supervisor"
	"schedbot/internal/storage"
	"schedbot/internal/timetable"
	"schedbot/internal/transport"
	"schedbot/internal/transport/telegram"
	"schedbot/internal/upstream"
	"schedbot/pkg/logx"
)

// ErrNoSender is returned by operations that message users when no bot
// token is configured.
var ErrNoSender = errors.New("telegram token is not configured")

type App struct {
	cfgm *config.Manager

	// cfg, res, janitor and the notify fields are swapped on reload under mu.
	cfg *config.Config
	res *config.Resolved

	log  logx.Logger
	logs *logx.Service

	store     *storage.Handles
	cache     *cache.Cache
	upstream  *upstream.Client
	timetable *timetable.Service
	sender    transport.Sender
	janitor   *janitor.Janitor

	sup *supervisor.Supervisor

	mu          sync.Mutex
	dispatcher  *notify.Dispatcher
	broadcaster *notify.Broadcaster
	jobs        []notify.Job
	runners     map[string]*runnerSlot
	runSup      *supervisor.Supervisor
}

// New loads configuration from cfgPath (plus .env and the environment) and
// opens every dependency. Nothing runs in the background until Start.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	if err := config.LoadDotEnv(filepath.Join(filepath.Dir(cfgm.Path()), ".env")); err != nil {
		return nil, err
	}
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	res, err := config.Resolve(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	var sender transport.Sender
	if strings.TrimSpace(cfg.Telegram.Token) != "" {
		tg, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token}, logx.NewConsole("info"))
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		sender = tg
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg), sender)
	cfgm.SetLogger(log)

	store, err := storage.Open(ctx, mapStorageConfig(cfg, res), log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}
	log.Info("storage opened", logx.String("driver", cfg.Storage.Driver), logx.String("path", cfg.Storage.Path))

	up, err := upstream.New(mapUpstreamConfig(cfg, res), nil, log)
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, fmt.Errorf("upstream: %w", err)
	}

	c := cache.New(store.Cache, cache.Config{TTL: res.CacheTTL}, log)
	jan := janitor.New(c, janitor.Config{RetentionDays: cfg.Cache.RetentionDays, Timeout: res.JanitorTimeout}, log)
	a := &App{
		cfgm:      cfgm,
		cfg:       cfg,
		res:       res,
		log:       log.With(logx.String("comp", "app")),
		logs:      logSvc,
		store:     store,
		cache:     c,
		upstream:  up,
		timetable: timetable.New(up, up, c, log),
		sender:    sender,
		janitor:   jan,
	}
	a.buildNotify(cfg, res)
	return a, nil
}

// buildNotify (re)creates the dispatcher, broadcaster and job list for cfg.
func (a *App) buildNotify(cfg *config.Config, res *config.Resolved) {
	a.mu.Lock()
	defer a.mu.Unlock()
	jobs := make([]notify.Job, 0, len(res.Jobs))
	for _, j := range res.Jobs {
		if config.On(j.Enabled, true) {
			jobs = append(jobs, mapJob(j))
		}
	}
	a.jobs = jobs
	if a.sender == nil {
		a.dispatcher, a.broadcaster = nil, nil
		return
	}
	a.dispatcher = notify.NewDispatcher(a.store.SQL, a.timetable, notify.SenderDeliverer{Sender: a.sender}, mapNotifyConfig(res), a.log)
	a.broadcaster = notify.NewBroadcaster(a.store.SQL, a.sender, notify.BroadcastConfig{
		RatePerSec: cfg.Broadcast.RatePerSec,
		RetryMax:   cfg.Broadcast.RetryMax,
	}, a.log)
}

func (a *App) Timetable() *timetable.Service { return a.timetable }
func (a *App) Users() storage.UserStore      { return a.store.SQL }
func (a *App) Cache() *cache.Cache           { return a.cache }
func (a *App) Logger() logx.Logger           { return a.log }

// Config returns the config currently applied.
func (a *App) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

func (a *App) Location() *time.Location {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.res.Location
}

func (a *App) Janitor() *janitor.Janitor {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.janitor
}

// Jobs lists the enabled notification jobs.
func (a *App) Jobs() []notify.Job {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]notify.Job(nil), a.jobs...)
}

// NotifyNow runs the named notification job immediately. An empty name
// selects the first configured job.
func (a *App) NotifyNow(ctx context.Context, name string) (notify.Report, error) {
	a.mu.Lock()
	d := a.dispatcher
	jobs := a.jobs
	a.mu.Unlock()
	if d == nil {
		return notify.Report{}, ErrNoSender
	}
	for _, j := range jobs {
		if name == "" || j.Name == name {
			return d.Dispatch(ctx, j)
		}
	}
	return notify.Report{}, fmt.Errorf("unknown notification job %q", name)
}

// RemindNow sends the reminder for lesson number right away, for today.
func (a *App) RemindNow(ctx context.Context, number int) (notify.Report, error) {
	a.mu.Lock()
	d := a.dispatcher
	res := a.res
	a.mu.Unlock()
	if d == nil {
		return notify.Report{}, ErrNoSender
	}
	for _, rr := range res.Reminders {
		if rr.Number == number {
			return d.Remind(ctx, mapReminder(rr, res))
		}
	}
	return notify.Report{}, fmt.Errorf("no start time configured for lesson %d", number)
}

// Broadcast sends text to every known user.
func (a *App) Broadcast(ctx context.Context, text string) (notify.BroadcastResult, error) {
	a.mu.Lock()
	b := a.broadcaster
	a.mu.Unlock()
	if b == nil {
		return notify.BroadcastResult{}, ErrNoSender
	}
	return b.Broadcast(ctx, text)
}

// Stats is the admin overview.
type Stats struct {
	storage.UserStats
	CachedDays int64
}

func (a *App) Stats(ctx context.Context) (Stats, error) {
	us, err := a.store.SQL.UserStats(ctx)
	if err != nil {
		return Stats{}, err
	}
	n, err := a.cache.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{UserStats: us, CachedDays: n}, nil
}

// Close releases storage and log sinks. Use Stop for a started App.
func (a *App) Close() error {
	err := a.store.Close()
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}
