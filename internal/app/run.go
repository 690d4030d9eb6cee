package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"schedbot/internal/config"
	"schedbot/internal/janitor"
	"schedbot/internal/runtime/supervisor"
	"schedbot/internal/trigger"
	"schedbot/pkg/logx"
)

// Start launches the notification and janitor runners plus the config
// watcher. It returns once everything is scheduled.
func (a *App) Start(ctx context.Context) error {
	if a.sender == nil {
		return ErrNoSender
	}
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.mu.Lock()
	cfg, res := a.cfg, a.res
	a.mu.Unlock()
	a.startRunners(cfg, res)

	updates := a.cfgm.Subscribe(4)
	a.sup.Go("config.reload", func(c context.Context) error {
		for {
			select {
			case <-c.Done():
				return nil
			case next := <-updates:
				a.applyConfig(c, next)
			}
		}
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch, supervisor.WithRestartBackoff(250*time.Millisecond, 5*time.Second))

	a.log.Info("app started",
		logx.String("timezone", res.Location.String()),
		logx.Int("jobs", len(a.Jobs())),
	)
	return nil
}

// Done is closed when the app supervisor gives up or Stop is called.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Runners reports the state of every background runner, sorted by name.
func (a *App) Runners() []trigger.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]trigger.Status, 0, len(a.runners))
	for _, slot := range a.runners {
		out = append(out, slot.r.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type runnerSlot struct {
	r      *trigger.Runner
	cancel context.CancelFunc
}

type runnerPlan struct {
	name string
	spec trigger.Spec
	job  trigger.Job
	cfg  trigger.Config
}

// plansLocked lists the runners cfg asks for. a.mu must be held.
func (a *App) plansLocked(cfg *config.Config, res *config.Resolved) []runnerPlan {
	var plans []runnerPlan
	if a.dispatcher != nil && config.On(cfg.Notifications.Enabled, true) {
		for _, rj := range res.Jobs {
			if !config.On(rj.Enabled, true) {
				continue
			}
			plans = append(plans, runnerPlan{rj.Name, rj.Trigger, a.dispatcher.Job(mapJob(rj)), notifyRunnerConfig(res)})
		}
	}
	if a.dispatcher != nil && config.On(cfg.Reminders.Enabled, false) {
		for _, rr := range res.Reminders {
			rem := mapReminder(rr, res)
			plans = append(plans, runnerPlan{rem.Name(), rr.Trigger, a.dispatcher.RemindJob(rem), reminderRunnerConfig(res)})
		}
	}
	if config.On(cfg.Janitor.Enabled, true) {
		plans = append(plans, runnerPlan{config.JanitorName, res.Janitor, a.janitor.Job(), janitorRunnerConfig(res)})
	}
	return plans
}

func (a *App) startRunners(cfg *config.Config, res *config.Resolved) {
	a.mu.Lock()
	a.runSup = supervisor.New(a.sup.Context(), supervisor.WithLogger(a.log.With(logx.String("comp", "runners"))))
	a.runners = make(map[string]*runnerSlot)
	a.mu.Unlock()
	a.reconcileRunners(cfg, res)
}

// reconcileRunners updates runners in place. Only runners whose job was
// added or removed are started or stopped, so a dispatch in progress
// survives a reload.
func (a *App) reconcileRunners(cfg *config.Config, res *config.Resolved) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runSup == nil {
		return
	}

	want := make(map[string]bool)
	for _, p := range a.plansLocked(cfg, res) {
		want[p.name] = true
		if slot, ok := a.runners[p.name]; ok {
			slot.r.SetJob(p.job)
			slot.r.SetConfig(p.cfg)
			slot.r.SetSpec(p.spec)
			continue
		}
		rctx, cancel := context.WithCancel(a.runSup.Context())
		r := trigger.NewRunner(p.name, p.spec, p.job, p.cfg, nil, a.log)
		a.runners[p.name] = &runnerSlot{r: r, cancel: cancel}
		a.runSup.GoRestart("runner."+p.name, func(context.Context) error { return r.Run(rctx) })
	}
	for name, slot := range a.runners {
		if want[name] {
			continue
		}
		slot.cancel()
		delete(a.runners, name)
		a.log.Info("runner removed", logx.String("job", name))
	}
}

func (a *App) stopRunners(ctx context.Context) {
	a.mu.Lock()
	sup := a.runSup
	for _, slot := range a.runners {
		slot.cancel()
	}
	a.runSup = nil
	a.runners = nil
	a.mu.Unlock()
	if sup == nil {
		return
	}
	if err := sup.Stop(ctx); err != nil {
		a.log.Warn("runners did not stop cleanly", logx.Err(err))
	}
}

// applyConfig hot-applies a validated config. Storage, token and upstream
// changes are only picked up on restart.
func (a *App) applyConfig(ctx context.Context, next *config.Config) {
	if next == nil {
		return
	}
	res, err := config.Resolve(next)
	if err != nil {
		a.log.Warn("config reload rejected", logx.Err(err))
		return
	}

	a.mu.Lock()
	prev := a.cfg
	a.mu.Unlock()

	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	if config.RequiresRestart(prev, next) {
		a.log.Warn("storage, upstream or token config changed; restart required for changes to take effect")
	}

	a.logs.Apply(mapLoggingConfig(next))

	runnersChanged := false
	for _, s := range sections {
		switch s {
		case "notifications", "reminders", "janitor", "scheduler", "broadcast", "cache":
			runnersChanged = true
		}
	}

	a.mu.Lock()
	a.cfg, a.res = next, res
	a.janitor = janitor.New(a.cache, janitor.Config{RetentionDays: next.Cache.RetentionDays, Timeout: res.JanitorTimeout}, a.log)
	a.mu.Unlock()

	if runnersChanged {
		a.buildNotify(next, res)
		a.reconcileRunners(next, res)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config applied", fields...)
}

// Stop cancels the runners, waits for them within ctx and closes storage.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")

	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		sctx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()
		if err := fn(sctx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("runners", 35*time.Second, func(c context.Context) error {
		a.stopRunners(c)
		return nil
	})
	if a.sup != nil {
		step("supervisor", 2*time.Second, func(c context.Context) error {
			err := a.sup.Stop(c)
			if c.Err() != nil {
				return err
			}
			return nil
		})
	}
	step("storage", time.Second, func(context.Context) error {
		if err := a.store.Close(); err != nil {
			return fmt.Errorf("close storage: %w", err)
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		return a.logs.Close()
	}
	return nil
}
