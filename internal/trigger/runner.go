package trigger

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"schedbot/pkg/logx"
)

// State is the runner's position in its Idle -> Dispatching -> Cooldown cycle.
type State int32

const (
	StateIdle State = iota
	StateDispatching
	StateCooldown
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatching:
		return "dispatching"
	case StateCooldown:
		return "cooldown"
	case StateBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

// Job is the unit of work a runner fires.
type Job func(ctx context.Context) error

type Config struct {
	Poll         time.Duration // how often Idle re-evaluates the trigger
	Cooldown     time.Duration // sleep after a successful dispatch; 0 disables
	ErrorBackoff time.Duration // sleep after a failed or panicking dispatch
}

func (c Config) withDefaults() Config {
	if c.Poll <= 0 {
		c.Poll = time.Minute
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = time.Minute
	}
	if c.Cooldown < 0 {
		c.Cooldown = 0
	}
	return c
}

// Status is a point-in-time view for logs and admin output.
type Status struct {
	Name    string
	State   State
	Trigger string
	Next    time.Time
	Runs    uint64
	LastRun time.Time
	LastErr string
}

// Runner drives one Job from one Spec. It never exits on job failure;
// only ctx cancellation stops it.
type Runner struct {
	name  string
	clock Clock
	log   logx.Logger

	mu      sync.Mutex
	job     Job
	spec    Spec
	cfg     Config
	lastRun time.Time
	lastErr string

	runMu sync.Mutex // serializes Run's dispatch with RunNow
	state atomic.Int32
	runs  atomic.Uint64
	gen   atomic.Uint64 // bumped by SetSpec
	wake  chan struct{}
}

func NewRunner(name string, spec Spec, job Job, cfg Config, clock Clock, log logx.Logger) *Runner {
	if clock == nil {
		clock = SystemClock{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{
		name:  name,
		job:   job,
		clock: clock,
		log:   log.With(logx.String("comp", "trigger"), logx.String("job", name)),
		spec:  spec,
		cfg:   cfg.withDefaults(),
		wake:  make(chan struct{}, 1),
	}
}

func (r *Runner) Name() string { return r.name }

func (r *Runner) State() State { return State(r.state.Load()) }

func (r *Runner) setState(s State) { r.state.Store(int32(s)) }

// SetSpec swaps the trigger; it applies from the next poll. A runner in
// cooldown wakes up so the new time is not skipped.
func (r *Runner) SetSpec(spec Spec) {
	r.mu.Lock()
	if r.spec.Equal(spec) {
		r.mu.Unlock()
		return
	}
	r.spec = spec
	r.mu.Unlock()
	r.gen.Add(1)
	select {
	case r.wake <- struct{}{}:
	default:
	}
	r.log.Info("trigger updated", logx.String("trigger", spec.String()), logx.Time("next", spec.Next(r.clock.Now())))
}

// SetConfig applies to the next sleep; a sleep in progress keeps its length.
func (r *Runner) SetConfig(cfg Config) {
	r.mu.Lock()
	r.cfg = cfg.withDefaults()
	r.mu.Unlock()
}

// SetJob replaces the job for future runs. A run in progress finishes with the old one.
func (r *Runner) SetJob(job Job) {
	r.mu.Lock()
	r.job = job
	r.mu.Unlock()
}

func (r *Runner) snapshot() (Spec, Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spec, r.cfg
}

func (r *Runner) Status() Status {
	spec, _ := r.snapshot()
	r.mu.Lock()
	st := Status{
		Name:    r.name,
		State:   r.State(),
		Trigger: spec.String(),
		Runs:    r.runs.Load(),
		LastRun: r.lastRun,
		LastErr: r.lastErr,
	}
	r.mu.Unlock()
	st.Next = spec.Next(r.clock.Now())
	return st
}

// Run polls the trigger until ctx is cancelled. It returns ctx.Err().
func (r *Runner) Run(ctx context.Context) error {
	since := r.clock.Now()
	spec, _ := r.snapshot()
	r.log.Info("runner started", logx.String("trigger", spec.String()), logx.Time("next", spec.Next(since)))

	for {
		r.setState(StateIdle)
		if err := ctx.Err(); err != nil {
			return err
		}
		spec, cfg := r.snapshot()
		now := r.clock.Now()
		if !spec.Due(since, now) {
			since = now
			if err := r.clock.Sleep(ctx, cfg.Poll); err != nil {
				return err
			}
			continue
		}
		since = now

		gen := r.gen.Load()
		r.setState(StateDispatching)
		err := r.RunNow(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			r.setState(StateBackoff)
			r.log.Error("job failed", logx.Err(err), logx.Duration("backoff", cfg.ErrorBackoff))
			if err := r.clock.Sleep(ctx, cfg.ErrorBackoff); err != nil {
				return err
			}
			continue
		}

		if cfg.Cooldown > 0 {
			r.setState(StateCooldown)
			r.log.Debug("cooldown", logx.Duration("for", cfg.Cooldown))
			if err := r.cooldown(ctx, cfg.Cooldown, gen); err != nil {
				return err
			}
			// fires that fell inside the cooldown are skipped
			since = r.clock.Now()
		}
	}
}

// cooldown sleeps for d unless the trigger changes after generation gen.
func (r *Runner) cooldown(ctx context.Context, d time.Duration, gen uint64) error {
	if r.gen.Load() != gen {
		r.log.Debug("cooldown skipped, trigger changed")
		return nil
	}
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		for {
			select {
			case <-sctx.Done():
				return
			case <-r.wake:
				if r.gen.Load() != gen {
					cancel()
					return
				}
			}
		}
	}()
	if err := r.clock.Sleep(sctx, d); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// RunNow executes the job once, outside the trigger. Panics become errors.
func (r *Runner) RunNow(ctx context.Context) (err error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	start := r.clock.Now()
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("job panicked", logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic in %s: %v", r.name, p)
		}
		r.runs.Add(1)
		r.mu.Lock()
		r.lastRun = start
		r.lastErr = ""
		if err != nil {
			r.lastErr = err.Error()
		}
		r.mu.Unlock()
	}()

	r.mu.Lock()
	job := r.job
	r.mu.Unlock()
	if job == nil {
		return errors.New("no job")
	}
	r.log.Info("job dispatching", logx.Time("at", start))
	return job(ctx)
}
