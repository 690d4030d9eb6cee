// Package janitor removes schedule cache rows that outlived their retention.
package janitor

import (
	"context"
	"time"

	"schedbot/internal/trigger"
	"schedbot/pkg/logx"
)

// Sweeper is implemented by the schedule cache.
type Sweeper interface {
	Sweep(ctx context.Context, retentionDays int) (int64, error)
}

type Config struct {
	RetentionDays int

	// Timeout bounds one sweep; the sweep is not interrupted by shutdown.
	Timeout time.Duration
}

type Janitor struct {
	cache Sweeper
	cfg   Config
	log   logx.Logger
}

func New(cache Sweeper, cfg Config, log logx.Logger) *Janitor {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &Janitor{cache: cache, cfg: cfg, log: log.With(logx.String("comp", "janitor"))}
}

// Run performs one sweep and logs how many rows were removed.
func (j *Janitor) Run(ctx context.Context) (int64, error) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), j.cfg.Timeout)
	defer cancel()

	start := time.Now()
	n, err := j.cache.Sweep(sctx, j.cfg.RetentionDays)
	if err != nil {
		j.log.Error("cache sweep failed", logx.Int("retention_days", j.cfg.RetentionDays), logx.Err(err))
		return 0, err
	}
	j.log.Info("cache sweep done",
		logx.Int64("deleted", n),
		logx.Int("retention_days", j.cfg.RetentionDays),
		logx.Duration("took", time.Since(start)),
	)
	return n, nil
}

// Job adapts Run to a trigger runner.
func (j *Janitor) Job() trigger.Job {
	return func(ctx context.Context) error {
		_, err := j.Run(ctx)
		return err
	}
}
