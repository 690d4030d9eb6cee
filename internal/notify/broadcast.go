package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"schedbot/internal/transport"
	"schedbot/pkg/logx"
)

type BroadcastConfig struct {
	RatePerSec int
	RetryMax   int
}

// BroadcastResult mirrors the status a broadcast job reports when done.
type BroadcastResult struct {
	ID       string
	Total    int
	Done     int
	Failed   int
	Failures []int64
	Took     time.Duration
}

// Broadcaster sends one admin message to every known user.
type Broadcaster struct {
	users   UserSource
	sender  transport.Sender
	cfg     BroadcastConfig
	limiter *rate.Limiter
	log     logx.Logger
}

func NewBroadcaster(users UserSource, sender transport.Sender, cfg BroadcastConfig, log logx.Logger) *Broadcaster {
	if log.IsZero() {
		log = logx.Nop()
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 10
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	return &Broadcaster{
		users:   users,
		sender:  sender,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log.With(logx.String("comp", "broadcast")),
	}
}

// Broadcast delivers text to all users. Individual failures are collected;
// the returned error is set only when the audience cannot be listed or ctx ends.
func (b *Broadcaster) Broadcast(ctx context.Context, text string) (BroadcastResult, error) {
	start := time.Now()
	res := BroadcastResult{ID: "bc:" + uuid.NewString()}

	users, err := b.users.ListUsers(ctx)
	if err != nil {
		return res, fmt.Errorf("list users: %w", err)
	}
	res.Total = len(users)
	b.log.Info("broadcast job started", logx.String("job", res.ID), logx.Int("total", res.Total))

	opt := &transport.SendOptions{ParseMode: transport.ParseModeHTML, DisablePreview: true}
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			res.Took = time.Since(start)
			return res, err
		}
		if err := b.sendOne(ctx, res.ID, transport.ChatTarget{ChatID: u.ID}, text, opt); err != nil {
			res.Failed++
			res.Failures = append(res.Failures, u.ID)
		}
		res.Done++
	}

	res.Took = time.Since(start)
	fields := []logx.Field{
		logx.String("job", res.ID),
		logx.Int("total", res.Total),
		logx.Int("failed", res.Failed),
		logx.Duration("dur", res.Took),
	}
	if res.Failed > 0 {
		b.log.Warn("broadcast job finished with failures", fields...)
	} else {
		b.log.Info("broadcast job finished", fields...)
	}
	return res, nil
}

func (b *Broadcaster) sendOne(ctx context.Context, jobID string, t transport.ChatTarget, text string, opt *transport.SendOptions) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	retry := b.cfg.RetryMax
	var last error
	for i := 0; i <= retry; i++ {
		_, err := b.sender.SendText(ctx, t, text, opt)
		if err == nil {
			return nil
		}
		last = err
		if i == retry {
			break
		}
		delay := time.Duration(200+100*i) * time.Millisecond
		b.log.Debug("broadcast send retry scheduled", logx.String("job", jobID), logx.Int64("chat_id", t.ChatID), logx.Int("attempt", i+2), logx.Duration("delay", delay), logx.Err(err))
		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			tmr.Stop()
			return ctx.Err()
		case <-tmr.C:
		}
	}
	b.log.Warn("broadcast send failed", logx.String("job", jobID), logx.Int64("chat_id", t.ChatID), logx.Err(last))
	return last
}
