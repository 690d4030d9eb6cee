package janitor

import (
	"context"
	"errors"
	"testing"

	"schedbot/pkg/logx"
)

type fakeSweeper struct {
	days   int
	n      int64
	err    error
	ctxErr error
}

func (f *fakeSweeper) Sweep(ctx context.Context, retentionDays int) (int64, error) {
	f.days = retentionDays
	f.ctxErr = ctx.Err()
	return f.n, f.err
}

func TestJanitorRunsWithRetention(t *testing.T) {
	t.Parallel()
	sw := &fakeSweeper{n: 42}
	j := New(sw, Config{RetentionDays: 14}, logx.Nop())

	n, err := j.Run(context.Background())
	if err != nil || n != 42 {
		t.Fatalf("Run = %d, %v", n, err)
	}
	if sw.days != 14 {
		t.Fatalf("retention = %d, want 14", sw.days)
	}
}

func TestJanitorSweepSurvivesShutdown(t *testing.T) {
	t.Parallel()
	sw := &fakeSweeper{n: 1}
	j := New(sw, Config{RetentionDays: 7}, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := j.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if sw.ctxErr != nil {
		t.Fatalf("sweep context was cancelled: %v", sw.ctxErr)
	}
}

func TestJanitorJobReturnsError(t *testing.T) {
	t.Parallel()
	j := New(&fakeSweeper{err: errors.New("disk I/O error")}, Config{RetentionDays: 14}, logx.Nop())
	if err := j.Job()(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
