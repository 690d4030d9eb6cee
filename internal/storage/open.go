package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"schedbot/pkg/logx"
)

// CacheStore is the row-level API the schedule cache is built on.
// Every mutating call is a single atomic operation in the backend.
type CacheStore interface {
	GetCache(ctx context.Context, group, date string) (CacheRow, bool, error)
	PutCache(ctx context.Context, row CacheRow) error
	// DeleteCacheIf removes the row only while its fetched_at still equals fetchedAt.
	DeleteCacheIf(ctx context.Context, group, date string, fetchedAt time.Time) (bool, error)
	DeleteCacheBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteAllCache(ctx context.Context) (int64, error)
	CountCache(ctx context.Context) (int64, error)
}

// UserStore holds subscriber preferences.
type UserStore interface {
	UpsertUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id int64) (User, error)
	SetUserGroup(ctx context.Context, id int64, group string) error
	SetNotifications(ctx context.Context, id int64, enabled bool) error
	ToggleNotifications(ctx context.Context, id int64) (bool, error)
	ListSubscribers(ctx context.Context) ([]User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UserStats(ctx context.Context) (UserStats, error)
}

// Handles bundles what Open produced. Cache may be the SQLite store itself
// or a Redis store, depending on Config.Driver.
type Handles struct {
	SQL   *SQLiteStore
	Cache CacheStore
	redis *RedisStore
}

func (h *Handles) Close() error {
	if h == nil {
		return nil
	}
	var errs []error
	if h.redis != nil {
		errs = append(errs, h.redis.Close())
	}
	if h.SQL != nil {
		errs = append(errs, h.SQL.Close())
	}
	return errors.Join(errs...)
}

// Open initializes the configured stores. The SQLite handle is opened once
// here and shared by everything that needs it.
func Open(ctx context.Context, cfg Config, log logx.Logger) (*Handles, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "none" {
		return nil, ErrDisabled
	}

	sq, err := OpenSQLite(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	h := &Handles{SQL: sq, Cache: sq}

	switch driver {
	case "", "sqlite", "sqlite3":
	case "redis":
		rs, err := OpenRedis(ctx, cfg, log)
		if err != nil {
			_ = sq.Close()
			return nil, err
		}
		h.redis = rs
		h.Cache = rs
	default:
		_ = sq.Close()
		return nil, errors.New("unknown storage driver: " + driver)
	}
	return h, nil
}
