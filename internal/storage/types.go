package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("not found")
)

// Config configures storage.
//
// Driver selects where schedule cache rows live:
//   - "sqlite" (default): same database file as users
//   - "redis": RedisURL must be set; users still go to SQLite
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	RedisURL    string
	RedisPrefix string
}

// CacheRow is one persisted day of one group.
// Payload is opaque to storage; the cache layer owns its encoding.
type CacheRow struct {
	Group     string
	Date      string // YYYY-MM-DD
	Payload   []byte
	FetchedAt time.Time
}

// User is a subscriber's stored preferences.
type User struct {
	ID                   int64
	Username             string
	FirstName            string
	Group                *string
	NotificationsEnabled bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// GroupName returns the selected group or "" when none is set.
func (u User) GroupName() string {
	if u.Group == nil {
		return ""
	}
	return *u.Group
}

type UserStats struct {
	Total             int64
	WithGroup         int64
	WithNotifications int64
}
