package config

// Config is the on-disk configuration (JSON or YAML).
// Durations are Go duration strings such as "600ms", "60s" or "23h50m".
type Config struct {
	Telegram      TelegramConfig      `json:"telegram"`
	Logging       LoggingConfig       `json:"logging"`
	Storage       StorageConfig       `json:"storage"`
	Upstream      UpstreamConfig      `json:"upstream"`
	Cache         CacheConfig         `json:"cache"`
	Scheduler     SchedulerConfig     `json:"scheduler"`
	Notifications NotificationsConfig `json:"notifications"`
	Reminders     RemindersConfig     `json:"reminders"`
	Janitor       JanitorConfig       `json:"janitor"`
	Broadcast     BroadcastConfig     `json:"broadcast"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// AdminIDs[0] receives mirrored warnings when logging.telegram has no chat_id.
	AdminIDs []int64 `json:"admin_ids,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram mirrors warnings into an admin chat.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects where users and cached days live.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/schedbot.db" }
//
// With driver "redis" the schedule cache moves to Redis; users stay in SQLite at path.
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
	RedisURL    string `json:"redis_url,omitempty"`
	RedisPrefix string `json:"redis_prefix,omitempty"`
}

type UpstreamConfig struct {
	BaseURL        string `json:"base_url"`
	SearchURL      string `json:"search_url"`
	UserAgent      string `json:"user_agent,omitempty"`
	Timeout        string `json:"timeout,omitempty"`
	MaxBodyBytes   int64  `json:"max_body_bytes,omitempty"`
	DirectoryLimit int    `json:"directory_limit,omitempty"`
}

type CacheConfig struct {
	TTL           string `json:"ttl"`
	RetentionDays int    `json:"retention_days"`
}

type SchedulerConfig struct {
	Timezone string `json:"timezone"`

	// Poll is how often runners evaluate their triggers.
	Poll string `json:"poll,omitempty"`
}

type NotificationsConfig struct {
	Enabled           *bool             `json:"enabled,omitempty"`
	DeliveryInterval  string            `json:"delivery_interval,omitempty"`
	SubscriberTimeout string            `json:"subscriber_timeout,omitempty"`
	Cooldown          string            `json:"cooldown,omitempty"`
	ErrorBackoff      string            `json:"error_backoff,omitempty"`
	Jobs              []NotificationJob `json:"jobs,omitempty"`
}

// NotificationJob is one daily push. At accepts "HH:MM" or a cron expression.
type NotificationJob struct {
	Name      string `json:"name"`
	At        string `json:"at"`
	DayOffset *int   `json:"day_offset,omitempty"`
	Greeting  string `json:"greeting,omitempty"`
	SkipEmpty bool   `json:"skip_empty,omitempty"`
	Enabled   *bool  `json:"enabled,omitempty"`
}

// RemindersConfig sends a note Lead before each numbered lesson of the day.
// Starts[0] is the start time of lesson 1, Starts[1] of lesson 2 and so on.
type RemindersConfig struct {
	Enabled *bool    `json:"enabled,omitempty"`
	Lead    string   `json:"lead,omitempty"`
	Starts  []string `json:"starts,omitempty"`
}

type JanitorConfig struct {
	Enabled      *bool  `json:"enabled,omitempty"`
	At           string `json:"at"`
	ErrorBackoff string `json:"error_backoff,omitempty"`
	Timeout      string `json:"timeout,omitempty"`
}

type BroadcastConfig struct {
	RatePerSec int `json:"rate_per_sec,omitempty"`
	RetryMax   int `json:"retry_max,omitempty"`
}

// On reports whether an optional switch is enabled; nil means def.
func On(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
