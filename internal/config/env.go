package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// A missing file is not an error; variables already set are kept.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides file values with environment variables. getenv is
// usually os.Getenv.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	str("BOT_TOKEN", &cfg.Telegram.Token)
	str("DATABASE_PATH", &cfg.Storage.Path)
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("SCHEDULE_BASE_URL", &cfg.Upstream.BaseURL)
	str("SCHEDULE_SEARCH_URL", &cfg.Upstream.SearchURL)
	str("SCHEDULE_TIMEZONE", &cfg.Scheduler.Timezone)

	if v := strings.TrimSpace(getenv("LOG_FILE")); v != "" {
		cfg.Logging.File = LoggingFile{Enabled: true, Path: v}
	}
	if v := strings.TrimSpace(getenv("REDIS_URL")); v != "" {
		cfg.Storage.Driver = "redis"
		cfg.Storage.RedisURL = v
	}
	if v := strings.TrimSpace(getenv("ADMIN_IDS")); v != "" {
		ids, err := parseIDs(v)
		if err != nil {
			return fmt.Errorf("ADMIN_IDS: %w", err)
		}
		cfg.Telegram.AdminIDs = ids
	}
	return nil
}

func parseIDs(s string) ([]int64, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == ';' })
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", p)
		}
		out = append(out, id)
	}
	return out, nil
}
