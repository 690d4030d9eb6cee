package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"schedbot/pkg/logx"
)

const defaultRedisPrefix = "schedbot:"

// Row layout:
//
//	<prefix>sched:<group>:<date>  hash {payload, fetched_at, group}
//	<prefix>sched:index           zset member=row key, score=fetched_at
//	<prefix>sched:group:<group>   set of row keys
var (
	casDelete = redis.NewScript(`
local v = redis.call('HGET', KEYS[1], 'fetched_at')
if v ~= ARGV[1] then
  return 0
end
redis.call('DEL', KEYS[1])
redis.call('ZREM', KEYS[2], KEYS[1])
redis.call('SREM', KEYS[3], KEYS[1])
return 1
`)

	// ARGV[1] is the upper score bound ("(123" or "+inf"), ARGV[2] the group set prefix.
	sweepBefore = redis.NewScript(`
local keys = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, k in ipairs(keys) do
  local g = redis.call('HGET', k, 'group')
  redis.call('DEL', k)
  redis.call('ZREM', KEYS[1], k)
  if g then
    redis.call('SREM', ARGV[2] .. g, k)
  end
end
return #keys
`)
)

// RedisStore is a CacheStore on Redis. Users are not stored here.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	log    logx.Logger
}

func OpenRedis(ctx context.Context, cfg Config, log logx.Logger) (*RedisStore, error) {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		return nil, errors.New("redis url is required")
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"))
	log.Info("redis connected", logx.String("addr", opt.Addr), logx.Int("db", opt.DB))
	return NewRedisStore(rdb, cfg.RedisPrefix, log), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb *redis.Client, prefix string, log logx.Logger) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix, log: log}
}

func (s *RedisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *RedisStore) rowKey(group, date string) string {
	return s.prefix + "sched:" + group + ":" + date
}

func (s *RedisStore) indexKey() string { return s.prefix + "sched:index" }

func (s *RedisStore) groupPrefix() string { return s.prefix + "sched:group:" }

func (s *RedisStore) groupKey(group string) string { return s.groupPrefix() + group }

func (s *RedisStore) GetCache(ctx context.Context, group, date string) (CacheRow, bool, error) {
	vals, err := s.rdb.HMGet(ctx, s.rowKey(group, date), "payload", "fetched_at").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return CacheRow{}, false, nil
		}
		return CacheRow{}, false, err
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return CacheRow{}, false, nil
	}
	payload, _ := vals[0].(string)
	atStr, _ := vals[1].(string)
	at, err := strconv.ParseInt(atStr, 10, 64)
	if err != nil {
		// Unreadable timestamp: report as a row fetched at epoch so the cache expires it.
		at = 0
	}
	return CacheRow{Group: group, Date: date, Payload: []byte(payload), FetchedAt: time.Unix(at, 0)}, true, nil
}

func (s *RedisStore) PutCache(ctx context.Context, row CacheRow) error {
	key := s.rowKey(row.Group, row.Date)
	at := row.FetchedAt.Unix()
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "payload", string(row.Payload), "fetched_at", strconv.FormatInt(at, 10), "group", row.Group)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(at), Member: key})
		pipe.SAdd(ctx, s.groupKey(row.Group), key)
		return nil
	})
	return err
}

func (s *RedisStore) DeleteCacheIf(ctx context.Context, group, date string, fetchedAt time.Time) (bool, error) {
	key := s.rowKey(group, date)
	n, err := casDelete.Run(ctx, s.rdb,
		[]string{key, s.indexKey(), s.groupKey(group)},
		strconv.FormatInt(fetchedAt.Unix(), 10),
	).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RedisStore) DeleteCacheBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.sweep(ctx, "("+strconv.FormatInt(cutoff.Unix(), 10))
}

func (s *RedisStore) DeleteAllCache(ctx context.Context) (int64, error) {
	return s.sweep(ctx, "+inf")
}

func (s *RedisStore) sweep(ctx context.Context, upper string) (int64, error) {
	return sweepBefore.Run(ctx, s.rdb, []string{s.indexKey()}, upper, s.groupPrefix()).Int64()
}

func (s *RedisStore) CountCache(ctx context.Context) (int64, error) {
	return s.rdb.ZCard(ctx, s.indexKey()).Result()
}
