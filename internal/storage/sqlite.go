package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"schedbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const defaultBusyTimeout = 5 * time.Second

// SQLiteStore implements both CacheStore and UserStore over one *sql.DB.
type SQLiteStore struct {
	db  *sql.DB
	log logx.Logger
}

func OpenSQLite(ctx context.Context, cfg Config, log logx.Logger) (*SQLiteStore, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: writers never contend inside the process.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if log.IsZero() {
		log = logx.Nop()
	}
	st := &SQLiteStore{db: db, log: log.With(logx.String("comp", "storage"))}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = defaultBusyTimeout
	}
	_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	if err := st.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	st.log.Debug("sqlite opened", logx.String("path", path))
	return st, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- schedule cache ----

func (s *SQLiteStore) GetCache(ctx context.Context, group, date string) (CacheRow, bool, error) {
	if s == nil || s.db == nil {
		return CacheRow{}, false, ErrDisabled
	}
	var (
		payload string
		at      int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, fetched_at FROM schedule_cache WHERE group_id = ? AND date = ?`,
		group, date,
	).Scan(&payload, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return CacheRow{}, false, nil
	}
	if err != nil {
		return CacheRow{}, false, err
	}
	return CacheRow{Group: group, Date: date, Payload: []byte(payload), FetchedAt: time.Unix(at, 0)}, true, nil
}

func (s *SQLiteStore) PutCache(ctx context.Context, row CacheRow) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedule_cache(group_id, date, payload, fetched_at) VALUES(?,?,?,?)
		 ON CONFLICT(group_id, date) DO UPDATE SET payload=excluded.payload, fetched_at=excluded.fetched_at`,
		row.Group, row.Date, string(row.Payload), row.FetchedAt.Unix(),
	)
	return err
}

func (s *SQLiteStore) DeleteCacheIf(ctx context.Context, group, date string, fetchedAt time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM schedule_cache WHERE group_id = ? AND date = ? AND fetched_at = ?`,
		group, date, fetchedAt.Unix(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) DeleteCacheBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedule_cache WHERE fetched_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) DeleteAllCache(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedule_cache`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) CountCache(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schedule_cache`).Scan(&n)
	return n, err
}

// ---- users ----

const userColumns = `user_id, username, first_name, group_id, notifications_enabled, created_at, updated_at`

func (s *SQLiteStore) UpsertUser(ctx context.Context, u User) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(user_id, username, first_name, created_at, updated_at) VALUES(?,?,?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET username=excluded.username, first_name=excluded.first_name, updated_at=excluded.updated_at`,
		u.ID, nullStr(u.Username), nullStr(u.FirstName), now, now,
	)
	return err
}

func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (User, error) {
	if s == nil || s.db == nil {
		return User{}, ErrDisabled
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

func (s *SQLiteStore) SetUserGroup(ctx context.Context, id int64, group string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(user_id, group_id, created_at, updated_at) VALUES(?,?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET group_id=excluded.group_id, updated_at=excluded.updated_at`,
		id, nullStr(group), now, now,
	)
	return err
}

func (s *SQLiteStore) SetNotifications(ctx context.Context, id int64, enabled bool) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(user_id, notifications_enabled, created_at, updated_at) VALUES(?,?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET notifications_enabled=excluded.notifications_enabled, updated_at=excluded.updated_at`,
		id, boolInt(enabled), now, now,
	)
	return err
}

// ToggleNotifications flips the flag and returns the new value.
func (s *SQLiteStore) ToggleNotifications(ctx context.Context, id int64) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrDisabled
	}
	var v int
	err := s.db.QueryRowContext(ctx,
		`UPDATE users SET notifications_enabled = 1 - notifications_enabled, updated_at = ?
		 WHERE user_id = ? RETURNING notifications_enabled`,
		time.Now().Unix(), id,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	return v == 1, err
}

func (s *SQLiteStore) ListSubscribers(ctx context.Context) ([]User, error) {
	return s.listUsers(ctx, `SELECT `+userColumns+` FROM users WHERE notifications_enabled = 1 ORDER BY user_id`)
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]User, error) {
	return s.listUsers(ctx, `SELECT `+userColumns+` FROM users ORDER BY user_id`)
}

func (s *SQLiteStore) listUsers(ctx context.Context, q string) ([]User, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UserStats(ctx context.Context) (UserStats, error) {
	if s == nil || s.db == nil {
		return UserStats{}, ErrDisabled
	}
	var st UserStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN group_id IS NOT NULL AND group_id <> '' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN notifications_enabled = 1 THEN 1 ELSE 0 END), 0)
		 FROM users`,
	).Scan(&st.Total, &st.WithGroup, &st.WithNotifications)
	return st, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(r rowScanner) (User, error) {
	var (
		u                   User
		username, firstName sql.NullString
		group               sql.NullString
		notify              int
		created, updated    int64
	)
	if err := r.Scan(&u.ID, &username, &firstName, &group, &notify, &created, &updated); err != nil {
		return User{}, err
	}
	u.Username = username.String
	u.FirstName = firstName.String
	if group.Valid && group.String != "" {
		g := group.String
		u.Group = &g
	}
	u.NotificationsEnabled = notify == 1
	u.CreatedAt = time.Unix(created, 0)
	u.UpdatedAt = time.Unix(updated, 0)
	return u, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
