package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"schedbot/pkg/logx"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := OpenSQLite(context.Background(), Config{Path: filepath.Join(t.TempDir(), "bot.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSQLiteCacheUpsertAndSweep(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	old := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	fresh := old.Add(48 * time.Hour)

	if err := st.PutCache(ctx, CacheRow{Group: "g", Date: "2026-02-07", Payload: []byte(`{"a":1}`), FetchedAt: old}); err != nil {
		t.Fatalf("PutCache: %v", err)
	}
	if err := st.PutCache(ctx, CacheRow{Group: "g", Date: "2026-02-07", Payload: []byte(`{"a":2}`), FetchedAt: fresh}); err != nil {
		t.Fatalf("PutCache overwrite: %v", err)
	}
	if err := st.PutCache(ctx, CacheRow{Group: "h", Date: "2026-02-07", Payload: []byte(`{}`), FetchedAt: old}); err != nil {
		t.Fatalf("PutCache: %v", err)
	}

	n, err := st.CountCache(ctx)
	if err != nil || n != 2 {
		t.Fatalf("CountCache = %d, %v; want 2", n, err)
	}
	row, ok, err := st.GetCache(ctx, "g", "2026-02-07")
	if err != nil || !ok {
		t.Fatalf("GetCache ok=%v err=%v", ok, err)
	}
	if string(row.Payload) != `{"a":2}` || !row.FetchedAt.Equal(fresh) {
		t.Fatalf("row = %+v", row)
	}

	deleted, err := st.DeleteCacheBefore(ctx, old.Add(time.Hour))
	if err != nil || deleted != 1 {
		t.Fatalf("DeleteCacheBefore = %d, %v; want 1", deleted, err)
	}
	if _, ok, _ := st.GetCache(ctx, "h", "2026-02-07"); ok {
		t.Fatal("old row survived sweep")
	}

	all, err := st.DeleteAllCache(ctx)
	if err != nil || all != 1 {
		t.Fatalf("DeleteAllCache = %d, %v; want 1", all, err)
	}
}

func TestSQLiteDeleteCacheIfComparesTimestamp(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	stale := time.Unix(1_700_000_000, 0)
	if err := st.PutCache(ctx, CacheRow{Group: "g", Date: "2026-02-07", Payload: []byte(`{}`), FetchedAt: stale}); err != nil {
		t.Fatal(err)
	}
	// A concurrent refresh landed before the delete.
	if err := st.PutCache(ctx, CacheRow{Group: "g", Date: "2026-02-07", Payload: []byte(`{}`), FetchedAt: stale.Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}
	ok, err := st.DeleteCacheIf(ctx, "g", "2026-02-07", stale)
	if err != nil || ok {
		t.Fatalf("DeleteCacheIf = %v, %v; want false", ok, err)
	}
	ok, err = st.DeleteCacheIf(ctx, "g", "2026-02-07", stale.Add(time.Hour))
	if err != nil || !ok {
		t.Fatalf("DeleteCacheIf = %v, %v; want true", ok, err)
	}
}

func TestSQLiteUsers(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.UpsertUser(ctx, User{ID: 1, Username: "anna", FirstName: "Anna"}); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	if err := st.UpsertUser(ctx, User{ID: 2, Username: "boris"}); err != nil {
		t.Fatal(err)
	}
	if err := st.SetUserGroup(ctx, 1, "БОЗИ24"); err != nil {
		t.Fatalf("SetUserGroup: %v", err)
	}
	// Setting a group for an unknown user creates the row.
	if err := st.SetUserGroup(ctx, 3, "ПИ-101"); err != nil {
		t.Fatal(err)
	}

	u, err := st.GetUser(ctx, 1)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.GroupName() != "БОЗИ24" || !u.NotificationsEnabled || u.Username != "anna" {
		t.Fatalf("user = %+v", u)
	}

	on, err := st.ToggleNotifications(ctx, 2)
	if err != nil || on {
		t.Fatalf("ToggleNotifications = %v, %v; want false", on, err)
	}
	if _, err := st.ToggleNotifications(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("toggle unknown user err = %v", err)
	}
	if _, err := st.GetUser(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetUser unknown err = %v", err)
	}

	subs, err := st.ListSubscribers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 2 || subs[0].ID != 1 || subs[1].ID != 3 {
		t.Fatalf("subscribers = %+v", subs)
	}

	stats, err := st.UserStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats != (UserStats{Total: 3, WithGroup: 2, WithNotifications: 2}) {
		t.Fatalf("stats = %+v", stats)
	}

	if err := st.SetNotifications(ctx, 2, true); err != nil {
		t.Fatal(err)
	}
	all, err := st.ListUsers(ctx)
	if err != nil || len(all) != 3 {
		t.Fatalf("ListUsers = %d, %v", len(all), err)
	}
	if !all[1].NotificationsEnabled || all[1].Group != nil {
		t.Fatalf("user 2 = %+v", all[1])
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := Open(context.Background(), Config{Driver: "mongo", Path: filepath.Join(t.TempDir(), "x.db")}, logx.Nop())
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
