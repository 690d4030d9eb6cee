package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testConfig(t *testing.T) string {
	t.Helper()
	for _, k := range []string{"BOT_TOKEN", "DATABASE_PATH", "REDIS_URL", "SCHEDULE_TIMEZONE", "LOG_FILE", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	body := "storage:\n  path: " + filepath.Join(dir, "bot.db") + "\nscheduler:\n  timezone: UTC\nlogging:\n  level: error\n"
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func runCmd(t *testing.T, cfg string, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(context.Background(), append([]string{"-config", cfg}, args...), &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestSubscribeToggleAndStats(t *testing.T) {
	cfg := testConfig(t)

	if code, _, e := runCmd(t, cfg, "subscribe", "42", "ИВТ-21"); code != 0 {
		t.Fatalf("subscribe exit %d: %s", code, e)
	}
	code, out, e := runCmd(t, cfg, "notifications", "42", "toggle")
	if code != 0 || !strings.Contains(out, "off") {
		t.Fatalf("toggle exit %d out=%q err=%q", code, out, e)
	}
	code, out, _ = runCmd(t, cfg, "stats")
	if code != 0 {
		t.Fatalf("stats exit %d", code)
	}
	for _, want := range []string{"users: 1", "with group: 1", "with notifications: 0", "cached days: 0"} {
		if !strings.Contains(out, want) {
			t.Fatalf("stats output %q missing %q", out, want)
		}
	}
}

func TestSweepAndClearCache(t *testing.T) {
	cfg := testConfig(t)
	if code, out, _ := runCmd(t, cfg, "sweep", "3"); code != 0 || !strings.Contains(out, "removed 0") {
		t.Fatalf("sweep exit %d out=%q", code, out)
	}
	if code, out, _ := runCmd(t, cfg, "clear-cache"); code != 0 || !strings.Contains(out, "removed 0") {
		t.Fatalf("clear-cache exit %d out=%q", code, out)
	}
}

func TestUsageErrors(t *testing.T) {
	cfg := testConfig(t)
	cases := [][]string{
		{"frobnicate"},
		{"subscribe", "42"},
		{"notifications", "42", "maybe"},
		{"day"},
		{"broadcast"},
	}
	for _, args := range cases {
		if code, _, e := runCmd(t, cfg, args...); code != 2 || !strings.Contains(e, "usage:") {
			t.Fatalf("%v: exit %d err=%q", args, code, e)
		}
	}
}

func TestCommandsNeedingTokenFail(t *testing.T) {
	cfg := testConfig(t)
	for _, args := range [][]string{{"broadcast", "hello"}, {"notify-now"}, {"remind-now", "1"}} {
		if code, _, e := runCmd(t, cfg, args...); code != 1 || !strings.Contains(e, "token") {
			t.Fatalf("%v: exit %d err=%q", args, code, e)
		}
	}
}

func TestUnavailableShowsEmptyState(t *testing.T) {
	cfg := testConfig(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()
	t.Setenv("SCHEDULE_BASE_URL", srv.URL)

	for _, cmd := range []string{"day", "week", "overview"} {
		code, out, e := runCmd(t, cfg, cmd, "ИВТ-21", "2026-02-07")
		if code != 1 {
			t.Fatalf("%s: exit %d", cmd, code)
		}
		if !strings.Contains(out, "Не удалось получить расписание") {
			t.Fatalf("%s: out=%q", cmd, out)
		}
		if e != "" {
			t.Fatalf("%s: raw error leaked to stderr: %q", cmd, e)
		}
	}
}

func TestOverviewListsSevenDays(t *testing.T) {
	cfg := testConfig(t)
	page := `<div class="date-bar"><span>03.02.26 Вторник</span></div>
<div class="lesson-item"><div class="lesson-number">1</div><div class="lesson-title">Физика</div></div>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()
	t.Setenv("SCHEDULE_BASE_URL", srv.URL)

	code, out, e := runCmd(t, cfg, "overview", "ИВТ-21", "2026-02-04")
	if code != 0 {
		t.Fatalf("exit %d err=%q", code, e)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 7 {
		t.Fatalf("lines = %d:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[0], "02.02.2026") || !strings.Contains(lines[0], "нет занятий") {
		t.Fatalf("monday = %q", lines[0])
	}
	if !strings.Contains(lines[1], "03.02.2026") || !strings.Contains(lines[1], "1 пар") {
		t.Fatalf("tuesday = %q", lines[1])
	}
}

func TestGroupAndDate(t *testing.T) {
	t.Parallel()
	g, d, err := groupAndDate([]string{"ИВТ-21", "2026-02-07"}, time.UTC)
	if err != nil || g != "ИВТ-21" || d.String() != "2026-02-07" {
		t.Fatalf("got %q %v %v", g, d, err)
	}
	if _, _, err := groupAndDate([]string{"ИВТ-21", "07.02.2026"}, time.UTC); err == nil {
		t.Fatal("expected ISO date error")
	}
}
