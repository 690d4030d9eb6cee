// Command schedctl is the operator's console for schedbot: it reads
// schedules, edits subscriber preferences and runs maintenance jobs against
// the same config and database as the bot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"schedbot/internal/app"
	"schedbot/internal/config"
	"schedbot/internal/render"
	"schedbot/internal/schedule"
	"schedbot/pkg/logx"
)

const usage = `usage: schedctl [-config path] <command> [args]

commands:
  search <query>                       find groups by name
  day <group> [YYYY-MM-DD]             show one day (default today)
  week <group> [YYYY-MM-DD]            show the week starting on the given day's Monday
  overview <group> [YYYY-MM-DD]        one line per day of that week
  subscribe <user_id> <group>          set a user's group
  notifications <user_id> on|off|toggle
  stats                                users and cache size
  sweep [days]                         drop cache rows older than days (default retention)
  clear-cache                          drop every cached day
  broadcast <text>                     message every known user
  notify-now [job]                     run a notification job immediately
  remind-now <lesson>                  send today's reminder for a lesson number
`

var (
	errUsage = errors.New("invalid usage")
	// errShown means the user already got an empty-state message.
	errShown = errors.New("schedule unavailable")
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("schedctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	cfgPath := fs.String("config", config.DefaultPath, "path to config yaml/json")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	a, err := app.New(ctx, *cfgPath)
	if err != nil {
		fmt.Fprintln(stderr, "fatal:", err)
		return 1
	}
	defer a.Close()

	if err := dispatch(ctx, a, fs.Arg(0), fs.Args()[1:], stdout); err != nil {
		if errors.Is(err, errUsage) {
			fs.Usage()
			return 2
		}
		if errors.Is(err, errShown) {
			return 1
		}
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

func dispatch(ctx context.Context, a *app.App, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "search":
		entries, err := a.Timetable().SearchGroups(ctx, strings.Join(args, " "))
		if err != nil {
			if errors.Is(err, schedule.ErrDirectoryUnavailable) {
				fmt.Fprintln(out, render.DirectoryUnavailable())
				return nil
			}
			return err
		}
		fmt.Fprintln(out, render.Groups(entries))

	case "day":
		group, date, err := groupAndDate(args, a.Location())
		if err != nil {
			return err
		}
		day, err := a.Timetable().GetSchedule(ctx, group, date)
		if err != nil {
			return unavailable(a, out, group, err)
		}
		fmt.Fprintln(out, render.Day(day))

	case "week", "overview":
		group, date, err := groupAndDate(args, a.Location())
		if err != nil {
			return err
		}
		days, err := a.Timetable().GetWeekSchedule(ctx, group, schedule.MondayOf(date))
		if err != nil {
			return unavailable(a, out, group, err)
		}
		if cmd == "overview" {
			for _, d := range days {
				fmt.Fprintln(out, render.Short(d))
			}
			break
		}
		for _, msg := range render.Week(days) {
			fmt.Fprintln(out, msg)
		}

	case "subscribe":
		if len(args) != 2 {
			return errUsage
		}
		id, err := parseUserID(args[0])
		if err != nil {
			return err
		}
		if err := a.Users().SetUserGroup(ctx, id, strings.TrimSpace(args[1])); err != nil {
			return err
		}
		fmt.Fprintf(out, "user %d -> %s\n", id, args[1])

	case "notifications":
		if len(args) != 2 {
			return errUsage
		}
		id, err := parseUserID(args[0])
		if err != nil {
			return err
		}
		on, err := setNotifications(ctx, a, id, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "user %d notifications: %s\n", id, onOff(on))

	case "stats":
		st, err := a.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "users: %d\nwith group: %d\nwith notifications: %d\ncached days: %d\n",
			st.Total, st.WithGroup, st.WithNotifications, st.CachedDays)

	case "sweep":
		days := a.Config().Cache.RetentionDays
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 0 {
				return fmt.Errorf("invalid days %q", args[0])
			}
			days = n
		}
		n, err := a.Cache().Sweep(ctx, days)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "removed %d cached days\n", n)

	case "clear-cache":
		n, err := a.Cache().InvalidateAll(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "removed %d cached days\n", n)

	case "broadcast":
		text := strings.TrimSpace(strings.Join(args, " "))
		if text == "" {
			return errUsage
		}
		res, err := a.Broadcast(ctx, text)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "broadcast %s: %d/%d delivered, %d failed in %s\n",
			res.ID, res.Done-res.Failed, res.Total, res.Failed, res.Took.Round(time.Millisecond))
		for _, id := range res.Failures {
			fmt.Fprintf(out, "  failed: %d\n", id)
		}

	case "notify-now":
		name := ""
		if len(args) > 0 {
			name = args[0]
		}
		rep, err := a.NotifyNow(ctx, name)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s for %s: sent %d, skipped %d, failed %d of %d\n",
			rep.Job, rep.Date.Label(), rep.Sent, rep.Skipped, rep.Failed, rep.Total)
		for _, f := range rep.Failures {
			fmt.Fprintf(out, "  %v\n", f)
		}

	case "remind-now":
		if len(args) != 1 {
			return errUsage
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid lesson number %q", args[0])
		}
		rep, err := a.RemindNow(ctx, n)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s for %s: sent %d, skipped %d, failed %d of %d\n",
			rep.Job, rep.Date.Label(), rep.Sent, rep.Skipped, rep.Failed, rep.Total)

	default:
		return errUsage
	}
	return nil
}

// unavailable prints the empty state and keeps the cause in the debug log.
func unavailable(a *app.App, out io.Writer, group string, err error) error {
	a.Logger().Debug("schedule unavailable", logx.String("group", group), logx.Err(err))
	fmt.Fprintln(out, render.Unavailable())
	return errShown
}

func groupAndDate(args []string, loc *time.Location) (string, schedule.Date, error) {
	if len(args) < 1 || len(args) > 2 || strings.TrimSpace(args[0]) == "" {
		return "", schedule.Date{}, errUsage
	}
	date := schedule.DateOf(time.Now().In(loc))
	if len(args) == 2 {
		d, err := schedule.ParseISO(args[1])
		if err != nil {
			return "", schedule.Date{}, err
		}
		date = d
	}
	return strings.TrimSpace(args[0]), date, nil
}

func parseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return id, nil
}

func setNotifications(ctx context.Context, a *app.App, id int64, mode string) (bool, error) {
	switch strings.ToLower(mode) {
	case "on":
		return true, a.Users().SetNotifications(ctx, id, true)
	case "off":
		return false, a.Users().SetNotifications(ctx, id, false)
	case "toggle":
		return a.Users().ToggleNotifications(ctx, id)
	default:
		return false, errUsage
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
