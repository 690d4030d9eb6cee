package trigger

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Kind describes how a trigger string was interpreted.
type Kind int

const (
	KindDaily Kind = iota // "HH:MM" wall-clock time, every day
	KindCron              // robfig/cron expression
)

func (k Kind) String() string {
	switch k {
	case KindDaily:
		return "daily"
	case KindCron:
		return "cron"
	default:
		return "unknown"
	}
}

// Spec is a parsed trigger evaluated in a fixed location.
//
// Supported forms:
//   - "18:00": every day at 18:00 local time
//   - "cron:30 3 * * 1-5", "0 7 * * *", "@daily": cron expressions
type Spec struct {
	Raw  string
	Kind Kind
	Cron string

	loc   *time.Location
	sched cron.Schedule
}

var (
	reHHMM = regexp.MustCompile(`^\s*(\d{1,2}):(\d{2})\s*$`)

	parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
)

// Parse parses raw and binds it to loc (UTC when nil).
func Parse(raw string, loc *time.Location) (Spec, error) {
	if loc == nil {
		loc = time.UTC
	}
	s := strings.TrimSpace(raw)
	if s == "" {
		return Spec{}, fmt.Errorf("trigger required")
	}

	if strings.HasPrefix(strings.ToLower(s), "cron:") {
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return Spec{}, fmt.Errorf("cron expression required after 'cron:'")
		}
		return parseCron(raw, expr, loc)
	}

	if m := reHHMM.FindStringSubmatch(s); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if hh > 23 || mm > 59 {
			return Spec{}, fmt.Errorf("invalid time of day %q", raw)
		}
		sp, err := parseCron(raw, fmt.Sprintf("%d %d * * *", mm, hh), loc)
		if err != nil {
			return Spec{}, err
		}
		sp.Kind = KindDaily
		return sp, nil
	}

	if strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@") {
		return parseCron(raw, s, loc)
	}

	return Spec{}, fmt.Errorf("invalid trigger %q (use HH:MM like '18:00' or cron like '30 3 * * *')", raw)
}

// MustParse is Parse for constants and tests.
func MustParse(raw string, loc *time.Location) Spec {
	sp, err := Parse(raw, loc)
	if err != nil {
		panic(err)
	}
	return sp
}

func parseCron(raw, expr string, loc *time.Location) (Spec, error) {
	if strings.HasPrefix(expr, "@every") {
		return Spec{}, fmt.Errorf("interval triggers are not supported: %q", raw)
	}
	sched, err := parser.Parse(expr)
	if err != nil {
		return Spec{}, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return Spec{Raw: raw, Kind: KindCron, Cron: expr, loc: loc, sched: sched}, nil
}

func (s Spec) IsZero() bool { return s.sched == nil }

func (s Spec) Location() *time.Location { return s.loc }

// Next returns the first fire time strictly after t, expressed in the spec's location.
func (s Spec) Next(t time.Time) time.Time {
	if s.sched == nil {
		return time.Time{}
	}
	return s.sched.Next(t.In(s.loc))
}

// Due reports whether a fire time falls in (since, now].
// A late poll still fires as long as the window covers the fire time.
func (s Spec) Due(since, now time.Time) bool {
	if s.sched == nil || !now.After(since) {
		return false
	}
	next := s.Next(since)
	return !next.IsZero() && !next.After(now)
}

// Equal reports whether both specs fire at the same times.
func (s Spec) Equal(o Spec) bool {
	return s.Kind == o.Kind && s.Cron == o.Cron && locName(s.loc) == locName(o.loc)
}

func locName(loc *time.Location) string {
	if loc == nil {
		return ""
	}
	return loc.String()
}

func (s Spec) String() string {
	if s.Kind == KindDaily {
		return strings.TrimSpace(s.Raw) + " daily"
	}
	return "cron " + s.Cron
}
