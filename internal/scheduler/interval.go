// Package scheduler keeps the declarative job registry in sync with the
// OS-level scheduler. Job definitions are rendered wholesale into a crontab
// on every change; next-run estimates are advisory display data only.
package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// IntervalKind tags the supported interval grammars.
type IntervalKind int

const (
	// IntervalEveryNMinutes matches */N * * * *.
	IntervalEveryNMinutes IntervalKind = iota
	// IntervalDailyAtHour matches 0 H * * *.
	IntervalDailyAtHour
	// IntervalHourly matches 0 * * * *.
	IntervalHourly
)

// Interval is a parsed, validated interval expression.
type Interval struct {
	Kind IntervalKind
	N    int // minute step for IntervalEveryNMinutes
	Hour int // hour of day for IntervalDailyAtHour

	expr string
}

// Expr returns the canonicalised cron expression.
func (i Interval) Expr() string { return i.expr }

// ParseInterval validates an interval expression against the restricted
// grammar: */N * * * *, 0 H * * *, or 0 * * * *. Anything else is rejected;
// this is deliberately not a general cron parser.
func ParseInterval(expr string) (Interval, error) {
	fields := strings.Fields(strings.TrimSpace(expr))
	if len(fields) != 5 {
		return Interval{}, fmt.Errorf("interval %q: expected 5 fields", expr)
	}

	canonical := strings.Join(fields, " ")

	if fields[1] == "*" && fields[2] == "*" && fields[3] == "*" && fields[4] == "*" {
		switch {
		case fields[0] == "0":
			return Interval{Kind: IntervalHourly, expr: canonical}, nil
		case strings.HasPrefix(fields[0], "*/"):
			n, err := strconv.Atoi(fields[0][2:])
			if err != nil || n < 1 || n > 59 {
				return Interval{}, fmt.Errorf("interval %q: minute step must be between 1 and 59", expr)
			}
			return Interval{Kind: IntervalEveryNMinutes, N: n, expr: canonical}, nil
		}
	}

	if fields[0] == "0" && fields[2] == "*" && fields[3] == "*" && fields[4] == "*" {
		hour, err := strconv.Atoi(fields[1])
		if err == nil && hour >= 0 && hour <= 23 {
			return Interval{Kind: IntervalDailyAtHour, Hour: hour, expr: canonical}, nil
		}
	}

	return Interval{}, fmt.Errorf("interval %q: unsupported expression (want */N * * * *, 0 H * * *, or 0 * * * *)", expr)
}

// Next estimates the next trigger time after now. The installed crontab is
// authoritative; this estimate only feeds the registry's next_run_at column.
func (i Interval) Next(now time.Time) time.Time {
	switch i.Kind {
	case IntervalEveryNMinutes:
		return now.Add(time.Duration(i.N) * time.Minute)
	case IntervalDailyAtHour:
		next := time.Date(now.Year(), now.Month(), now.Day(), i.Hour, 0, 0, 0, now.Location())
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		return next
	case IntervalHourly:
		// Top of the next hour in wall-clock terms; absolute truncation would
		// drift in zones with fractional UTC offsets.
		top := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
		return top.Add(time.Hour)
	}
	return now
}
