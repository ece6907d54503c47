package scheduler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

// ParsedSpec is a schedule string resolved to a cron expression or a fixed
// interval.
type ParsedSpec struct {
	Kind   SpecKind
	Cron   string
	Every  time.Duration
	Source string // "cron" | "duration" | "hhmm"
}

// ParseSchedule accepts:
//   - cron: "*/5 * * * *", "0 3 * * *", "@hourly", "@every 5m"
//   - a Go duration interval: "5m", "2h30m"
//   - an HH:MM interval: "00:50" is 50 minutes, "02:30" two and a half hours
//
// "cron:" forces a cron expression; "interval:" or "every:" force an interval.
func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, errors.New("schedule required")
	}

	if prefix, rest, ok := strings.Cut(s, ":"); ok {
		switch strings.ToLower(strings.TrimSpace(prefix)) {
		case "cron":
			expr := strings.TrimSpace(rest)
			if expr == "" {
				return ParsedSpec{}, errors.New("cron expression required after \"cron:\"")
			}
			return ParsedSpec{Kind: SpecCron, Cron: expr, Source: "cron"}, nil
		case "interval", "every":
			return parseInterval(rest)
		}
	}

	if strings.HasPrefix(s, "@") || strings.ContainsAny(s, " \t") {
		return ParsedSpec{Kind: SpecCron, Cron: s, Source: "cron"}, nil
	}
	ps, err := parseInterval(s)
	if err != nil {
		return ParsedSpec{}, fmt.Errorf("invalid schedule %q (want cron like \"*/5 * * * *\", HH:MM like \"02:30\" or a duration like \"5m\")", raw)
	}
	return ps, nil
}

func parseInterval(v string) (ParsedSpec, error) {
	v = strings.TrimSpace(v)
	if hh, mm, ok := strings.Cut(v, ":"); ok {
		d, err := hhmm(hh, mm)
		if err != nil {
			return ParsedSpec{}, fmt.Errorf("interval %q: %w", v, err)
		}
		return ParsedSpec{Kind: SpecInterval, Every: d, Source: "hhmm"}, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return ParsedSpec{}, fmt.Errorf("interval %q: %w", v, err)
	}
	if d <= 0 {
		return ParsedSpec{}, fmt.Errorf("interval %q must be positive", v)
	}
	return ParsedSpec{Kind: SpecInterval, Every: d, Source: "duration"}, nil
}

func hhmm(hs, ms string) (time.Duration, error) {
	if len(hs) == 0 || len(hs) > 3 || len(ms) != 2 {
		return 0, errors.New("want HH:MM")
	}
	h, err1 := strconv.Atoi(hs)
	m, err2 := strconv.Atoi(ms)
	switch {
	case err1 != nil || err2 != nil || h < 0 || m < 0:
		return 0, errors.New("want HH:MM")
	case m > 59:
		return 0, errors.New("minutes out of range")
	}
	d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
	if d <= 0 {
		return 0, errors.New("interval must be positive")
	}
	return d, nil
}
