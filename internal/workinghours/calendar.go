// Package workinghours answers two questions for the scheduler: is this
// instant inside the configured working-hours window, and if not, when is
// the next instant that is. Every function is pure; the calendar does no I/O.
package workinghours

import (
	"fmt"
	"time"
)

// maxCalendarScan bounds the day-by-day search in NextWorkingInstant.
// A calendar misconfigured to have no reachable working day within two
// weeks falls back to a flat +24h shift instead of spinning forever.
const maxCalendarScan = 14

// Config describes the working-hours calendar: timezone, daily window,
// working weekdays, and holiday exclusions. Holidays are ISO dates
// (no time component) interpreted in the configured timezone.
type Config struct {
	Timezone    string   `json:"timezone" yaml:"timezone"`
	StartTime   string   `json:"start_time" yaml:"start_time"` // "HH:MM"
	EndTime     string   `json:"end_time" yaml:"end_time"`     // "HH:MM"
	WorkingDays []string `json:"working_days" yaml:"working_days"`
	Holidays    []string `json:"holidays,omitempty" yaml:"holidays,omitempty"`
}

// Default returns the documented fallback calendar: UTC, 07:00-18:00,
// Monday through Friday, no holidays.
func Default() Config {
	return Config{
		Timezone:    "UTC",
		StartTime:   "07:00",
		EndTime:     "18:00",
		WorkingDays: []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"},
	}
}

var validDays = map[string]time.Weekday{
	"Sunday":    time.Sunday,
	"Monday":    time.Monday,
	"Tuesday":   time.Tuesday,
	"Wednesday": time.Wednesday,
	"Thursday":  time.Thursday,
	"Friday":    time.Friday,
	"Saturday":  time.Saturday,
}

// Validate returns a list of violations; an empty list means the config is usable.
func (c Config) Validate() []string {
	var problems []string

	startMin, err := parseClock(c.StartTime)
	if err != nil {
		problems = append(problems, fmt.Sprintf("start_time: %v", err))
	}
	endMin, err := parseClock(c.EndTime)
	if err != nil {
		problems = append(problems, fmt.Sprintf("end_time: %v", err))
	}
	if len(problems) == 0 && startMin >= endMin {
		problems = append(problems, "start_time must be before end_time")
	}

	if len(c.WorkingDays) == 0 {
		problems = append(problems, "at least one working day is required")
	}
	for _, d := range c.WorkingDays {
		if _, ok := validDays[d]; !ok {
			problems = append(problems, fmt.Sprintf("unknown day name %q", d))
		}
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("timezone: %v", err))
	}
	for _, h := range c.Holidays {
		if _, err := time.Parse("2006-01-02", h); err != nil {
			problems = append(problems, fmt.Sprintf("holiday %q is not an ISO date", h))
		}
	}

	return problems
}

// Location resolves the configured timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsWorkingInstant reports whether t falls on a working weekday, outside
// holidays, with a time-of-day inside [start, end). All checks use the
// configured timezone.
func IsWorkingInstant(t time.Time, cfg Config) bool {
	local := t.In(cfg.Location())
	if !isWorkingDay(local, cfg) || isHoliday(local, cfg) {
		return false
	}
	startMin, _ := parseClock(cfg.StartTime)
	endMin, _ := parseClock(cfg.EndTime)
	m := local.Hour()*60 + local.Minute()
	return m >= startMin && m < endMin
}

// NextWorkingInstant returns the earliest working instant at or after t,
// and whether t had to be moved. An instant already inside working hours is
// returned unchanged. Before the daily window on a working day it snaps
// forward to that day's start; otherwise the search advances one calendar
// day at a time (time-of-day reset to start) for up to maxCalendarScan days,
// after which it falls back to exactly t+24h.
func NextWorkingInstant(t time.Time, cfg Config) (time.Time, bool) {
	if IsWorkingInstant(t, cfg) {
		return t, false
	}

	loc := cfg.Location()
	local := t.In(loc)
	startMin, _ := parseClock(cfg.StartTime)

	if isWorkingDay(local, cfg) && !isHoliday(local, cfg) {
		if local.Hour()*60+local.Minute() < startMin {
			return atClock(local, startMin, loc), true
		}
	}

	for d := 1; d <= maxCalendarScan; d++ {
		candidate := local.AddDate(0, 0, d)
		if isWorkingDay(candidate, cfg) && !isHoliday(candidate, cfg) {
			return atClock(candidate, startMin, loc), true
		}
	}

	// Escape valve for pathological calendars. Not a working-hours
	// computation; callers should treat this as a degraded result.
	return t.Add(24 * time.Hour), true
}

// HoursBetween sums the working-window overlap across all days in
// [start, end). Returns 0 when start >= end. Diagnostics only; scheduling
// decisions never depend on it.
func HoursBetween(start, end time.Time, cfg Config) float64 {
	if !start.Before(end) {
		return 0
	}

	loc := cfg.Location()
	startMin, _ := parseClock(cfg.StartTime)
	endMin, _ := parseClock(cfg.EndTime)

	total := 0.0
	day := time.Date(start.In(loc).Year(), start.In(loc).Month(), start.In(loc).Day(), 0, 0, 0, 0, loc)
	for day.Before(end) {
		if isWorkingDay(day, cfg) && !isHoliday(day, cfg) {
			windowStart := day.Add(time.Duration(startMin) * time.Minute)
			windowEnd := day.Add(time.Duration(endMin) * time.Minute)
			overlapStart := later(windowStart, start)
			overlapEnd := earlier(windowEnd, end)
			if overlapStart.Before(overlapEnd) {
				total += overlapEnd.Sub(overlapStart).Hours()
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return total
}

func isWorkingDay(t time.Time, cfg Config) bool {
	for _, d := range cfg.WorkingDays {
		if wd, ok := validDays[d]; ok && t.Weekday() == wd {
			return true
		}
	}
	return false
}

func isHoliday(t time.Time, cfg Config) bool {
	date := t.Format("2006-01-02")
	for _, h := range cfg.Holidays {
		if h == date {
			return true
		}
	}
	return false
}

func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("%q is not HH:MM", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("%q is out of range", s)
	}
	return h*60 + m, nil
}

func atClock(day time.Time, minutes int, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, loc)
}

func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlier(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
