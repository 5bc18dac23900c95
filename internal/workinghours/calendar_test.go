package workinghours

import (
	"testing"
	"time"
)

func weekdayConfig() Config {
	return Config{
		Timezone:    "UTC",
		StartTime:   "07:00",
		EndTime:     "18:00",
		WorkingDays: []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"},
	}
}

// 2026-08-24 is a Monday.
func utc(day, hour, minute int) time.Time {
	return time.Date(2026, time.August, day, hour, minute, 0, 0, time.UTC)
}

func TestIsWorkingInstant(t *testing.T) {
	cfg := weekdayConfig()

	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"monday mid-morning", utc(24, 8, 0), true},
		{"window start is inclusive", utc(24, 7, 0), true},
		{"window end is exclusive", utc(24, 18, 0), false},
		{"one minute before end", utc(24, 17, 59), true},
		{"before window", utc(24, 6, 59), false},
		{"saturday", utc(29, 10, 0), false},
		{"sunday", utc(30, 10, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsWorkingInstant(tt.t, cfg); got != tt.want {
				t.Errorf("IsWorkingInstant(%v) = %v, want %v", tt.t, got, tt.want)
			}
		})
	}
}

func TestIsWorkingInstantHoliday(t *testing.T) {
	cfg := weekdayConfig()
	cfg.Holidays = []string{"2026-08-24"}

	if IsWorkingInstant(utc(24, 10, 0), cfg) {
		t.Error("holiday Monday should not be a working instant")
	}
	if !IsWorkingInstant(utc(25, 10, 0), cfg) {
		t.Error("day after the holiday should be a working instant")
	}
}

func TestIsWorkingInstantTimezone(t *testing.T) {
	cfg := weekdayConfig()
	cfg.Timezone = "America/New_York"

	// 13:00 UTC on a Monday is 09:00 in New York: inside the window.
	if !IsWorkingInstant(utc(24, 13, 0), cfg) {
		t.Error("13:00 UTC should be working in America/New_York")
	}
	// 09:00 UTC is 05:00 in New York: before the window.
	if IsWorkingInstant(utc(24, 9, 0), cfg) {
		t.Error("09:00 UTC should not be working in America/New_York")
	}
}

func TestNextWorkingInstant(t *testing.T) {
	cfg := weekdayConfig()

	tests := []struct {
		name         string
		t            time.Time
		want         time.Time
		wantAdjusted bool
	}{
		{"inside window unchanged", utc(25, 8, 0), utc(25, 8, 0), false},
		{"before start snaps to start", utc(24, 6, 30), utc(24, 7, 0), true},
		// Friday 18:30 is after the window; Saturday and Sunday are
		// non-working, so the next slot is Monday 07:00.
		{"friday evening rolls to monday", utc(28, 18, 30), utc(31, 7, 0), true},
		{"saturday rolls to monday", utc(29, 12, 0), utc(31, 7, 0), true},
		{"end of window rolls to next day", utc(24, 18, 0), utc(25, 7, 0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, adjusted := NextWorkingInstant(tt.t, cfg)
			if !got.Equal(tt.want) {
				t.Errorf("NextWorkingInstant(%v) = %v, want %v", tt.t, got, tt.want)
			}
			if adjusted != tt.wantAdjusted {
				t.Errorf("adjusted = %v, want %v", adjusted, tt.wantAdjusted)
			}
		})
	}
}

func TestNextWorkingInstantSkipsHolidays(t *testing.T) {
	cfg := weekdayConfig()
	cfg.Holidays = []string{"2026-08-25", "2026-08-26"}

	// Monday after hours; Tuesday and Wednesday are holidays.
	got, adjusted := NextWorkingInstant(utc(24, 19, 0), cfg)
	if !adjusted {
		t.Fatal("expected an adjustment")
	}
	if want := utc(27, 7, 0); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

// When next instant is computed, the result itself must satisfy
// IsWorkingInstant and be the earliest such instant at or after the input.
func TestNextWorkingInstantIsEarliestValid(t *testing.T) {
	cfg := weekdayConfig()

	for hour := 0; hour < 24; hour++ {
		for day := 24; day <= 30; day++ {
			in := utc(day, hour, 17)
			got, _ := NextWorkingInstant(in, cfg)
			if !IsWorkingInstant(got, cfg) {
				t.Fatalf("NextWorkingInstant(%v) = %v is not a working instant", in, got)
			}
			if got.Before(in) {
				t.Fatalf("NextWorkingInstant(%v) = %v is before its input", in, got)
			}
			// No working instant may exist between input and result.
			if prev := got.Add(-time.Minute); !prev.Before(in) && IsWorkingInstant(prev, cfg) {
				t.Fatalf("NextWorkingInstant(%v) = %v is not the earliest", in, got)
			}
		}
	}
}

// The 14-day cap is a documented approximation: a calendar whose working
// days are all holidays degrades to a flat +24h shift.
func TestNextWorkingInstantFallback(t *testing.T) {
	cfg := weekdayConfig()
	for d := 24; d <= 24+maxCalendarScan+7; d++ {
		cfg.Holidays = append(cfg.Holidays, time.Date(2026, time.August, d, 0, 0, 0, 0, time.UTC).Format("2006-01-02"))
	}

	in := utc(24, 10, 0)
	got, adjusted := NextWorkingInstant(in, cfg)
	if !adjusted {
		t.Fatal("expected an adjustment")
	}
	if want := in.Add(24 * time.Hour); !got.Equal(want) {
		t.Errorf("fallback = %v, want %v", got, want)
	}
}

func TestHoursBetween(t *testing.T) {
	cfg := weekdayConfig()

	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		want  float64
	}{
		{"zero when start >= end", utc(24, 10, 0), utc(24, 10, 0), 0},
		{"inside one day", utc(24, 8, 0), utc(24, 12, 0), 4},
		{"clipped to window", utc(24, 5, 0), utc(24, 20, 0), 11},
		{"across a weekend", utc(28, 17, 0), utc(31, 8, 0), 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HoursBetween(tt.start, tt.end, cfg); got != tt.want {
				t.Errorf("HoursBetween = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		problems int
	}{
		{"default config is valid", func(c *Config) {}, 0},
		{"bad start time", func(c *Config) { c.StartTime = "seven" }, 1},
		{"start after end", func(c *Config) { c.StartTime = "19:00" }, 1},
		{"no working days", func(c *Config) { c.WorkingDays = nil }, 1},
		{"unknown day name", func(c *Config) { c.WorkingDays = []string{"Funday"} }, 1},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, 1},
		{"bad holiday date", func(c *Config) { c.Holidays = []string{"25-12-2026"} }, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := weekdayConfig()
			tt.mutate(&cfg)
			if got := cfg.Validate(); len(got) != tt.problems {
				t.Errorf("Validate() = %v, want %d problems", got, tt.problems)
			}
		})
	}
}
