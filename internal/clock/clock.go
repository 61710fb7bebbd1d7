package clock

import (
	"fmt"
	"time"
)

// DateKey formats t as a YYYY-MM-DD calendar date in loc.
func DateKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// ClockTime formats t as a zero-padded 24-hour HH:MM in loc.
func ClockTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("15:04")
}

// YesterdayDateKey returns the date key one calendar day before now's
// local date in loc. It resolves the local date first, rebuilds it as a
// UTC instant at noon, subtracts 24 hours, and reformats the shifted
// instant back in loc, so the result stays correct across DST
// transitions where the local day is 23 or 25 hours long.
func YesterdayDateKey(loc *time.Location, now time.Time) string {
	local := now.In(loc)
	noon := time.Date(local.Year(), local.Month(), local.Day(), 12, 0, 0, 0, time.UTC)
	return DateKey(noon.Add(-24*time.Hour), loc)
}

// LoadLocation resolves an IANA time zone name. An empty name means the
// system local zone. Unknown names are a configuration problem and are
// reported as such; callers validate once at configuration time.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown time zone %q: %w", name, err)
	}
	return loc, nil
}
