package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Horizon bounds the forward scan of Next and NextEffective. An expression
// with no match inside the horizon is reported as not found rather than
// pretending the boundary is a run time.
const Horizon = 48 * time.Hour

const horizonMinutes = int(Horizon / time.Minute)

// Next returns the first instant strictly after `after` (rounded up to a
// whole minute) at which the expression fires. ok is false when nothing
// matches within the horizon; callers should surface that as "unknown".
func (e Expression) Next(after time.Time, offsetMinutes int) (time.Time, bool) {
	t := after.Truncate(time.Minute).Add(time.Minute)
	for i := 0; i < horizonMinutes; i++ {
		if e.Matches(t, offsetMinutes) {
			return t, true
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}, false
}

// NextEffective is Next with exclusion windows applied: candidates falling
// inside a window are skipped and the scan continues.
func (e Expression) NextEffective(after time.Time, offsetMinutes int, windows []Window) (time.Time, bool) {
	t := after.Truncate(time.Minute).Add(time.Minute)
	for i := 0; i < horizonMinutes; i++ {
		if e.Matches(t, offsetMinutes) && !Excluded(t, offsetMinutes, windows) {
			return t, true
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}, false
}

// Window is a recurring local-time range during which scheduled triggers are
// deferred. Days holds weekday numbers (0 = Sunday); empty means every day.
// The range is inclusive of Start and exclusive of End.
type Window struct {
	Days  []int  `json:"days,omitempty"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// Validate checks the HH:MM bounds and weekday numbers.
func (w Window) Validate() error {
	if _, err := parseHHMM(w.Start); err != nil {
		return fmt.Errorf("window start: %w", err)
	}
	if _, err := parseHHMM(w.End); err != nil {
		return fmt.Errorf("window end: %w", err)
	}
	for _, d := range w.Days {
		if d < 0 || d > 6 {
			return fmt.Errorf("window day %d out of range 0-6", d)
		}
	}
	return nil
}

// Excluded reports whether t (at the configured offset) falls inside any of
// the windows. Malformed windows are ignored.
func Excluded(t time.Time, offsetMinutes int, windows []Window) bool {
	if len(windows) == 0 {
		return false
	}
	lt := t.In(offsetZone(offsetMinutes))
	minute := lt.Hour()*60 + lt.Minute()
	day := int(lt.Weekday())

	for _, w := range windows {
		start, err := parseHHMM(w.Start)
		if err != nil {
			continue
		}
		end, err := parseHHMM(w.End)
		if err != nil {
			continue
		}

		if start <= end {
			if minute >= start && minute < end && dayIncluded(w.Days, day) {
				return true
			}
			continue
		}

		// Overnight window (e.g. 22:00-06:00): the [start,24h) half belongs to
		// the listed weekday, the [0,end) half to the following morning.
		if minute >= start && dayIncluded(w.Days, day) {
			return true
		}
		if minute < end && dayIncluded(w.Days, (day+6)%7) {
			return true
		}
	}
	return false
}

func dayIncluded(days []int, day int) bool {
	if len(days) == 0 {
		return true
	}
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}

// parseHHMM returns minutes since midnight for a "HH:MM" string.
func parseHHMM(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}
