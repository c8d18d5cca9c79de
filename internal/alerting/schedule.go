package alerting

import (
	"fmt"
	"strings"
	"time"
)

// BusinessHours is the window in which non-critical alerts may be sent.
type BusinessHours struct {
	// StartHour is the first hour of the window (inclusive).
	StartHour int
	// EndHour is the end of the window (exclusive).
	EndHour int
	// Days are the weekdays the window applies to.
	Days []time.Weekday
	// Location is the time zone the window is evaluated in. Nil means UTC.
	Location *time.Location
}

// DefaultBusinessHours returns Monday to Friday, 09:00 to 18:00.
func DefaultBusinessHours(loc *time.Location) BusinessHours {
	return BusinessHours{
		StartHour: 9,
		EndHour:   18,
		Days: []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		},
		Location: loc,
	}
}

// Validate checks the window bounds.
func (b BusinessHours) Validate() error {
	if b.StartHour < 0 || b.StartHour > 23 {
		return fmt.Errorf("business hours start must be within 0-23 (got %d)", b.StartHour)
	}
	if b.EndHour < 1 || b.EndHour > 24 {
		return fmt.Errorf("business hours end must be within 1-24 (got %d)", b.EndHour)
	}
	if b.EndHour <= b.StartHour {
		return fmt.Errorf("business hours end (%d) must be after start (%d)", b.EndHour, b.StartHour)
	}
	if len(b.Days) == 0 {
		return fmt.Errorf("business hours need at least one day")
	}
	return nil
}

// Contains reports whether t falls inside the window.
func (b BusinessHours) Contains(t time.Time) bool {
	local := t.In(b.location())
	dayOK := false
	for _, d := range b.Days {
		if local.Weekday() == d {
			dayOK = true
			break
		}
	}
	if !dayOK {
		return false
	}
	hour := local.Hour()
	return hour >= b.StartHour && hour < b.EndHour
}

// DayKey returns the calendar day of t in the window's time zone.
// Daily caps are counted per day key.
func (b BusinessHours) DayKey(t time.Time) string {
	return t.In(b.location()).Format("2006-01-02")
}

func (b BusinessHours) location() *time.Location {
	if b.Location == nil {
		return time.UTC
	}
	return b.Location
}

// ParseWeekdays converts short or long weekday names to time.Weekday.
func ParseWeekdays(names []string) ([]time.Weekday, error) {
	lookup := map[string]time.Weekday{
		"sun": time.Sunday, "sunday": time.Sunday,
		"mon": time.Monday, "monday": time.Monday,
		"tue": time.Tuesday, "tuesday": time.Tuesday,
		"wed": time.Wednesday, "wednesday": time.Wednesday,
		"thu": time.Thursday, "thursday": time.Thursday,
		"fri": time.Friday, "friday": time.Friday,
		"sat": time.Saturday, "saturday": time.Saturday,
	}
	days := make([]time.Weekday, 0, len(names))
	for _, n := range names {
		d, ok := lookup[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", n)
		}
		days = append(days, d)
	}
	return days, nil
}
