package alerting

import (
	"strings"
	"time"

	"github.com/good-yellow-bee/staleguard/internal/models"
)

const (
	// UnknownAgeDays is reported when no activity timestamp is usable, so
	// entities with missing data surface as urgent instead of disappearing.
	UnknownAgeDays = 999
	// CriticalThresholdDays is the age at which an entity is critical.
	CriticalThresholdDays = 30
	// MinAgeDays is the global floor below which entities are not evaluated.
	MinAgeDays = 7
)

// activityLayouts are the timestamp formats accepted from record sources.
var activityLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseActivityTime parses a timestamp from a record source.
// Returns false when the value is empty or in an unknown format.
func ParseActivityTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range activityLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// LastActivity returns the best available activity timestamp for an entity:
// last movement, then last update, then creation.
func LastActivity(e *models.TrackedEntity) (time.Time, bool) {
	for _, t := range []*time.Time{e.LastMovementAt, e.UpdatedAt, e.CreatedAt} {
		if t != nil && !t.IsZero() {
			return *t, true
		}
	}
	return time.Time{}, false
}

// AgeDays returns the whole days elapsed since the entity's last activity.
// Future timestamps yield 0; missing timestamps yield UnknownAgeDays.
func AgeDays(e *models.TrackedEntity, now time.Time) int {
	last, ok := LastActivity(e)
	if !ok {
		return UnknownAgeDays
	}
	elapsed := now.Sub(last)
	if elapsed < 0 {
		return 0
	}
	return int(elapsed / (24 * time.Hour))
}

// IsCritical reports whether an age is at or past the critical threshold.
func IsCritical(ageDays int) bool {
	return ageDays >= CriticalThresholdDays
}
