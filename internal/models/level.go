// Package models defines domain models for staleguard.
package models

import (
	"fmt"
	"strings"
)

// Level represents the urgency of an alert rule.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelUrgent   Level = "urgent"
	LevelCritical Level = "critical"
)

// Levels lists all levels from least to most urgent.
var Levels = []Level{LevelInfo, LevelWarning, LevelUrgent, LevelCritical}

// ParseLevel converts a string to Level. Unknown values are rejected.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info":
		return LevelInfo, nil
	case "warning":
		return LevelWarning, nil
	case "urgent":
		return LevelUrgent, nil
	case "critical":
		return LevelCritical, nil
	default:
		return "", fmt.Errorf("unknown alert level %q", s)
	}
}

// Rank orders levels by urgency. Unknown levels rank below info.
func (l Level) Rank() int {
	switch l {
	case LevelInfo:
		return 1
	case LevelWarning:
		return 2
	case LevelUrgent:
		return 3
	case LevelCritical:
		return 4
	default:
		return 0
	}
}

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	return l.Rank() > 0
}
