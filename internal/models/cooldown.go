package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// UserAction is a human response to an alert.
type UserAction string

const (
	ActionNone         UserAction = "none"
	ActionAcknowledged UserAction = "acknowledged"
	ActionInProgress   UserAction = "in_progress"
	ActionEscalated    UserAction = "escalated"
	ActionPaused       UserAction = "paused"
	ActionResolved     UserAction = "resolved"
)

// ErrUnknownAction is returned for action strings outside the closed set.
var ErrUnknownAction = errors.New("unknown user action")

// ParseUserAction converts a string to UserAction. Unknown values are rejected.
func ParseUserAction(s string) (UserAction, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	switch normalized {
	case "none", "":
		return ActionNone, nil
	case "acknowledged", "ack":
		return ActionAcknowledged, nil
	case "in_progress", "inprogress":
		return ActionInProgress, nil
	case "escalated":
		return ActionEscalated, nil
	case "paused":
		return ActionPaused, nil
	case "resolved":
		return ActionResolved, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownAction, s)
	}
}

// Valid reports whether a is one of the known actions.
func (a UserAction) Valid() bool {
	switch a {
	case ActionNone, ActionAcknowledged, ActionInProgress, ActionEscalated, ActionPaused, ActionResolved:
		return true
	}
	return false
}

// CooldownDuration returns how long alerts stay suppressed after the action.
func (a UserAction) CooldownDuration() time.Duration {
	switch a {
	case ActionAcknowledged:
		return 24 * time.Hour
	case ActionInProgress:
		return 48 * time.Hour
	case ActionEscalated:
		return 12 * time.Hour
	case ActionPaused:
		return 72 * time.Hour
	case ActionResolved:
		return 9999 * time.Hour
	default:
		return 0
	}
}

// Slows reports whether the action doubles the alert frequency interval.
func (a UserAction) Slows() bool {
	return a == ActionAcknowledged || a == ActionInProgress
}

// RuleSendState tracks sends of one rule for one entity.
type RuleSendState struct {
	LastSentAt time.Time `json:"last_sent_at"`
	SentCount  int       `json:"sent_count"`
}

// CooldownState is the per-entity throttling state.
type CooldownState struct {
	EntityID        string     `json:"entity_id"`
	LastAlertSentAt *time.Time `json:"last_alert_sent_at,omitempty"`
	LastUserAction  UserAction `json:"last_user_action"`
	ActionAt        *time.Time `json:"action_at,omitempty"`
	CooldownUntil   *time.Time `json:"cooldown_until,omitempty"`
	// SentDay is the calendar day (YYYY-MM-DD) SentToday refers to.
	SentDay      string                 `json:"sent_day,omitempty"`
	SentToday    int                    `json:"sent_today"`
	SentLifetime int                    `json:"sent_lifetime"`
	Rules        map[int]*RuleSendState `json:"rules,omitempty"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// NewCooldownState creates an empty state for an entity.
func NewCooldownState(entityID string) *CooldownState {
	return &CooldownState{
		EntityID:       entityID,
		LastUserAction: ActionNone,
		Rules:          make(map[int]*RuleSendState),
	}
}

// SentOn returns the number of sends recorded on the given day.
func (s *CooldownState) SentOn(day string) int {
	if s.SentDay != day {
		return 0
	}
	return s.SentToday
}

// Rule returns the send state for a rule threshold, or nil.
func (s *CooldownState) Rule(threshold int) *RuleSendState {
	if s.Rules == nil {
		return nil
	}
	return s.Rules[threshold]
}

// InCooldown reports whether an active cooldown covers now.
func (s *CooldownState) InCooldown(now time.Time) bool {
	return s.CooldownUntil != nil && now.Before(*s.CooldownUntil)
}

// Clone returns a deep copy of the state.
func (s *CooldownState) Clone() *CooldownState {
	if s == nil {
		return nil
	}
	c := *s
	c.LastAlertSentAt = cloneTime(s.LastAlertSentAt)
	c.ActionAt = cloneTime(s.ActionAt)
	c.CooldownUntil = cloneTime(s.CooldownUntil)
	c.Rules = make(map[int]*RuleSendState, len(s.Rules))
	for k, v := range s.Rules {
		rs := *v
		c.Rules[k] = &rs
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
