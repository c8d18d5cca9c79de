package alerts

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// DefaultHistoryLimit is used when no limit is given.
	DefaultHistoryLimit = 50
	// MaxHistoryLimit caps the number of history entries per request.
	MaxHistoryLimit = 500
	// MaxCooldownHours caps a custom cooldown.
	MaxCooldownHours = 24 * 365
)

// ParseLimit parses the history limit query parameter.
func ParseLimit(s string) (int, error) {
	if s == "" {
		return DefaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if n > MaxHistoryLimit {
		n = MaxHistoryLimit
	}
	return n, nil
}

// ValidateAction checks an action request before it reaches the controller.
func ValidateAction(entityID string, req ActionRequest) error {
	if strings.TrimSpace(entityID) == "" {
		return errors.New("entity id is required")
	}
	if strings.TrimSpace(req.Action) == "" {
		return errors.New("action is required")
	}
	if req.CooldownHours != nil && (*req.CooldownHours < 0 || *req.CooldownHours > MaxCooldownHours) {
		return fmt.Errorf("cooldown_hours must be between 0 and %d", MaxCooldownHours)
	}
	return nil
}
