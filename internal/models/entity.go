package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultTerminalStatuses are entity statuses that never trigger alerts.
var DefaultTerminalStatuses = []string{"paid", "cancelled", "rejected"}

// TrackedEntity is a read-only snapshot of a monitored business record.
type TrackedEntity struct {
	ID             string          `json:"id"`
	Client         string          `json:"client"`
	Owner          string          `json:"owner"`
	ProposedAmount decimal.Decimal `json:"proposed_amount"`
	ApprovedAmount decimal.Decimal `json:"approved_amount"`
	Status         string          `json:"status"`
	LastMovementAt *time.Time      `json:"last_movement_at,omitempty"`
	UpdatedAt      *time.Time      `json:"updated_at,omitempty"`
	CreatedAt      *time.Time      `json:"created_at,omitempty"`
}

// IsTerminal reports whether the entity status is in the terminal set.
func (e *TrackedEntity) IsTerminal(terminal []string) bool {
	for _, s := range terminal {
		if strings.EqualFold(strings.TrimSpace(e.Status), s) {
			return true
		}
	}
	return false
}
