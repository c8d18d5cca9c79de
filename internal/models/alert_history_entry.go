package models

import "time"

// AlertHistoryEntry records an alert that was actually sent.
type AlertHistoryEntry struct {
	ID            string    `json:"id"`
	EntityID      string    `json:"entity_id"`
	DayThreshold  int       `json:"day_threshold"`
	Level         Level     `json:"level"`
	Recipients    []string  `json:"recipients"`
	Subject       string    `json:"subject,omitempty"`
	SentAt        time.Time `json:"sent_at"`
	AgeDaysAtSend int       `json:"age_days_at_send"`
}
