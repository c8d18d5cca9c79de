package alerting

import (
	"time"

	"github.com/good-yellow-bee/staleguard/internal/models"
)

// RenderData is the data available to rule subject and message templates.
type RenderData struct {
	EntityID       string
	Client         string
	Owner          string
	Status         string
	ProposedAmount string
	ApprovedAmount string
	AgeDays        int
	Level          string
	DayThreshold   int
	IsCritical     bool
	Now            string
}

// NewRenderData builds template data for an entity and rule.
func NewRenderData(entity *models.TrackedEntity, rule *Rule, ageDays int, now time.Time) *RenderData {
	return &RenderData{
		EntityID:       entity.ID,
		Client:         entity.Client,
		Owner:          entity.Owner,
		Status:         entity.Status,
		ProposedAmount: entity.ProposedAmount.StringFixed(2),
		ApprovedAmount: entity.ApprovedAmount.StringFixed(2),
		AgeDays:        ageDays,
		Level:          string(rule.Level),
		DayThreshold:   rule.DayThreshold,
		IsCritical:     IsCritical(ageDays),
		Now:            now.Format("2006-01-02 15:04 MST"),
	}
}
