package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/staleguard/internal/alerting"
	"github.com/good-yellow-bee/staleguard/internal/models"
)

// ErrInvalidRecipient is returned by SendTestAlert for a malformed address.
var ErrInvalidRecipient = errors.New("invalid recipient address")

// TestEntityID identifies the synthetic entity used by test alerts.
const TestEntityID = "TEST-ALERT"

// TestAlertResult describes a delivered test alert.
type TestAlertResult struct {
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Level     string    `json:"level"`
	SentAt    time.Time `json:"sent_at"`
}

// SendTestAlert renders a synthetic alert for the most urgent rule and sends
// it to recipient. The controller is bypassed: nothing is gated or recorded.
func (o *Orchestrator) SendTestAlert(ctx context.Context, recipient string) (*TestAlertResult, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(recipient))
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidRecipient, recipient, err)
	}

	rules := o.catalog.Current().Rules()
	rule := rules[len(rules)-1]
	now := o.controller.Now()
	moved := now.AddDate(0, 0, -rule.DayThreshold)

	entity := &models.TrackedEntity{
		ID:             TestEntityID,
		Client:         "Test Client",
		Owner:          "staleguard",
		Status:         "test",
		ProposedAmount: decimal.NewFromInt(1000),
		ApprovedAmount: decimal.Zero,
		LastMovementAt: &moved,
	}

	msg, err := o.composer.ComposeTest(rule, alerting.NewRenderData(entity, rule, rule.DayThreshold, now))
	if err != nil {
		return nil, fmt.Errorf("render test alert: %w", err)
	}
	msg.Recipients = []string{addr.Address}

	sendCtx, cancel := context.WithTimeout(ctx, o.notifyTimeout)
	defer cancel()
	if err := o.notifier.Send(sendCtx, msg); err != nil {
		return nil, fmt.Errorf("send test alert: %w", err)
	}

	o.logger.Info("test alert sent", zap.String("recipient", addr.Address), zap.String("rule", rule.Name()))
	return &TestAlertResult{
		Recipient: addr.Address,
		Subject:   msg.Subject,
		Level:     string(rule.Level),
		SentAt:    now,
	}, nil
}

// EntityStatus is one row of a status report.
type EntityStatus struct {
	EntityID        string            `json:"entity_id"`
	Client          string            `json:"client"`
	Owner           string            `json:"owner"`
	Status          string            `json:"status"`
	AgeDays         int               `json:"age_days"`
	Level           models.Level      `json:"level"`
	DayThreshold    int               `json:"day_threshold"`
	IsCritical      bool              `json:"is_critical"`
	LastUserAction  models.UserAction `json:"last_user_action,omitempty"`
	CooldownUntil   *time.Time        `json:"cooldown_until,omitempty"`
	LastAlertSentAt *time.Time        `json:"last_alert_sent_at,omitempty"`
	SentLifetime    int               `json:"sent_lifetime"`
}

// StatusReport summarizes every entity currently triggering a rule.
type StatusReport struct {
	GeneratedAt time.Time            `json:"generated_at"`
	Total       int                  `json:"total"`
	Counts      map[models.Level]int `json:"counts"`
	Entities    []EntityStatus       `json:"entities"`
	// StateErrors counts entities whose cooldown state could not be read.
	StateErrors int `json:"state_errors"`
}

// Status reports, for all entities old enough to be evaluated, the most
// urgent triggered level. Rows are ordered oldest first.
func (o *Orchestrator) Status(ctx context.Context) (*StatusReport, error) {
	entities, err := o.source.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	now := o.controller.Now()
	cat := o.catalog.Current()
	report := &StatusReport{
		GeneratedAt: now,
		Counts:      make(map[models.Level]int, len(models.Levels)),
		Entities:    []EntityStatus{},
	}
	for _, l := range models.Levels {
		report.Counts[l] = 0
	}

	for _, entity := range entities {
		if entity == nil {
			continue
		}
		age := alerting.AgeDays(entity, now)
		if age < o.minAgeDays {
			continue
		}
		rule := cat.Highest(age)
		if rule == nil {
			continue
		}

		row := EntityStatus{
			EntityID:     entity.ID,
			Client:       entity.Client,
			Owner:        entity.Owner,
			Status:       entity.Status,
			AgeDays:      age,
			Level:        rule.Level,
			DayThreshold: rule.DayThreshold,
			IsCritical:   alerting.IsCritical(age),
		}

		state, err := o.controller.State(ctx, entity.ID)
		switch {
		case err == nil:
			row.LastUserAction = state.LastUserAction
			row.CooldownUntil = state.CooldownUntil
			row.LastAlertSentAt = state.LastAlertSentAt
			row.SentLifetime = state.SentLifetime
		case !errors.Is(err, alerting.ErrStateNotFound):
			report.StateErrors++
			o.logger.Warn("failed to read cooldown state", zap.String("entity_id", entity.ID), zap.Error(err))
		}

		report.Counts[rule.Level]++
		report.Entities = append(report.Entities, row)
	}

	sort.SliceStable(report.Entities, func(i, j int) bool {
		if report.Entities[i].AgeDays != report.Entities[j].AgeDays {
			return report.Entities[i].AgeDays > report.Entities[j].AgeDays
		}
		return report.Entities[i].EntityID < report.Entities[j].EntityID
	})
	report.Total = len(report.Entities)
	return report, nil
}

// Acknowledge records a user action for an entity. customHours, when set and
// positive, overrides the action's default cooldown.
func (o *Orchestrator) Acknowledge(ctx context.Context, entityID, action string, customHours *int) (*models.CooldownState, error) {
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return nil, fmt.Errorf("entity id is required")
	}
	a, err := models.ParseUserAction(action)
	if err != nil {
		return nil, err
	}
	return o.controller.RecordUserAction(ctx, entityID, a, customHours)
}

// EntityState returns the cooldown state of an entity.
func (o *Orchestrator) EntityState(ctx context.Context, entityID string) (*models.CooldownState, error) {
	return o.controller.State(ctx, entityID)
}

// Catalog returns the active rule catalog.
func (o *Orchestrator) Catalog() *alerting.Catalog {
	return o.catalog.Current()
}
