package alerting

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/staleguard/internal/metrics"
	"github.com/good-yellow-bee/staleguard/internal/models"
)

// DefaultDailyCap is the maximum number of alerts per entity per day.
const DefaultDailyCap = 3

var (
	// ErrHistoryWrite is returned when an alert was sent and its state
	// recorded but the history entry could not be written.
	ErrHistoryWrite = errors.New("failed to write alert history")
	// ErrStateWrite is returned when an alert was sent but its state could
	// not be recorded.
	ErrStateWrite = errors.New("failed to record cooldown state")
	// ErrSendFailed wraps errors returned by the send callback of TrySend.
	ErrSendFailed = errors.New("alert send failed")
	// ErrUnknownAction is returned for user actions outside the closed set.
	ErrUnknownAction = models.ErrUnknownAction
)

// HistoryLedger is the durable record of sent alerts.
type HistoryLedger interface {
	// Create appends an entry.
	Create(ctx context.Context, entry *models.AlertHistoryEntry) error
	// LastForRule returns the newest entry for an entity and rule threshold,
	// or nil when none exists.
	LastForRule(ctx context.Context, entityID string, dayThreshold int) (*models.AlertHistoryEntry, error)
}

// DecisionReason names why a send was denied.
type DecisionReason string

const (
	ReasonNone                 DecisionReason = ""
	ReasonCooldown             DecisionReason = "cooldown"
	ReasonDailyCap             DecisionReason = "daily_cap"
	ReasonOutsideBusinessHours DecisionReason = "outside_business_hours"
	ReasonFrequency            DecisionReason = "frequency"
	ReasonHistoryUnavailable   DecisionReason = "history_unavailable"
	ReasonStateUnavailable     DecisionReason = "state_unavailable"
	ReasonNoRecipients         DecisionReason = "no_recipients"
)

// Decision is the result of a send check.
type Decision struct {
	Allowed bool
	Reason  DecisionReason
	// Frequency is the effective minimum interval applied for the rule.
	Frequency time.Duration
	// FromHistory is true when no state existed and the ledger was consulted.
	FromHistory bool
}

func allow(freq time.Duration, fromHistory bool) Decision {
	return Decision{Allowed: true, Frequency: freq, FromHistory: fromHistory}
}

func deny(reason DecisionReason, freq time.Duration, fromHistory bool) Decision {
	return Decision{Reason: reason, Frequency: freq, FromHistory: fromHistory}
}

// Delivery describes a completed send, as reported by the TrySend callback.
type Delivery struct {
	Recipients []string
	Subject    string
}

// SendFunc performs the actual notification for TrySend.
type SendFunc func(ctx context.Context) (*Delivery, error)

// Outcome is the result of TrySend.
type Outcome struct {
	Decision Decision
	// Sent is true when the send callback succeeded, even if recording failed.
	Sent bool
}

// ControllerOptions configures the Controller.
type ControllerOptions struct {
	// DailyCap is the maximum sends per entity per calendar day.
	DailyCap int
	// BusinessHours gates non-critical rules. Its location also defines the
	// calendar day used for the daily cap.
	BusinessHours BusinessHours
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
	// Logger receives decision logs. Defaults to a no-op logger.
	Logger *zap.Logger
}

// DefaultControllerOptions returns the default controller options in UTC.
func DefaultControllerOptions() *ControllerOptions {
	return &ControllerOptions{
		DailyCap:      DefaultDailyCap,
		BusinessHours: DefaultBusinessHours(time.UTC),
		Now:           time.Now,
	}
}

// Controller decides whether an alert may be sent and records sends and
// user actions.
type Controller struct {
	store    StateStore
	ledger   HistoryLedger
	dailyCap int
	hours    BusinessHours
	now      func() time.Time
	logger   *zap.Logger
	locks    *keyedMutex
}

// NewController creates a controller backed by the given store and ledger.
func NewController(store StateStore, ledger HistoryLedger, opts *ControllerOptions) *Controller {
	if opts == nil {
		opts = DefaultControllerOptions()
	}
	c := &Controller{
		store:    store,
		ledger:   ledger,
		dailyCap: opts.DailyCap,
		hours:    opts.BusinessHours,
		now:      opts.Now,
		logger:   opts.Logger,
		locks:    newKeyedMutex(),
	}
	if c.dailyCap <= 0 {
		c.dailyCap = DefaultDailyCap
	}
	if len(c.hours.Days) == 0 {
		c.hours = DefaultBusinessHours(c.hours.Location)
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// Now returns the controller's current time.
func (c *Controller) Now() time.Time {
	return c.now()
}

// BusinessHours returns the configured business hours.
func (c *Controller) BusinessHours() BusinessHours {
	return c.hours
}

// State returns the stored cooldown state for an entity.
func (c *Controller) State(ctx context.Context, entityID string) (*models.CooldownState, error) {
	return c.store.Get(ctx, entityID)
}

// ShouldSend checks whether rule may alert for entity now.
func (c *Controller) ShouldSend(ctx context.Context, entity *models.TrackedEntity, rule *Rule) (Decision, error) {
	return c.ShouldSendAt(ctx, entity, rule, c.now())
}

// ShouldSendAt checks whether rule may alert for entity at a specific time.
func (c *Controller) ShouldSendAt(ctx context.Context, entity *models.TrackedEntity, rule *Rule, now time.Time) (Decision, error) {
	d, err := c.decide(ctx, entity.ID, rule, now)
	result := "allow"
	if !d.Allowed {
		result = "deny"
	}
	metrics.ControllerDecisionsTotal.WithLabelValues(result, string(d.Reason)).Inc()
	if !d.Allowed {
		c.logger.Debug("alert suppressed",
			zap.String("entity_id", entity.ID),
			zap.String("rule", rule.Name()),
			zap.String("reason", string(d.Reason)),
			zap.Duration("frequency", d.Frequency),
		)
	}
	return d, err
}

func (c *Controller) decide(ctx context.Context, entityID string, rule *Rule, now time.Time) (Decision, error) {
	state, err := c.store.Get(ctx, entityID)
	if errors.Is(err, ErrStateNotFound) {
		return c.decideFromHistory(ctx, entityID, rule, now)
	}
	if err != nil {
		return deny(ReasonStateUnavailable, 0, false), fmt.Errorf("load cooldown state for %s: %w", entityID, err)
	}

	freq := EffectiveFrequency(rule, state)

	if state.InCooldown(now) {
		return deny(ReasonCooldown, freq, false), nil
	}
	if state.SentOn(c.hours.DayKey(now)) >= c.dailyCap {
		return deny(ReasonDailyCap, freq, false), nil
	}
	if !rule.IsCritical() && !c.hours.Contains(now) {
		return deny(ReasonOutsideBusinessHours, freq, false), nil
	}
	if rs := state.Rule(rule.DayThreshold); rs != nil && !rs.LastSentAt.IsZero() {
		if now.Sub(rs.LastSentAt) < freq {
			return deny(ReasonFrequency, freq, false), nil
		}
		return allow(freq, false), nil
	}
	if c.ledger == nil {
		return allow(freq, false), nil
	}

	// State written by a user action, or by a store that lost the rule
	// entry, has no last send for this rule. The ledger still does.
	last, err := c.ledger.LastForRule(ctx, entityID, rule.DayThreshold)
	if err != nil {
		return deny(ReasonHistoryUnavailable, freq, true), fmt.Errorf("read alert history for %s: %w", entityID, err)
	}
	if last != nil && now.Sub(last.SentAt) < freq {
		return deny(ReasonFrequency, freq, true), nil
	}
	return allow(freq, last != nil), nil
}

// decideFromHistory enforces business hours and the base frequency using
// the ledger when no cooldown state exists.
func (c *Controller) decideFromHistory(ctx context.Context, entityID string, rule *Rule, now time.Time) (Decision, error) {
	freq := rule.BaseFrequency()
	if c.ledger == nil {
		if !rule.IsCritical() && !c.hours.Contains(now) {
			return deny(ReasonOutsideBusinessHours, freq, false), nil
		}
		return allow(freq, false), nil
	}

	metrics.ControllerHistoryFallbacksTotal.Inc()

	last, err := c.ledger.LastForRule(ctx, entityID, rule.DayThreshold)
	if err != nil {
		return deny(ReasonHistoryUnavailable, freq, true), fmt.Errorf("read alert history for %s: %w", entityID, err)
	}
	if !rule.IsCritical() && !c.hours.Contains(now) {
		return deny(ReasonOutsideBusinessHours, freq, true), nil
	}
	if last != nil && now.Sub(last.SentAt) < freq {
		return deny(ReasonFrequency, freq, true), nil
	}
	return allow(freq, true), nil
}

// EffectiveFrequency returns the minimum interval between sends of rule
// given the entity's state. Acknowledged and in-progress entities are
// slowed to twice the base frequency. Otherwise, past five lifetime sends
// the interval grows by lifetime/5, capped at three times the base.
func EffectiveFrequency(rule *Rule, state *models.CooldownState) time.Duration {
	base := rule.BaseFrequency()
	if state == nil {
		return base
	}
	if state.LastUserAction.Slows() {
		return 2 * base
	}
	if state.SentLifetime > 5 {
		multiplier := math.Min(float64(state.SentLifetime)/5, 3)
		return time.Duration(float64(base) * multiplier)
	}
	return base
}

// RecordSent records a successful send for entity and rule.
func (c *Controller) RecordSent(ctx context.Context, entity *models.TrackedEntity, rule *Rule, d *Delivery) error {
	return c.RecordSentAt(ctx, entity, rule, d, c.now())
}

// RecordSentAt records a successful send at a specific time. The state is
// updated first; a ledger failure does not roll it back and is returned
// wrapped in ErrHistoryWrite.
func (c *Controller) RecordSentAt(ctx context.Context, entity *models.TrackedEntity, rule *Rule, d *Delivery, now time.Time) error {
	day := c.hours.DayKey(now)
	_, err := c.store.Update(ctx, entity.ID, func(s *models.CooldownState, _ bool) error {
		sent := now
		s.LastAlertSentAt = &sent
		if s.SentDay != day {
			s.SentDay = day
			s.SentToday = 0
		}
		s.SentToday++
		s.SentLifetime++
		if s.Rules == nil {
			s.Rules = make(map[int]*models.RuleSendState)
		}
		rs := s.Rules[rule.DayThreshold]
		if rs == nil {
			rs = &models.RuleSendState{}
			s.Rules[rule.DayThreshold] = rs
		}
		rs.LastSentAt = now
		rs.SentCount++
		s.UpdatedAt = now
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w for %s: %w", ErrStateWrite, entity.ID, err)
	}

	if c.ledger == nil {
		return nil
	}

	entry := &models.AlertHistoryEntry{
		ID:            uuid.New().String(),
		EntityID:      entity.ID,
		DayThreshold:  rule.DayThreshold,
		Level:         rule.Level,
		SentAt:        now,
		AgeDaysAtSend: AgeDays(entity, now),
	}
	if d != nil {
		entry.Recipients = d.Recipients
		entry.Subject = d.Subject
	}
	if err := c.ledger.Create(ctx, entry); err != nil {
		return fmt.Errorf("%w for %s: %w", ErrHistoryWrite, entity.ID, err)
	}
	return nil
}

// RecordUserAction records a human response for an entity.
func (c *Controller) RecordUserAction(ctx context.Context, entityID string, action models.UserAction, customCooldownHours *int) (*models.CooldownState, error) {
	return c.RecordUserActionAt(ctx, entityID, action, customCooldownHours, c.now())
}

// RecordUserActionAt records a human response at a specific time.
// customCooldownHours overrides the action's default duration when positive.
// ActionNone clears any active cooldown.
func (c *Controller) RecordUserActionAt(ctx context.Context, entityID string, action models.UserAction, customCooldownHours *int, now time.Time) (*models.CooldownState, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("%w %q", ErrUnknownAction, action)
	}

	unlock := c.locks.Lock(entityID)
	defer unlock()

	duration := action.CooldownDuration()
	if customCooldownHours != nil && *customCooldownHours > 0 {
		duration = time.Duration(*customCooldownHours) * time.Hour
	}

	state, err := c.store.Update(ctx, entityID, func(s *models.CooldownState, _ bool) error {
		at := now
		s.LastUserAction = action
		s.ActionAt = &at
		if action == models.ActionNone || duration <= 0 {
			s.CooldownUntil = nil
		} else {
			until := now.Add(duration)
			s.CooldownUntil = &until
		}
		s.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record action %s for %s: %w", action, entityID, err)
	}

	metrics.ControllerUserActionsTotal.WithLabelValues(string(action)).Inc()
	c.logger.Info("user action recorded",
		zap.String("entity_id", entityID),
		zap.String("action", string(action)),
		zap.Duration("cooldown", duration),
	)
	return state, nil
}

// TrySend runs decide, send and record for one entity and rule under the
// entity lock, so concurrent callers cannot both pass the gate.
func (c *Controller) TrySend(ctx context.Context, entity *models.TrackedEntity, rule *Rule, send SendFunc) (Outcome, error) {
	return c.TrySendAt(ctx, entity, rule, c.now(), send)
}

// TrySendAt is TrySend at a specific time.
func (c *Controller) TrySendAt(ctx context.Context, entity *models.TrackedEntity, rule *Rule, now time.Time, send SendFunc) (Outcome, error) {
	unlock := c.locks.Lock(entity.ID)
	defer unlock()

	d, err := c.ShouldSendAt(ctx, entity, rule, now)
	if err != nil || !d.Allowed {
		return Outcome{Decision: d}, err
	}

	delivery, err := send(ctx)
	if err != nil {
		return Outcome{Decision: d}, fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	out := Outcome{Decision: d, Sent: true}
	if err := c.RecordSentAt(ctx, entity, rule, delivery, now); err != nil {
		return out, err
	}
	return out, nil
}
