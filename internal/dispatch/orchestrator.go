// Package dispatch runs alert cycles over the record source and exposes the
// operator commands built on top of them.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/staleguard/internal/alerting"
	"github.com/good-yellow-bee/staleguard/internal/metrics"
	"github.com/good-yellow-bee/staleguard/internal/models"
	"github.com/good-yellow-bee/staleguard/internal/notifier"
)

// DefaultNotifyTimeout bounds a single notifier call.
const DefaultNotifyTimeout = 30 * time.Second

var (
	// ErrRunInProgress is returned when another run holds the run lock.
	ErrRunInProgress = errors.New("alert run already in progress")
	// ErrSourceUnavailable is returned when the record source cannot be read.
	ErrSourceUnavailable = errors.New("record source unavailable")

	errNoRecipients = errors.New("no recipients")
	errRender       = errors.New("render alert")
)

// EntitySource lists the entities to evaluate.
type EntitySource interface {
	ListActive(ctx context.Context) ([]*models.TrackedEntity, error)
}

// RecipientResolver maps a rule's recipient class to addresses.
type RecipientResolver interface {
	Resolve(class alerting.RecipientClass, owner string) []string
}

// Composer renders a rule into a deliverable message.
type Composer interface {
	Compose(rule *alerting.Rule, data *alerting.RenderData) (*notifier.Message, error)
	ComposeTest(rule *alerting.Rule, data *alerting.RenderData) (*notifier.Message, error)
}

// Options configures an Orchestrator.
type Options struct {
	Catalog    *alerting.CatalogHolder
	Controller *alerting.Controller
	Source     EntitySource
	Resolver   RecipientResolver
	Notifier   notifier.Notifier
	Composer   Composer
	// NotifyTimeout bounds each notifier call. Defaults to 30s.
	NotifyTimeout time.Duration
	// MinAgeDays excludes younger entities before rule evaluation. Defaults to 7.
	MinAgeDays int
	Logger     *zap.Logger
}

// Orchestrator runs alert cycles.
type Orchestrator struct {
	catalog       *alerting.CatalogHolder
	controller    *alerting.Controller
	source        EntitySource
	resolver      RecipientResolver
	notifier      notifier.Notifier
	composer      Composer
	notifyTimeout time.Duration
	minAgeDays    int
	logger        *zap.Logger

	runMu   sync.Mutex
	lastMu  sync.RWMutex
	lastRun *Summary
}

// New creates an orchestrator.
func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Catalog == nil:
		return nil, fmt.Errorf("catalog is required")
	case opts.Controller == nil:
		return nil, fmt.Errorf("controller is required")
	case opts.Source == nil:
		return nil, fmt.Errorf("entity source is required")
	case opts.Resolver == nil:
		return nil, fmt.Errorf("recipient resolver is required")
	case opts.Notifier == nil:
		return nil, fmt.Errorf("notifier is required")
	case opts.Composer == nil:
		return nil, fmt.Errorf("composer is required")
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = DefaultNotifyTimeout
	}
	if opts.MinAgeDays <= 0 {
		opts.MinAgeDays = alerting.MinAgeDays
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Orchestrator{
		catalog:       opts.Catalog,
		controller:    opts.Controller,
		source:        opts.Source,
		resolver:      opts.Resolver,
		notifier:      opts.Notifier,
		composer:      opts.Composer,
		notifyTimeout: opts.NotifyTimeout,
		minAgeDays:    opts.MinAgeDays,
		logger:        opts.Logger,
	}, nil
}

// Summary is the outcome of one run.
type Summary struct {
	RunID             string         `json:"run_id"`
	StartedAt         time.Time      `json:"started_at"`
	Duration          time.Duration  `json:"duration_ns"`
	EntitiesProcessed int            `json:"entities_processed"`
	Sent              int            `json:"sent"`
	Skipped           int            `json:"skipped"`
	Errors            int            `json:"errors"`
	Degraded          bool           `json:"degraded"`
	Aborted           bool           `json:"aborted"`
	SkipReasons       map[string]int `json:"skip_reasons"`
}

func (s *Summary) skip(reason alerting.DecisionReason) {
	s.Skipped++
	s.SkipReasons[string(reason)]++
}

// Run performs one alert cycle. A concurrent call returns ErrRunInProgress
// without touching any state. When the record source fails, Run returns an
// empty degraded summary and an error wrapping ErrSourceUnavailable. When
// ctx is cancelled, Run stops between entities and returns the partial
// summary with Aborted set and a nil error.
func (o *Orchestrator) Run(ctx context.Context) (sum Summary, err error) {
	if !o.runMu.TryLock() {
		metrics.DispatchRunsTotal.WithLabelValues("locked").Inc()
		return Summary{}, ErrRunInProgress
	}
	defer o.runMu.Unlock()

	start := time.Now()
	// Minute resolution keeps scheduler jitter from shifting a rule's
	// frequency window from one run to the next.
	now := o.controller.Now().Truncate(time.Minute)
	sum = Summary{
		RunID:       uuid.NewString(),
		StartedAt:   now,
		SkipReasons: make(map[string]int),
	}
	logger := o.logger.With(zap.String("run_id", sum.RunID))

	defer func() {
		sum.Duration = time.Since(start)
		metrics.DispatchRunDuration.Observe(sum.Duration.Seconds())
		o.setLastRun(sum)
	}()

	entities, err := o.source.ListActive(ctx)
	if err != nil {
		sum.Degraded = true
		metrics.DispatchRunsTotal.WithLabelValues("degraded").Inc()
		metrics.DispatchRunsDegradedTotal.Inc()
		logger.Error("failed to load entities, no alerts sent", zap.Error(err))
		return sum, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	metrics.DispatchEntitiesTracked.Set(float64(len(entities)))

	cat := o.catalog.Current()
	for _, entity := range entities {
		if ctx.Err() != nil {
			sum.Aborted = true
			break
		}
		if entity == nil {
			continue
		}
		o.processEntity(ctx, logger, cat, entity, now, &sum)
	}

	outcome := "ok"
	switch {
	case sum.Aborted:
		outcome = "aborted"
	case sum.Degraded:
		outcome = "degraded"
		metrics.DispatchRunsDegradedTotal.Inc()
	}
	metrics.DispatchRunsTotal.WithLabelValues(outcome).Inc()

	logger.Info("alert run finished",
		zap.Int("entities", sum.EntitiesProcessed),
		zap.Int("sent", sum.Sent),
		zap.Int("skipped", sum.Skipped),
		zap.Int("errors", sum.Errors),
		zap.Bool("degraded", sum.Degraded),
		zap.Bool("aborted", sum.Aborted),
	)
	return sum, nil
}

// processEntity evaluates one entity. Panics are recovered and counted.
func (o *Orchestrator) processEntity(ctx context.Context, logger *zap.Logger, cat *alerting.Catalog, entity *models.TrackedEntity, now time.Time, sum *Summary) {
	defer func() {
		if r := recover(); r != nil {
			sum.Errors++
			metrics.DispatchErrorsTotal.WithLabelValues("panic").Inc()
			logger.Error("panic while processing entity",
				zap.String("entity_id", entity.ID),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	age := alerting.AgeDays(entity, now)
	if age < o.minAgeDays {
		return
	}
	sum.EntitiesProcessed++

	// Most urgent first so the daily cap is spent on the highest level.
	triggered := cat.Triggered(age)
	for i := len(triggered) - 1; i >= 0; i-- {
		o.processRule(ctx, logger, entity, triggered[i], age, now, sum)
	}
}

func (o *Orchestrator) processRule(ctx context.Context, logger *zap.Logger, entity *models.TrackedEntity, rule *alerting.Rule, age int, now time.Time, sum *Summary) {
	log := logger.With(
		zap.String("entity_id", entity.ID),
		zap.String("rule", rule.Name()),
		zap.Int("age_days", age),
	)

	// Recipients and the message are built only once the controller allows
	// the send, so throttled rules never render.
	var recipients []string
	out, err := o.controller.TrySendAt(ctx, entity, rule, now, func(ctx context.Context) (*alerting.Delivery, error) {
		recipients = o.resolver.Resolve(rule.Recipients, entity.Owner)
		if len(recipients) == 0 {
			return nil, errNoRecipients
		}
		msg, err := o.composer.Compose(rule, alerting.NewRenderData(entity, rule, age, now))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errRender, err)
		}
		msg.Recipients = recipients

		sendCtx, cancel := context.WithTimeout(ctx, o.notifyTimeout)
		defer cancel()
		if err := o.notifier.Send(sendCtx, msg); err != nil {
			return nil, err
		}
		return &alerting.Delivery{Recipients: recipients, Subject: msg.Subject}, nil
	})

	switch {
	case out.Sent:
		sum.Sent++
		metrics.DispatchAlertsSentTotal.WithLabelValues(string(rule.Level)).Inc()
		if err != nil {
			sum.Errors++
			stage := "state"
			if errors.Is(err, alerting.ErrHistoryWrite) {
				stage = "history"
			}
			metrics.DispatchErrorsTotal.WithLabelValues(stage).Inc()
			log.Error("alert sent but not fully recorded", zap.Error(err))
			return
		}
		log.Info("alert sent", zap.Strings("recipients", recipients))
	case errors.Is(err, errNoRecipients):
		sum.skip(alerting.ReasonNoRecipients)
		log.Warn("no recipients for rule", zap.String("class", string(rule.Recipients)))
	case errors.Is(err, errRender):
		sum.Errors++
		metrics.DispatchErrorsTotal.WithLabelValues("render").Inc()
		log.Error("failed to render alert", zap.Error(err))
	case errors.Is(err, alerting.ErrSendFailed):
		sum.Errors++
		metrics.DispatchErrorsTotal.WithLabelValues("notify").Inc()
		log.Error("failed to send alert", zap.Error(err))
	case err != nil:
		// The controller could not read state or history: fail closed.
		sum.Errors++
		sum.Degraded = true
		sum.skip(out.Decision.Reason)
		metrics.DispatchErrorsTotal.WithLabelValues("state").Inc()
		log.Error("send check failed, alert withheld", zap.Error(err))
	default:
		sum.skip(out.Decision.Reason)
	}
}

// LastRun returns the most recent run summary, or nil before the first run.
func (o *Orchestrator) LastRun() *Summary {
	o.lastMu.RLock()
	defer o.lastMu.RUnlock()
	if o.lastRun == nil {
		return nil
	}
	s := *o.lastRun
	return &s
}

func (o *Orchestrator) setLastRun(s Summary) {
	o.lastMu.Lock()
	defer o.lastMu.Unlock()
	o.lastRun = &s
}
