// Package scheduler triggers alert runs on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/staleguard/internal/dispatch"
)

// DefaultSchedule runs every weekday morning at 09:05.
const DefaultSchedule = "5 9 * * 1-5"

// Runner performs one alert run.
type Runner interface {
	Run(ctx context.Context) (dispatch.Summary, error)
}

// Config configures the scheduler.
type Config struct {
	// Schedule is a standard five-field cron expression or a descriptor
	// such as "@hourly" or "@every 30m".
	Schedule string
	// Location is the time zone the schedule is evaluated in. Defaults to UTC.
	Location *time.Location
	// RunTimeout bounds a single run. Zero means no limit.
	RunTimeout time.Duration
	// RunOnStart triggers one run immediately when the scheduler starts.
	RunOnStart bool
}

// Scheduler runs a Runner on a cron schedule. Overlapping ticks are skipped.
type Scheduler struct {
	runner   Runner
	cfg      Config
	schedule cron.Schedule
	logger   *zap.Logger

	mu   sync.Mutex
	cron *cron.Cron
	wg   sync.WaitGroup
}

// New validates the schedule and creates a scheduler.
func New(runner Runner, cfg Config, logger *zap.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.Schedule) == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	schedule, err := cron.ParseStandard(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
	}

	return &Scheduler{
		runner:   runner,
		cfg:      cfg,
		schedule: schedule,
		logger:   logger.Named("scheduler"),
	}, nil
}

// Start begins scheduling. Runs receive a context derived from ctx.
// Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return
	}

	cl := cronLogger{s.logger}
	s.cron = cron.New(
		cron.WithLocation(s.cfg.Location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	s.cron.Schedule(s.schedule, cron.FuncJob(func() { s.runOnce(ctx) }))
	s.cron.Start()

	s.logger.Info("scheduler started",
		zap.String("schedule", s.cfg.Schedule),
		zap.String("location", s.cfg.Location.String()),
		zap.Time("next_run", s.schedule.Next(time.Now().In(s.cfg.Location))),
	)

	if s.cfg.RunOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runOnce(ctx)
		}()
	}
}

// Stop stops scheduling and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Run starts the scheduler and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start(ctx)
	<-ctx.Done()
	s.Stop()
	return nil
}

// Next returns the next scheduled run after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.cfg.Location))
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}

	sum, err := s.runner.Run(ctx)
	switch {
	case errors.Is(err, dispatch.ErrRunInProgress):
		s.logger.Info("skipping scheduled run, another run is in progress")
	case err != nil:
		s.logger.Error("scheduled run failed", zap.Error(err), zap.Bool("degraded", sum.Degraded))
	default:
		s.logger.Debug("scheduled run completed",
			zap.String("run_id", sum.RunID),
			zap.Int("sent", sum.Sent),
			zap.Int("errors", sum.Errors),
		)
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
