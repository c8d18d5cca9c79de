package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/staleguard/internal/alerting"
	"github.com/good-yellow-bee/staleguard/internal/logging"
	"github.com/good-yellow-bee/staleguard/internal/models"
	"github.com/good-yellow-bee/staleguard/internal/recipients"
	"github.com/good-yellow-bee/staleguard/internal/scheduler"
)

// State backends accepted by state.backend.
const (
	StateBackendMemory = "memory"
	StateBackendSQLite = "sqlite"
	StateBackendRedis  = "redis"
)

// Environment variables that override secrets and paths from the config file.
const (
	envDBPath        = "STALEGUARD_DB_PATH"
	envSMTPPassword  = "STALEGUARD_SMTP_PASSWORD"
	envRedisPassword = "STALEGUARD_REDIS_PASSWORD"
)

// Config represents the staleguard configuration file.
type Config struct {
	Database      DatabaseConfig       `yaml:"database"`
	State         StateConfig          `yaml:"state"`
	Redis         RedisConfig          `yaml:"redis"`
	Rules         RulesConfig          `yaml:"rules"`
	Alerts        AlertsConfig         `yaml:"alerts"`
	BusinessHours BusinessHoursConfig  `yaml:"business_hours"`
	Schedule      ScheduleConfig       `yaml:"schedule"`
	Recipients    recipients.Directory `yaml:"recipients"`
	Notifiers     NotifiersConfig      `yaml:"notifiers"`
	HTTP          HTTPConfig           `yaml:"http"`
	Metrics       MetricsConfig        `yaml:"metrics"`
	Logging       logging.Config       `yaml:"logging"`
	// Timezone is an IANA zone name used for business hours, the daily cap
	// day boundary and the cron schedule.
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// StateConfig selects the cooldown state backend.
type StateConfig struct {
	Backend string `yaml:"backend"` // memory, sqlite, redis
}

// RedisConfig contains Redis settings for the redis state backend.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
	StateTTL string `yaml:"state_ttl"`
}

// RulesConfig points at an optional rules file.
type RulesConfig struct {
	// File is a YAML rule catalog. Empty uses the built-in catalog.
	File string `yaml:"file"`
	// Watch reloads the file on change while serving.
	Watch bool `yaml:"watch"`
}

// AlertsConfig contains dispatch and throttling settings.
type AlertsConfig struct {
	DailyCap         int      `yaml:"daily_cap"`
	MinAgeDays       int      `yaml:"min_age_days"`
	NotifyTimeout    string   `yaml:"notify_timeout"`
	TerminalStatuses []string `yaml:"terminal_statuses"`
	// DryRun logs alerts instead of delivering them.
	DryRun bool `yaml:"dry_run"`
}

// BusinessHoursConfig is the window for non-critical alerts.
type BusinessHoursConfig struct {
	Start int      `yaml:"start"`
	End   int      `yaml:"end"`
	Days  []string `yaml:"days"`
}

// ScheduleConfig controls the cron scheduler used by serve.
type ScheduleConfig struct {
	Cron       string `yaml:"cron"`
	RunOnStart bool   `yaml:"run_on_start"`
	RunTimeout string `yaml:"run_timeout"`
}

// NotifiersConfig contains the delivery channels.
type NotifiersConfig struct {
	Email     EmailConfig     `yaml:"email"`
	Slack     WebhookConfig   `yaml:"slack"`
	Teams     WebhookConfig   `yaml:"teams"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// EmailConfig contains SMTP settings.
type EmailConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	From       string `yaml:"from"`
	RequireTLS bool   `yaml:"require_tls"`
}

// WebhookConfig configures a chat mirror.
type WebhookConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
	// MinLevel is the lowest level mirrored. Defaults to urgent.
	MinLevel string `yaml:"min_level"`
}

// RateLimitConfig bounds outgoing notifications.
type RateLimitConfig struct {
	Enabled      *bool  `yaml:"enabled"`
	MaxPerWindow int    `yaml:"max_per_window"`
	Window       string `yaml:"window"`
}

// HTTPConfig contains API server settings.
type HTTPConfig struct {
	Address            string `yaml:"address"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
	Verbose            bool   `yaml:"verbose"`
}

// MetricsConfig contains Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnv()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with default values. Without a
// config file there is no delivery channel, so alerts are only logged.
func DefaultConfig() *Config {
	cfg := &Config{Alerts: AlertsConfig{DryRun: true}}
	cfg.applyEnv()
	cfg.setDefaults()
	return cfg
}

// applyEnv overrides secrets and paths from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv(envDBPath); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(envSMTPPassword); v != "" {
		c.Notifiers.Email.Password = v
	}
	if v := os.Getenv(envRedisPassword); v != "" {
		c.Redis.Password = v
	}
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = "./data/staleguard.db"
	}
	if c.State.Backend == "" {
		c.State.Backend = StateBackendSQLite
	}
	if c.Redis.Address == "" {
		c.Redis.Address = "localhost:6379"
	}
	if c.Redis.StateTTL == "" {
		c.Redis.StateTTL = "2160h"
	}
	if c.Alerts.DailyCap == 0 {
		c.Alerts.DailyCap = alerting.DefaultDailyCap
	}
	if c.Alerts.MinAgeDays == 0 {
		c.Alerts.MinAgeDays = alerting.MinAgeDays
	}
	if c.Alerts.NotifyTimeout == "" {
		c.Alerts.NotifyTimeout = "30s"
	}
	if c.Alerts.TerminalStatuses == nil {
		c.Alerts.TerminalStatuses = models.DefaultTerminalStatuses
	}
	if c.BusinessHours.Start == 0 && c.BusinessHours.End == 0 {
		c.BusinessHours.Start = 9
		c.BusinessHours.End = 18
	}
	if len(c.BusinessHours.Days) == 0 {
		c.BusinessHours.Days = []string{"mon", "tue", "wed", "thu", "fri"}
	}
	if c.Schedule.Cron == "" {
		c.Schedule.Cron = scheduler.DefaultSchedule
	}
	if c.Schedule.RunTimeout == "" {
		c.Schedule.RunTimeout = "10m"
	}
	if c.Notifiers.Email.Port == 0 {
		c.Notifiers.Email.Port = 587
	}
	if c.Notifiers.Slack.MinLevel == "" {
		c.Notifiers.Slack.MinLevel = string(models.LevelUrgent)
	}
	if c.Notifiers.Teams.MinLevel == "" {
		c.Notifiers.Teams.MinLevel = string(models.LevelUrgent)
	}
	if c.Notifiers.RateLimit.MaxPerWindow == 0 {
		c.Notifiers.RateLimit.MaxPerWindow = 10
	}
	if c.Notifiers.RateLimit.Window == "" {
		c.Notifiers.RateLimit.Window = "1m"
	}
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = logging.FormatJSON
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.State.Backend {
	case StateBackendMemory, StateBackendSQLite:
	case StateBackendRedis:
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address is required for the redis state backend")
		}
		if _, err := parsePositiveDuration("redis.state_ttl", c.Redis.StateTTL); err != nil {
			return err
		}
	default:
		return fmt.Errorf("state.backend must be memory, sqlite or redis (got %q)", c.State.Backend)
	}

	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Alerts.DailyCap < 0 {
		return fmt.Errorf("alerts.daily_cap must not be negative")
	}
	if c.Alerts.MinAgeDays < 0 {
		return fmt.Errorf("alerts.min_age_days must not be negative")
	}
	if _, err := parsePositiveDuration("alerts.notify_timeout", c.Alerts.NotifyTimeout); err != nil {
		return err
	}
	if _, err := parsePositiveDuration("schedule.run_timeout", c.Schedule.RunTimeout); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	if _, err := c.businessHours(); err != nil {
		return err
	}

	if err := c.Recipients.Validate(); err != nil {
		return fmt.Errorf("recipients: %w", err)
	}
	if c.Notifiers.Email.Enabled {
		if c.Notifiers.Email.Host == "" {
			return fmt.Errorf("notifiers.email.host is required when email is enabled")
		}
		if c.Notifiers.Email.From == "" {
			return fmt.Errorf("notifiers.email.from is required when email is enabled")
		}
	}
	if c.Notifiers.Slack.Enabled && c.Notifiers.Slack.WebhookURL == "" {
		return fmt.Errorf("notifiers.slack.webhook_url is required when slack is enabled")
	}
	if c.Notifiers.Teams.Enabled && c.Notifiers.Teams.WebhookURL == "" {
		return fmt.Errorf("notifiers.teams.webhook_url is required when teams is enabled")
	}
	if !c.Alerts.DryRun && !c.Notifiers.Email.Enabled {
		return fmt.Errorf("notifiers.email must be enabled unless alerts.dry_run is set")
	}
	if _, err := parsePositiveDuration("notifiers.rate_limit.window", c.Notifiers.RateLimit.Window); err != nil {
		return err
	}
	if c.Notifiers.RateLimit.MaxPerWindow < 0 {
		return fmt.Errorf("notifiers.rate_limit.max_per_window must not be negative")
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}

// location returns the configured time zone.
func (c *Config) location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// businessHours builds the business-hours window from the config.
func (c *Config) businessHours() (alerting.BusinessHours, error) {
	days, err := alerting.ParseWeekdays(c.BusinessHours.Days)
	if err != nil {
		return alerting.BusinessHours{}, fmt.Errorf("business_hours.days: %w", err)
	}
	hours := alerting.BusinessHours{
		StartHour: c.BusinessHours.Start,
		EndHour:   c.BusinessHours.End,
		Days:      days,
		Location:  c.location(),
	}
	if err := hours.Validate(); err != nil {
		return alerting.BusinessHours{}, fmt.Errorf("business_hours: %w", err)
	}
	return hours, nil
}

func parsePositiveDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", field, value)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", field)
	}
	return d, nil
}

// mustDuration parses a duration that Validate has already checked.
func mustDuration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}
