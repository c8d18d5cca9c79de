// Package alerting provides the progressive alert engine for staleguard.
// It holds the rule catalog, the age calculator and the cooldown/frequency
// controller that decides whether an alert may be sent for an entity.
package alerting

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/good-yellow-bee/staleguard/internal/models"
)

// RecipientClass selects who receives the alerts of a rule.
type RecipientClass string

const (
	// RecipientProjectManager sends to the entity owner's project manager.
	RecipientProjectManager RecipientClass = "project_manager"
	// RecipientController sends to the financial controllers.
	RecipientController RecipientClass = "controller"
	// RecipientAll sends to both project managers and controllers.
	RecipientAll RecipientClass = "all"
)

// ParseRecipientClass converts a string to RecipientClass.
func ParseRecipientClass(s string) (RecipientClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "project_manager", "projectmanager", "pm":
		return RecipientProjectManager, nil
	case "controller":
		return RecipientController, nil
	case "all":
		return RecipientAll, nil
	default:
		return "", fmt.Errorf("unknown recipient class %q", s)
	}
}

// Rule is an immutable catalog entry describing when and how urgently to alert.
type Rule struct {
	// DayThreshold is the minimum age in days for the rule to trigger.
	DayThreshold int `yaml:"days"`
	// Level is the alert urgency.
	Level models.Level `yaml:"level"`
	// BaseFrequencyHours is the minimum interval between sends of this rule.
	BaseFrequencyHours int `yaml:"frequency_hours"`
	// SubjectTemplate is a text/template for the notification subject.
	SubjectTemplate string `yaml:"subject"`
	// MessageTemplate is a text/template for the notification body.
	MessageTemplate string `yaml:"message"`
	// Recipients selects the recipient class.
	Recipients RecipientClass `yaml:"recipients"`

	subject *template.Template
	message *template.Template
}

// Validate validates the rule and compiles its templates.
func (r *Rule) Validate() error {
	if r.DayThreshold < 0 {
		return fmt.Errorf("days must not be negative (got %d)", r.DayThreshold)
	}

	level, err := models.ParseLevel(string(r.Level))
	if err != nil {
		return fmt.Errorf("rule %dd: %w", r.DayThreshold, err)
	}
	r.Level = level

	if r.BaseFrequencyHours <= 0 {
		return fmt.Errorf("frequency_hours must be positive for rule %dd", r.DayThreshold)
	}

	class, err := ParseRecipientClass(string(r.Recipients))
	if err != nil {
		return fmt.Errorf("rule %dd: %w", r.DayThreshold, err)
	}
	r.Recipients = class

	if strings.TrimSpace(r.SubjectTemplate) == "" {
		return fmt.Errorf("subject is required for rule %dd", r.DayThreshold)
	}
	r.subject, err = template.New(r.Name() + "-subject").Option("missingkey=error").Parse(r.SubjectTemplate)
	if err != nil {
		return fmt.Errorf("invalid subject template for rule %dd: %w", r.DayThreshold, err)
	}

	if strings.TrimSpace(r.MessageTemplate) == "" {
		return fmt.Errorf("message is required for rule %dd", r.DayThreshold)
	}
	r.message, err = template.New(r.Name() + "-message").Option("missingkey=error").Parse(r.MessageTemplate)
	if err != nil {
		return fmt.Errorf("invalid message template for rule %dd: %w", r.DayThreshold, err)
	}

	return nil
}

// Name returns a short identifier such as "30d-critical".
func (r *Rule) Name() string {
	return fmt.Sprintf("%dd-%s", r.DayThreshold, r.Level)
}

// BaseFrequency returns the base frequency as a duration.
func (r *Rule) BaseFrequency() time.Duration {
	return time.Duration(r.BaseFrequencyHours) * time.Hour
}

// IsCritical reports whether the rule bypasses business-hours gating.
func (r *Rule) IsCritical() bool {
	return r.Level == models.LevelCritical
}

// Render renders the subject and message templates.
func (r *Rule) Render(data *RenderData) (subject, message string, err error) {
	if r.subject == nil || r.message == nil {
		if err := r.Validate(); err != nil {
			return "", "", err
		}
	}

	var buf bytes.Buffer
	if err := r.subject.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render subject for rule %s: %w", r.Name(), err)
	}
	subject = strings.TrimSpace(buf.String())

	buf.Reset()
	if err := r.message.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render message for rule %s: %w", r.Name(), err)
	}
	return subject, buf.String(), nil
}

// RulesConfig represents the top-level YAML rules file.
type RulesConfig struct {
	Rules []*Rule `yaml:"rules"`
}
