package notifier

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/good-yellow-bee/staleguard/internal/models"
)

// TeamsConfig holds Microsoft Teams webhook configuration.
type TeamsConfig struct {
	WebhookURL string       // Teams incoming webhook URL
	MinLevel   models.Level // Lowest level mirrored to Teams; empty mirrors everything
}

// Validate validates the Teams configuration.
func (c *TeamsConfig) Validate() error {
	if err := validateWebhookURL(c.WebhookURL); err != nil {
		return err
	}
	return validateMinLevel(c.MinLevel)
}

// TeamsNotifier mirrors alerts to Microsoft Teams via webhook.
type TeamsNotifier struct {
	config     TeamsConfig
	httpClient *http.Client
}

// NewTeamsNotifier creates a new Teams notifier.
func NewTeamsNotifier(config TeamsConfig) (*TeamsNotifier, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid teams config: %w", err)
	}

	return &TeamsNotifier{
		config:     config,
		httpClient: &http.Client{Timeout: defaultWebhookTimeout},
	}, nil
}

// Name returns "teams".
func (t *TeamsNotifier) Name() string {
	return "teams"
}

// Send posts msg to Teams. Messages below MinLevel are skipped.
func (t *TeamsNotifier) Send(ctx context.Context, msg *Message) error {
	if belowLevel(msg, t.config.MinLevel) {
		return nil
	}
	return postJSON(ctx, t.httpClient, t.config.WebhookURL, "teams", t.buildPayload(msg))
}

// Close is a no-op for Teams notifier.
func (t *TeamsNotifier) Close() error {
	return nil
}

// teamsMessage represents the Teams webhook payload with Adaptive Card.
type teamsMessage struct {
	Type        string            `json:"type"`
	Attachments []teamsAttachment `json:"attachments"`
}

type teamsAttachment struct {
	ContentType string       `json:"contentType"`
	ContentURL  *string      `json:"contentUrl"`
	Content     adaptiveCard `json:"content"`
}

type adaptiveCard struct {
	Schema  string `json:"$schema"`
	Type    string `json:"type"`
	Version string `json:"version"`
	Body    []any  `json:"body"`
}

// Adaptive Card element types
type textBlock struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	Size   string `json:"size,omitempty"`
	Weight string `json:"weight,omitempty"`
	Color  string `json:"color,omitempty"`
	Wrap   bool   `json:"wrap,omitempty"`
}

type factSet struct {
	Type  string `json:"type"`
	Facts []fact `json:"facts"`
}

type fact struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

type container struct {
	Type  string `json:"type"`
	Style string `json:"style,omitempty"`
	Items []any  `json:"items"`
}

func (t *TeamsNotifier) buildPayload(msg *Message) teamsMessage {
	emoji := levelEmoji(msg.Level)

	body := []any{
		container{
			Type:  "Container",
			Style: teamsLevelStyle(msg.Level),
			Items: []any{
				textBlock{
					Type:   "TextBlock",
					Text:   fmt.Sprintf("%s %s", emoji, msg.Subject),
					Size:   "Large",
					Weight: "Bolder",
					Wrap:   true,
				},
			},
		},
		factSet{
			Type: "FactSet",
			Facts: []fact{
				{Title: "Level", Value: fmt.Sprintf("%s %s", emoji, strings.ToUpper(string(msg.Level)))},
				{Title: "Entity", Value: msg.EntityID},
				{Title: "Age", Value: fmt.Sprintf("%d days", msg.AgeDays)},
				{Title: "Rule", Value: fmt.Sprintf("%d days", msg.DayThreshold)},
			},
		},
		textBlock{
			Type: "TextBlock",
			Text: truncate(msg.TextBody, 4000),
			Wrap: true,
		},
	}

	if len(msg.Recipients) > 0 {
		body = append(body, textBlock{
			Type:  "TextBlock",
			Text:  fmt.Sprintf("_Sent to: %s_", strings.Join(msg.Recipients, ", ")),
			Wrap:  true,
			Color: "light",
		})
	}

	return teamsMessage{
		Type: "message",
		Attachments: []teamsAttachment{
			{
				ContentType: "application/vnd.microsoft.card.adaptive",
				Content: adaptiveCard{
					Schema:  "http://adaptivecards.io/schemas/adaptive-card.json",
					Type:    "AdaptiveCard",
					Version: "1.4",
					Body:    body,
				},
			},
		},
	}
}

// teamsLevelStyle returns an Adaptive Card container style for the level.
func teamsLevelStyle(level models.Level) string {
	switch level {
	case models.LevelCritical:
		return "attention" // red
	case models.LevelUrgent:
		return "warning" // orange/yellow
	case models.LevelWarning:
		return "accent" // blue
	case models.LevelInfo:
		return "good" // green
	default:
		return "default"
	}
}
