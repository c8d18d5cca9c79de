package notifier

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/good-yellow-bee/staleguard/internal/models"
)

// SlackConfig holds Slack webhook configuration.
type SlackConfig struct {
	WebhookURL string       // Slack incoming webhook URL
	MinLevel   models.Level // Lowest level mirrored to Slack; empty mirrors everything
}

// Validate validates the Slack configuration.
func (c *SlackConfig) Validate() error {
	if err := validateWebhookURL(c.WebhookURL); err != nil {
		return err
	}
	return validateMinLevel(c.MinLevel)
}

// SlackNotifier mirrors alerts to a Slack channel via incoming webhook.
type SlackNotifier struct {
	config     SlackConfig
	httpClient *http.Client
}

// NewSlackNotifier creates a new Slack notifier.
func NewSlackNotifier(config SlackConfig) (*SlackNotifier, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid slack config: %w", err)
	}

	return &SlackNotifier{
		config:     config,
		httpClient: &http.Client{Timeout: defaultWebhookTimeout},
	}, nil
}

// Name returns "slack".
func (s *SlackNotifier) Name() string {
	return "slack"
}

// Send posts msg to Slack. Messages below MinLevel are skipped.
func (s *SlackNotifier) Send(ctx context.Context, msg *Message) error {
	if belowLevel(msg, s.config.MinLevel) {
		return nil
	}
	return postJSON(ctx, s.httpClient, s.config.WebhookURL, "slack", s.buildPayload(msg))
}

// Close is a no-op for Slack notifier.
func (s *SlackNotifier) Close() error {
	return nil
}

// slackMessage represents the Slack webhook payload.
type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

// slackBlock represents a Slack Block Kit block.
type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Fields   []slackText `json:"fields,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

// slackText represents text in Slack Block Kit.
type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

func (s *SlackNotifier) buildPayload(msg *Message) slackMessage {
	emoji := levelEmoji(msg.Level)

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{
				Type:  "plain_text",
				Text:  truncate(fmt.Sprintf("%s %s", emoji, msg.Subject), 150),
				Emoji: true,
			},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: fmt.Sprintf("*Level:*\n%s %s", emoji, strings.ToUpper(string(msg.Level)))},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Entity:*\n%s", msg.EntityID)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Age:*\n%d days", msg.AgeDays)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Rule:*\n%d days", msg.DayThreshold)},
			},
		},
		{
			Type: "section",
			Text: &slackText{
				Type: "mrkdwn",
				Text: truncate(msg.TextBody, 2900),
			},
		},
	}

	if len(msg.Recipients) > 0 {
		blocks = append(blocks, slackBlock{
			Type: "context",
			Elements: []slackText{
				{Type: "mrkdwn", Text: fmt.Sprintf("Sent to: %s", strings.Join(msg.Recipients, ", "))},
			},
		})
	}

	return slackMessage{
		Text:   msg.Subject,
		Blocks: blocks,
	}
}
