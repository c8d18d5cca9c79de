package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/good-yellow-bee/staleguard/internal/models"
)

const defaultWebhookTimeout = 30 * time.Second

// validateWebhookURL rejects empty and non-HTTPS webhook URLs.
func validateWebhookURL(url string) error {
	if url == "" {
		return fmt.Errorf("webhook URL is required")
	}
	if !strings.HasPrefix(url, "https://") {
		return fmt.Errorf("webhook URL must use HTTPS")
	}
	return nil
}

// validateMinLevel accepts an empty level (mirror everything) or a known level.
func validateMinLevel(level models.Level) error {
	if level == "" || level.Valid() {
		return nil
	}
	return fmt.Errorf("unknown min level %q", level)
}

// belowLevel reports whether msg should be skipped by a channel mirroring only min and above.
func belowLevel(msg *Message, min models.Level) bool {
	if min == "" || msg.Test {
		return false
	}
	return msg.Level.Rank() < min.Rank()
}

// postJSON posts payload to url and expects 200 OK.
func postJSON(ctx context.Context, client *http.Client, url, service string, payload any) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s API error: status %d, body: %s", service, resp.StatusCode, string(body))
	}
	return nil
}

// levelEmoji returns an emoji for the alert level.
func levelEmoji(level models.Level) string {
	switch level {
	case models.LevelCritical:
		return "\U0001F534" // red circle
	case models.LevelUrgent:
		return "\U0001F7E0" // orange circle
	case models.LevelWarning:
		return "\U0001F7E1" // yellow circle
	case models.LevelInfo:
		return "\U0001F535" // blue circle
	default:
		return "⚪" // white circle
	}
}

// truncate truncates a string to max runes with ellipsis.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
