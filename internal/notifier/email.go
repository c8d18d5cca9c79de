package notifier

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"
)

// EmailConfig holds SMTP configuration.
type EmailConfig struct {
	Host     string // SMTP server host
	Port     int    // SMTP server port (465 for implicit TLS, 587 for STARTTLS)
	Username string // SMTP username (optional)
	Password string // SMTP password (optional)
	From     string // From address, optionally "Name <addr>"
	// RequireTLS fails the send when the server does not offer STARTTLS.
	RequireTLS bool
}

// Validate validates the email configuration.
func (c *EmailConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("SMTP host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("SMTP port is required")
	}
	if c.From == "" {
		return fmt.Errorf("from address is required")
	}
	if _, err := mail.ParseAddress(c.From); err != nil {
		return fmt.Errorf("invalid from address %q: %w", c.From, err)
	}
	return nil
}

// ErrNoRecipients is returned when a message has no recipients.
var ErrNoRecipients = errors.New("message has no recipients")

// EmailNotifier sends alerts via SMTP to the recipients carried by each message.
type EmailNotifier struct {
	config EmailConfig
	now    func() time.Time
}

// NewEmailNotifier creates a new email notifier.
func NewEmailNotifier(config EmailConfig) (*EmailNotifier, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid email config: %w", err)
	}
	return &EmailNotifier{config: config, now: time.Now}, nil
}

// Name returns "email".
func (e *EmailNotifier) Name() string {
	return "email"
}

// Send delivers msg to msg.Recipients.
func (e *EmailNotifier) Send(ctx context.Context, msg *Message) error {
	if len(msg.Recipients) == 0 {
		return ErrNoRecipients
	}

	body, err := e.buildMIMEMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to build message: %w", err)
	}
	return e.sendMail(ctx, msg.Recipients, body)
}

// Close is a no-op for email notifier.
func (e *EmailNotifier) Close() error {
	return nil
}

// buildMIMEMessage builds a MIME multipart message with HTML and plain text.
func (e *EmailNotifier) buildMIMEMessage(msg *Message) ([]byte, error) {
	now := e.now()
	boundary := fmt.Sprintf("----=_Part_%d", now.UnixNano())

	var buf bytes.Buffer

	// Headers
	fmt.Fprintf(&buf, "From: %s\r\n", e.config.From)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(msg.Recipients, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", now.Format(time.RFC1123Z))
	if msg.EntityID != "" {
		fmt.Fprintf(&buf, "X-Staleguard-Entity: %s\r\n", msg.EntityID)
		fmt.Fprintf(&buf, "X-Staleguard-Level: %s\r\n", msg.Level)
	}
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	buf.WriteString("\r\n")

	parts := []struct {
		contentType string
		body        string
	}{
		{"text/plain", msg.TextBody},
		{"text/html", msg.HTMLBody},
	}
	for _, p := range parts {
		if p.body == "" {
			continue
		}
		fmt.Fprintf(&buf, "--%s\r\n", boundary)
		fmt.Fprintf(&buf, "Content-Type: %s; charset=UTF-8\r\n", p.contentType)
		buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n")
		buf.WriteString("\r\n")

		qp := quotedprintable.NewWriter(&buf)
		if _, err := qp.Write([]byte(p.body)); err != nil {
			return nil, err
		}
		if err := qp.Close(); err != nil {
			return nil, err
		}
		buf.WriteString("\r\n")
	}

	// End boundary
	fmt.Fprintf(&buf, "--%s--\r\n", boundary)

	return buf.Bytes(), nil
}

// sendMail sends the email via SMTP.
func (e *EmailNotifier) sendMail(ctx context.Context, recipients []string, msg []byte) error {
	addr := net.JoinHostPort(e.config.Host, fmt.Sprintf("%d", e.config.Port))

	tlsConfig := &tls.Config{
		ServerName: e.config.Host,
		MinVersion: tls.VersionTLS12,
	}

	var client *smtp.Client
	var err error

	if e.config.Port == 465 {
		// Implicit TLS (SMTPS)
		client, err = e.connectImplicitTLS(ctx, addr, tlsConfig)
	} else {
		// STARTTLS (port 587 or 25)
		client, err = e.connectSTARTTLS(ctx, addr, tlsConfig)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	if e.config.Username != "" && e.config.Password != "" {
		auth := smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(extractEmail(e.config.From)); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}

	for _, rcpt := range recipients {
		if err := client.Rcpt(extractEmail(rcpt)); err != nil {
			return fmt.Errorf("failed to add recipient %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data: %w", err)
	}

	return client.Quit()
}

// connectImplicitTLS connects using implicit TLS (port 465).
func (e *EmailNotifier) connectImplicitTLS(ctx context.Context, addr string, tlsConfig *tls.Config) (*smtp.Client, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: 30 * time.Second},
		Config:    tlsConfig,
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	setDeadline(ctx, conn)

	client, err := smtp.NewClient(conn, e.config.Host)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return client, nil
}

// connectSTARTTLS connects using STARTTLS (port 587 or 25).
func (e *EmailNotifier) connectSTARTTLS(ctx context.Context, addr string, tlsConfig *tls.Config) (*smtp.Client, error) {
	dialer := &net.Dialer{
		Timeout: 30 * time.Second,
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	setDeadline(ctx, conn)

	client, err := smtp.NewClient(conn, e.config.Host)
	if err != nil {
		conn.Close()
		return nil, err
	}

	ok, _ := client.Extension("STARTTLS")
	if ok {
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return nil, fmt.Errorf("STARTTLS failed: %w", err)
		}
	} else if e.config.RequireTLS {
		client.Close()
		return nil, fmt.Errorf("server does not support STARTTLS")
	}

	return client, nil
}

// setDeadline bounds the whole SMTP conversation by ctx.
func setDeadline(ctx context.Context, conn net.Conn) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
}

// extractEmail extracts the email address from a "Name <email>" format.
func extractEmail(addr string) string {
	if parsed, err := mail.ParseAddress(addr); err == nil {
		return parsed.Address
	}
	return strings.TrimSpace(addr)
}
