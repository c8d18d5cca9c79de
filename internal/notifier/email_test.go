package notifier

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestEmailConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  EmailConfig
		wantErr bool
		errMsg  string
	}{
		{
			name:    "empty config",
			config:  EmailConfig{},
			wantErr: true,
			errMsg:  "SMTP host is required",
		},
		{
			name: "missing port",
			config: EmailConfig{
				Host: "smtp.example.com",
			},
			wantErr: true,
			errMsg:  "SMTP port is required",
		},
		{
			name: "missing from",
			config: EmailConfig{
				Host: "smtp.example.com",
				Port: 587,
			},
			wantErr: true,
			errMsg:  "from address is required",
		},
		{
			name: "invalid from",
			config: EmailConfig{
				Host: "smtp.example.com",
				Port: 587,
				From: "not an address",
			},
			wantErr: true,
			errMsg:  "invalid from address",
		},
		{
			name: "valid config",
			config: EmailConfig{
				Host: "smtp.example.com",
				Port: 587,
				From: "Staleguard <alerts@example.com>",
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error containing %q, got nil", tt.errMsg)
				} else if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("expected error containing %q, got %q", tt.errMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestEmailNotifierName(t *testing.T) {
	notifier := &EmailNotifier{}
	if got := notifier.Name(); got != "email" {
		t.Errorf("Name() = %q, want %q", got, "email")
	}
}

func TestBuildMIMEMessage(t *testing.T) {
	notifier := &EmailNotifier{
		config: EmailConfig{From: "alerts@example.com"},
		now:    func() time.Time { return time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC) },
	}

	msg := testMessage()
	msg.Recipients = []string{"a@example.com", "b@example.com"}
	msg.Subject = "Überfällig: INV-1"
	msg.HTMLBody = "<p>Please follow up.</p>"

	raw, err := notifier.buildMIMEMessage(msg)
	if err != nil {
		t.Fatalf("buildMIMEMessage: %v", err)
	}
	out := string(raw)

	checks := []string{
		"From: alerts@example.com\r\n",
		"To: a@example.com, b@example.com\r\n",
		"Subject: =?utf-8?q?",
		"X-Staleguard-Entity: INV-1\r\n",
		"X-Staleguard-Level: urgent\r\n",
		"MIME-Version: 1.0",
		"multipart/alternative",
		"Content-Type: text/plain; charset=UTF-8",
		"Content-Type: text/html; charset=UTF-8",
		"Content-Transfer-Encoding: quoted-printable",
		"<p>Please follow up.</p>",
	}
	for _, want := range checks {
		if !strings.Contains(out, want) {
			t.Errorf("MIME message missing %q", want)
		}
	}
	if !strings.HasSuffix(out, "--\r\n") {
		t.Error("MIME message missing closing boundary")
	}
}

func TestBuildMIMEMessageSkipsEmptyHTML(t *testing.T) {
	notifier := &EmailNotifier{config: EmailConfig{From: "alerts@example.com"}, now: time.Now}

	raw, err := notifier.buildMIMEMessage(testMessage())
	if err != nil {
		t.Fatalf("buildMIMEMessage: %v", err)
	}
	if strings.Contains(string(raw), "text/html") {
		t.Error("expected no HTML part for an empty HTML body")
	}
}

func TestExtractEmail(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"user@example.com", "user@example.com"},
		{"John Doe <john@example.com>", "john@example.com"},
		{"<admin@example.com>", "admin@example.com"},
		{" spaced@example.com ", "spaced@example.com"},
	}

	for _, tt := range tests {
		if got := extractEmail(tt.input); got != tt.want {
			t.Errorf("extractEmail(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestEmailNotifierRequiresRecipients(t *testing.T) {
	notifier, err := NewEmailNotifier(EmailConfig{Host: "localhost", Port: 2525, From: "alerts@example.com"})
	if err != nil {
		t.Fatalf("NewEmailNotifier: %v", err)
	}

	msg := testMessage()
	msg.Recipients = nil
	if err := notifier.Send(context.Background(), msg); !errors.Is(err, ErrNoRecipients) {
		t.Errorf("expected ErrNoRecipients, got %v", err)
	}
}

// mockSMTPServer is a minimal SMTP server for testing.
type mockSMTPServer struct {
	listener   net.Listener
	messages   [][]byte
	recipients []string
	mu         sync.Mutex
	wg         sync.WaitGroup
}

func newMockSMTPServer(t *testing.T) *mockSMTPServer {
	var lc net.ListenConfig
	listener, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}

	server := &mockSMTPServer{
		listener: listener,
		messages: make([][]byte, 0),
	}

	server.wg.Add(1)
	go server.serve()

	return server
}

func (s *mockSMTPServer) serve() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

func (s *mockSMTPServer) handleConnection(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	reply := func(line string) {
		writer.WriteString(line + "\r\n")
		writer.Flush()
	}

	reply("220 localhost SMTP Mock Server")

	var dataMode bool
	var messageData []byte

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}

		line = strings.TrimRight(line, "\r\n")

		if dataMode {
			if line == "." {
				dataMode = false
				s.mu.Lock()
				s.messages = append(s.messages, messageData)
				s.mu.Unlock()
				messageData = nil
				reply("250 OK")
				continue
			}
			messageData = append(messageData, []byte(line+"\n")...)
			continue
		}

		upperLine := strings.ToUpper(line)

		switch {
		case strings.HasPrefix(upperLine, "EHLO"), strings.HasPrefix(upperLine, "HELO"):
			writer.WriteString("250-localhost\r\n")
			reply("250 OK")
		case strings.HasPrefix(upperLine, "MAIL FROM"):
			reply("250 OK")
		case strings.HasPrefix(upperLine, "RCPT TO"):
			s.mu.Lock()
			s.recipients = append(s.recipients, line[len("RCPT TO:"):])
			s.mu.Unlock()
			reply("250 OK")
		case upperLine == "DATA":
			reply("354 Start mail input")
			dataMode = true
		case upperLine == "QUIT":
			reply("221 Bye")
			return
		default:
			reply("500 Unknown command")
		}
	}
}

func (s *mockSMTPServer) addr() string {
	return s.listener.Addr().String()
}

func (s *mockSMTPServer) close() {
	s.listener.Close()
	s.wg.Wait()
}

func (s *mockSMTPServer) getMessages() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([][]byte, len(s.messages))
	copy(result, s.messages)
	return result
}

func (s *mockSMTPServer) getRecipients() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.recipients...)
}

func TestEmailNotifierSendWithMockSMTP(t *testing.T) {
	server := newMockSMTPServer(t)
	defer server.close()

	host, portStr, _ := net.SplitHostPort(server.addr())
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("bad port %q: %v", portStr, err)
	}

	notifier, err := NewEmailNotifier(EmailConfig{
		Host: host,
		Port: port,
		From: "Staleguard <alerts@example.com>",
	})
	if err != nil {
		t.Fatalf("failed to create notifier: %v", err)
	}

	templates, err := LoadTemplates()
	if err != nil {
		t.Fatalf("LoadTemplates: %v", err)
	}
	rule, data := testRenderData(t, 21)
	msg, err := templates.Compose(rule, data)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	msg.Recipients = []string{"pm@example.com", "Controller <ctrl@example.com>"}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := notifier.Send(ctx, msg); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	// Wait a bit for message to be processed
	time.Sleep(100 * time.Millisecond)

	messages := server.getMessages()
	if len(messages) == 0 {
		t.Fatal("no messages received by mock server")
	}

	msgStr := string(messages[0])
	if !strings.Contains(msgStr, "Subject: [Urgent] Proposal INV-1") {
		t.Errorf("message doesn't contain subject:\n%s", msgStr)
	}

	rcpts := server.getRecipients()
	if len(rcpts) != 2 || rcpts[0] != "<pm@example.com>" || rcpts[1] != "<ctrl@example.com>" {
		t.Errorf("unexpected RCPT TO values: %v", rcpts)
	}
}
