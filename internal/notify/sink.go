package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/smtp"
	"strings"
	"sync"
	"time"
)

// Sink delivers a single event.
type Sink interface {
	Notify(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event) error

func (f SinkFunc) Notify(ctx context.Context, e Event) error { return f(ctx, e) }

// Multi delivers each event to every sink and joins their errors.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, e Event) error {
		var errs []error
		for _, s := range sinks {
			if err := s.Notify(ctx, e); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// LogSink records events in the log instead of delivering them.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Notify(_ context.Context, e Event) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification",
		"id", e.ID,
		"kind", e.Kind,
		"recipient", e.Recipient,
		"subject", e.Subject,
		"match_id", e.MatchID,
		"handoff_id", e.HandoffID,
	)
	return nil
}

// SMTPSink sends events as plain-text mail.
type SMTPSink struct {
	Addr string // host:port
	From string
	Auth smtp.Auth

	// send is replaced in tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSink creates a sink for the given relay. Username may be empty for
// unauthenticated relays.
func NewSMTPSink(addr, from, username, password string) *SMTPSink {
	s := &SMTPSink{Addr: addr, From: from, send: smtp.SendMail}
	if username != "" {
		host := addr
		if i := strings.LastIndex(addr, ":"); i >= 0 {
			host = addr[:i]
		}
		s.Auth = smtp.PlainAuth("", username, password, host)
	}
	return s
}

func (s *SMTPSink) Notify(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	send := s.send
	if send == nil {
		send = smtp.SendMail
	}
	if err := send(s.Addr, s.Auth, s.From, []string{e.Recipient}, s.message(e)); err != nil {
		return fmt.Errorf("sending mail to %s: %w", e.Recipient, err)
	}
	return nil
}

// headerLine folds line breaks so a value cannot start a new header.
var headerLine = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

func (s *SMTPSink) message(e Event) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", s.From)
	fmt.Fprintf(&b, "To: %s\r\n", e.Recipient)
	fmt.Fprintf(&b, "Subject: %s\r\n", headerLine.Replace(e.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", e.CreatedAt.Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: <%s@lostfound>\r\n", e.ID)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(e.Body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return b.Bytes()
}

const userAgent = "lostfound/1.0"

// WebhookSink posts events as JSON. Title and Tags headers are set so ntfy
// topics render them directly.
type WebhookSink struct {
	URL    string
	Client *http.Client
}

// NewWebhookSink creates a webhook sink with a request timeout.
func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSink{URL: url, Client: &http.Client{Timeout: timeout}}
}

func (s *WebhookSink) Notify(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Title", e.Subject)
	req.Header.Set("Tags", "lostfound,"+string(e.Kind))

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Recorder keeps delivered events in memory. Setting Err makes every
// delivery fail after recording.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

func (r *Recorder) Notify(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.Err
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds returns the kinds of the recorded events in delivery order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]Kind, len(r.events))
	for i, e := range r.events {
		kinds[i] = e.Kind
	}
	return kinds
}

// Reset forgets recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
