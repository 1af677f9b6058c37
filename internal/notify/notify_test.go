package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sidereal-labs/opskit/internal/core/domain"
)

// ============================================================================
// Test Stubs
// ============================================================================

type stubChat struct {
	mu       sync.Mutex
	err      error
	channels []string
	texts    []string
}

func (s *stubChat) Send(ctx context.Context, channel, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = append(s.channels, channel)
	s.texts = append(s.texts, text)
	return s.err
}

type stubEmail struct {
	mu       sync.Mutex
	err      error
	subjects []string
	plains   []string
	htmls    []string
}

func (s *stubEmail) Send(ctx context.Context, subject, plainBody, htmlBody string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjects = append(s.subjects, subject)
	s.plains = append(s.plains, plainBody)
	s.htmls = append(s.htmls, htmlBody)
	return s.err
}

type stubRepo struct {
	mu       sync.Mutex
	err      error
	recorded []*domain.Notification
}

func (s *stubRepo) Record(ctx context.Context, n *domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorded = append(s.recorded, n)
	return s.err
}

func (s *stubRepo) Recent(ctx context.Context, limit int) ([]*domain.Notification, error) {
	return nil, nil
}

func (s *stubRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

// ============================================================================
// Level Tests
// ============================================================================

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel(" warning ")
	if err != nil {
		t.Fatalf("ParseLevel failed: %v", err)
	}
	if l != LevelWarning {
		t.Errorf("expected WARNING, got %s", l)
	}

	if _, err := ParseLevel("severe"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestLevelOrdering(t *testing.T) {
	order := []Level{LevelDebug, LevelInfo, LevelWarning, LevelError, LevelCritical}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Errorf("%s should rank above %s", order[i], order[i-1])
		}
	}

	if LevelWarning.Urgent() {
		t.Error("WARNING should not be urgent")
	}
	if !LevelError.Urgent() || !LevelCritical.Urgent() {
		t.Error("ERROR and CRITICAL should be urgent")
	}
}

// ============================================================================
// Dispatcher Tests
// ============================================================================

func newTestDispatcher(cfg Config, chat *stubChat, email *stubEmail, repo *stubRepo) *Dispatcher {
	opts := []Option{}
	if chat != nil {
		opts = append(opts, WithChatSender(chat))
	}
	if email != nil {
		opts = append(opts, WithEmailSender(email))
	}
	if repo != nil {
		opts = append(opts, WithRepository(repo))
	}
	return NewDispatcher(cfg, opts...)
}

func TestSendPostsToDefaultChannel(t *testing.T) {
	chat := &stubChat{}
	d := newTestDispatcher(Config{SlackChannel: "#ops"}, chat, nil, nil)

	if err := d.Send(context.Background(), LevelInfo, "dome opened", nil); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if len(chat.channels) != 1 || chat.channels[0] != "#ops" {
		t.Errorf("expected post to #ops, got %v", chat.channels)
	}
	if chat.texts[0] != "dome opened" {
		t.Errorf("unexpected text %q", chat.texts[0])
	}
}

func TestSendLevelChannelOverride(t *testing.T) {
	chat := &stubChat{}
	cfg := Config{
		SlackChannel:  "#ops",
		LevelChannels: map[string]string{"DEBUG": "#ops-debug"},
	}
	d := newTestDispatcher(cfg, chat, nil, nil)

	_ = d.Send(context.Background(), LevelDebug, "noise", nil)
	_ = d.Send(context.Background(), LevelInfo, "signal", nil)

	if chat.channels[0] != "#ops-debug" {
		t.Errorf("expected DEBUG routed to #ops-debug, got %s", chat.channels[0])
	}
	if chat.channels[1] != "#ops" {
		t.Errorf("expected INFO routed to #ops, got %s", chat.channels[1])
	}
}

func TestSendMentionsChannelWhenUrgent(t *testing.T) {
	chat := &stubChat{}
	d := newTestDispatcher(Config{SlackChannel: "#ops"}, chat, nil, nil)

	_ = d.Send(context.Background(), LevelError, "pump down", nil)
	_ = d.Send(context.Background(), LevelWarning, "wind rising", nil)

	if !strings.HasPrefix(chat.texts[0], "<!channel> ") {
		t.Errorf("expected channel mention on ERROR, got %q", chat.texts[0])
	}
	if strings.Contains(chat.texts[1], "<!channel>") {
		t.Errorf("unexpected mention on WARNING: %q", chat.texts[1])
	}
}

func TestSendEmailsOnlyOnCritical(t *testing.T) {
	email := &stubEmail{}
	d := newTestDispatcher(Config{}, nil, email, nil)

	_ = d.Send(context.Background(), LevelError, "bad", nil)
	if len(email.subjects) != 0 {
		t.Fatal("ERROR should not email")
	}

	payload := map[string]any{"pressure": 1e-3}
	_ = d.Send(context.Background(), LevelCritical, "very bad", payload)
	if len(email.subjects) != 1 {
		t.Fatal("CRITICAL should email")
	}
	if !strings.Contains(email.subjects[0], "very bad") {
		t.Errorf("subject should carry the message, got %q", email.subjects[0])
	}
	if !strings.Contains(email.plains[0], "pressure") {
		t.Error("plain body should include payload fields")
	}
	if !strings.Contains(email.htmls[0], "<html>") {
		t.Error("expected an HTML body")
	}
}

func TestSendDeliveryFailureNotFatal(t *testing.T) {
	chat := &stubChat{err: errors.New("webhook down")}
	email := &stubEmail{err: errors.New("smtp down")}
	repo := &stubRepo{}
	d := newTestDispatcher(Config{SlackChannel: "#ops"}, chat, email, repo)

	if err := d.Send(context.Background(), LevelCritical, "alert", nil); err != nil {
		t.Fatalf("delivery failures must not propagate, got %v", err)
	}
	if len(repo.recorded) != 1 {
		t.Error("notification should still be recorded")
	}
}

func TestSendInvalidLevel(t *testing.T) {
	d := newTestDispatcher(Config{}, &stubChat{}, nil, nil)
	if err := d.Send(context.Background(), Level("LOUD"), "x", nil); err == nil {
		t.Error("expected error for invalid level")
	}
}

func TestSendRecordsToRepository(t *testing.T) {
	repo := &stubRepo{}
	d := newTestDispatcher(Config{}, nil, nil, repo)

	payload := map[string]any{"actor": "weather"}
	if err := d.Send(context.Background(), LevelWarning, "humidity high", payload); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if len(repo.recorded) != 1 {
		t.Fatalf("expected 1 recorded notification, got %d", len(repo.recorded))
	}
	n := repo.recorded[0]
	if n.Level != "WARNING" || n.Message != "humidity high" {
		t.Errorf("unexpected record %+v", n)
	}
	if n.Payload["actor"] != "weather" {
		t.Error("payload should be preserved")
	}
	if n.CreatedAt.IsZero() {
		t.Error("expected CreatedAt set")
	}
}

// ============================================================================
// Email Rendering Tests
// ============================================================================

func TestBuildMessageMultipart(t *testing.T) {
	msg, err := buildMessage(
		"opskit@example.org",
		[]string{"oncall@example.org"},
		"Critical alert",
		"plain text",
		"<html><body>html text</body></html>",
	)
	if err != nil {
		t.Fatalf("buildMessage failed: %v", err)
	}

	text := string(msg)
	for _, want := range []string{
		"From: opskit@example.org",
		"To: oncall@example.org",
		"Subject: Critical alert",
		"multipart/alternative",
		"text/plain",
		"text/html",
		"plain text",
		"html text",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("message missing %q", want)
		}
	}
}
