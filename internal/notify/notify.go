// Package notify delivers operator notifications to chat and email and
// records them to storage.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/sidereal-labs/opskit/internal/core/domain"
	"github.com/sidereal-labs/opskit/internal/infra/storage"
	"github.com/sidereal-labs/opskit/internal/metrics"
)

// Config holds notification settings.
type Config struct {
	// SlackWebhookURL is the incoming-webhook endpoint. Empty disables chat.
	SlackWebhookURL string `yaml:"slack_webhook_url"`

	// SlackChannel is the default channel notifications are posted to.
	SlackChannel string `yaml:"slack_channel"`

	// LevelChannels routes specific levels to other channels.
	LevelChannels map[string]string `yaml:"level_channels"`

	Email EmailConfig `yaml:"email"`
}

// EmailConfig holds SMTP settings for critical alerts.
type EmailConfig struct {
	Host       string   `yaml:"host"`
	Port       int      `yaml:"port"`
	From       string   `yaml:"from"`
	Recipients []string `yaml:"recipients"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
}

func (c EmailConfig) enabled() bool {
	return c.Host != "" && len(c.Recipients) > 0
}

// ChatSender posts a message to a chat channel.
type ChatSender interface {
	Send(ctx context.Context, channel, text string) error
}

// EmailSender delivers an alert email.
type EmailSender interface {
	Send(ctx context.Context, subject, plainBody, htmlBody string) error
}

// Dispatcher fans a notification out to the configured media. Delivery
// failures are logged and never propagate to the caller; only an
// invalid level is an error.
type Dispatcher struct {
	cfg   Config
	chat  ChatSender
	email EmailSender
	repo  storage.NotificationRepository
	log   *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithChatSender replaces the webhook chat sender.
func WithChatSender(s ChatSender) Option {
	return func(d *Dispatcher) { d.chat = s }
}

// WithEmailSender replaces the SMTP email sender.
func WithEmailSender(s EmailSender) Option {
	return func(d *Dispatcher) { d.email = s }
}

// WithRepository records sent notifications to storage.
func WithRepository(repo storage.NotificationRepository) Option {
	return func(d *Dispatcher) { d.repo = repo }
}

// WithLogger sets the dispatcher logger.
func WithLogger(log *slog.Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

// NewDispatcher creates a dispatcher from config.
func NewDispatcher(cfg Config, opts ...Option) *Dispatcher {
	d := &Dispatcher{cfg: cfg, log: slog.Default()}

	if cfg.SlackWebhookURL != "" {
		d.chat = NewSlackWebhook(cfg.SlackWebhookURL)
	}
	if cfg.Email.enabled() {
		d.email = NewSMTPSender(cfg.Email)
	}

	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Send delivers a notification at the given level. Chat receives every
// level; email is reserved for CRITICAL. ERROR and CRITICAL messages
// mention the channel.
func (d *Dispatcher) Send(
	ctx context.Context,
	level Level,
	message string,
	payload map[string]any,
) error {
	if _, err := ParseLevel(string(level)); err != nil {
		return err
	}

	if d.chat != nil {
		text := message
		if level.Urgent() {
			text = "<!channel> " + text
		}
		if err := d.chat.Send(ctx, d.channelFor(level), text); err != nil {
			d.log.Error("failed to post chat notification",
				"level", level, "error", err)
		} else {
			metrics.NotificationsSent.WithLabelValues(string(level), "chat").Inc()
		}
	}

	if level == LevelCritical && d.email != nil {
		subject := "Critical alert: " + truncate(message, 80)
		plain, html := renderEmail(level, message, payload)
		if err := d.email.Send(ctx, subject, plain, html); err != nil {
			d.log.Error("failed to send alert email", "error", err)
		} else {
			metrics.NotificationsSent.WithLabelValues(string(level), "email").Inc()
		}
	}

	d.record(ctx, level, message, payload)
	return nil
}

func (d *Dispatcher) channelFor(level Level) string {
	if ch, ok := d.cfg.LevelChannels[string(level)]; ok && ch != "" {
		return ch
	}
	return d.cfg.SlackChannel
}

// record stores the notification best-effort.
func (d *Dispatcher) record(
	ctx context.Context,
	level Level,
	message string,
	payload map[string]any,
) {
	if d.repo == nil {
		return
	}
	n := &domain.Notification{
		Level:     string(level),
		Message:   message,
		Payload:   domain.JSONMap(payload),
		CreatedAt: time.Now().UTC(),
	}
	if err := d.repo.Record(ctx, n); err != nil {
		d.log.Warn("failed to record notification", "error", err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
