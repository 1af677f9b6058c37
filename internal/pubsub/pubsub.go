// Package pubsub provides publish/subscribe messaging over the Redis
// broker: a JSON envelope format, a retrying publisher, a subscriber
// with callback and pull interfaces, and the state-change transport used
// by supervised actors.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sidereal-labs/opskit/internal/actor"
	redisclient "github.com/sidereal-labs/opskit/internal/infra/redis"
	"github.com/sidereal-labs/opskit/internal/metrics"
	"github.com/sidereal-labs/opskit/internal/retry"
)

// Config holds pub/sub settings.
type Config struct {
	// Channel is the broker channel messages are exchanged on.
	Channel string `yaml:"channel"`
}

// DefaultChannel is used when no channel is configured.
const DefaultChannel = "opskit.events"

func (c Config) channel() string {
	if c.Channel == "" {
		return DefaultChannel
	}
	return c.Channel
}

// Publisher publishes envelopes to the exchange. Publishing is retried
// a few times with a short fixed delay before giving up.
type Publisher struct {
	client  *redisclient.Client
	channel string
	retrier retry.Retrier
	log     *slog.Logger
}

// NewPublisher creates a publisher on the configured channel.
func NewPublisher(client *redisclient.Client, cfg Config, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{
		client:  client,
		channel: cfg.channel(),
		retrier: retry.Retrier{
			MaxAttempts:        3,
			Delay:              500 * time.Millisecond,
			RaiseOnMaxAttempts: true,
		},
		log: log,
	}
}

// Publish sends an envelope to the exchange.
func (p *Publisher) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	err = p.retrier.DoContext(ctx, func(ctx context.Context) error {
		return p.client.Raw().Publish(ctx, p.channel, data).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	metrics.MessagesPublished.WithLabelValues(string(env.MessageType)).Inc()
	return nil
}

// SendEvent publishes an event-typed message.
func (p *Publisher) SendEvent(ctx context.Context, event Event, payload map[string]any) error {
	return p.Publish(ctx, NewEnvelope(TypeEvent, string(event), payload))
}

// Callback is invoked by a listening subscriber for every decoded
// message.
type Callback func(ctx context.Context, msg Message)

// Subscriber consumes messages from the exchange.
type Subscriber struct {
	client  *redisclient.Client
	channel string
	log     *slog.Logger
}

// NewSubscriber creates a subscriber on the configured channel.
func NewSubscriber(client *redisclient.Client, cfg Config, log *slog.Logger) *Subscriber {
	if log == nil {
		log = slog.Default()
	}
	return &Subscriber{client: client, channel: cfg.channel(), log: log}
}

// Subscription is an open consumer on the exchange.
type Subscription struct {
	sub *redis.PubSub
	log *slog.Logger
}

// Subscribe opens a subscription. The caller owns it and must Close it.
func (s *Subscriber) Subscribe(ctx context.Context) (*Subscription, error) {
	ps := s.client.Raw().Subscribe(ctx, s.channel)

	// Wait for the subscription to be confirmed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %q: %w", s.channel, err)
	}

	return &Subscription{sub: ps, log: s.log}, nil
}

// Next blocks until the next message arrives and returns it decoded.
// Messages that fail to decode are skipped with a warning.
func (sub *Subscription) Next(ctx context.Context) (Message, error) {
	for {
		raw, err := sub.sub.ReceiveMessage(ctx)
		if err != nil {
			return Message{}, err
		}

		msg, err := DecodeMessage([]byte(raw.Payload))
		if err != nil {
			sub.log.Warn("skipping undecodable message", "error", err)
			continue
		}
		return msg, nil
	}
}

// Close tears down the subscription.
func (sub *Subscription) Close() error {
	return sub.sub.Close()
}

// Listen consumes messages and dispatches them to cb until ctx is
// cancelled or the subscription fails.
func (s *Subscriber) Listen(ctx context.Context, cb Callback) error {
	sub, err := s.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = sub.Close()
	}()

	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		cb(ctx, msg)
	}
}

// StateTransport adapts the publisher to the actor state-change
// transport contract. Connectivity probes are cached briefly so the
// supervisor's state updates do not ping the broker on every call.
type StateTransport struct {
	actorName string
	pub       *Publisher
	client    *redisclient.Client

	mu        sync.Mutex
	lastProbe time.Time
	lastAlive bool
}

const probeCacheTTL = 5 * time.Second

// NewStateTransport creates a transport broadcasting state changes for
// the named actor.
func NewStateTransport(actorName string, client *redisclient.Client, cfg Config, log *slog.Logger) *StateTransport {
	return &StateTransport{
		actorName: actorName,
		pub:       NewPublisher(client, cfg, log),
		client:    client,
	}
}

// BroadcastState publishes an ACTOR_STATE_CHANGED event.
func (t *StateTransport) BroadcastState(ctx context.Context, update actor.StateUpdate) error {
	payload := map[string]any{
		"actor": t.actorName,
		"code":  update.Code,
		"flags": update.Flags,
		"error": update.Error,
	}
	return t.pub.SendEvent(ctx, EventActorStateChanged, payload)
}

// Connected reports cached broker connectivity.
func (t *StateTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if time.Since(t.lastProbe) < probeCacheTTL {
		return t.lastAlive
	}

	t.lastAlive = t.client.Connected()
	t.lastProbe = time.Now()
	return t.lastAlive
}
