// Package metrics defines the Prometheus collectors exposed on the
// health server's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActorState tracks the numeric state code of each supervised actor.
	ActorState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "opskit_actor_state",
			Help: "Current state code (bit flags) of the actor",
		},
		[]string{"actor"},
	)

	// ActorCheckFailures counts failed health checks per actor and
	// error code.
	ActorCheckFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opskit_actor_check_failures_total",
			Help: "Total number of failed health checks",
		},
		[]string{"actor", "code"},
	)

	// ActorRestarts counts forced restarts per actor and mode.
	ActorRestarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opskit_actor_restarts_total",
			Help: "Total number of actor restarts",
		},
		[]string{"actor", "mode"},
	)

	// MessagesPublished counts messages published to the broker.
	MessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opskit_messages_published_total",
			Help: "Total number of messages published to the exchange",
		},
		[]string{"type"},
	)

	// NotificationsSent counts dispatched notifications per level and
	// medium.
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opskit_notifications_sent_total",
			Help: "Total number of notifications sent",
		},
		[]string{"level", "medium"},
	)

	// DeviceReadLatency tracks device poll latency.
	DeviceReadLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opskit_device_read_seconds",
			Help:    "Device read latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"device"},
	)

	// WeatherUnsafe tracks which weather measurements are currently
	// outside their safety thresholds.
	WeatherUnsafe = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "opskit_weather_unsafe",
			Help: "Whether a weather measurement is currently unsafe (1) or safe (0)",
		},
		[]string{"measurement"},
	)
)
