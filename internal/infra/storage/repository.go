package storage

import (
	"context"
	"errors"
	"time"

	"github.com/sidereal-labs/opskit/internal/core/domain"
)

var (
	// ErrNotFound is returned when a requested record doesn't exist.
	ErrNotFound = errors.New("record not found")
)

// NotificationRepository handles notification history storage.
type NotificationRepository interface {
	// Record stores a sent notification.
	Record(ctx context.Context, n *domain.Notification) error

	// Recent retrieves the most recent notifications, newest first.
	Recent(ctx context.Context, limit int) ([]*domain.Notification, error)

	// DeleteOlderThan removes notifications created before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// WeatherRepository handles weather reading storage.
type WeatherRepository interface {
	// Insert stores an enriched reading.
	Insert(ctx context.Context, r *domain.WeatherReading) error

	// Latest retrieves the most recent reading for a station.
	Latest(ctx context.Context, station string) (*domain.WeatherReading, error)

	// Range retrieves readings for a station in [start, end), oldest first.
	Range(
		ctx context.Context,
		station string,
		start, end time.Time,
	) ([]*domain.WeatherReading, error)

	// DeleteOlderThan removes readings taken before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
