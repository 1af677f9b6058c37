// Package memory provides in-memory repository implementations used in
// tests and when the service runs without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sidereal-labs/opskit/internal/core/domain"
	"github.com/sidereal-labs/opskit/internal/infra/storage"
)

type MemoryStorage struct {
	notifications []*domain.Notification
	readings      []*domain.WeatherReading
	nextID        int64
	mu            sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{nextID: 1}
}

// -----------------------------------------------------------------------------
// Notification Repository
// -----------------------------------------------------------------------------

type NotificationRepo struct {
	store *MemoryStorage
}

func NewNotificationRepo(store *MemoryStorage) *NotificationRepo {
	return &NotificationRepo{store: store}
}

func (r *NotificationRepo) Record(ctx context.Context, n *domain.Notification) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	n.ID = r.store.nextID
	r.store.nextID++

	clone := *n
	r.store.notifications = append(r.store.notifications, &clone)
	return nil
}

func (r *NotificationRepo) Recent(
	ctx context.Context,
	limit int,
) ([]*domain.Notification, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]*domain.Notification, len(r.store.notifications))
	copy(out, r.store.notifications)
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *NotificationRepo) DeleteOlderThan(
	ctx context.Context,
	cutoff time.Time,
) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	kept := r.store.notifications[:0]
	var deleted int64
	for _, n := range r.store.notifications {
		if n.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, n)
	}
	r.store.notifications = kept
	return deleted, nil
}

// -----------------------------------------------------------------------------
// Weather Repository
// -----------------------------------------------------------------------------

type WeatherRepo struct {
	store *MemoryStorage
}

func NewWeatherRepo(store *MemoryStorage) *WeatherRepo {
	return &WeatherRepo{store: store}
}

func (r *WeatherRepo) Insert(ctx context.Context, reading *domain.WeatherReading) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	// Same station and timestamp is a duplicate, silently skipped.
	for _, existing := range r.store.readings {
		if existing.Station == reading.Station && existing.Time.Equal(reading.Time) {
			return nil
		}
	}

	clone := *reading
	clone.ID = r.store.nextID
	r.store.nextID++
	reading.ID = clone.ID

	r.store.readings = append(r.store.readings, &clone)
	return nil
}

func (r *WeatherRepo) Latest(
	ctx context.Context,
	station string,
) (*domain.WeatherReading, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var latest *domain.WeatherReading
	for _, reading := range r.store.readings {
		if reading.Station != station {
			continue
		}
		if latest == nil || reading.Time.After(latest.Time) {
			latest = reading
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}

	clone := *latest
	return &clone, nil
}

func (r *WeatherRepo) Range(
	ctx context.Context,
	station string,
	start, end time.Time,
) ([]*domain.WeatherReading, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*domain.WeatherReading
	for _, reading := range r.store.readings {
		if reading.Station != station {
			continue
		}
		if reading.Time.Before(start) || !reading.Time.Before(end) {
			continue
		}
		clone := *reading
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func (r *WeatherRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	kept := r.store.readings[:0]
	var deleted int64
	for _, reading := range r.store.readings {
		if reading.Time.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, reading)
	}
	r.store.readings = kept
	return deleted, nil
}
