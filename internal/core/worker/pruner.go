package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/sidereal-labs/opskit/internal/infra/storage"
)

// RetentionConfig controls how long history is kept.
type RetentionConfig struct {
	// Notifications older than this are deleted. 0 = keep forever.
	Notifications time.Duration `yaml:"notifications"`

	// Weather readings older than this are deleted. 0 = keep forever.
	WeatherReadings time.Duration `yaml:"weather_readings"`
}

// Pruner deletes old history based on retention policy.
type Pruner struct {
	cfg         RetentionConfig
	notifRepo   storage.NotificationRepository
	weatherRepo storage.WeatherRepository
	log         *slog.Logger
}

// NewPruner creates a new Pruner worker.
func NewPruner(
	cfg RetentionConfig,
	notifRepo storage.NotificationRepository,
	weatherRepo storage.WeatherRepository,
	log *slog.Logger,
) *Pruner {
	if log == nil {
		log = slog.Default()
	}
	return &Pruner{
		cfg:         cfg,
		notifRepo:   notifRepo,
		weatherRepo: weatherRepo,
		log:         log,
	}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	shortest := p.cfg.Notifications
	if p.cfg.WeatherReadings > 0 &&
		(shortest == 0 || p.cfg.WeatherReadings < shortest) {
		shortest = p.cfg.WeatherReadings
	}
	if shortest <= 0 {
		return // Retention disabled
	}

	// Check interval scales with the retention period, within bounds.
	interval := min(shortest/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	now := time.Now().UTC()

	if p.cfg.Notifications > 0 && p.notifRepo != nil {
		cutoff := now.Add(-p.cfg.Notifications)
		deleted, err := p.notifRepo.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			p.log.Error("failed to prune notifications", "error", err)
		} else if deleted > 0 {
			p.log.Debug("pruned notifications", "deleted", deleted)
		}
	}

	if p.cfg.WeatherReadings > 0 && p.weatherRepo != nil {
		cutoff := now.Add(-p.cfg.WeatherReadings)
		deleted, err := p.weatherRepo.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			p.log.Error("failed to prune weather readings", "error", err)
		} else if deleted > 0 {
			p.log.Debug("pruned weather readings", "deleted", deleted)
		}
	}
}
