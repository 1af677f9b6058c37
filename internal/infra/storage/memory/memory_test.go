package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sidereal-labs/opskit/internal/core/domain"
	"github.com/sidereal-labs/opskit/internal/infra/storage"
)

func TestNotificationRecordAndRecent(t *testing.T) {
	ctx := context.Background()
	repo := NewNotificationRepo(NewMemoryStorage())

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		n := &domain.Notification{
			Level:     "INFO",
			Message:   "msg",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Record(ctx, n); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		if n.ID == 0 {
			t.Error("expected assigned ID")
		}
	}

	recent, err := repo.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(recent))
	}
	if !recent[0].CreatedAt.After(recent[1].CreatedAt) {
		t.Error("expected newest first ordering")
	}
}

func TestNotificationDeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	repo := NewNotificationRepo(NewMemoryStorage())

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		_ = repo.Record(ctx, &domain.Notification{
			Level:     "INFO",
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}

	deleted, err := repo.DeleteOlderThan(ctx, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("DeleteOlderThan failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("expected 2 deleted, got %d", deleted)
	}

	remaining, _ := repo.Recent(ctx, 0)
	if len(remaining) != 2 {
		t.Errorf("expected 2 remaining, got %d", len(remaining))
	}
}

func TestWeatherLatestAndRange(t *testing.T) {
	ctx := context.Background()
	repo := NewWeatherRepo(NewMemoryStorage())

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		reading := &domain.WeatherReading{
			Station:      "lco",
			Time:         base.Add(time.Duration(i) * time.Minute),
			WindSpeedAvg: float64(i),
		}
		if err := repo.Insert(ctx, reading); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	latest, err := repo.Latest(ctx, "lco")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest.WindSpeedAvg != 4 {
		t.Errorf("expected latest reading, got wind %f", latest.WindSpeedAvg)
	}

	if _, err := repo.Latest(ctx, "other"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown station, got %v", err)
	}

	readings, err := repo.Range(ctx, "lco", base.Add(time.Minute), base.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("Range failed: %v", err)
	}
	if len(readings) != 2 {
		t.Fatalf("expected 2 readings in range, got %d", len(readings))
	}
	if !readings[0].Time.Before(readings[1].Time) {
		t.Error("expected oldest first ordering")
	}
}

func TestWeatherDuplicateInsertSkipped(t *testing.T) {
	ctx := context.Background()
	repo := NewWeatherRepo(NewMemoryStorage())

	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	_ = repo.Insert(ctx, &domain.WeatherReading{Station: "lco", Time: ts})
	_ = repo.Insert(ctx, &domain.WeatherReading{Station: "lco", Time: ts})

	readings, _ := repo.Range(ctx, "lco", ts.Add(-time.Hour), ts.Add(time.Hour))
	if len(readings) != 1 {
		t.Errorf("expected duplicate skipped, got %d readings", len(readings))
	}
}
