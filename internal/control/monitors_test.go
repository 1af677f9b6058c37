package control

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sidereal-labs/opskit/internal/actor"
	"github.com/sidereal-labs/opskit/internal/core/domain"
	"github.com/sidereal-labs/opskit/internal/weather"
)

// ============================================================================
// Test Stubs
// ============================================================================

type stubSource struct {
	mu       sync.Mutex
	readings []*domain.WeatherReading
	err      error
	calls    int
}

func (s *stubSource) Readings(
	ctx context.Context,
	start, end time.Time,
) ([]*domain.WeatherReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.readings, nil
}

type stubWeatherRepo struct {
	mu       sync.Mutex
	inserted []*domain.WeatherReading
	err      error
}

func (s *stubWeatherRepo) Insert(ctx context.Context, r *domain.WeatherReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, r)
	return s.err
}

func (s *stubWeatherRepo) Latest(
	ctx context.Context,
	station string,
) (*domain.WeatherReading, error) {
	return nil, nil
}

func (s *stubWeatherRepo) Range(
	ctx context.Context,
	station string,
	start, end time.Time,
) ([]*domain.WeatherReading, error) {
	return nil, nil
}

func (s *stubWeatherRepo) DeleteOlderThan(
	ctx context.Context,
	cutoff time.Time,
) (int64, error) {
	return 0, nil
}

type stubPump struct {
	name     string
	pressure float64
	err      error
}

func (s *stubPump) Name() string { return s.name }

func (s *stubPump) Pressure(ctx context.Context) (float64, error) {
	return s.pressure, s.err
}

type stubThermistors struct {
	states map[string]bool
	err    error
}

func (s *stubThermistors) Read(ctx context.Context) (map[string]bool, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.states, nil
}

// ============================================================================
// Weather Monitor Tests
// ============================================================================

func calmReadings(now time.Time) []*domain.WeatherReading {
	readings := make([]*domain.WeatherReading, 5)
	for i := range readings {
		readings[i] = &domain.WeatherReading{
			Station:          "lco",
			Time:             now.Add(time.Duration(i-4) * time.Minute),
			WindSpeedAvgMPH:  10,
			RelativeHumidity: 40,
		}
	}
	return readings
}

func weatherConfig() weather.Config {
	return weather.Config{
		Wind: weather.AlertConfig{
			Threshold:   35,
			ReopenBelow: 30,
			Window:      10 * time.Minute,
			GracePeriod: 20 * time.Minute,
		},
		Humidity: weather.AlertConfig{
			Threshold:   80,
			ReopenBelow: 70,
			Window:      10 * time.Minute,
			GracePeriod: 20 * time.Minute,
		},
	}
}

func TestWeatherCheckStoresLatestReading(t *testing.T) {
	now := time.Now().UTC()
	source := &stubSource{readings: calmReadings(now)}
	repo := &stubWeatherRepo{}

	m := NewWeatherMonitor(weatherConfig(), source, repo, nil, nil)

	if err := m.Check(context.Background()); err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	if len(repo.inserted) != 1 {
		t.Fatalf("expected 1 stored reading, got %d", len(repo.inserted))
	}
	if !repo.inserted[0].Time.Equal(now) {
		t.Error("expected the newest reading stored")
	}
}

func TestWeatherCheckDataUnavailable(t *testing.T) {
	source := &stubSource{err: errors.New("connection refused")}
	m := NewWeatherMonitor(weatherConfig(), source, nil, nil, nil)

	err := m.Check(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}

	var checkErr *actor.CheckError
	if !errors.As(err, &checkErr) {
		t.Fatalf("expected CheckError, got %T", err)
	}
	if checkErr.Data.Code != 100 {
		t.Errorf("expected code 100, got %d", checkErr.Data.Code)
	}
	if checkErr.Data.Critical {
		t.Error("data unavailability is not critical")
	}
}

func TestWeatherCheckEmptyReport(t *testing.T) {
	m := NewWeatherMonitor(weatherConfig(), &stubSource{}, nil, nil, nil)

	var checkErr *actor.CheckError
	if err := m.Check(context.Background()); !errors.As(err, &checkErr) {
		t.Fatalf("expected CheckError, got %v", err)
	}
}

func TestWeatherUnsafeIsNotACheckFailure(t *testing.T) {
	now := time.Now().UTC()
	readings := calmReadings(now)
	readings[4].WindSpeedAvgMPH = 50

	m := NewWeatherMonitor(weatherConfig(), &stubSource{readings: readings}, nil, nil, nil)

	// Unsafe conditions are reported, not failed.
	if err := m.Check(context.Background()); err != nil {
		t.Fatalf("Check should succeed in unsafe weather, got %v", err)
	}
}

func TestWeatherTroubleshoot(t *testing.T) {
	source := &stubSource{err: errors.New("down")}
	m := NewWeatherMonitor(weatherConfig(), source, nil, nil, nil)

	data, _ := weatherCatalog.Get("DATA_UNAVAILABLE")

	ok, err := m.Troubleshoot(context.Background(), data, errors.New("down"))
	if err != nil {
		t.Fatalf("Troubleshoot failed: %v", err)
	}
	if ok {
		t.Error("expected troubleshoot failure while service is down")
	}

	source.mu.Lock()
	source.err = nil
	source.readings = calmReadings(time.Now().UTC())
	source.mu.Unlock()

	ok, err = m.Troubleshoot(context.Background(), data, errors.New("down"))
	if err != nil {
		t.Fatalf("Troubleshoot failed: %v", err)
	}
	if !ok {
		t.Error("expected troubleshoot success once service answers")
	}
}

// ============================================================================
// Device Monitor Tests
// ============================================================================

func TestDeviceCheckHealthy(t *testing.T) {
	m := NewDeviceMonitor(
		&stubThermistors{states: map[string]bool{"b1": true}},
		[]IonPumpReader{&stubPump{name: "z1", pressure: 1e-9}},
		0, nil, nil,
	)

	if err := m.Check(context.Background()); err != nil {
		t.Fatalf("Check failed: %v", err)
	}
}

func TestDeviceCheckThermistorFailure(t *testing.T) {
	m := NewDeviceMonitor(&stubThermistors{err: errors.New("no reply")}, nil, 0, nil, nil)

	var checkErr *actor.CheckError
	if err := m.Check(context.Background()); !errors.As(err, &checkErr) {
		t.Fatalf("expected CheckError, got %v", err)
	} else if checkErr.Data.Code != 200 {
		t.Errorf("expected code 200, got %d", checkErr.Data.Code)
	}
}

func TestDeviceCheckPressureLimit(t *testing.T) {
	m := NewDeviceMonitor(
		nil,
		[]IonPumpReader{&stubPump{name: "z1", pressure: 1e-3}},
		1e-5, nil, nil,
	)

	var checkErr *actor.CheckError
	err := m.Check(context.Background())
	if !errors.As(err, &checkErr) {
		t.Fatalf("expected CheckError, got %v", err)
	}
	if checkErr.Data.Code != 202 || !checkErr.Data.Critical {
		t.Errorf("expected critical code 202, got %+v", checkErr.Data)
	}
}

func TestDeviceTroubleshoot(t *testing.T) {
	therm := &stubThermistors{err: errors.New("no reply")}
	m := NewDeviceMonitor(therm, nil, 0, nil, nil)

	data, _ := deviceCatalog.Get("THERMISTORS_UNREACHABLE")
	ok, err := m.Troubleshoot(context.Background(), data, nil)
	if err != nil {
		t.Fatalf("Troubleshoot failed: %v", err)
	}
	if ok {
		t.Error("expected failure while the board is unreachable")
	}

	therm.err = nil
	therm.states = map[string]bool{}
	ok, _ = m.Troubleshoot(context.Background(), data, nil)
	if !ok {
		t.Error("expected recovery once the board answers")
	}

	critical, _ := deviceCatalog.Get("ION_PRESSURE_HIGH")
	ok, _ = m.Troubleshoot(context.Background(), critical, nil)
	if ok {
		t.Error("critical faults must not auto-recover")
	}
}
