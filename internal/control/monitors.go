package control

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sidereal-labs/opskit/internal/actor"
	"github.com/sidereal-labs/opskit/internal/infra/storage"
	"github.com/sidereal-labs/opskit/internal/metrics"
	"github.com/sidereal-labs/opskit/internal/notify"
	"github.com/sidereal-labs/opskit/internal/weather"
)

// Error catalog of the weather monitor.
var weatherCatalog = actor.MustCatalog(map[string]actor.ErrorData{
	"DATA_UNAVAILABLE": {
		Code:        100,
		Critical:    false,
		Description: "Weather data could not be retrieved",
	},
	"EVALUATION_FAILED": {
		Code:        101,
		Critical:    true,
		Description: "Weather safety evaluation failed",
	},
})

// Error catalog of the device monitor.
var deviceCatalog = actor.MustCatalog(map[string]actor.ErrorData{
	"THERMISTORS_UNREACHABLE": {
		Code:        200,
		Critical:    false,
		Description: "Thermistor board did not reply",
	},
	"ION_READ_FAILED": {
		Code:        201,
		Critical:    false,
		Description: "Ion pump pressure read failed",
	},
	"ION_PRESSURE_HIGH": {
		Code:        202,
		Critical:    true,
		Description: "Ion pump pressure above safe limit",
	},
})

// WeatherMonitor is the checker behind the weather-safety actor. A
// check fetches recent readings, stores the newest one and evaluates
// the wind and humidity rules. Transitions between safe and unsafe
// raise notifications; unsafe conditions themselves are not check
// failures.
type WeatherMonitor struct {
	cfg      weather.Config
	source   weather.Source
	repo     storage.WeatherRepository
	notifier *notify.Dispatcher
	log      *slog.Logger

	mu       sync.Mutex
	lastSafe map[weather.Measurement]bool
}

// NewWeatherMonitor creates the weather checker.
func NewWeatherMonitor(
	cfg weather.Config,
	source weather.Source,
	repo storage.WeatherRepository,
	notifier *notify.Dispatcher,
	log *slog.Logger,
) *WeatherMonitor {
	if log == nil {
		log = slog.Default()
	}
	return &WeatherMonitor{
		cfg:      cfg,
		source:   source,
		repo:     repo,
		notifier: notifier,
		log:      log,
		lastSafe: make(map[weather.Measurement]bool),
	}
}

// Lookback window falls back to one hour, matching weather.Config.
func (m *WeatherMonitor) lookback() time.Duration {
	if m.cfg.Lookback > 0 {
		return m.cfg.Lookback
	}
	return time.Hour
}

// Check implements actor.Checker.
func (m *WeatherMonitor) Check(ctx context.Context) error {
	end := time.Now().UTC()
	readings, err := m.source.Readings(ctx, end.Add(-m.lookback()), end)
	if err != nil {
		data, _ := weatherCatalog.Get("DATA_UNAVAILABLE")
		return actor.NewCheckError(data, "failed to fetch weather data", err)
	}
	if len(readings) == 0 {
		data, _ := weatherCatalog.Get("DATA_UNAVAILABLE")
		return actor.NewCheckError(data, "weather service returned no readings", nil)
	}

	latest := readings[len(readings)-1]
	if m.repo != nil {
		if err := m.repo.Insert(ctx, latest); err != nil {
			m.log.Warn("failed to store weather reading", "error", err)
		}
	}

	rules := map[weather.Measurement]weather.AlertConfig{
		weather.MeasurementWindMPH:  m.cfg.Wind,
		weather.MeasurementHumidity: m.cfg.Humidity,
	}

	for measurement, rule := range rules {
		if rule.Threshold == 0 {
			continue
		}

		safe, err := weather.IsSafe(readings, measurement, rule, latest.Time)
		if err != nil {
			data, _ := weatherCatalog.Get("EVALUATION_FAILED")
			return actor.NewCheckError(data,
				fmt.Sprintf("failed to evaluate %s", measurement), err)
		}

		m.reportTransition(ctx, measurement, safe)
	}

	return nil
}

// reportTransition updates the unsafe gauge and notifies on changes.
func (m *WeatherMonitor) reportTransition(
	ctx context.Context,
	measurement weather.Measurement,
	safe bool,
) {
	gauge := 0.0
	if !safe {
		gauge = 1.0
	}
	metrics.WeatherUnsafe.WithLabelValues(string(measurement)).Set(gauge)

	m.mu.Lock()
	prev, seen := m.lastSafe[measurement]
	m.lastSafe[measurement] = safe
	m.mu.Unlock()

	if seen && prev == safe {
		return
	}
	if !seen && safe {
		return
	}

	if m.notifier == nil {
		return
	}

	level := notify.LevelInfo
	text := fmt.Sprintf("Weather %s is safe again", measurement)
	if !safe {
		level = notify.LevelWarning
		text = fmt.Sprintf("Weather %s is now unsafe", measurement)
	}

	if err := m.notifier.Send(ctx, level, text,
		map[string]any{"measurement": string(measurement)}); err != nil {
		m.log.Warn("failed to send weather notification", "error", err)
	}
}

// Troubleshoot implements actor.Checker. The only recovery available
// is confirming the data service answers again.
func (m *WeatherMonitor) Troubleshoot(
	ctx context.Context,
	data actor.ErrorData,
	cause error,
) (bool, error) {
	end := time.Now().UTC()
	if _, err := m.source.Readings(ctx, end.Add(-10*time.Minute), end); err != nil {
		return false, nil
	}
	return true, nil
}

// IonPumpReader reads the pressure of a named ion pump.
type IonPumpReader interface {
	Name() string
	Pressure(ctx context.Context) (float64, error)
}

// ThermistorReader reads the valve thermistor states.
type ThermistorReader interface {
	Read(ctx context.Context) (map[string]bool, error)
}

// DeviceMonitor is the checker behind the device actor. It polls the
// thermistor board and the ion pumps and escalates pressures above the
// safe limit.
type DeviceMonitor struct {
	thermistors ThermistorReader
	pumps       []IonPumpReader
	maxPressure float64
	notifier    *notify.Dispatcher
	log         *slog.Logger
}

// Pressures above this are considered a vacuum failure when no limit
// is configured.
const defaultMaxPressure = 1e-5

// NewDeviceMonitor creates the device checker. Either reader may be
// nil when the hardware is not configured.
func NewDeviceMonitor(
	thermistors ThermistorReader,
	pumps []IonPumpReader,
	maxPressure float64,
	notifier *notify.Dispatcher,
	log *slog.Logger,
) *DeviceMonitor {
	if log == nil {
		log = slog.Default()
	}
	if maxPressure <= 0 {
		maxPressure = defaultMaxPressure
	}
	return &DeviceMonitor{
		thermistors: thermistors,
		pumps:       pumps,
		maxPressure: maxPressure,
		notifier:    notifier,
		log:         log,
	}
}

// Check implements actor.Checker.
func (m *DeviceMonitor) Check(ctx context.Context) error {
	if m.thermistors != nil {
		if _, err := m.thermistors.Read(ctx); err != nil {
			data, _ := deviceCatalog.Get("THERMISTORS_UNREACHABLE")
			return actor.NewCheckError(data, "thermistor poll failed", err)
		}
	}

	for _, pump := range m.pumps {
		pressure, err := pump.Pressure(ctx)
		if err != nil {
			data, _ := deviceCatalog.Get("ION_READ_FAILED")
			return actor.NewCheckError(data,
				fmt.Sprintf("failed to read ion pump %s", pump.Name()), err)
		}

		if pressure > m.maxPressure {
			if m.notifier != nil {
				_ = m.notifier.Send(ctx, notify.LevelCritical,
					fmt.Sprintf("Ion pump %s pressure %.3e Torr above limit %.3e",
						pump.Name(), pressure, m.maxPressure),
					map[string]any{"pump": pump.Name(), "pressure": pressure})
			}
			data, _ := deviceCatalog.Get("ION_PRESSURE_HIGH")
			return actor.NewCheckError(data,
				fmt.Sprintf("ion pump %s at %.3e Torr", pump.Name(), pressure), nil)
		}
	}

	return nil
}

// Troubleshoot implements actor.Checker. Device faults need a human;
// only transient read errors recover by themselves.
func (m *DeviceMonitor) Troubleshoot(
	ctx context.Context,
	data actor.ErrorData,
	cause error,
) (bool, error) {
	if data.Critical {
		return false, nil
	}
	return m.Check(ctx) == nil, nil
}
