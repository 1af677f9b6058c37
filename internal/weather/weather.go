// Package weather retrieves weather station data, enriches raw
// readings with derived quantities and decides whether conditions are
// safe to operate.
package weather

import (
	"fmt"
	"sort"
	"time"

	"github.com/sidereal-labs/opskit/internal/core/domain"
)

// Config holds weather monitoring settings.
type Config struct {
	// URL is the base URL of the weather data service.
	URL string `yaml:"url"`

	// Station is the station readings are requested for.
	Station string `yaml:"station"`

	// Lookback is how much history is fetched for safety evaluation.
	Lookback time.Duration `yaml:"lookback"`

	Wind     AlertConfig `yaml:"wind"`
	Humidity AlertConfig `yaml:"humidity"`
}

// AlertConfig holds the hysteresis thresholds for one measurement.
type AlertConfig struct {
	// Threshold raises the alert when reached within Window.
	Threshold float64 `yaml:"threshold"`

	// ReopenBelow keeps the alert raised until the measurement has
	// stayed under this value for GracePeriod. 0 means use Threshold.
	ReopenBelow float64 `yaml:"reopen_below"`

	Window      time.Duration `yaml:"window"`
	GracePeriod time.Duration `yaml:"grace_period"`
}

// DefaultStation is used when no station is configured.
const DefaultStation = "DuPont"

func (c Config) station() string {
	if c.Station == "" {
		return DefaultStation
	}
	return c.Station
}

func (c Config) lookback() time.Duration {
	if c.Lookback <= 0 {
		return time.Hour
	}
	return c.Lookback
}

const kmhPerMPH = 1.60934

// ToMPH converts a wind speed from km/h to mph.
func ToMPH(kmh float64) float64 {
	return kmh / kmhPerMPH
}

// DewPoint approximates the dew point in Celsius from the air
// temperature and relative humidity percentage.
func DewPoint(temperature, relativeHumidity float64) float64 {
	return temperature - (100-relativeHumidity)/5
}

// Enrich sorts readings by time and fills the derived columns: dew
// point, trailing 5/10/30 minute wind averages and gusts, and the mph
// conversions. Readings are modified in place.
func Enrich(readings []*domain.WeatherReading) {
	sort.Slice(readings, func(i, j int) bool {
		return readings[i].Time.Before(readings[j].Time)
	})

	for i, r := range readings {
		r.DewPoint = DewPoint(r.Temperature, r.RelativeHumidity)

		r.WindSpeedAvg5m, r.WindGust5m = trailingWind(readings[:i+1], 5*time.Minute)
		r.WindSpeedAvg10m, r.WindGust10m = trailingWind(readings[:i+1], 10*time.Minute)
		r.WindSpeedAvg30m, r.WindGust30m = trailingWind(readings[:i+1], 30*time.Minute)

		r.WindSpeedAvgMPH = ToMPH(r.WindSpeedAvg)
		r.WindSpeedMaxMPH = ToMPH(r.WindSpeedMax)
		r.WindSpeedAvg5mMPH = ToMPH(r.WindSpeedAvg5m)
		r.WindSpeedAvg10mMPH = ToMPH(r.WindSpeedAvg10m)
		r.WindSpeedAvg30mMPH = ToMPH(r.WindSpeedAvg30m)
	}
}

// trailingWind averages wind_speed_avg and takes the max of
// wind_speed_max over the trailing window ending at the last reading.
func trailingWind(readings []*domain.WeatherReading, window time.Duration) (float64, float64) {
	end := readings[len(readings)-1].Time
	start := end.Add(-window)

	var sum, gust float64
	var n int
	for _, r := range readings {
		if r.Time.Before(start) {
			continue
		}
		sum += r.WindSpeedAvg
		if r.WindSpeedMax > gust {
			gust = r.WindSpeedMax
		}
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), gust
}

// Measurement selects the quantity a safety rule evaluates.
type Measurement string

const (
	MeasurementWindSpeed Measurement = "wind_speed_avg"
	MeasurementWindMPH   Measurement = "wind_speed_avg_mph"
	MeasurementHumidity  Measurement = "relative_humidity"
	MeasurementDewPoint  Measurement = "dew_point"
	MeasurementRain      Measurement = "rain_intensity"
)

// value extracts the measurement from a reading.
func value(r *domain.WeatherReading, m Measurement) (float64, error) {
	switch m {
	case MeasurementWindSpeed:
		return r.WindSpeedAvg, nil
	case MeasurementWindMPH:
		return r.WindSpeedAvgMPH, nil
	case MeasurementHumidity:
		return r.RelativeHumidity, nil
	case MeasurementDewPoint:
		return r.DewPoint, nil
	case MeasurementRain:
		return r.RainIntensity, nil
	default:
		return 0, fmt.Errorf("unknown measurement %q", m)
	}
}

// IsSafe evaluates a measurement against its alert thresholds. The
// alert raises when any value within the trailing window reached the
// threshold. Once conditions improve the alert holds until the
// measurement has stayed below the reopen value for the whole grace
// period, which prevents rapid open/close flapping.
func IsSafe(
	readings []*domain.WeatherReading,
	m Measurement,
	cfg AlertConfig,
	now time.Time,
) (bool, error) {
	if len(readings) == 0 {
		return false, fmt.Errorf("no weather data available")
	}

	window := cfg.Window
	if window <= 0 {
		window = 30 * time.Minute
	}
	grace := cfg.GracePeriod
	if grace <= 0 {
		grace = 30 * time.Minute
	}
	reopen := cfg.ReopenBelow
	if reopen <= 0 {
		reopen = cfg.Threshold
	}

	for _, r := range readings {
		if r.Time.Before(now.Add(-window)) {
			continue
		}
		v, err := value(r, m)
		if err != nil {
			return false, err
		}
		if v >= cfg.Threshold {
			return false, nil
		}
	}

	for _, r := range readings {
		if r.Time.Before(now.Add(-grace)) {
			continue
		}
		v, err := value(r, m)
		if err != nil {
			return false, err
		}
		if v >= reopen {
			return false, nil
		}
	}

	return true, nil
}
