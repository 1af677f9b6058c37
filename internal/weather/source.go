package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sidereal-labs/opskit/internal/core/domain"
	"github.com/sidereal-labs/opskit/internal/metrics"
	"github.com/sidereal-labs/opskit/internal/retry"
)

// Source provides raw weather readings for a time range.
type Source interface {
	Readings(ctx context.Context, start, end time.Time) ([]*domain.WeatherReading, error)
}

// HTTPSource fetches readings from the observatory weather data
// service. Requests are retried a few times before failing.
type HTTPSource struct {
	baseURL string
	station string
	client  *http.Client
	retrier retry.Retrier
}

// NewHTTPSource creates a source from config.
func NewHTTPSource(cfg Config) *HTTPSource {
	return &HTTPSource{
		baseURL: cfg.URL,
		station: cfg.station(),
		client:  &http.Client{Timeout: 15 * time.Second},
		retrier: retry.Retrier{
			MaxAttempts:        3,
			Delay:              time.Second,
			RaiseOnMaxAttempts: true,
		},
	}
}

// reportRow is the wire format of one reading from the data service.
type reportRow struct {
	TS               string  `json:"ts"`
	Temperature      float64 `json:"temperature"`
	RelativeHumidity float64 `json:"relative_humidity"`
	AirPressure      float64 `json:"air_pressure"`
	RainIntensity    float64 `json:"rain_intensity"`
	WindDirAvg       float64 `json:"wind_dir_avg"`
	WindSpeedAvg     float64 `json:"wind_speed_avg"`
	WindSpeedMax     float64 `json:"wind_speed_max"`
}

// Readings fetches and enriches readings in [start, end).
func (s *HTTPSource) Readings(
	ctx context.Context,
	start, end time.Time,
) ([]*domain.WeatherReading, error) {
	fetch := retry.WrapContext(s.retrier, func(ctx context.Context) ([]reportRow, error) {
		return s.fetch(ctx, start, end)
	})

	rows, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	readings := make([]*domain.WeatherReading, 0, len(rows))
	for _, row := range rows {
		ts, err := parseTimestamp(row.TS)
		if err != nil {
			return nil, fmt.Errorf("bad timestamp in weather report: %w", err)
		}
		readings = append(readings, &domain.WeatherReading{
			Station:          s.station,
			Time:             ts,
			Temperature:      row.Temperature,
			RelativeHumidity: row.RelativeHumidity,
			AirPressure:      row.AirPressure,
			RainIntensity:    row.RainIntensity,
			WindDirAvg:       row.WindDirAvg,
			WindSpeedAvg:     row.WindSpeedAvg,
			WindSpeedMax:     row.WindSpeedMax,
		})
	}

	Enrich(readings)
	return readings, nil
}

func (s *HTTPSource) fetch(ctx context.Context, start, end time.Time) ([]reportRow, error) {
	started := time.Now()
	defer func() {
		metrics.DeviceReadLatency.WithLabelValues("weather").
			Observe(time.Since(started).Seconds())
	}()

	q := url.Values{}
	q.Set("start_time", start.UTC().Format(time.RFC3339))
	q.Set("end_time", end.UTC().Format(time.RFC3339))
	q.Set("station", s.station)

	endpoint := s.baseURL + "/weather/report?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build weather request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("weather service returned %d: %s", resp.StatusCode, msg)
	}

	var rows []reportRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode weather report: %w", err)
	}
	return rows, nil
}

// parseTimestamp accepts RFC3339 or the data service's naive UTC format.
func parseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	return time.Parse("2006-01-02 15:04:05", s)
}
