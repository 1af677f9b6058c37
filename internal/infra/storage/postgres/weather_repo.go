package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/sidereal-labs/opskit/internal/core/domain"
)

// WeatherRepo is the Postgres weather reading repository.
type WeatherRepo struct {
	db *DB
}

// NewWeatherRepo creates a new WeatherRepo.
func NewWeatherRepo(db *DB) *WeatherRepo {
	return &WeatherRepo{db: db}
}

func (r *WeatherRepo) Insert(ctx context.Context, reading *domain.WeatherReading) error {
	query := `
		INSERT INTO weather_readings (
			station, ts, temperature, relative_humidity, air_pressure,
			rain_intensity, dew_point, wind_dir_avg, wind_speed_avg,
			wind_speed_max, wind_speed_avg_5m, wind_speed_avg_10m,
			wind_speed_avg_30m, wind_gust_5m, wind_gust_10m, wind_gust_30m,
			wind_speed_avg_mph, wind_speed_max_mph, wind_speed_avg_5m_mph,
			wind_speed_avg_10m_mph, wind_speed_avg_30m_mph
		) VALUES (
			:station, :ts, :temperature, :relative_humidity, :air_pressure,
			:rain_intensity, :dew_point, :wind_dir_avg, :wind_speed_avg,
			:wind_speed_max, :wind_speed_avg_5m, :wind_speed_avg_10m,
			:wind_speed_avg_30m, :wind_gust_5m, :wind_gust_10m, :wind_gust_30m,
			:wind_speed_avg_mph, :wind_speed_max_mph, :wind_speed_avg_5m_mph,
			:wind_speed_avg_10m_mph, :wind_speed_avg_30m_mph
		)
		ON CONFLICT (station, ts) DO NOTHING`

	if _, err := r.db.NamedExecContext(ctx, query, reading); err != nil {
		return fmt.Errorf("failed to insert weather reading: %w", err)
	}
	return nil
}

func (r *WeatherRepo) Latest(
	ctx context.Context,
	station string,
) (*domain.WeatherReading, error) {
	query := `
		SELECT * FROM weather_readings
		WHERE station = $1
		ORDER BY ts DESC
		LIMIT 1`

	var reading domain.WeatherReading
	if err := r.db.GetContext(ctx, &reading, query, station); err != nil {
		return nil, notFound(err)
	}
	return &reading, nil
}

func (r *WeatherRepo) Range(
	ctx context.Context,
	station string,
	start, end time.Time,
) ([]*domain.WeatherReading, error) {
	query := `
		SELECT * FROM weather_readings
		WHERE station = $1 AND ts >= $2 AND ts < $3
		ORDER BY ts ASC`

	var readings []*domain.WeatherReading
	if err := r.db.SelectContext(ctx, &readings, query, station, start, end); err != nil {
		return nil, fmt.Errorf("failed to query weather readings: %w", err)
	}
	return readings, nil
}

func (r *WeatherRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(
		ctx,
		`DELETE FROM weather_readings WHERE ts < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune weather readings: %w", err)
	}
	return res.RowsAffected()
}
