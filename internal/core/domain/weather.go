package domain

import "time"

// WeatherReading is a single enriched weather station measurement.
// Wind speeds are stored in km/h; the mph columns are derived at
// ingestion time along with the rolling averages and dew point.
type WeatherReading struct {
	ID      int64     `db:"id"      json:"id"`
	Station string    `db:"station" json:"station"`
	Time    time.Time `db:"ts"      json:"ts"`

	Temperature      float64 `db:"temperature"       json:"temperature"`
	RelativeHumidity float64 `db:"relative_humidity" json:"relative_humidity"`
	AirPressure      float64 `db:"air_pressure"      json:"air_pressure"`
	RainIntensity    float64 `db:"rain_intensity"    json:"rain_intensity"`
	DewPoint         float64 `db:"dew_point"         json:"dew_point"`

	WindDirAvg   float64 `db:"wind_dir_avg"   json:"wind_dir_avg"`
	WindSpeedAvg float64 `db:"wind_speed_avg" json:"wind_speed_avg"`
	WindSpeedMax float64 `db:"wind_speed_max" json:"wind_speed_max"`

	// Rolling means over trailing windows, in km/h.
	WindSpeedAvg5m  float64 `db:"wind_speed_avg_5m"  json:"wind_speed_avg_5m"`
	WindSpeedAvg10m float64 `db:"wind_speed_avg_10m" json:"wind_speed_avg_10m"`
	WindSpeedAvg30m float64 `db:"wind_speed_avg_30m" json:"wind_speed_avg_30m"`
	WindGust5m      float64 `db:"wind_gust_5m"       json:"wind_gust_5m"`
	WindGust10m     float64 `db:"wind_gust_10m"      json:"wind_gust_10m"`
	WindGust30m     float64 `db:"wind_gust_30m"      json:"wind_gust_30m"`

	// Same quantities converted to mph.
	WindSpeedAvgMPH    float64 `db:"wind_speed_avg_mph"     json:"wind_speed_avg_mph"`
	WindSpeedMaxMPH    float64 `db:"wind_speed_max_mph"     json:"wind_speed_max_mph"`
	WindSpeedAvg5mMPH  float64 `db:"wind_speed_avg_5m_mph"  json:"wind_speed_avg_5m_mph"`
	WindSpeedAvg10mMPH float64 `db:"wind_speed_avg_10m_mph" json:"wind_speed_avg_10m_mph"`
	WindSpeedAvg30mMPH float64 `db:"wind_speed_avg_30m_mph" json:"wind_speed_avg_30m_mph"`
}
