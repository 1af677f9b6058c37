package config

import (
	"github.com/sidereal-labs/opskit/internal/actor"
	"github.com/sidereal-labs/opskit/internal/core/worker"
	"github.com/sidereal-labs/opskit/internal/devices"
	"github.com/sidereal-labs/opskit/internal/ephemeris"
	redisclient "github.com/sidereal-labs/opskit/internal/infra/redis"
	"github.com/sidereal-labs/opskit/internal/infra/storage/postgres"
	"github.com/sidereal-labs/opskit/internal/notify"
	"github.com/sidereal-labs/opskit/internal/pubsub"
	"github.com/sidereal-labs/opskit/internal/weather"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server        ServerConfig            `yaml:"server"`
	Redis         redisclient.Config      `yaml:"redis"`
	PubSub        pubsub.Config           `yaml:"pubsub"`
	Database      postgres.Config         `yaml:"database"`
	Logging       LoggingConfig           `yaml:"logging"`
	Notifications notify.Config           `yaml:"notifications"`
	Weather       weather.Config          `yaml:"weather"`
	Ephemeris     ephemeris.Config        `yaml:"ephemeris"`
	Devices       devices.Config          `yaml:"devices"`
	Retention     worker.RetentionConfig  `yaml:"retention"`
	Actors        map[string]actor.Config `yaml:"actors"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}
