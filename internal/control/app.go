// Package control assembles the toolkit service: storage, broker,
// notifications, the supervised actors and the health server.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sidereal-labs/opskit/internal/actor"
	"github.com/sidereal-labs/opskit/internal/core/config"
	"github.com/sidereal-labs/opskit/internal/core/worker"
	"github.com/sidereal-labs/opskit/internal/devices"
	"github.com/sidereal-labs/opskit/internal/health"
	redisclient "github.com/sidereal-labs/opskit/internal/infra/redis"
	"github.com/sidereal-labs/opskit/internal/infra/storage"
	"github.com/sidereal-labs/opskit/internal/infra/storage/memory"
	"github.com/sidereal-labs/opskit/internal/infra/storage/postgres"
	"github.com/sidereal-labs/opskit/internal/notify"
	"github.com/sidereal-labs/opskit/internal/pubsub"
	"github.com/sidereal-labs/opskit/internal/weather"
)

// App is the main application struct managing the service lifecycle.
type App struct {
	cfg *config.AppConfig

	db          *postgres.DB
	redisClient *redisclient.Client
	publisher   *pubsub.Publisher
	dispatcher  *notify.Dispatcher

	actors       []*actor.Supervisor
	pruner       *worker.Pruner
	registry     *health.Registry
	healthServer *health.Server

	log *slog.Logger

	cancel context.CancelFunc
}

// NewApp creates the application with all dependencies initialized.
func NewApp(cfg *config.AppConfig, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}

	app := &App{cfg: cfg, log: log, registry: health.NewRegistry()}

	// 1. Storage
	var notifRepo storage.NotificationRepository
	var weatherRepo storage.WeatherRepository

	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate("migrations"); err != nil {
			_ = db.Close()
			return nil, err
		}
		app.db = db
		notifRepo = postgres.NewNotificationRepo(db)
		weatherRepo = postgres.NewWeatherRepo(db)
		log.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage()
		notifRepo = memory.NewNotificationRepo(store)
		weatherRepo = memory.NewWeatherRepo(store)
		log.Info("Using Memory storage")
	}

	// 2. Broker
	if cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			log.Warn("Failed to connect to Redis, broadcasts disabled", "error", err)
		} else {
			app.redisClient = client
			app.publisher = pubsub.NewPublisher(client, cfg.PubSub, log)
		}
	}

	// 3. Notifications
	app.dispatcher = notify.NewDispatcher(cfg.Notifications,
		notify.WithRepository(notifRepo),
		notify.WithLogger(log),
	)

	// 4. Actors
	weatherChecker := NewWeatherMonitor(
		cfg.Weather,
		weather.NewHTTPSource(cfg.Weather),
		weatherRepo,
		app.dispatcher,
		log,
	)
	app.addActor("weather", weatherChecker, weatherCatalog)

	deviceChecker := NewDeviceMonitor(
		app.thermistors(),
		app.ionPumps(),
		cfg.Devices.MaxPressure,
		app.dispatcher,
		log,
	)
	app.addActor("devices", deviceChecker, deviceCatalog)

	// 5. Health server and pruner
	app.healthServer = health.NewServer(app.registry, cfg.Server.Port)
	app.pruner = worker.NewPruner(cfg.Retention, notifRepo, weatherRepo, log)

	return app, nil
}

// thermistors builds the thermistor reader, nil when unconfigured.
func (a *App) thermistors() ThermistorReader {
	cfg := a.cfg.Devices.Thermistors
	if cfg.Address == "" {
		return nil
	}
	return devices.NewThermistors(cfg, devices.NewUDPExchange(cfg.Address))
}

// ionPumps builds the configured pump clients.
func (a *App) ionPumps() []IonPumpReader {
	pumps := make([]IonPumpReader, 0, len(a.cfg.Devices.IonPumps))
	for name, cfg := range a.cfg.Devices.IonPumps {
		if cfg.Address == "" {
			continue
		}
		client := devices.NewTCPRegisterClient(cfg.Address)
		pumps = append(pumps, devices.NewIonPump(name, cfg, client))
	}
	return pumps
}

// addActor builds a supervisor with the per-actor config and registers
// it for health reporting.
func (a *App) addActor(name string, checker actor.Checker, catalog *actor.Catalog) {
	cfg, ok := a.cfg.Actors[name]
	if !ok {
		cfg = actor.DefaultConfig()
	}

	opts := []actor.Option{
		actor.WithCatalog(catalog),
		actor.WithLogger(a.log.With("actor", name)),
	}
	if a.redisClient != nil {
		opts = append(opts, actor.WithTransport(
			pubsub.NewStateTransport(name, a.redisClient, a.cfg.PubSub, a.log),
		))
	}

	s := actor.NewSupervisor(name, cfg, checker, opts...)
	a.actors = append(a.actors, s)
	a.registry.Register(s)
}

// Publisher returns the event publisher, nil without a broker.
func (a *App) Publisher() *pubsub.Publisher {
	return a.publisher
}

// Dispatcher returns the notification dispatcher.
func (a *App) Dispatcher() *notify.Dispatcher {
	return a.dispatcher
}

// Start starts the service.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	// Start Health Server
	go func() {
		if err := a.healthServer.Start(); err != nil && ctx.Err() == nil {
			a.log.Error("Health server failed", "error", err)
		}
	}()

	// Start Actors
	for _, s := range a.actors {
		a.log.Info("Starting actor", "actor", s.Name())
		if err := s.Start(runCtx); err != nil {
			return fmt.Errorf("failed to start actor %s: %w", s.Name(), err)
		}
	}

	// Start Pruner
	go a.pruner.Start(runCtx)

	return nil
}

// Stop stops the service.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping opskit...")

	if a.cancel != nil {
		a.cancel()
	}

	// Stop Actors
	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for _, s := range a.actors {
		if err := s.Stop(stopCtx); err != nil {
			a.log.Warn("Failed to stop actor", "actor", s.Name(), "error", err)
		}
	}

	// Close Redis
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}

	// Close DB
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}

	// Stop Health Server
	return a.healthServer.Stop(ctx)
}
