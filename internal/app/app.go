package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/harvestd/internal/common"
	"github.com/ternarybob/harvestd/internal/handlers"
	"github.com/ternarybob/harvestd/internal/interfaces"
	"github.com/ternarybob/harvestd/internal/metrics"
	"github.com/ternarybob/harvestd/internal/services/client"
	"github.com/ternarybob/harvestd/internal/services/events"
	"github.com/ternarybob/harvestd/internal/services/harvester"
	"github.com/ternarybob/harvestd/internal/services/ingestion"
	"github.com/ternarybob/harvestd/internal/services/monitoring"
	"github.com/ternarybob/harvestd/internal/services/ratelimit"
	"github.com/ternarybob/harvestd/internal/storage/badger"
	"github.com/ternarybob/harvestd/internal/wall"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager
	Metrics        *metrics.Metrics

	// Engine
	EventService *events.Service
	Limiter      *ratelimit.Limiter
	Client       *client.Client
	Source       interfaces.Source
	Pipeline     *ingestion.Pipeline
	Scheduler    *monitoring.Scheduler

	// HTTP handlers
	APIHandler        *handlers.APIHandler
	GroupHandler      *handlers.GroupHandler
	MonitoringHandler *handlers.MonitoringHandler
	WSHandler         *handlers.WebSocketHandler
	EventSubscriber   *handlers.EventSubscriber
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Bool("scheduler_enabled", cfg.Scheduler.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase opens the badger store and applies group seed files
func (a *App) initDatabase() error {
	storageManager, err := badger.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	// Seed files are optional; a bad file never blocks startup
	if err := a.StorageManager.LoadGroupsFromFiles(context.Background(), a.Config.Groups.DefinitionsDir); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to load group seed files")
	}

	return nil
}

// initServices builds the engine bottom-up: limiter, client, source, harvesters,
// pipeline, then the scheduler
func (a *App) initServices() error {
	a.EventService = events.NewService(a.Logger)
	if err := events.SubscribeLoggerToAllEvents(a.EventService, a.Logger); err != nil {
		return fmt.Errorf("failed to subscribe event logger: %w", err)
	}

	limiter, err := ratelimit.NewLimiter(a.Config.RateLimiter.Points, a.Config.RateLimiter.RateWindow(), a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create rate limiter: %w", err)
	}
	a.Limiter = limiter

	transport := wall.NewTransport(a.Config.Source, wall.WithLogger(a.Logger))

	a.Client, err = client.NewClient(transport, limiter,
		client.WithLogger(a.Logger),
		client.WithRetryPolicy(client.RetryPolicyFromConfig(a.Config.Retry)),
		client.WithEventService(a.EventService),
		client.WithMetrics(a.Metrics),
	)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	a.Source = wall.NewClient(a.Client)

	harvesterOpts := []harvester.Option{
		harvester.WithLogger(a.Logger),
		harvester.WithEventService(a.EventService),
		harvester.WithMetrics(a.Metrics),
	}
	pagination := a.Config.Pagination
	postHarvester := harvester.New(pagination.PostsPageSize, pagination.PostsMaxPages,
		append(harvesterOpts, harvester.WithWindowedCap())...)
	commentHarvester := harvester.New(pagination.PageSize, pagination.MaxPages, harvesterOpts...)

	a.Pipeline = ingestion.NewPipeline(
		a.Source,
		a.StorageManager.ContentStorage(),
		postHarvester,
		commentHarvester,
		ingestion.WithLogger(a.Logger),
		ingestion.WithMetrics(a.Metrics),
	)

	a.Scheduler = monitoring.NewScheduler(
		monitoring.ConfigFromCommon(a.Config.Scheduler),
		a.StorageManager.GroupStorage(),
		a.Pipeline,
		monitoring.WithLogger(a.Logger),
		monitoring.WithEventService(a.EventService),
		monitoring.WithMetrics(a.Metrics),
		monitoring.WithContentStorage(a.StorageManager.ContentStorage()),
	)

	a.Logger.Debug().
		Int("rate_points", limiter.Points()).
		Dur("rate_window", limiter.Window()).
		Int("posts_page_size", postHarvester.PageSize()).
		Int("comments_max_pages", commentHarvester.MaxPages()).
		Msg("Engine services initialized")

	return nil
}

// initHandlers wires the HTTP and WebSocket surfaces to the engine
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Logger)
	a.GroupHandler = handlers.NewGroupHandler(a.Scheduler, a.StorageManager.ContentStorage(), a.Logger)
	a.MonitoringHandler = handlers.NewMonitoringHandler(a.Scheduler, a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.Logger)
	a.EventSubscriber = handlers.NewEventSubscriber(a.WSHandler, a.EventService, a.Logger, &a.Config.WebSocket)
}

// Start launches the monitoring scheduler when enabled
func (a *App) Start() error {
	if !a.Config.Scheduler.Enabled {
		a.Logger.Info().Msg("Monitoring scheduler disabled by configuration")
		return nil
	}
	if err := a.Scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	return nil
}

// Close stops the engine and releases resources in reverse start order
func (a *App) Close() error {
	start := time.Now()

	if a.Scheduler != nil {
		if err := a.Scheduler.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler")
		}
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.Client != nil {
		a.Logger.Info().Int64("outbound_calls", a.Client.TotalCalls()).Msg("Outbound client closed")
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	a.Logger.Info().Dur("duration", time.Since(start)).Msg("Application closed")
	return nil
}
