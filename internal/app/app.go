package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jiralink/internal/common"
	"github.com/ternarybob/jiralink/internal/handlers"
	"github.com/ternarybob/jiralink/internal/httpclient"
	"github.com/ternarybob/jiralink/internal/interfaces"
	"github.com/ternarybob/jiralink/internal/models"
	"github.com/ternarybob/jiralink/internal/services/atlassian"
	"github.com/ternarybob/jiralink/internal/services/events"
	"github.com/ternarybob/jiralink/internal/services/kv"
	"github.com/ternarybob/jiralink/internal/services/tasks"
	"github.com/ternarybob/jiralink/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Services
	EventService interfaces.EventService
	KVService    *kv.Service
	TaskService  *tasks.Service
	Connector    *atlassian.Connector

	// HTTP handlers
	APIHandler    *handlers.APIHandler
	ConfigHandler *handlers.ConfigHandler
	AuthHandler   *handlers.AuthHandler
	JiraHandler   *handlers.JiraHandler
	SyncHandler   *handlers.SyncHandler
	TaskHandler   *handlers.TaskHandler
	WSHandler     *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.StorageManager.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	if err := app.startAutoSync(); err != nil {
		logger.Warn().Err(err).Msg("Auto-sync not started")
	}

	logger.Info().
		Str("storage", cfg.Storage.Badger.Path).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return err
	}
	a.StorageManager = storageManager

	a.Logger.Info().
		Str("path", a.Config.Storage.Badger.Path).
		Bool("in_memory", a.Config.Storage.Badger.InMemory).
		Msg("Storage layer initialized")
	return nil
}

// initServices wires the event bus, task service and Jira connector
func (a *App) initServices() error {
	a.EventService = events.NewService(a.Logger)
	if err := events.SubscribeLoggerToAllEvents(a.EventService, a.Logger); err != nil {
		return fmt.Errorf("failed to subscribe event logger: %w", err)
	}

	a.KVService = kv.NewService(a.StorageManager.KeyValueStorage(), a.Logger)
	a.TaskService = tasks.NewService(a.StorageManager.TaskStorage(), a.EventService, a.Logger)

	cipher, err := atlassian.LoadTokenCipher(a.Config.Security)
	if err != nil {
		return fmt.Errorf("failed to load token key: %w", err)
	}

	var seedRules []models.StatusRule
	if a.Config.Sync.RulesFile != "" {
		seedRules, err = atlassian.LoadStatusRulesFile(a.Config.Sync.RulesFile)
		if err != nil {
			return err
		}
		a.Logger.Info().
			Str("file", a.Config.Sync.RulesFile).
			Int("rules", len(seedRules)).
			Msg("Loaded seed status rules")
	}

	jira := a.Config.Jira
	var defaults *models.OAuthSettings
	if jira.ClientID != "" || jira.ClientSecret != "" {
		defaults = &models.OAuthSettings{
			ClientID:     jira.ClientID,
			ClientSecret: jira.ClientSecret,
			RedirectURI:  jira.RedirectURI,
		}
	}

	httpClient := httpclient.NewDefaultHTTPClient(jira.RequestTimeout)
	a.Connector = atlassian.NewConnector(a.KVService, a.StorageManager.TaskStorage(), a.EventService, cipher, a.Logger, atlassian.ConnectorOptions{
		Credential: []atlassian.CredentialOption{
			atlassian.WithDefaultSettings(defaults),
			atlassian.WithCredentialHTTPClient(httpClient),
		},
		Client: []atlassian.ClientOption{
			atlassian.WithHTTPClient(httpClient),
			atlassian.WithRateLimit(jira.RateLimit),
			atlassian.WithPageSize(jira.PageSize),
		},
		SeedRules: seedRules,
	})

	if err := a.Connector.SubscribeTaskEvents(); err != nil {
		return fmt.Errorf("failed to subscribe connector to task events: %w", err)
	}

	a.Logger.Info().Msg("Jira connector initialized")
	return nil
}

// initHandlers creates the HTTP handlers
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Logger)
	a.ConfigHandler = handlers.NewConfigHandler(a.Logger, a.Config)
	a.AuthHandler = handlers.NewAuthHandler(a.Connector.Auth(), a.Logger)
	a.JiraHandler = handlers.NewJiraHandler(a.Connector.Projects(), a.Connector.Import(), a.Logger)
	a.SyncHandler = handlers.NewSyncHandler(a.Connector.Sync(), a.Logger)
	a.TaskHandler = handlers.NewTaskHandler(a.TaskService, a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, a.Connector.Auth(), a.Connector.Sync(), a.Logger)
}

// startAutoSync installs the poll schedule when enabled in the stored config
func (a *App) startAutoSync() error {
	if !a.Config.Sync.AutoStart {
		return nil
	}

	ctx := context.Background()
	config, err := a.Connector.Sync().GetConfig(ctx)
	if err != nil {
		return err
	}
	if !config.PollEnabled {
		return nil
	}

	if err := a.Connector.Sync().StartAutoSync(ctx); err != nil {
		return err
	}
	a.Logger.Info().
		Str("project", config.ProjectKey).
		Int("interval_minutes", config.PollIntervalMinutes).
		Msg("Auto-sync started")
	return nil
}

// Close releases the scheduler, event bus and storage
func (a *App) Close() error {
	if a.Connector != nil {
		a.Connector.Sync().StopAutoSync()
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
