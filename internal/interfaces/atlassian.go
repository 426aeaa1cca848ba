package interfaces

import (
	"context"

	"github.com/ternarybob/jiralink/internal/models"
)

// JiraAuth covers the OAuth connection lifecycle
type JiraAuth interface {
	IsConfigured(ctx context.Context) bool
	IsConnected(ctx context.Context) bool
	GetConnectionInfo(ctx context.Context) (*models.ConnectionInfo, error)
	GetSettings(ctx context.Context) (*models.OAuthSettings, error)
	SaveSettings(ctx context.Context, settings *models.OAuthSettings) error
	BuildAuthorizationURL(ctx context.Context) (string, error)
	CompleteAuthorization(ctx context.Context, code, returnedState string) (*models.Connection, error)
	Disconnect(ctx context.Context) error
}

// JiraProjects covers read-only project metadata
type JiraProjects interface {
	ListProjects(ctx context.Context) ([]*models.JiraProject, error)
	ListProjectStatuses(ctx context.Context, projectKey string) ([]*models.JiraStatus, error)
	GetSuggestedStatusMapping(ctx context.Context, projectKey string) ([]models.StatusRule, error)
}

// JiraImport covers the one-shot import pipeline
type JiraImport interface {
	Preview(ctx context.Context, opts models.ImportOptions) (*models.ImportPreview, error)
	BuildDrafts(ctx context.Context, opts models.ImportOptions) ([]models.ImportItem, error)
	ImportAll(ctx context.Context, opts models.ImportOptions) (*models.ImportResult, error)
}

// JiraSync covers ongoing reconciliation, mappings, history and the scheduler
type JiraSync interface {
	GetConfig(ctx context.Context) (*models.SyncConfig, error)
	SaveConfig(ctx context.Context, config *models.SyncConfig) error

	SyncTaskToJira(ctx context.Context, localID, newStatus string) models.PushResult
	PullFromJira(ctx context.Context) (*models.PullResult, error)
	ApplyUpdate(ctx context.Context, update models.StatusUpdate) error

	Link(ctx context.Context, localID, remoteKey string) (*models.Mapping, error)
	Unlink(ctx context.Context, localID string) error
	GetMapping(ctx context.Context, localID string) (*models.Mapping, error)
	ListMappings(ctx context.Context) ([]*models.Mapping, error)

	ListHistory(ctx context.Context, limit int) ([]models.HistoryEntry, error)
	ClearHistory(ctx context.Context) error

	StartAutoSync(ctx context.Context) error
	StopAutoSync()
	IsAutoSyncRunning() bool
}

// JiraConnector is the capability set a host holds to drive the Jira integration
type JiraConnector interface {
	Auth() JiraAuth
	Projects() JiraProjects
	Import() JiraImport
	Sync() JiraSync
}
