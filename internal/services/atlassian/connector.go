package atlassian

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jiralink/internal/interfaces"
	"github.com/ternarybob/jiralink/internal/models"
	"github.com/ternarybob/jiralink/internal/services/kv"
)

// ConnectorOptions tunes the components a Connector builds
type ConnectorOptions struct {
	Credential []CredentialOption
	Client     []ClientOption
	SeedRules  []models.StatusRule
}

// Connector owns one instance of each Jira component and is passed explicitly to callers
type Connector struct {
	credentials *CredentialManager
	client      *Client
	mappings    *MappingStore
	history     *History
	config      *ConfigStore
	importer    *Importer
	sync        *SyncEngine
	events      interfaces.EventService
	logger      arbor.ILogger
}

var _ interfaces.JiraConnector = (*Connector)(nil)

// NewConnector wires the credential manager, client, import pipeline and sync engine together
func NewConnector(store *kv.Service, tasks interfaces.TaskStore, events interfaces.EventService, cipher *TokenCipher, logger arbor.ILogger, opts ConnectorOptions) *Connector {
	credOpts := append([]CredentialOption{}, opts.Credential...)
	if events != nil {
		credOpts = append(credOpts, WithEventService(events))
	}

	credentials := NewCredentialManager(store, cipher, logger, credOpts...)
	client := NewClient(credentials, logger, opts.Client...)
	mappings := NewMappingStore(store, logger)
	history := NewHistory(store, events, logger)
	config := NewConfigStore(store, opts.SeedRules, logger)

	return &Connector{
		credentials: credentials,
		client:      client,
		mappings:    mappings,
		history:     history,
		config:      config,
		importer:    NewImporter(client, mappings, config, tasks, history, logger),
		sync:        NewSyncEngine(client, mappings, config, history, tasks, events, logger),
		events:      events,
		logger:      logger,
	}
}

// Auth returns the OAuth connection lifecycle operations
func (c *Connector) Auth() interfaces.JiraAuth {
	return c.credentials
}

// Projects returns project metadata operations
func (c *Connector) Projects() interfaces.JiraProjects {
	return &projects{client: c.client, importer: c.importer}
}

// Import returns the import pipeline
func (c *Connector) Import() interfaces.JiraImport {
	return c.importer
}

// Sync returns the sync engine
func (c *Connector) Sync() interfaces.JiraSync {
	return c.sync
}

// Credentials exposes the credential manager for token-level operations
func (c *Connector) Credentials() *CredentialManager {
	return c.credentials
}

// Client exposes the REST client
func (c *Connector) Client() *Client {
	return c.client
}

// SubscribeTaskEvents pushes local column changes to Jira while push is enabled
func (c *Connector) SubscribeTaskEvents() error {
	if c.events == nil {
		return fmt.Errorf("connector has no event service")
	}
	return c.events.Subscribe(interfaces.EventTaskStatusChanged, c.handleTaskStatusChanged)
}

func (c *Connector) handleTaskStatusChanged(ctx context.Context, event interfaces.Event) error {
	change, ok := event.Payload.(interfaces.TaskStatusChange)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	if change.FromStatus == change.ToStatus {
		return nil
	}

	config, err := c.sync.GetConfig(ctx)
	if err != nil {
		return err
	}
	if !config.PushEnabled || !c.credentials.IsConnected(ctx) {
		return nil
	}

	result := c.sync.SyncCurrentColumn(ctx, change.TaskID)
	c.logger.Debug().
		Str("task_id", change.TaskID).
		Bool("synced", result.Synced).
		Str("reason", result.Reason).
		Msg("Push after task move")
	return nil
}

// projects combines client lookups with the suggestion heuristic
type projects struct {
	client   *Client
	importer *Importer
}

func (p *projects) ListProjects(ctx context.Context) ([]*models.JiraProject, error) {
	return p.client.ListProjects(ctx)
}

func (p *projects) ListProjectStatuses(ctx context.Context, projectKey string) ([]*models.JiraStatus, error) {
	return p.client.ListProjectStatuses(ctx, projectKey)
}

func (p *projects) GetSuggestedStatusMapping(ctx context.Context, projectKey string) ([]models.StatusRule, error) {
	return p.importer.GetSuggestedStatusMapping(ctx, projectKey)
}
