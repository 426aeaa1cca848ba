package atlassian

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jiralink/internal/interfaces"
	"github.com/ternarybob/jiralink/internal/models"
)

// Importer converts Jira issues into local tasks without creating duplicates
type Importer struct {
	client   *Client
	mappings *MappingStore
	config   *ConfigStore
	tasks    interfaces.TaskStore
	history  *History
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewImporter creates a new import pipeline
func NewImporter(client *Client, mappings *MappingStore, config *ConfigStore, tasks interfaces.TaskStore, history *History, logger arbor.ILogger) *Importer {
	return &Importer{
		client:   client,
		mappings: mappings,
		config:   config,
		tasks:    tasks,
		history:  history,
		validate: validator.New(),
		logger:   logger,
	}
}

// Preview fetches matching issues and splits them by whether they are already mapped
func (p *Importer) Preview(ctx context.Context, opts models.ImportOptions) (*models.ImportPreview, error) {
	opts.ProjectKey = strings.ToUpper(strings.TrimSpace(opts.ProjectKey))
	if err := p.validate.Struct(&opts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	issues, err := p.client.ListAllProjectIssues(ctx, opts.ProjectKey, opts.ExtraFilter)
	if err != nil {
		return nil, err
	}

	mapped, err := p.mappings.ByRemoteKey(ctx)
	if err != nil {
		return nil, err
	}

	preview := &models.ImportPreview{
		New:      []*models.JiraIssue{},
		Existing: []*models.JiraIssue{},
		ToImport: []*models.JiraIssue{},
		Total:    len(issues),
	}
	for _, issue := range issues {
		if _, ok := mapped[issue.Key]; ok {
			preview.Existing = append(preview.Existing, issue)
			if opts.IncludeExisting {
				preview.ToImport = append(preview.ToImport, issue)
			}
			continue
		}
		preview.New = append(preview.New, issue)
		preview.ToImport = append(preview.ToImport, issue)
	}

	p.logger.Info().
		Str("project", opts.ProjectKey).
		Int("total", preview.Total).
		Int("new", len(preview.New)).
		Int("existing", len(preview.Existing)).
		Msg("Import preview")

	return preview, nil
}

// BuildDrafts returns one draft per issue to import, in source order
func (p *Importer) BuildDrafts(ctx context.Context, opts models.ImportOptions) ([]models.ImportItem, error) {
	preview, err := p.Preview(ctx, opts)
	if err != nil {
		return nil, err
	}
	return p.draftsFor(ctx, preview.ToImport)
}

func (p *Importer) draftsFor(ctx context.Context, issues []*models.JiraIssue) ([]models.ImportItem, error) {
	config, err := p.config.Get(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]models.ImportItem, 0, len(issues))
	for _, issue := range issues {
		items = append(items, models.ImportItem{
			Issue: issue,
			Draft: DraftFromIssue(issue, config.StatusRules),
		})
	}
	return items, nil
}

// DraftFromIssue derives a local task draft from an issue
func DraftFromIssue(issue *models.JiraIssue, rules []models.StatusRule) *models.TaskDraft {
	return &models.TaskDraft{
		Title:       fmt.Sprintf("[%s] %s", issue.Key, issue.Summary),
		Description: buildDescription(issue),
		Status:      ColumnForStatus(rules, &issue.Status),
		Priority:    MapPriority(issue.Priority),
		Labels:      issue.Labels,
		Source:      "jira:" + issue.Key,
	}
}

// ImportAll creates a local task and a mapping for every issue to import.
// A failing issue is counted and reported without aborting the batch.
func (p *Importer) ImportAll(ctx context.Context, opts models.ImportOptions) (*models.ImportResult, error) {
	preview, err := p.Preview(ctx, opts)
	if err != nil {
		return nil, err
	}

	items, err := p.draftsFor(ctx, preview.ToImport)
	if err != nil {
		return nil, err
	}

	result := &models.ImportResult{
		Total:   preview.Total,
		Skipped: preview.Total - len(items),
		Errors:  []string{},
	}

	for _, item := range items {
		task, err := p.tasks.CreateTask(ctx, item.Draft)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", item.Issue.Key, err))
			continue
		}

		if err := p.SaveMapping(ctx, task.ID, item.Issue); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", item.Issue.Key, err))
			continue
		}
		result.Created++
	}

	if p.history != nil {
		entry := models.HistoryEntry{
			Direction: models.DirectionImport,
			Success:   result.Failed == 0,
			ToStatus:  fmt.Sprintf("%d created", result.Created),
		}
		if result.Failed > 0 {
			entry.Error = strings.Join(result.Errors, "; ")
		}
		p.history.Record(ctx, entry)
	}

	p.logger.Info().
		Str("project", opts.ProjectKey).
		Int("created", result.Created).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("Import finished")

	return result, nil
}

// SaveMapping links a freshly created local task to its source issue
func (p *Importer) SaveMapping(ctx context.Context, localID string, issue *models.JiraIssue) error {
	return p.mappings.Put(ctx, &models.Mapping{
		LocalID:      localID,
		RemoteKey:    issue.Key,
		RemoteID:     issue.ID,
		RemoteStatus: issue.Status.Name,
		LastSyncedAt: time.Now(),
		Direction:    models.DirectionImport,
	})
}

// GetSuggestedStatusMapping proposes a rule table from the project's statuses
func (p *Importer) GetSuggestedStatusMapping(ctx context.Context, projectKey string) ([]models.StatusRule, error) {
	statuses, err := p.client.ListProjectStatuses(ctx, projectKey)
	if err != nil {
		return nil, err
	}
	return SuggestRules(statuses), nil
}
