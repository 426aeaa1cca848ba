package atlassian

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jiralink/internal/models"
	"github.com/ternarybob/jiralink/internal/services/kv"
	"gopkg.in/yaml.v3"
)

// ConfigStore persists the sync configuration
type ConfigStore struct {
	kv        *kv.Service
	validate  *validator.Validate
	seedRules []models.StatusRule
	logger    arbor.ILogger
}

// NewConfigStore creates a config store. seedRules are used while the stored
// config has no status rules of its own.
func NewConfigStore(store *kv.Service, seedRules []models.StatusRule, logger arbor.ILogger) *ConfigStore {
	return &ConfigStore{
		kv:        store,
		validate:  validator.New(),
		seedRules: seedRules,
		logger:    logger,
	}
}

// Get returns the stored config, or the default config when none is stored
func (s *ConfigStore) Get(ctx context.Context) (*models.SyncConfig, error) {
	config := models.DefaultSyncConfig()
	if _, err := s.kv.GetJSON(ctx, keyConfig, config); err != nil {
		return nil, err
	}
	if len(config.StatusRules) == 0 && len(s.seedRules) > 0 {
		config.StatusRules = append([]models.StatusRule(nil), s.seedRules...)
	}
	if config.PollIntervalMinutes <= 0 {
		config.PollIntervalMinutes = models.DefaultSyncConfig().PollIntervalMinutes
	}
	return config, nil
}

// Save validates and stores the config
func (s *ConfigStore) Save(ctx context.Context, config *models.SyncConfig) error {
	if config == nil {
		return fmt.Errorf("%w: config is required", ErrConfiguration)
	}

	config.ProjectKey = strings.ToUpper(strings.TrimSpace(config.ProjectKey))
	if config.StatusRules == nil {
		config.StatusRules = []models.StatusRule{}
	}

	if err := s.validate.Struct(config); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	if err := s.kv.SetJSON(ctx, keyConfig, config, "Jira sync configuration"); err != nil {
		return fmt.Errorf("failed to save sync config: %w", err)
	}

	s.logger.Info().
		Str("project", config.ProjectKey).
		Bool("push", config.PushEnabled).
		Bool("poll", config.PollEnabled).
		Int("interval_minutes", config.PollIntervalMinutes).
		Int("rules", len(config.StatusRules)).
		Msg("Sync configuration saved")
	return nil
}

// rulesFile is the YAML layout of a status rules file
type rulesFile struct {
	StatusRules []models.StatusRule `yaml:"status_rules"`
}

// LoadStatusRulesFile reads and validates status rules from a YAML file
func LoadStatusRulesFile(path string) ([]models.StatusRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file %s: %w", path, err)
	}

	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}

	validate := validator.New()
	for i := range file.StatusRules {
		if err := validate.Struct(&file.StatusRules[i]); err != nil {
			return nil, fmt.Errorf("invalid rule %d in %s: %w", i+1, path, err)
		}
	}
	return file.StatusRules, nil
}
