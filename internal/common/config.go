package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string         `toml:"environment"` // "development" or "production"
	Server      ServerConfig   `toml:"server"`
	Storage     StorageConfig  `toml:"storage"`
	Logging     LoggingConfig  `toml:"logging"`
	Jira        JiraConfig     `toml:"jira"`
	Sync        SyncConfig     `toml:"sync"`
	Security    SecurityConfig `toml:"security"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
	// Browser origins allowed to call the API besides the server's own.
	// Empty means same-origin only.
	AllowedOrigins []string `toml:"allowed_origins"`
}

type StorageConfig struct {
	Type   string       `toml:"type"` // only "badger" is supported
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
	InMemory       bool   `toml:"in_memory"`        // Keep everything in memory (tests)
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for log lines
}

// JiraConfig seeds the OAuth settings and tunes the REST client.
// Stored settings (PUT /api/jira/settings) take precedence over these values.
type JiraConfig struct {
	ClientID       string        `toml:"client_id"`
	ClientSecret   string        `toml:"client_secret"`
	RedirectURI    string        `toml:"redirect_uri"`
	RequestTimeout time.Duration `toml:"request_timeout"`
	RateLimit      int           `toml:"rate_limit"` // requests per second
	PageSize       int           `toml:"page_size"`  // search page size for bulk fetches
}

// SyncConfig holds process-level sync options. The per-project sync
// configuration lives in the KV store (see models.SyncConfig).
type SyncConfig struct {
	AutoStart bool   `toml:"auto_start"` // start the poller on boot when polling is enabled
	RulesFile string `toml:"rules_file"` // YAML status rules used when none are stored
}

// SecurityConfig holds the token encryption key source
type SecurityConfig struct {
	TokenKey     string `toml:"token_key"`      // base64, 32 bytes
	TokenKeyFile string `toml:"token_key_file"` // generated on first start when missing
}

// NewDefaultConfig returns the built-in configuration
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Type: "badger",
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		Jira: JiraConfig{
			RedirectURI:    "http://localhost:8085/oauth/callback",
			RequestTimeout: 30 * time.Second,
			RateLimit:      5,
			PageSize:       100,
		},
		Sync: SyncConfig{
			AutoStart: true,
		},
		Security: SecurityConfig{
			TokenKeyFile: "./data/token.key",
		},
	}
}

// LoadFromFile loads configuration from a single file
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads defaults, merges each TOML file in order (later files
// override earlier ones) and finally applies environment overrides
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

func applyEnvOverrides(config *Config) {
	if env := os.Getenv("JIRALINK_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("JIRALINK_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("JIRALINK_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if origins := splitList(os.Getenv("JIRALINK_SERVER_ALLOWED_ORIGINS")); len(origins) > 0 {
		config.Server.AllowedOrigins = origins
	}

	// Storage configuration
	if badgerPath := os.Getenv("JIRALINK_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("JIRALINK_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if outputs := splitList(os.Getenv("JIRALINK_LOG_OUTPUT")); len(outputs) > 0 {
		config.Logging.Output = outputs
	}

	// Jira OAuth app
	if clientID := os.Getenv("JIRALINK_JIRA_CLIENT_ID"); clientID != "" {
		config.Jira.ClientID = clientID
	}
	if clientSecret := os.Getenv("JIRALINK_JIRA_CLIENT_SECRET"); clientSecret != "" {
		config.Jira.ClientSecret = clientSecret
	}
	if redirectURI := os.Getenv("JIRALINK_JIRA_REDIRECT_URI"); redirectURI != "" {
		config.Jira.RedirectURI = redirectURI
	}
	if timeout := os.Getenv("JIRALINK_JIRA_REQUEST_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Jira.RequestTimeout = d
		}
	}

	// Sync
	if autoStart := os.Getenv("JIRALINK_SYNC_AUTO_START"); autoStart != "" {
		if b, err := strconv.ParseBool(autoStart); err == nil {
			config.Sync.AutoStart = b
		}
	}
	if rulesFile := os.Getenv("JIRALINK_SYNC_RULES_FILE"); rulesFile != "" {
		config.Sync.RulesFile = rulesFile
	}

	// Security
	if key := os.Getenv("JIRALINK_TOKEN_KEY"); key != "" {
		config.Security.TokenKey = key
	}
	if keyFile := os.Getenv("JIRALINK_TOKEN_KEY_FILE"); keyFile != "" {
		config.Security.TokenKeyFile = keyFile
	}
}

// splitList parses a comma separated env value, dropping empty entries
func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// ApplyFlagOverrides applies command-line flag overrides to config.
// Zero values leave the config untouched.
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// IsProduction returns true when running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Environment)
	return env == "production" || env == "prod"
}
