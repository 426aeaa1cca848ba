package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and logs the effective endpoints
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.Print("JiraLink", GetVersion())

	logger.Info().
		Str("version", GetFullVersion()).
		Str("environment", config.Environment).
		Str("host", config.Server.Host).
		Int("port", config.Server.Port).
		Str("storage", config.Storage.Badger.Path).
		Msg("JiraLink starting")
}
