package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	arbor_models "github.com/ternarybob/arbor/models"
	"github.com/ternarybob/jiralink/internal/app"
	"github.com/ternarybob/jiralink/internal/common"
)

func main() {
	configPath := os.Getenv("JIRALINK_CONFIG")
	if configPath == "" {
		configPath = "jiralink.toml"
	}
	if _, err := os.Stat(configPath); err != nil {
		configPath = ""
	}

	config, err := common.LoadFromFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	// The HTTP service owns the poll schedule
	config.Sync.AutoStart = false

	// Minimal logging to avoid cluttering MCP stdio
	logger := arbor.NewLogger().WithConsoleWriter(arbor_models.WriterConfiguration{
		Type:             arbor_models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		DisableTimestamp: false,
	}).WithLevelFromString("warn")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	connector := application.Connector

	mcpServer := server.NewMCPServer(
		"jiralink",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	mcpServer.AddTool(createStatusTool(), handleStatus(connector, logger))
	mcpServer.AddTool(createListProjectsTool(), handleListProjects(connector, logger))
	mcpServer.AddTool(createImportPreviewTool(), handleImportPreview(connector, logger))
	mcpServer.AddTool(createImportTool(), handleImport(connector, logger))
	mcpServer.AddTool(createPushTool(), handlePush(connector, logger))
	mcpServer.AddTool(createPullTool(), handlePull(connector, logger))
	mcpServer.AddTool(createHistoryTool(), handleHistory(connector, logger))

	// Blocks on stdio
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}
