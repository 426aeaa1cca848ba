package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jiralink/internal/interfaces"
	"github.com/ternarybob/jiralink/internal/models"
)

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func importOptions(request mcp.CallToolRequest) (models.ImportOptions, error) {
	projectKey, err := request.RequireString("project_key")
	if err != nil || strings.TrimSpace(projectKey) == "" {
		return models.ImportOptions{}, fmt.Errorf("project_key parameter is required")
	}
	return models.ImportOptions{
		ProjectKey:      projectKey,
		ExtraFilter:     request.GetString("extra_filter", ""),
		IncludeExisting: request.GetBool("include_existing", false),
	}, nil
}

// handleStatus implements the jira_status tool
func handleStatus(connector interfaces.JiraConnector, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		info, err := connector.Auth().GetConnectionInfo(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to load connection")
			return textResult(fmt.Sprintf("Error: %v", err)), nil
		}

		config, err := connector.Sync().GetConfig(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to load sync config")
			return textResult(fmt.Sprintf("Error: %v", err)), nil
		}

		return textResult(formatStatus(connector.Auth().IsConfigured(ctx), info, config, connector.Sync().IsAutoSyncRunning())), nil
	}
}

// handleListProjects implements the jira_list_projects tool
func handleListProjects(connector interfaces.JiraConnector, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projects, err := connector.Projects().ListProjects(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("ListProjects failed")
			return textResult(fmt.Sprintf("Error: %v", err)), nil
		}
		return textResult(formatProjects(projects)), nil
	}
}

// handleImportPreview implements the jira_import_preview tool
func handleImportPreview(connector interfaces.JiraConnector, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		opts, err := importOptions(request)
		if err != nil {
			return textResult("Error: " + err.Error()), nil
		}

		preview, err := connector.Import().Preview(ctx, opts)
		if err != nil {
			logger.Error().Err(err).Str("project", opts.ProjectKey).Msg("Import preview failed")
			return textResult(fmt.Sprintf("Error: %v", err)), nil
		}
		return textResult(formatPreview(opts.ProjectKey, preview)), nil
	}
}

// handleImport implements the jira_import tool
func handleImport(connector interfaces.JiraConnector, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		opts, err := importOptions(request)
		if err != nil {
			return textResult("Error: " + err.Error()), nil
		}

		result, err := connector.Import().ImportAll(ctx, opts)
		if err != nil {
			logger.Error().Err(err).Str("project", opts.ProjectKey).Msg("Import failed")
			return textResult(fmt.Sprintf("Error: %v", err)), nil
		}
		return textResult(formatImportResult(opts.ProjectKey, result)), nil
	}
}

// handlePush implements the jira_push tool
func handlePush(connector interfaces.JiraConnector, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		localID, err := request.RequireString("local_id")
		if err != nil || localID == "" {
			return textResult("Error: local_id parameter is required"), nil
		}
		status, err := request.RequireString("status")
		if err != nil || status == "" {
			return textResult("Error: status parameter is required"), nil
		}

		result := connector.Sync().SyncTaskToJira(ctx, localID, status)
		logger.Debug().Str("local_id", localID).Bool("synced", result.Synced).Msg("Push via MCP")
		return textResult(formatPushResult(localID, status, result)), nil
	}
}

// handlePull implements the jira_pull tool
func handlePull(connector interfaces.JiraConnector, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := connector.Sync().PullFromJira(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Pull failed")
			return textResult(fmt.Sprintf("Error: %v", err)), nil
		}

		var applyErrors []string
		applied := 0
		if request.GetBool("apply", false) {
			for _, update := range result.Updates {
				if err := connector.Sync().ApplyUpdate(ctx, update); err != nil {
					applyErrors = append(applyErrors, fmt.Sprintf("%s: %v", update.RemoteKey, err))
					continue
				}
				applied++
			}
		}

		return textResult(formatPullResult(result, applied, applyErrors)), nil
	}
}

// handleHistory implements the jira_history tool
func handleHistory(connector interfaces.JiraConnector, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := request.GetInt("limit", 20)
		if limit <= 0 || limit > 100 {
			limit = 100
		}

		entries, err := connector.Sync().ListHistory(ctx, limit)
		if err != nil {
			logger.Error().Err(err).Msg("ListHistory failed")
			return textResult(fmt.Sprintf("Error: %v", err)), nil
		}
		return textResult(formatHistory(entries)), nil
	}
}
