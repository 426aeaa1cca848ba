package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createStatusTool returns the jira_status tool definition
func createStatusTool() mcp.Tool {
	return mcp.NewTool("jira_status",
		mcp.WithDescription("Show the Jira connection, sync configuration and auto-sync state"),
	)
}

// createListProjectsTool returns the jira_list_projects tool definition
func createListProjectsTool() mcp.Tool {
	return mcp.NewTool("jira_list_projects",
		mcp.WithDescription("List the Jira projects visible to the connected account"),
	)
}

// createImportPreviewTool returns the jira_import_preview tool definition
func createImportPreviewTool() mcp.Tool {
	return mcp.NewTool("jira_import_preview",
		mcp.WithDescription("Preview which issues of a project would be imported as local tasks"),
		mcp.WithString("project_key",
			mcp.Required(),
			mcp.Description("Jira project key (e.g. PROJ)"),
		),
		mcp.WithString("extra_filter",
			mcp.Description("Additional JQL ANDed with the project clause"),
		),
		mcp.WithBoolean("include_existing",
			mcp.Description("Re-import issues that are already linked (default: false)"),
		),
	)
}

// createImportTool returns the jira_import tool definition
func createImportTool() mcp.Tool {
	return mcp.NewTool("jira_import",
		mcp.WithDescription("Import the issues of a project as local tasks and link them"),
		mcp.WithString("project_key",
			mcp.Required(),
			mcp.Description("Jira project key (e.g. PROJ)"),
		),
		mcp.WithString("extra_filter",
			mcp.Description("Additional JQL ANDed with the project clause"),
		),
		mcp.WithBoolean("include_existing",
			mcp.Description("Re-import issues that are already linked (default: false)"),
		),
	)
}

// createPushTool returns the jira_push tool definition
func createPushTool() mcp.Tool {
	return mcp.NewTool("jira_push",
		mcp.WithDescription("Transition the linked Jira issue to match a local task column"),
		mcp.WithString("local_id",
			mcp.Required(),
			mcp.Description("Local task ID"),
		),
		mcp.WithString("status",
			mcp.Required(),
			mcp.Description("Local column: backlog, todo, doing, review, done"),
		),
	)
}

// createPullTool returns the jira_pull tool definition
func createPullTool() mcp.Tool {
	return mcp.NewTool("jira_pull",
		mcp.WithDescription("Check linked issues for remote status changes"),
		mcp.WithBoolean("apply",
			mcp.Description("Move local tasks to the suggested columns (default: false)"),
		),
	)
}

// createHistoryTool returns the jira_history tool definition
func createHistoryTool() mcp.Tool {
	return mcp.NewTool("jira_history",
		mcp.WithDescription("List recent sync history entries, newest first"),
		mcp.WithNumber("limit",
			mcp.Description("Max entries (default: 20, max: 100)"),
		),
	)
}
