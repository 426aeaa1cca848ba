package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/jiralink/internal/models"
)

// formatStatus formats the connection and sync state as markdown
func formatStatus(configured bool, info *models.ConnectionInfo, config *models.SyncConfig, autoSync bool) string {
	var sb strings.Builder
	sb.WriteString("## Jira Status\n\n")
	sb.WriteString(fmt.Sprintf("**OAuth app configured:** %t\n", configured))

	if info == nil {
		sb.WriteString("**Connected:** false\n")
	} else {
		sb.WriteString("**Connected:** true\n")
		sb.WriteString(fmt.Sprintf("**Site:** %s (%s)\n", info.SiteName, info.SiteURL))
		sb.WriteString(fmt.Sprintf("**Connected at:** %s\n", info.ConnectedAt.Format(time.RFC3339)))
		sb.WriteString(fmt.Sprintf("**Token expires:** %s\n", info.TokenExpiry.Format(time.RFC3339)))
	}

	sb.WriteString("\n### Sync\n")
	sb.WriteString(fmt.Sprintf("**Project:** %s\n", valueOr(config.ProjectKey, "(not set)")))
	sb.WriteString(fmt.Sprintf("**Push enabled:** %t\n", config.PushEnabled))
	sb.WriteString(fmt.Sprintf("**Polling:** %t every %d min (running: %t)\n", config.PollEnabled, config.PollIntervalMinutes, autoSync))
	sb.WriteString(fmt.Sprintf("**Status rules:** %d\n", len(config.StatusRules)))
	return sb.String()
}

// formatProjects formats projects as a markdown table
func formatProjects(projects []*models.JiraProject) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Jira Projects (%d)\n\n", len(projects)))
	if len(projects) == 0 {
		sb.WriteString("No projects found.\n")
		return sb.String()
	}

	sb.WriteString("| Key | Name | ID |\n|---|---|---|\n")
	for _, p := range projects {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s |\n", p.Key, p.Name, p.ID))
	}
	return sb.String()
}

// formatPreview formats an import preview as markdown
func formatPreview(projectKey string, preview *models.ImportPreview) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Import Preview for %s\n\n", strings.ToUpper(projectKey)))
	sb.WriteString(fmt.Sprintf("**Total:** %d, **New:** %d, **Already linked:** %d, **To import:** %d\n\n",
		preview.Total, len(preview.New), len(preview.Existing), len(preview.ToImport)))

	for _, issue := range preview.ToImport {
		sb.WriteString(fmt.Sprintf("- **%s** %s _(%s)_\n", issue.Key, issue.Summary, issue.Status.Name))
	}
	return sb.String()
}

// formatImportResult formats an import summary as markdown
func formatImportResult(projectKey string, result *models.ImportResult) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Imported %s\n\n", strings.ToUpper(projectKey)))
	sb.WriteString(fmt.Sprintf("**Created:** %d of %d (skipped %d, failed %d)\n", result.Created, result.Total, result.Skipped, result.Failed))
	for _, e := range result.Errors {
		sb.WriteString(fmt.Sprintf("- %s\n", e))
	}
	return sb.String()
}

// formatPushResult formats a push outcome as markdown
func formatPushResult(localID, status string, result models.PushResult) string {
	if result.Synced {
		return fmt.Sprintf("Task %s moved to %s; %s transitioned.\n", localID, status, result.JiraKey)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Task %s was not synced: %s\n", localID, result.Reason))
	if result.JiraKey != "" {
		sb.WriteString(fmt.Sprintf("**Issue:** %s\n", result.JiraKey))
	}
	if len(result.AvailableTransitions) > 0 {
		sb.WriteString(fmt.Sprintf("**Available target statuses:** %s\n", strings.Join(result.AvailableTransitions, ", ")))
	}
	return sb.String()
}

// formatPullResult formats the pull outcome as markdown
func formatPullResult(result *models.PullResult, applied int, applyErrors []string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Pull: %d linked issues checked, %d changed\n\n", result.Checked, len(result.Updates)))

	for _, u := range result.Updates {
		sb.WriteString(fmt.Sprintf("- **%s** (task %s): %s -> %s, suggested column `%s`\n",
			u.RemoteKey, u.LocalID, valueOr(u.PreviousStatus, "?"), u.NewStatus, u.SuggestedColumn))
	}

	if len(result.Missing) > 0 {
		sb.WriteString(fmt.Sprintf("\n**Not found in Jira:** %s\n", strings.Join(result.Missing, ", ")))
	}

	if applied > 0 || len(applyErrors) > 0 {
		sb.WriteString(fmt.Sprintf("\n**Applied:** %d\n", applied))
		for _, e := range applyErrors {
			sb.WriteString(fmt.Sprintf("- failed %s\n", e))
		}
	}
	return sb.String()
}

// formatHistory formats history entries as markdown
func formatHistory(entries []models.HistoryEntry) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Sync History (%d entries)\n\n", len(entries)))
	if len(entries) == 0 {
		sb.WriteString("No history.\n")
		return sb.String()
	}

	for _, e := range entries {
		outcome := "ok"
		if !e.Success {
			outcome = "FAILED: " + e.Error
		}
		sb.WriteString(fmt.Sprintf("- %s **%s** %s %s", e.Timestamp.Format(time.RFC3339), e.Direction, valueOr(e.RemoteKey, "-"), valueOr(e.LocalID, "")))
		if e.FromStatus != "" || e.ToStatus != "" {
			sb.WriteString(fmt.Sprintf(" (%s -> %s)", valueOr(e.FromStatus, "?"), e.ToStatus))
		}
		sb.WriteString(" " + outcome + "\n")
	}
	return sb.String()
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
