package atlassian

import (
	"fmt"
	"strings"

	"github.com/ternarybob/jiralink/internal/models"
)

// Local board columns
const (
	ColumnBacklog = "backlog"
	ColumnTodo    = "todo"
	ColumnDoing   = "doing"
	ColumnReview  = "review"
	ColumnDone    = "done"
)

// ColumnForCategory is the fallback used by both import and pull when no rule matches
func ColumnForCategory(category string) string {
	switch category {
	case "done":
		return ColumnDone
	case "indeterminate":
		return ColumnDoing
	default:
		return ColumnBacklog
	}
}

// SuggestColumn proposes a column for a status from its category and name.
// Used only to seed a suggested rule table for human review.
func SuggestColumn(status *models.JiraStatus) string {
	name := strings.ToLower(status.Name)

	switch status.Category {
	case "done":
		return ColumnDone
	case "indeterminate":
		switch {
		case containsAny(name, "review", "test", "qa"):
			return ColumnReview
		case containsAny(name, "progress", "doing", "dev"):
			return ColumnDoing
		case containsAny(name, "todo", "to do", "ready"):
			return ColumnTodo
		default:
			return ColumnDoing
		}
	default:
		if containsAny(name, "todo", "to do", "selected") {
			return ColumnTodo
		}
		return ColumnBacklog
	}
}

func containsAny(s string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}

// SuggestRules builds one rule per status
func SuggestRules(statuses []*models.JiraStatus) []models.StatusRule {
	rules := make([]models.StatusRule, 0, len(statuses))
	for _, status := range statuses {
		rules = append(rules, models.StatusRule{
			RemoteStatusID:   status.ID,
			RemoteStatusName: status.Name,
			RemoteCategory:   status.Category,
			LocalColumn:      SuggestColumn(status),
		})
	}
	return rules
}

// ruleMatchesStatus matches by id when the rule has one, otherwise by name
func ruleMatchesStatus(rule *models.StatusRule, status *models.JiraStatus) bool {
	if rule.RemoteStatusID != "" && rule.RemoteStatusID == status.ID {
		return true
	}
	return rule.RemoteStatusName != "" && strings.EqualFold(rule.RemoteStatusName, status.Name)
}

// ColumnForStatus resolves a remote status through the rules, falling back to its category
func ColumnForStatus(rules []models.StatusRule, status *models.JiraStatus) string {
	for i := range rules {
		if ruleMatchesStatus(&rules[i], status) {
			return rules[i].LocalColumn
		}
	}
	return ColumnForCategory(status.Category)
}

// RulesForColumn returns the rules targeting a local column, in table order
func RulesForColumn(rules []models.StatusRule, column string) []models.StatusRule {
	var matched []models.StatusRule
	for i := range rules {
		if strings.EqualFold(rules[i].LocalColumn, column) {
			matched = append(matched, rules[i])
		}
	}
	return matched
}

// transitionForRules finds the first transition whose target status satisfies a rule.
// Earlier rules win.
func transitionForRules(transitions []*models.JiraTransition, rules []models.StatusRule) *models.JiraTransition {
	for i := range rules {
		for _, t := range transitions {
			if ruleMatchesStatus(&rules[i], &t.To) {
				return t
			}
		}
	}
	return nil
}

var priorityTable = map[string]string{
	"highest":  "urgent",
	"blocker":  "urgent",
	"critical": "urgent",
	"high":     "high",
	"major":    "high",
	"medium":   "medium",
	"low":      "low",
	"lowest":   "low",
	"minor":    "low",
	"trivial":  "low",
}

// MapPriority converts a Jira priority name to a local priority, defaulting to medium
func MapPriority(name string) string {
	if p, ok := priorityTable[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p
	}
	return "medium"
}

// buildDescription appends a metadata block to the issue text
func buildDescription(issue *models.JiraIssue) string {
	assignee := issue.Assignee
	if assignee == "" {
		assignee = "Unassigned"
	}

	meta := fmt.Sprintf("---\nJira: %s\nType: %s\nAssignee: %s\nStatus: %s",
		issue.Key, issue.IssueType, assignee, issue.Status.Name)

	if strings.TrimSpace(issue.Description) == "" {
		return meta
	}
	return issue.Description + "\n\n" + meta
}
