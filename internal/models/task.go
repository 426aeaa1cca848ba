package models

import "time"

// Task is a card in the local task store
type Task struct {
	ID          string    `json:"id" badgerhold:"key"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status" badgerhold:"index"`
	Priority    string    `json:"priority"`
	Labels      []string  `json:"labels,omitempty"`
	Source      string    `json:"source,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TaskDraft is a task derived from a Jira issue, not yet created locally
type TaskDraft struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Priority    string   `json:"priority"`
	Labels      []string `json:"labels,omitempty"`
	Source      string   `json:"source"`
}

// ImportOptions selects which Jira issues an import considers
type ImportOptions struct {
	ProjectKey      string `json:"projectKey" validate:"required"`
	ExtraFilter     string `json:"extraFilter"`
	IncludeExisting bool   `json:"includeExisting"`
}

// ImportPreview partitions the matching issues by whether they are already mapped
type ImportPreview struct {
	New      []*JiraIssue `json:"new"`
	Existing []*JiraIssue `json:"existing"`
	ToImport []*JiraIssue `json:"toImport"`
	Total    int          `json:"total"`
}

// ImportItem pairs a source issue with the draft derived from it
type ImportItem struct {
	Issue *JiraIssue `json:"issue"`
	Draft *TaskDraft `json:"draft"`
}

// ImportResult summarises an ImportAll run
type ImportResult struct {
	Created int      `json:"created"`
	Total   int      `json:"total"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}
