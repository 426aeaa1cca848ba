package models

// JiraProject represents a Jira project
type JiraProject struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

// JiraStatus represents a workflow status as reported by Jira
type JiraStatus struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"` // statusCategory key: new, indeterminate, done
}

// JiraIssue is a normalized Jira issue. Description is plain text
// extracted from the Atlassian Document Format body.
type JiraIssue struct {
	ID          string     `json:"id"`
	Key         string     `json:"key"`
	Summary     string     `json:"summary"`
	Description string     `json:"description"`
	Status      JiraStatus `json:"status"`
	IssueType   string     `json:"issueType"`
	Priority    string     `json:"priority"`
	Assignee    string     `json:"assignee,omitempty"`
	Labels      []string   `json:"labels,omitempty"`
	Created     string     `json:"created,omitempty"`
	Updated     string     `json:"updated,omitempty"`
}

// JiraTransition is a legal workflow move for one issue
type JiraTransition struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	To   JiraStatus `json:"to"`
}

// SearchResult is one page of a JQL search
type SearchResult struct {
	Total    int          `json:"total"`
	Offset   int          `json:"offset"`
	PageSize int          `json:"pageSize"`
	Issues   []*JiraIssue `json:"issues"`
}

// AccessibleResource is a site reachable with the current OAuth token
type AccessibleResource struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Name   string   `json:"name"`
	Scopes []string `json:"scopes"`
}
