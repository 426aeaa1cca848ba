package atlassian

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration means the OAuth client id or secret is missing
	ErrConfiguration = errors.New("jira oauth app is not configured")
	// ErrCSRF means the callback state did not match the persisted nonce
	ErrCSRF = errors.New("oauth state mismatch")
	// ErrNoAccessibleSite means the token cannot reach any Jira site
	ErrNoAccessibleSite = errors.New("no accessible jira site for this token")
	// ErrReauthRequired means the refresh token was rejected and the connection was removed
	ErrReauthRequired = errors.New("jira re-authorization required")
	// ErrNotConnected means no connection is stored
	ErrNotConnected = errors.New("jira is not connected")
)

// RemoteAPIError is returned for any non-2xx response from Atlassian
type RemoteAPIError struct {
	Status   int
	Body     string
	Endpoint string
}

func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("jira API error: status %d, endpoint %s: %s", e.Status, e.Endpoint, truncate(e.Body, 300))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// ErrMappingNotFound means the local task is not linked to any issue
var ErrMappingNotFound = errors.New("task is not linked to a jira issue")
