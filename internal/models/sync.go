package models

import "time"

// SyncDirection identifies which way a reconciliation ran
type SyncDirection string

const (
	DirectionPush   SyncDirection = "push"
	DirectionPull   SyncDirection = "pull"
	DirectionImport SyncDirection = "import"
	DirectionLink   SyncDirection = "link"
)

// Soft push outcomes. These are steady-state conditions, not errors.
const (
	ReasonNotLinked    = "not-linked"
	ReasonNoMapping    = "no-mapping"
	ReasonNoTransition = "no-transition"
)

// Mapping binds one local task to one Jira issue
type Mapping struct {
	LocalID      string        `json:"localId"`
	RemoteKey    string        `json:"remoteKey"`
	RemoteID     string        `json:"remoteId"`
	RemoteStatus string        `json:"remoteStatus"`
	LastSyncedAt time.Time     `json:"lastSyncedAt"`
	Direction    SyncDirection `json:"direction"`
}

// StatusRule maps one Jira status to one local column
type StatusRule struct {
	RemoteStatusID   string `json:"remoteStatusId" yaml:"remote_status_id"`
	RemoteStatusName string `json:"remoteStatusName" yaml:"remote_status_name" validate:"required_without=RemoteStatusID"`
	RemoteCategory   string `json:"remoteCategory" yaml:"remote_category" validate:"omitempty,oneof=new indeterminate done undefined"`
	LocalColumn      string `json:"localColumn" yaml:"local_column" validate:"required"`
}

// SyncConfig is the user-editable sync configuration
type SyncConfig struct {
	ProjectKey          string       `json:"projectKey" validate:"required_if=PollEnabled true"`
	ExtraFilter         string       `json:"extraFilter"`
	PushEnabled         bool         `json:"pushEnabled"`
	PollEnabled         bool         `json:"pollEnabled"`
	PollIntervalMinutes int          `json:"pollIntervalMinutes" validate:"min=1,max=1440"`
	AutoApplyPulled     bool         `json:"autoApplyPulled"`
	StatusRules         []StatusRule `json:"statusRules" validate:"dive"`
}

// DefaultSyncConfig returns the configuration used before the user saves one
func DefaultSyncConfig() *SyncConfig {
	return &SyncConfig{
		PushEnabled:         true,
		PollEnabled:         false,
		PollIntervalMinutes: 15,
		StatusRules:         []StatusRule{},
	}
}

// HistoryEntry is an immutable audit record of one sync attempt
type HistoryEntry struct {
	ID         string        `json:"id"`
	Timestamp  time.Time     `json:"timestamp"`
	Direction  SyncDirection `json:"direction"`
	LocalID    string        `json:"localId,omitempty"`
	RemoteKey  string        `json:"remoteKey,omitempty"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
	FromStatus string        `json:"fromStatus,omitempty"`
	ToStatus   string        `json:"toStatus,omitempty"`
}

// PushResult is the outcome of propagating a local status change to Jira
type PushResult struct {
	Synced               bool     `json:"synced"`
	JiraKey              string   `json:"jiraKey,omitempty"`
	Reason               string   `json:"reason,omitempty"`
	AvailableTransitions []string `json:"availableTransitions,omitempty"`
}

// StatusUpdate is a detected remote status drift for one mapped task
type StatusUpdate struct {
	LocalID         string     `json:"localId"`
	RemoteKey       string     `json:"remoteKey"`
	PreviousStatus  string     `json:"previousStatus"`
	NewStatus       string     `json:"newStatus"`
	SuggestedColumn string     `json:"suggestedColumn"`
	Issue           *JiraIssue `json:"issue"`
}

// PullResult is the outcome of one pull cycle
type PullResult struct {
	Updates []StatusUpdate `json:"updates"`
	Checked int            `json:"checked"`
	// Mapped keys Jira no longer returns (deleted, moved or not visible)
	Missing []string `json:"missing,omitempty"`
}
