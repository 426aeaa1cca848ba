package atlassian

// Storage keys used in the key/value store
const (
	keySettings    = "settings"
	keyConnection  = "connection"
	keyOAuthState  = "oauth_state"
	keyConfig      = "config"
	keyMappings    = "mappings"
	keySyncHistory = "sync_history"
)

// Atlassian Cloud endpoints
const (
	DefaultAuthURL      = "https://auth.atlassian.com/authorize"
	DefaultTokenURL     = "https://auth.atlassian.com/oauth/token"
	DefaultResourcesURL = "https://api.atlassian.com/oauth/token/accessible-resources"
	DefaultAPIBaseURL   = "https://api.atlassian.com"
)

// Scopes requested during authorization. offline_access yields a refresh token.
var Scopes = []string{"read:jira-work", "read:jira-user", "write:jira-work", "offline_access"}
