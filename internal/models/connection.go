package models

import "time"

// OAuthSettings holds the OAuth app credentials registered in the Atlassian developer console
type OAuthSettings struct {
	ClientID     string `json:"clientId" validate:"required"`
	ClientSecret string `json:"clientSecret" validate:"required"`
	RedirectURI  string `json:"redirectUri" validate:"required,url"`
}

// Connection is the single persisted binding to one Jira Cloud site.
// AccessToken and RefreshToken are stored encrypted.
type Connection struct {
	CloudID      string    `json:"cloudId"`
	SiteURL      string    `json:"siteUrl"`
	SiteName     string    `json:"siteName"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	TokenExpiry  time.Time `json:"tokenExpiry"`
	ConnectedAt  time.Time `json:"connectedAt"`
}

// ConnectionInfo is the token-free view of a Connection
type ConnectionInfo struct {
	CloudID     string    `json:"cloudId"`
	SiteURL     string    `json:"siteUrl"`
	SiteName    string    `json:"siteName"`
	TokenExpiry time.Time `json:"tokenExpiry"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// Info strips the tokens from the connection
func (c *Connection) Info() *ConnectionInfo {
	return &ConnectionInfo{
		CloudID:     c.CloudID,
		SiteURL:     c.SiteURL,
		SiteName:    c.SiteName,
		TokenExpiry: c.TokenExpiry,
		ConnectedAt: c.ConnectedAt,
	}
}
