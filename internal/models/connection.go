package models

import "time"

// ProviderType identifies the external LMS family a connection talks to.
type ProviderType string

const (
	ProviderMoodle     ProviderType = "moodle"
	ProviderCanvas     ProviderType = "canvas"
	ProviderBlackboard ProviderType = "blackboard"
)

// Valid reports whether the provider type is one we ship an adapter for.
func (p ProviderType) Valid() bool {
	switch p {
	case ProviderMoodle, ProviderCanvas, ProviderBlackboard:
		return true
	}
	return false
}

// CredentialType identifies how a connection authenticates against its provider.
type CredentialType string

const (
	CredentialPassword    CredentialType = "password"
	CredentialAPIKey      CredentialType = "api_key"
	CredentialOAuthClient CredentialType = "oauth_client"
	CredentialBearerToken CredentialType = "bearer_token"
)

// ConnectionStatus reflects the administrative state of a connection.
type ConnectionStatus string

const (
	ConnectionActive   ConnectionStatus = "active"
	ConnectionInactive ConnectionStatus = "inactive"
	ConnectionError    ConnectionStatus = "error"
)

// SyncStatus reflects the sync state machine for a connection.
type SyncStatus string

const (
	SyncIdle    SyncStatus = "idle"
	SyncSyncing SyncStatus = "syncing"
	SyncError   SyncStatus = "error"
)

// Credentials carries whichever secret material the credential type requires.
// Stored as a JSONB column; never logged.
type Credentials struct {
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"`
	APIKey       string `json:"api_key,omitempty"`
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	Token        string `json:"token,omitempty"`
}

// ProviderConfig is the immutable configuration a connection is registered with.
// Replacing any of it requires removing and re-registering the connection.
type ProviderConfig struct {
	ProviderType   ProviderType   `json:"provider_type"`
	BaseURL        string         `json:"base_url"`
	CredentialType CredentialType `json:"credential_type"`
	Credentials    Credentials    `json:"credentials"`
	Timeout        time.Duration  `json:"timeout"`
	RetryAttempts  int            `json:"retry_attempts"`
}

// Connection binds one institution to one external LMS instance.
type Connection struct {
	ID             string           `db:"id" json:"id"`
	InstitutionID  string           `db:"institution_id" json:"institution_id"`
	ProviderType   ProviderType     `db:"provider_type" json:"provider_type"`
	BaseURL        string           `db:"base_url" json:"base_url"`
	CredentialType CredentialType   `db:"credential_type" json:"credential_type"`
	Credentials    Credentials      `db:"-" json:"-"`
	TimeoutSeconds int              `db:"timeout_seconds" json:"timeout_seconds"`
	RetryAttempts  int              `db:"retry_attempts" json:"retry_attempts"`
	Status         ConnectionStatus `db:"status" json:"status"`
	SyncStatus     SyncStatus       `db:"sync_status" json:"sync_status"`
	LastSyncTime   *time.Time       `db:"last_sync_time" json:"last_sync_time,omitempty"`
	ErrorMessage   *string          `db:"error_message" json:"error_message,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// Config reconstructs the provider configuration from the persisted row.
func (c *Connection) Config() ProviderConfig {
	return ProviderConfig{
		ProviderType:   c.ProviderType,
		BaseURL:        c.BaseURL,
		CredentialType: c.CredentialType,
		Credentials:    c.Credentials,
		Timeout:        time.Duration(c.TimeoutSeconds) * time.Second,
		RetryAttempts:  c.RetryAttempts,
	}
}
