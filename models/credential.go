package models

import (
	"context"
	"time"
)

// IntegrationCredential represents the stored credential material for one
// external platform. Secret fields hold encrypted opaque strings; plaintext
// legacy values are accepted on read but never written back.
type IntegrationCredential struct {
	Platform     Platform  `json:"platform"`
	Connected    bool      `json:"connected"`
	AccessToken  string    `json:"-"` // Stored encrypted
	RefreshToken string    `json:"-"` // Stored encrypted
	APIKey       string    `json:"-"` // Stored encrypted
	TokenType    string    `json:"token_type,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	Expiry       time.Time `json:"expiry"`
	AccountID    string    `json:"account_id,omitempty"`
	AccountName  string    `json:"account_name,omitempty"`
	LastSync     time.Time `json:"last_sync,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasSecret reports whether any secret material is present at all.
func (c *IntegrationCredential) HasSecret() bool {
	return c.AccessToken != "" || c.APIKey != ""
}

// TokenExpired reports whether the access token expiry has passed at the
// given instant. A zero expiry means the token never expires (API keys).
func (c *IntegrationCredential) TokenExpired(now time.Time) bool {
	return !c.Expiry.IsZero() && now.After(c.Expiry)
}

// TokenMaterial is the plaintext, in-memory shape of a freshly issued token
// as returned by an OAuth code exchange or refresh. It never touches disk.
type TokenMaterial struct {
	AccessToken  string `json:"access_token" validate:"required,min=8"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty" validate:"gte=0"`
	TokenType    string `json:"token_type,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// AccountInfo carries the external account identity captured during connect.
type AccountInfo struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// CredentialRepository is the secrets-at-rest sink: an opaque persistence
// layer keyed by platform. Implementations must treat the secret fields as
// already encrypted and store them verbatim.
type CredentialRepository interface {
	Get(ctx context.Context, platform Platform) (*IntegrationCredential, error)
	Upsert(ctx context.Context, cred *IntegrationCredential) error
	List(ctx context.Context) ([]*IntegrationCredential, error)
}
