package database

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pulsedash/dashboard/models"
)

// credentialRecord is the integration_credentials row. Secret columns hold
// ciphertext produced by the credential store; this layer never decrypts.
type credentialRecord struct {
	Platform     string    `gorm:"primaryKey;size:32"`
	Connected    bool      `gorm:"not null;default:false"`
	AccessToken  string    `gorm:"column:access_token_enc;type:text"`
	RefreshToken string    `gorm:"column:refresh_token_enc;type:text"`
	APIKey       string    `gorm:"column:api_key_enc;type:text"`
	TokenType    string    `gorm:"size:32"`
	Scope        string    `gorm:"type:text"`
	Expiry       time.Time
	AccountID    string `gorm:"size:128"`
	AccountName  string `gorm:"size:256"`
	LastSync     time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (credentialRecord) TableName() string {
	return "integration_credentials"
}

func (r *credentialRecord) toModel() *models.IntegrationCredential {
	return &models.IntegrationCredential{
		Platform:     models.Platform(r.Platform),
		Connected:    r.Connected,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		APIKey:       r.APIKey,
		TokenType:    r.TokenType,
		Scope:        r.Scope,
		Expiry:       r.Expiry,
		AccountID:    r.AccountID,
		AccountName:  r.AccountName,
		LastSync:     r.LastSync,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func credentialFromModel(cred *models.IntegrationCredential) *credentialRecord {
	return &credentialRecord{
		Platform:     cred.Platform.String(),
		Connected:    cred.Connected,
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		APIKey:       cred.APIKey,
		TokenType:    cred.TokenType,
		Scope:        cred.Scope,
		Expiry:       cred.Expiry,
		AccountID:    cred.AccountID,
		AccountName:  cred.AccountName,
		LastSync:     cred.LastSync,
		CreatedAt:    cred.CreatedAt,
		UpdatedAt:    cred.UpdatedAt,
	}
}

// clientRecord is the clients row. The per-platform account map is stored as
// a JSON document; it is small and read as a unit.
type clientRecord struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"size:256;not null"`
	Accounts  string `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (clientRecord) TableName() string {
	return "clients"
}

func (r *clientRecord) toModel() (*models.Client, error) {
	accounts := make(map[models.Platform]string)
	if r.Accounts != "" {
		if err := json.Unmarshal([]byte(r.Accounts), &accounts); err != nil {
			return nil, fmt.Errorf("failed to decode client accounts: %w", err)
		}
	}

	return &models.Client{
		ID:       r.ID,
		Name:     r.Name,
		Accounts: accounts,
	}, nil
}

func clientFromModel(client *models.Client) (*clientRecord, error) {
	accounts := client.Accounts
	if accounts == nil {
		accounts = map[models.Platform]string{}
	}

	raw, err := json.Marshal(accounts)
	if err != nil {
		return nil, fmt.Errorf("failed to encode client accounts: %w", err)
	}

	return &clientRecord{
		ID:       client.ID,
		Name:     client.Name,
		Accounts: string(raw),
	}, nil
}
