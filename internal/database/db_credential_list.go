package database

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pulsedash/dashboard/models"
)

// List returns every stored credential row, connected or not.
func (db *Db) List(ctx context.Context) ([]*models.IntegrationCredential, error) {
	ctx, cancel := context.WithTimeout(ctx, db.GetQueryTimeout())
	defer cancel()

	var records []*credentialRecord

	err := db.Engine.WithContext(ctx).
		Order("platform").
		Find(&records).Error
	if err != nil {
		db.Logger.Error("failed to list credentials", zap.Error(err))

		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}

	creds := make([]*models.IntegrationCredential, len(records))
	for i, record := range records {
		creds[i] = record.toModel()
	}

	return creds, nil
}
