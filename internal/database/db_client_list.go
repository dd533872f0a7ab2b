package database

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pulsedash/dashboard/models"
)

// ListClients returns every client directory entry ordered by name.
func (db *Db) ListClients(ctx context.Context) ([]*models.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, db.GetQueryTimeout())
	defer cancel()

	var records []*clientRecord

	err := db.Engine.WithContext(ctx).
		Order("name").
		Find(&records).Error
	if err != nil {
		db.Logger.Error("failed to list clients", zap.Error(err))

		return nil, fmt.Errorf("failed to list clients: %w", err)
	}

	clients := make([]*models.Client, 0, len(records))

	for _, record := range records {
		client, err := record.toModel()
		if err != nil {
			db.Logger.Error("skipping malformed client row",
				zap.Error(err),
				zap.String("client_id", record.ID))

			continue
		}

		clients = append(clients, client)
	}

	return clients, nil
}
