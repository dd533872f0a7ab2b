package database

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pulsedash/dashboard/models"
)

var _ models.ClientDirectory = (*Db)(nil)

// GetClientByID resolves a dashboard client and its per-platform account
// map. Returns models.ErrNotFound for unknown ids.
func (db *Db) GetClientByID(ctx context.Context, id string) (*models.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, db.GetQueryTimeout())
	defer cancel()

	if id == "" {
		return nil, fmt.Errorf("%w: empty client id", ErrInvalidInput)
	}

	var record clientRecord

	err := db.Engine.WithContext(ctx).
		Where("id = ?", id).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}

		db.Logger.Error("failed to get client",
			zap.Error(err),
			zap.String("client_id", id))

		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	return record.toModel()
}
