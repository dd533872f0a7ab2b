package database

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pulsedash/dashboard/models"
)

var _ models.CredentialRepository = (*Db)(nil)

// Get retrieves the stored credential for a platform. Returns
// models.ErrNotFound when the platform was never connected.
func (db *Db) Get(ctx context.Context, platform models.Platform) (*models.IntegrationCredential, error) {
	ctx, cancel := context.WithTimeout(ctx, db.GetQueryTimeout())
	defer cancel()

	if _, err := models.ParsePlatform(platform.String()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	var record credentialRecord

	err := db.Engine.WithContext(ctx).
		Where("platform = ?", platform.String()).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}

		db.Logger.Error("failed to get credential",
			zap.Error(err),
			zap.String("platform", platform.String()))

		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	return record.toModel(), nil
}
