package database

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm/clause"

	"github.com/pulsedash/dashboard/models"
)

// Upsert writes the credential row for its platform, inserting or replacing
// as needed. The secret columns are stored verbatim; encryption happened
// upstream in the credential store.
func (db *Db) Upsert(ctx context.Context, cred *models.IntegrationCredential) error {
	ctx, cancel := context.WithTimeout(ctx, db.GetQueryTimeout())
	defer cancel()

	if cred == nil {
		return ErrInvalidInput
	}

	if _, err := models.ParsePlatform(cred.Platform.String()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	record := credentialFromModel(cred)

	err := db.Engine.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "platform"}},
			UpdateAll: true,
		}).
		Create(record).Error
	if err != nil {
		db.Logger.Error("failed to upsert credential",
			zap.Error(err),
			zap.String("platform", cred.Platform.String()))

		return fmt.Errorf("failed to upsert credential: %w", err)
	}

	return nil
}
