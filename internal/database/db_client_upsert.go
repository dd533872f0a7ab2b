package database

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm/clause"

	"github.com/pulsedash/dashboard/models"
)

// UpsertClientInput holds the input parameters for UpsertClient.
type UpsertClientInput struct {
	ID       string `validate:"required,min=1,max=64"`
	Name     string `validate:"required,min=1,max=256"`
	Accounts map[models.Platform]string
}

func (i *UpsertClientInput) validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(i); err != nil {
		return multierr.Append(ErrInvalidInput, err)
	}

	for p := range i.Accounts {
		if _, err := models.ParsePlatform(p.String()); err != nil {
			return multierr.Append(ErrInvalidInput, err)
		}
	}

	return nil
}

// UpsertClient creates or replaces a client directory entry.
func (db *Db) UpsertClient(ctx context.Context, input *UpsertClientInput) (*models.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, db.GetQueryTimeout())
	defer cancel()

	if input == nil {
		return nil, ErrInvalidInput
	}

	if err := input.validate(); err != nil {
		return nil, err
	}

	client := &models.Client{
		ID:       input.ID,
		Name:     input.Name,
		Accounts: input.Accounts,
	}

	record, err := clientFromModel(client)
	if err != nil {
		return nil, err
	}

	err = db.Engine.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(record).Error
	if err != nil {
		db.Logger.Error("failed to upsert client",
			zap.Error(err),
			zap.String("client_id", input.ID))

		return nil, fmt.Errorf("failed to upsert client: %w", err)
	}

	return client, nil
}
