// Package memory provides an in-memory credential repository for
// development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/pulsedash/dashboard/models"
)

type repo struct {
	mu    *sync.RWMutex
	items map[models.Platform]models.IntegrationCredential
}

func New() models.CredentialRepository {
	return &repo{
		mu:    &sync.RWMutex{},
		items: make(map[models.Platform]models.IntegrationCredential),
	}
}

func (r *repo) Get(ctx context.Context, platform models.Platform) (*models.IntegrationCredential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cred, ok := r.items[platform]
	if !ok {
		return nil, models.ErrNotFound
	}

	return &cred, nil
}

func (r *repo) Upsert(ctx context.Context, cred *models.IntegrationCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[cred.Platform] = *cred

	return nil
}

func (r *repo) List(ctx context.Context) ([]*models.IntegrationCredential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	creds := make([]*models.IntegrationCredential, 0, len(r.items))

	for _, cred := range r.items {
		cred := cred
		creds = append(creds, &cred)
	}

	return creds, nil
}
