// Package tasks defines the background task types and their handler. Tasks
// arrive through asynq; the handler delegates to the token refresh daemon
// and the orchestrator's cache.
package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// TypeTokenRefresh sweeps every OAuth integration and refreshes tokens
	// nearing expiry.
	TypeTokenRefresh = "token:refresh"

	// TypeCacheInvalidate drops cached dashboard aggregates by client or
	// dependency tag.
	TypeCacheInvalidate = "cache:invalidate"

	// TypeHealthCheck verifies queue liveness.
	TypeHealthCheck = "health:check"
)

// CacheInvalidatePayload selects what to drop. Both fields empty clears the
// whole cache.
type CacheInvalidatePayload struct {
	ClientID   string `json:"client_id,omitempty"`
	Dependency string `json:"dependency,omitempty"`
}

// NewTokenRefreshTask builds the periodic token refresh task.
func NewTokenRefreshTask() *asynq.Task {
	return asynq.NewTask(TypeTokenRefresh, nil)
}

// NewCacheInvalidateTask builds a cache invalidation task.
func NewCacheInvalidateTask(payload *CacheInvalidatePayload) (*asynq.Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	return asynq.NewTask(TypeCacheInvalidate, raw), nil
}
