package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pulsedash/dashboard/models"
)

func TestFromStatus(t *testing.T) {
	tests := []struct {
		status    int
		want      Kind
		retryable bool
	}{
		{status: http.StatusTooManyRequests, want: KindRateLimited, retryable: true},
		{status: http.StatusUnauthorized, want: KindUnauthorized, retryable: false},
		{status: http.StatusForbidden, want: KindUnauthorized, retryable: false},
		{status: http.StatusInternalServerError, want: KindServerError, retryable: true},
		{status: http.StatusBadGateway, want: KindServerError, retryable: true},
		{status: http.StatusBadRequest, want: KindMalformed, retryable: false},
		{status: http.StatusNotFound, want: KindMalformed, retryable: false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.status), func(t *testing.T) {
			err := FromStatus(models.PlatformFacebook, tt.status)
			assert.Equal(t, tt.want, err.Kind)
			assert.Equal(t, tt.retryable, err.Retryable())
			assert.Equal(t, tt.status, err.StatusCode)
		})
	}
}

func TestFromTransport(t *testing.T) {
	deadline := FromTransport(models.PlatformGoogleAds, context.DeadlineExceeded)
	assert.Equal(t, KindTimeout, deadline.Kind)
	assert.True(t, deadline.Retryable())

	cancelled := FromTransport(models.PlatformGoogleAds, context.Canceled)
	assert.False(t, cancelled.Retryable())

	refused := FromTransport(models.PlatformGoogleAds, errors.New("connection refused"))
	assert.Equal(t, KindServerError, refused.Kind)
	assert.True(t, refused.Retryable())
}

func TestErrorMessageCarriesContext(t *testing.T) {
	err := FromStatus(models.PlatformFacebook, http.StatusTooManyRequests)
	assert.Contains(t, err.Error(), "facebook")
	assert.Contains(t, err.Error(), "rate_limited")
	assert.Contains(t, err.Error(), "429")
}

func TestIsUnauthorized(t *testing.T) {
	assert.True(t, IsUnauthorized(FromStatus(models.PlatformSheets, http.StatusUnauthorized)))
	assert.False(t, IsUnauthorized(FromStatus(models.PlatformSheets, http.StatusInternalServerError)))
	assert.False(t, IsUnauthorized(errors.New("nope")))

	wrapped := fmt.Errorf("fetch failed: %w", FromStatus(models.PlatformSheets, http.StatusForbidden))
	assert.True(t, IsUnauthorized(wrapped))
}
