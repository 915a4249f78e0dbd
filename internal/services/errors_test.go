package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wannagonna/internal/cache"
	"wannagonna/internal/models"
	"wannagonna/internal/store"
)

func TestMapStoreError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		want   string
		status int
	}{
		{"not found", store.NewError(store.CodeNotFound, "get", "members/x", nil), ErrTypeMemberMiss, http.StatusNotFound},
		{"timeout", store.NewError(store.CodeTimeout, "get", "members/x", context.DeadlineExceeded), ErrTypeTimeout, http.StatusGatewayTimeout},
		{"permission", store.NewError(store.CodePermissionDenied, "get", "members/x", nil), ErrTypePermissionDenied, http.StatusForbidden},
		{"invalid", store.NewError(store.CodeInvalid, "update", "members/x", nil), ErrTypeValidation, http.StatusBadRequest},
		{"unknown", errors.New("connection reset"), ErrTypeStoreUnavailable, http.StatusServiceUnavailable},
		{"cache full", fmt.Errorf("write: %w", cache.ErrCacheFull), ErrTypeCacheWriteFull, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapStoreError(tt.err, ErrTypeMemberMiss, "op failed")
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Type)
			if tt.status != 0 {
				assert.Equal(t, tt.status, got.GetStatusCode())
			}
			assert.ErrorIs(t, got, tt.err)
		})
	}

	assert.Nil(t, MapStoreError(nil, ErrTypeMemberMiss, "noop"))
}

func TestGetServiceError(t *testing.T) {
	var verrs models.ValidationErrors
	verrs.Add("points", "points must be positive", "min_value", 0)

	svcErr := GetServiceError(verrs)
	assert.Equal(t, ErrTypeValidation, svcErr.Type)
	assert.Equal(t, http.StatusBadRequest, svcErr.GetStatusCode())
	assert.Contains(t, svcErr.Details, "fields")

	internal := GetServiceError(errors.New("boom"))
	assert.Equal(t, ErrTypeInternal, internal.Type)
	assert.Equal(t, http.StatusInternalServerError, internal.GetStatusCode())
}

func TestErrorGroup(t *testing.T) {
	var eg ErrorGroup
	assert.False(t, eg.HasErrors())
	assert.Nil(t, eg.ToServiceError())

	eg.Add(nil)
	eg.Add(NewTimeoutError("sdg grant timed out", nil))
	eg.Add(NewStoreUnavailableError("type grant failed", nil))

	svcErr := eg.ToServiceError()
	require.NotNil(t, svcErr)
	assert.Equal(t, ErrTypeTimeout, svcErr.Type)
	assert.Equal(t, 2, svcErr.Details["error_count"])
	assert.True(t, IsTransient(svcErr))
}
