package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wannagonna/internal/contextutils"
	"wannagonna/internal/models"
	"wannagonna/internal/services"
)

func newRequest() *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	return req.WithContext(contextutils.WithRequestID(req.Context(), "req-42"))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var out APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestWriteSuccess(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	b := NewBuilder(nil, logger)

	rec := httptest.NewRecorder()
	b.WriteSuccess(rec, newRequest(), map[string]int{"xp": 30})

	assert.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.True(t, out.Success)
	assert.Equal(t, "req-42", out.RequestID)
	assert.Equal(t, "v1", out.Version)
	assert.Equal(t, map[string]interface{}{"xp": float64(30)}, out.Data)
}

func TestWriteErrorFields(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	b := NewBuilder(nil, logger)

	err := services.NewFieldValidationError(models.ValidationErrors{
		{Field: "memberId", Message: "is required", Code: "REQUIRED"},
	})
	rec := httptest.NewRecorder()
	b.WriteError(rec, newRequest(), err)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	out := decode(t, rec)
	require.NotNil(t, out.Error)
	assert.Equal(t, services.ErrTypeValidation, out.Error.Type)
	require.Len(t, out.Error.Fields, 1)
	assert.Equal(t, "memberId", out.Error.Fields[0].Field)
	assert.Nil(t, out.Error.Details)
}

func TestWriteErrorMasksInternal(t *testing.T) {
	b := NewBuilder(nil, nil)

	rec := httptest.NewRecorder()
	b.WriteError(rec, newRequest(), errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, services.ErrTypeInternal, out.Error.Type)
	assert.Equal(t, "An internal error occurred", out.Error.Message)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestWriteErrorMissStatus(t *testing.T) {
	b := NewBuilder(&Config{APIVersion: "v1"}, nil)

	rec := httptest.NewRecorder()
	b.WriteError(rec, newRequest(), services.NewMemberMissError("m-1"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, services.ErrTypeMemberMiss, out.Error.Type)
	assert.Empty(t, out.RequestID)
	assert.Zero(t, out.Timestamp)
}
