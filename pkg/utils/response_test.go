package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"ledger-backend/internal/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperrors.StorageUnavailable("orders", errors.New("closed")), http.StatusServiceUnavailable},
		{apperrors.Migration("v2", errors.New("boom")), http.StatusServiceUnavailable},
		{apperrors.Validation("rule", "bad"), http.StatusUnprocessableEntity},
		{apperrors.Reconciliation("rule", "bad", nil), http.StatusUnprocessableEntity},
		{apperrors.NotFound("orders", 1), http.StatusNotFound},
		{apperrors.Conflict("orders", 1), http.StatusConflict},
		{fmt.Errorf("wrapped: %w", apperrors.NotFound("trips", 2)), http.StatusNotFound},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusOf(tt.err), tt.err.Error())
	}
}

func TestErrorBody(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, apperrors.Reconciliation("order_not_eligible", "1 of 2 orders cannot be linked",
		[]apperrors.Rejection{{ID: 4, Reason: "already on trip 2"}}))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "RECONCILIATION", body.Code)
	assert.Equal(t, "order_not_eligible", body.Rule)
	require.Len(t, body.Rejected, 1)
	assert.Equal(t, int64(4), body.Rejected[0].ID)
}

func TestInternalErrorsAreHidden(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, errors.New("connection reset by peer"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "INTERNAL", body.Code)
	assert.NotContains(t, body.Error, "connection reset")
}

func TestBadRequest(t *testing.T) {
	rec := httptest.NewRecorder()
	BadRequest(rec, "invalid id")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"invalid id","code":"BAD_REQUEST"}`, rec.Body.String())
}
