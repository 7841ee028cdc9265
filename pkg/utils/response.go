package utils

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"ledger-backend/internal/apperrors"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error    string                 `json:"error"`
	Code     string                 `json:"code"`
	Rule     string                 `json:"rule,omitempty"`
	Store    string                 `json:"store,omitempty"`
	ID       int64                  `json:"id,omitempty"`
	Rejected []apperrors.Rejection `json:"rejected,omitempty"`
}

func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[API] failed to encode response: %v", err)
	}
}

// StatusOf maps an error to its HTTP status.
func StatusOf(err error) int {
	switch apperrors.CodeOf(err) {
	case apperrors.CodeStorageUnavailable, apperrors.CodeMigration:
		return http.StatusServiceUnavailable
	case apperrors.CodeValidation, apperrors.CodeReconciliation:
		return http.StatusUnprocessableEntity
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodeConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// Error writes err as a JSON error response. Untyped errors are logged and
// reported as internal errors.
func Error(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	body := ErrorBody{Error: "Internal server error", Code: "INTERNAL"}

	var e *apperrors.Error
	if errors.As(err, &e) {
		body = ErrorBody{
			Error:    e.Message,
			Code:     string(e.Code),
			Rule:     e.Rule,
			Store:    e.Store,
			ID:       e.ID,
			Rejected: e.Rejected,
		}
	} else {
		log.Printf("[API] internal error: %v", err)
	}
	JSON(w, status, body)
}

// BadRequest reports malformed input.
func BadRequest(w http.ResponseWriter, message string) {
	JSON(w, http.StatusBadRequest, ErrorBody{Error: message, Code: "BAD_REQUEST"})
}
