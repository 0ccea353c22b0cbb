package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vitrinehq/vitrine/internal/model"
	"github.com/vitrinehq/vitrine/internal/service"
)

// StatusFor maps an error to its HTTP status code.
func StatusFor(err error) int {
	switch service.KindOf(err) {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindUnauthorized:
		return http.StatusUnauthorized
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConflict:
		return http.StatusConflict
	case service.KindTooManyAttempts:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders err in the standard error envelope. Internal errors are
// reduced to a fixed message.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	detail := model.ErrorDetail{Code: status, Message: "Internal server error"}

	var e *service.Error
	if status != http.StatusInternalServerError && errors.As(err, &e) {
		detail.Message = e.Message
		detail.Context = map[string]interface{}{"reason": e.Code}
		if len(e.Fields) > 0 {
			detail.Context["fields"] = e.Fields
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.ErrorResponse{Error: detail})
}
