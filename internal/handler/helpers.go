package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/vitrinehq/vitrine/internal/server/middleware"
	"github.com/vitrinehq/vitrine/internal/service"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

var errInvalidBody = &service.Error{
	Kind:    service.KindValidation,
	Code:    "invalid_body",
	Message: "Invalid request body",
}

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError renders err in the standard error envelope. Internal failures
// are logged with their cause; the client only sees a generic message.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	if service.KindOf(err) == service.KindInternal {
		logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err,
		)
	}
	middleware.WriteError(w, err)
}

// readJSON decodes the request body as JSON into v. The body is closed after
// decoding regardless of success or failure.
func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		return errInvalidBody
	}
	return nil
}

// successResponse is the body of endpoints that have nothing else to return.
type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
