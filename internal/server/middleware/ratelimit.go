package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/vitrinehq/vitrine/internal/service"
)

// RateLimit returns an HTTP middleware that limits requests per IP address
// to the specified number per minute. Uses a sliding window algorithm.
// Rejected requests get the standard 429 error envelope.
func RateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			WriteError(w, service.ErrRateLimited)
		}),
	)
}
