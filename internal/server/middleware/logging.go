package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

type logInfoKey struct{}

// logInfo collects request facts discovered further down the chain.
type logInfo struct {
	subjectID string
}

// Logger returns an HTTP middleware that logs every request using structured
// logging: method, path, status, size, duration, request ID, remote address
// and, once authenticated, the admin ID. 5xx responses log at error level,
// 4xx at warn.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			info := &logInfo{}

			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), logInfoKey{}, info)))

			level := slog.LevelInfo
			if ww.status >= 500 {
				level = slog.LevelError
			} else if ww.status >= 400 {
				level = slog.LevelWarn
			}

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.status,
				"duration_ms", float64(time.Since(start).Microseconds()) / 1000.0,
				"bytes", ww.bytes,
				"request_id", GetRequestID(r.Context()),
				"remote_addr", r.RemoteAddr,
			}
			if info.subjectID != "" {
				attrs = append(attrs, "admin_id", info.subjectID)
			}
			logger.Log(r.Context(), level, "request", attrs...)
		})
	}
}

// noteSubject records the authenticated admin for the request log line.
func noteSubject(ctx context.Context, subjectID string) {
	if info, ok := ctx.Value(logInfoKey{}).(*logInfo); ok {
		info.subjectID = subjectID
	}
}

// responseWriter captures the status code and bytes written.
type responseWriter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Unwrap returns the underlying ResponseWriter, required for http.Flusher
// and other interface assertions through middleware chains.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
