package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/okian/solcast/pkg/metrics"
)

// errorClass labels an error response for the HTTP error counter.
type errorClass struct {
	kind     string
	severity string
}

// classify maps a status code to its error class; ok is false below 400.
func classify(status int) (errorClass, bool) {
	switch {
	case status < http.StatusBadRequest:
		return errorClass{}, false
	case status == http.StatusServiceUnavailable:
		return errorClass{kind: "unavailable", severity: "high"}, true
	case status >= http.StatusInternalServerError:
		return errorClass{kind: "server_error", severity: "high"}, true
	case status == http.StatusConflict:
		return errorClass{kind: "conflict", severity: "low"}, true
	case status == http.StatusNotFound:
		return errorClass{kind: "not_found", severity: "low"}, true
	default:
		return errorClass{kind: "client_error", severity: "medium"}, true
	}
}

// MetricsMiddleware records request count, latency and error class under
// endpoint.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		code := strconv.Itoa(rec.status)
		metrics.RecordHTTPRequest(endpoint, r.Method, code)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, code, float64(time.Since(start).Microseconds())/1000)
		if c, ok := classify(rec.status); ok {
			metrics.RecordHTTPError(endpoint, c.kind, c.severity)
		}
	}
}

// statusRecorder remembers the first status written.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}
