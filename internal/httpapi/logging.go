package httpapi

import (
	"expvar"
	"log"
	"net/http"
	"time"
)

var (
	requestsTotal    = expvar.NewInt("requests_total")
	requestsErrors   = expvar.NewInt("requests_errors_total")
	requestsInFlight = expvar.NewInt("requests_in_flight")
)

// slowRequestThreshold flags dispatch calls that sat on row locks too long.
const slowRequestThreshold = 500 * time.Millisecond

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestsInFlight.Add(1)
		writer := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(writer, r)
		requestsInFlight.Add(-1)
		duration := time.Since(start)
		requestsTotal.Add(1)
		if writer.status >= http.StatusBadRequest {
			requestsErrors.Add(1)
		}
		slow := ""
		if duration >= slowRequestThreshold {
			slow = " slow=true"
		}
		operatorID := r.Header.Get("X-Operator-ID")
		requestID := r.Header.Get("X-Request-ID")
		log.Printf("request method=%s path=%s status=%d bytes=%d duration_ms=%d operator=%s request_id=%s%s",
			r.Method, r.URL.Path, writer.status, writer.bytes, duration.Milliseconds(), operatorID, requestID, slow)
	})
}
