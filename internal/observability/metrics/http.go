package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

func (m *ClientMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.httpRequestTotal.WithLabelValues(
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	rest, ok := strings.CutPrefix(path, "/v1/analyses/")
	if !ok || rest == "" {
		return path
	}
	_, suffix, found := strings.Cut(rest, "/")
	if !found {
		return "/v1/analyses/{id}"
	}
	if strings.HasPrefix(suffix, "download/") {
		return "/v1/analyses/{id}/download/{type}"
	}
	return "/v1/analyses/{id}/" + suffix
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

// Hijack keeps websocket upgrades working behind the middleware.
func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	w.statusCode = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
