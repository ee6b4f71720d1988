package slogx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/HaejunJang/airbng/pkg/idx"
)

// Transport wraps an http.RoundTripper and logs each outbound request with
// a generated request id, which is also attached via X-Request-ID so server
// and client logs correlate.
func Transport(base *slog.Logger, next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &loggingTransport{base: base, next: next}
}

type loggingTransport struct {
	base *slog.Logger
	next http.RoundTripper
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	reqID := req.Header.Get("X-Request-ID")
	if reqID == "" {
		reqID = idx.New().String()
		req = req.Clone(req.Context())
		req.Header.Set("X-Request-ID", reqID)
	}

	logger := t.base.With(
		"req_id", reqID,
		"method", req.Method,
		"path", req.URL.Path,
		"host", req.URL.Host,
	)

	resp, err := t.next.RoundTrip(req)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		logger.Warn("http_request",
			"error", err,
			"duration_ms", duration,
		)
		return nil, err
	}

	logger.Debug("http_request",
		"status", resp.StatusCode,
		"duration_ms", duration,
	)
	return resp, nil
}
