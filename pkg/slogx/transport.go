package slogx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/companion/pkg/idx"
)

// RequestIDHeader is stamped on every outbound request so server logs can be
// joined with ours.
const RequestIDHeader = "X-Request-ID"

// Transport logs outbound requests and makes sure each carries a request ID.
// A logger stored in the request context with WithContext takes precedence
// over Logger. A caller's request ID is kept when it is a ULID and replaced
// otherwise.
type Transport struct {
	Base   http.RoundTripper
	Logger *slog.Logger
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(base http.RoundTripper, logger *slog.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{Base: base, Logger: logger}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	base := t.Logger
	if l, ok := fromContext(req.Context()); ok {
		base = l
	}

	reqID := req.Header.Get(RequestIDHeader)
	if _, err := idx.Parse(reqID); err != nil {
		if reqID != "" {
			base.Debug("request_id_replaced", "req_id", reqID)
		}
		// RoundTrippers must not mutate the caller's request
		req = req.Clone(req.Context())
		reqID = idx.New().String()
		req.Header.Set(RequestIDHeader, reqID)
	}

	logger := base.With(
		"req_id", reqID,
		"method", req.Method,
		"path", req.URL.Path,
	)

	resp, err := t.Base.RoundTrip(req)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		logger.Warn("http_request_failed", "duration_ms", duration, "error", err)
		return nil, err
	}

	logger.Debug("http_request",
		"status", resp.StatusCode,
		"duration_ms", duration,
	)
	return resp, nil
}
