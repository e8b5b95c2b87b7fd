package httpclient

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

type loggingTransport struct {
	next http.RoundTripper
	log  *zap.Logger
}

// LoggingTransport wraps next with structured request logging.
// Only metadata is logged, never bodies or headers.
func LoggingTransport(next http.RoundTripper, log *zap.Logger) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &loggingTransport{next: next, log: log}
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Duration("dur", time.Since(start)),
	}
	if err != nil {
		t.log.Debug("http", append(fields, zap.Error(err))...)
		return resp, err
	}
	t.log.Debug("http", append(fields, zap.Int("status", resp.StatusCode))...)
	return resp, err
}
