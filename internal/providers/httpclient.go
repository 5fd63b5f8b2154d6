// Package providers holds the HTTP clients for the external collaborators:
// speech-to-text, dialogue generation and text-to-speech. Each client
// converts provider faults into sentinel results the session state machine
// can consume; none of them panic or escalate.
package providers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sania040/aiagent/internal/logging"
)

var (
	// ErrTransient marks failures worth retrying (network, 5xx, 429).
	ErrTransient = errors.New("transient error")
	// ErrPermanent marks failures that retries won't fix (4xx).
	ErrPermanent = errors.New("permanent error")
)

// postWithRetries posts body to url with retry/backoff and returns the
// response. Caller must close resp.Body.
func postWithRetries(ctx context.Context, client *http.Client, url, contentType string, body []byte, authToken string, timeout time.Duration, attempts int, correlationID string) (*http.Response, error) {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		req, rerr := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
		if rerr != nil {
			cancel()
			return nil, rerr
		}
		req.Header.Set("Content-Type", contentType)
		if authToken != "" {
			req.Header.Set("Authorization", "Bearer "+authToken)
		}
		if correlationID != "" {
			req.Header.Set("X-Correlation-ID", correlationID)
		}

		resp, err := client.Do(req)
		cancel()
		if err != nil {
			lastErr = err
			logging.Debugw("provider: POST attempt failed", "url", url, "attempt", i+1, "err", err, "correlation_id", correlationID)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if i < attempts-1 {
				time.Sleep(time.Duration(200*(1<<i)) * time.Millisecond)
				continue
			}
			return nil, err
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			lastErr = fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
			logging.Warnw("provider: server error", "url", url, "status", resp.StatusCode, "attempt", i+1, "correlation_id", correlationID)
			if i < attempts-1 {
				time.Sleep(time.Duration(200*(1<<i)) * time.Millisecond)
				continue
			}
			return nil, lastErr
		}
		return resp, nil
	}
	return nil, lastErr
}
