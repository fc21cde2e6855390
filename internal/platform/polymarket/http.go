package polymarket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/quantfold/polycollect/internal/domain"
)

const (
	defaultHTTPTimeout = 30 * time.Second

	// maxRequestAttempts bounds retries of a single request on transport
	// errors and transient venue statuses.
	maxRequestAttempts = 4
	retryBaseDelay     = 500 * time.Millisecond
)

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &http.Client{Timeout: timeout}
}

// checkHTTPStatus maps venue HTTP status codes to domain errors.
func checkHTTPStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return domain.ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.ErrRateLimited
	default:
		return fmt.Errorf("polymarket: unexpected status %d for %s", resp.StatusCode, resp.Request.URL.Path)
	}
}

// transientStatus reports whether a status code is worth retrying: request
// timeouts and upstream 5xx hiccups clear on their own, everything else is
// the caller's problem.
func transientStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// retryAfter reads the Retry-After header (seconds form) from a 429
// response, falling back to a conservative default when absent or
// unparseable.
func retryAfter(resp *http.Response) time.Duration {
	const fallback = 5 * time.Second
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return fallback
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}

// retryDelay returns the backoff before retry number attempt (0-based),
// doubling from the base with up to 100% jitter so synchronized pollers do
// not stampede the venue in lockstep.
func retryDelay(attempt int) time.Duration {
	d := retryBaseDelay * (1 << attempt)
	return d + time.Duration(rand.Int64N(int64(d)))
}

// sleepCtx waits for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// doRetryRequest performs one rate-limited venue request with bounded
// retries. Transport errors and transient statuses back off with jitter;
// a 429 additionally penalises the limiter for the advertised Retry-After
// interval. build must produce a fresh request per attempt so bodies can
// be re-sent. Non-transient statuses surface immediately.
func doRetryRequest(ctx context.Context, client *http.Client, limiter *TokenBucket, logger *slog.Logger, build func() (*http.Request, error)) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < maxRequestAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, retryDelay(attempt-1)); err != nil {
				return nil, err
			}
		}
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := build()
		if err != nil {
			return nil, err
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("do request: %w", err)
			logger.Warn("venue request failed", "attempt", attempt+1, "error", err)
			continue
		}

		if err := checkHTTPStatus(resp); err != nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			switch {
			case errors.Is(err, domain.ErrRateLimited):
				delay := retryAfter(resp)
				limiter.Penalize(delay)
				logger.Warn("rate limited by venue", "retry_after", delay, "attempt", attempt+1)
				lastErr = err
			case transientStatus(resp.StatusCode):
				logger.Warn("transient venue error",
					"status", resp.StatusCode, "attempt", attempt+1)
				lastErr = err
			default:
				return nil, err
			}
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read body: %w", err)
			continue
		}
		return body, nil
	}
	return nil, fmt.Errorf("%d attempts exhausted: %w", maxRequestAttempts, lastErr)
}
