// Package httpretry implements the Retry Transport (C2): an exponential
// backoff wrapper over *http.Client with per-status-class policy and
// server-honored Retry-After delay hints.
package httpretry

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Policy configures retry behavior for a single call.
type Policy struct {
	// MaxRetries is the number of additional attempts after the first (default 5).
	MaxRetries int
	// BaseDelay is the initial backoff delay (default 1s).
	BaseDelay time.Duration
	// MaxDelay caps the backoff delay (default 60s).
	MaxDelay time.Duration
	// Jitter adds up to this much random delay on top of the computed delay.
	Jitter time.Duration
}

// DefaultPolicy returns the package defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 5,
		BaseDelay:  1 * time.Second,
		MaxDelay:   60 * time.Second,
		Jitter:     250 * time.Millisecond,
	}
}

// retryableStatus is the set of HTTP status codes that are retried.
var retryableStatus = map[int]bool{
	http.StatusRequestTimeout:     true,
	http.StatusTooManyRequests:    true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:         true,
	http.StatusServiceUnavailable: true,
	http.StatusGatewayTimeout:     true,
}

// Do executes req using client, retrying according to policy. req.Body, if
// present, must support GetBody so it can be replayed on retry (standard for
// requests built with http.NewRequest from a []byte or strings.Reader body).
//
// On exhausting retries from HTTP responses, the last retryable response is
// returned (not an error). On exhausting retries from transport errors, the
// last error is returned.
func Do(ctx context.Context, client *http.Client, req *http.Request, policy Policy) (*http.Response, error) {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = time.Second
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 60 * time.Second
	}

	var lastResp *http.Response
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		attemptReq := req
		if attempt > 0 {
			attemptReq = cloneRequest(req)
		}

		resp, err := client.Do(attemptReq.WithContext(ctx))
		if err != nil {
			if !isNetworkFailure(err) {
				return nil, err
			}
			lastErr = err
			lastResp = nil
		} else if retryableStatus[resp.StatusCode] {
			lastResp = resp
			lastErr = nil
		} else {
			// Success or a non-retryable status: return immediately.
			return resp, nil
		}

		if attempt == policy.MaxRetries {
			break
		}

		delay := nextDelay(attempt, lastResp, policy)
		if lastResp != nil {
			drainAndClose(lastResp)
		}

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return nil, lastErr
			}
			return lastResp, nil
		case <-time.After(delay):
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return lastResp, nil
}

// nextDelay computes the delay before the next attempt (0-indexed attempt
// that just failed), honoring a Retry-After header on 429 responses.
func nextDelay(attempt int, resp *http.Response, policy Policy) time.Duration {
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		base := policy.BaseDelay * 2
		if base < 2*time.Second {
			base = 2 * time.Second
		}
		if ra := retryAfter(resp); ra > 0 {
			base = ra
		}
		return capDelay(base, policy) + jitter(policy.Jitter)
	}

	delay := policy.BaseDelay * time.Duration(1<<uint(attempt))
	return capDelay(delay, policy) + jitter(policy.Jitter)
}

func capDelay(d time.Duration, policy Policy) time.Duration {
	if d > policy.MaxDelay {
		return policy.MaxDelay
	}
	return d
}

func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}

// retryAfter parses a Retry-After header expressed in seconds.
func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// networkFailureSignatures are substrings of error messages that indicate a
// transient transport failure worth retrying (connection refused, DNS
// failure, generic "fetch failed" style errors from the HTTP client).
var networkFailureSignatures = []string{
	"connection refused",
	"no such host",
	"dns",
	"fetch failed",
	"eof",
	"reset by peer",
	"broken pipe",
	"i/o timeout",
}

func isNetworkFailure(err error) bool {
	if err == nil {
		return false
	}
	// Match *net.OpError rather than net.Error: every error from
	// http.Client.Do is a *url.Error, which itself satisfies net.Error.
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range networkFailureSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

func cloneRequest(req *http.Request) *http.Request {
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		if body, err := req.GetBody(); err == nil {
			clone.Body = body
		}
	}
	return clone
}

func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
