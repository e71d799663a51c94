package llm

import (
	"context"
	"errors"
	"strings"
	"syscall"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// RetryPolicy controls exponential backoff on transient upstream failures.
type RetryPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// MaxRetries counts retries after the first attempt.
	MaxRetries int
}

// DefaultRetryPolicy matches the documented backoff: 1s initial, doubling,
// 10s cap, three retries.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		MaxRetries:   3,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.InitialDelay <= 0 {
		p.InitialDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 10 * time.Second
	}
	if p.Multiplier <= 1 {
		p.Multiplier = 2.0
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	return p
}

// Do runs fn, retrying retryable failures with backoff. Non-retryable
// errors surface immediately.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	p = p.withDefaults()
	delay := p.InitialDelay
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) || attempt == p.MaxRetries {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * p.Multiplier)
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return lastErr
}

var retryableStatus = map[int]struct{}{
	429: {}, 500: {}, 502: {}, 503: {}, 504: {},
}

var connectErrnos = []syscall.Errno{
	syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ETIMEDOUT, syscall.EPIPE,
}

var connectErrnoNames = []string{
	"ENOTFOUND", "ECONNREFUSED", "ETIMEDOUT", "ECONNRESET", "EPIPE",
	"no such host", "connection refused", "connection reset", "broken pipe",
}

// IsRetryable reports whether an upstream failure is worth another attempt:
// rate limits, 5xx server errors, connection-level failures, and timeouts.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		_, ok := retryableStatus[apiErr.HTTPStatusCode]
		return ok
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	for _, errno := range connectErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") {
		return true
	}
	for _, name := range connectErrnoNames {
		if strings.Contains(msg, strings.ToLower(name)) {
			return true
		}
	}
	return false
}
