// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package httpx implements the shared retry/backoff HTTP client used by
// every collaborator that crosses a process boundary: the LLM provider,
// Perplexity, and Brave. One retry policy, one place it's implemented.
package httpx

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/skillsfabric/core/internal/config"
	"github.com/skillsfabric/core/internal/errs"
)

// Client wraps http.Client with the retry policy from spec §4.8:
// exponential backoff with jitter in [0.5, 1.5], base = InitialDelay,
// multiplier = Multiplier, capped at MaxDelay, up to MaxRetries
// retries after the first attempt. Retryable iff status in {429,500,502,503,504} or the error
// is a timeout. An optional token-bucket limiter throttles outbound
// requests ahead of the retry loop, independent of any per-provider
// rate limit the remote end enforces itself.
type Client struct {
	http     *http.Client
	retry    config.RetryConfig
	provider string
	limiter  *rate.Limiter
}

// New creates a Client for the named provider (used only in error
// messages and failure-tracker classification).
func New(provider string, retry config.RetryConfig, timeout time.Duration) *Client {
	return &Client{
		http:     &http.Client{Timeout: timeout},
		retry:    retry,
		provider: provider,
	}
}

// WithRateLimit caps the client to rps requests per second with a burst
// of burst, enforced before the first attempt of every Do call. A
// nil receiver limiter (the New default) never throttles.
func (c *Client) WithRateLimit(rps float64, burst int) *Client {
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return c
}

// Do executes req, retrying per policy. The request body, if any, must
// be re-creatable across attempts via req.GetBody (set automatically
// by http.NewRequestWithContext for common body types).
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var lastErr error
	delay := c.retry.InitialDelay

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("httpx: rebuild request body: %w", err)
				}
				req.Body = body
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(jitter(delay)):
			}
			delay = nextDelay(delay, c.retry.Multiplier, c.retry.MaxDelay)
		}

		resp, err := c.http.Do(req.WithContext(ctx))
		if err != nil {
			lastErr = err
			if !isTimeout(err) {
				return nil, &errs.ExternalServiceError{Provider: c.provider, Err: err}
			}
			continue
		}

		if !isRetryableStatus(resp.StatusCode) {
			return resp, nil
		}

		lastErr = fmt.Errorf("status %d", resp.StatusCode)
		resp.Body.Close()
	}

	return nil, &errs.ExternalServiceError{Provider: c.provider, Err: lastErr}
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	if as, ok := err.(interface{ Timeout() bool }); ok {
		netErr = as
		return netErr.Timeout()
	}
	return strings.Contains(err.Error(), "timeout") || strings.Contains(err.Error(), "deadline exceeded")
}

func jitter(base time.Duration) time.Duration {
	factor := 0.5 + rand.Float64()
	return time.Duration(float64(base) * factor)
}

func nextDelay(current time.Duration, multiplier float64, max time.Duration) time.Duration {
	next := time.Duration(float64(current) * multiplier)
	if next > max {
		return max
	}
	return next
}

// SSEEvent is one `data: {...}` line from a streamed response.
type SSEEvent struct {
	Data string
	Done bool
}

// ScanSSE reads Server-Sent Events from r, emitting one SSEEvent per
// `data:` line and a final {Done: true} on `data: [DONE]`. Used by the
// LLM client's streaming path and any future streaming search provider.
func ScanSSE(r io.Reader, emit func(SSEEvent) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			return emit(SSEEvent{Done: true})
		}
		if payload == "" {
			continue
		}
		if err := emit(SSEEvent{Data: payload}); err != nil {
			return err
		}
	}
	return scanner.Err()
}
