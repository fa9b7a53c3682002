// Package upstream implements the HTTP client for the records and media
// services, the error classification the processor's status machine runs
// on, and the circuit breaker guarding the upstream.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/goldstarfreight/inspectetl/internal/logger"
	"github.com/goldstarfreight/inspectetl/pkg/config"
)

// namespaceHeader carries the operator namespace on every request.
const namespaceHeader = "en-namespace"

// Response is a completed upstream request. Attempts records how many
// transport attempts the request took so the caller can attribute latency.
type Response struct {
	StatusCode int
	Body       []byte
	Attempts   int
}

// OK reports whether the response status is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client issues authenticated GETs against the records and media services.
//
// Transport failures (connection, timeout, DNS, TLS) are retried with
// bounded exponential backoff. HTTP status codes are never retried here;
// classifying and reacting to them is the caller's concern.
type Client struct {
	cfg        config.UpstreamConfig
	httpClient *http.Client
}

// New creates a client from the upstream configuration.
func New(cfg config.UpstreamConfig) *Client {
	return &Client{
		cfg: cfg,
		// Per-request deadlines come from the context; the transport-level
		// timeout stays unset so media downloads get their longer budget.
		httpClient: &http.Client{},
	}
}

// GetRecord fetches a record payload. The path comes from the kind's
// endpoint template with $tip already substituted.
func (c *Client) GetRecord(ctx context.Context, path string) (*Response, error) {
	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + path
	return c.get(ctx, url, c.cfg.RequestTimeout)
}

// GetMedia fetches an attachment. URLs beginning with /media are resolved
// against the media service; absolute URLs are used as-is.
func (c *Client) GetMedia(ctx context.Context, rawURL string) (*Response, error) {
	url := c.ResolveMediaURL(rawURL)
	return c.get(ctx, url, c.cfg.MediaTimeout)
}

// ResolveMediaURL rewrites payload-relative media URLs onto the media
// service base URL.
func (c *Client) ResolveMediaURL(rawURL string) string {
	if strings.HasPrefix(rawURL, "/media") {
		return strings.TrimSuffix(c.cfg.MediaServiceURL, "/") + strings.TrimPrefix(rawURL, "/media")
	}
	return rawURL
}

// get performs one GET with transport-level retries.
func (c *Client) get(ctx context.Context, url string, timeout time.Duration) (*Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Duration(c.cfg.BackoffFactor * float64(time.Second))
	bo.Multiplier = c.cfg.BackoffFactor
	bo.MaxInterval = c.cfg.MaxBackoff
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()

	flatDelay := time.Duration(c.cfg.BackoffFactor * float64(time.Second))

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		resp, err := c.doOnce(ctx, url, timeout)
		if err == nil {
			resp.Attempts = attempt + 1
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		if attempt == c.cfg.MaxRetries {
			break
		}

		// Resolution failures (DNS, address errors) get a flat delay;
		// connection and timeout failures back off exponentially.
		delay := bo.NextBackOff()
		if isResolutionError(err) {
			delay = flatDelay
		}

		logger.Warn("upstream request failed, retrying",
			logger.KeyURL, url,
			logger.KeyAttempts, attempt+1,
			logger.KeyError, err,
			"delay", delay.String())

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, &StatusError{Kind: KindTransport, Attempts: attempt + 1, Err: ctx.Err()}
		}
	}

	return nil, &StatusError{Kind: KindTransport, Attempts: c.cfg.MaxRetries + 1, Err: lastErr}
}

func (c *Client) doOnce(ctx context.Context, url string, timeout time.Duration) (*Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set(namespaceHeader, c.cfg.Namespace)
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Accept", "application/json, */*")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{StatusCode: res.StatusCode, Body: body}, nil
}

// isResolutionError reports whether the failure happened before a
// connection existed (DNS or address resolution).
func isResolutionError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var addrErr *net.AddrError
	return errors.As(err, &addrErr)
}
