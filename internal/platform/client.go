package platform

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultInterval is the minimum spacing between outbound requests.
	DefaultInterval = 30 * time.Second

	// RequestTimeout bounds both connection establishment and the full
	// request/response exchange.
	RequestTimeout = 120 * time.Second

	// ForbiddenBackoff is how long the client refuses to issue requests
	// after the platform returns 403.
	ForbiddenBackoff = time.Hour

	// ResetBackoff is the refusal window after a remote connection reset.
	ResetBackoff = 15 * time.Minute
)

// Response is a fully-read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client serialises outbound HTTP requests to the remote platform. At most
// one request is in flight at any time, and consecutive requests are spaced
// by at least the configured interval measured from the completion of the
// previous request. A 403 or a connection reset opens a forbidden window
// during which background loops are expected to skip their work.
type Client struct {
	httpClient *http.Client
	slot       *semaphore.Weighted
	interval   time.Duration
	logger     *zap.Logger

	mu             sync.Mutex
	lastRequestEnd time.Time
	forbiddenUntil time.Time
}

// NewClient creates a rate-limited client with the given minimum
// inter-request interval.
func NewClient(interval time.Duration, logger *zap.Logger) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   RequestTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   RequestTimeout,
		},
		slot:     semaphore.NewWeighted(1),
		interval: interval,
		logger:   logger.Named("rlclient"),
	}
}

// IsForbidden reports whether the client is inside a forbidden backoff
// window.
func (c *Client) IsForbidden() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return time.Now().Before(c.forbiddenUntil)
}

// Fetch performs a single rate-limited request. The body is fully read
// before returning. Non-2xx statuses are returned as errors: 403 maps to
// ErrForbidden (and opens the backoff window), everything else to
// *HTTPError. Transient name-resolution failures are retried without
// consuming an additional rate-limit slot.
func (c *Client) Fetch(
	ctx context.Context, method, rawURL string, headers http.Header, body []byte,
) (*Response, error) {
	if err := c.slot.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.slot.Release(1)

	// Space this request out from the completion of the previous one.
	c.mu.Lock()
	wait := c.interval - time.Since(c.lastRequestEnd)
	c.mu.Unlock()

	if wait > 0 {
		c.logger.Debug("Waiting for rate limit", zap.Duration("wait", wait))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	resp, err := c.doWithDNSRetry(ctx, method, rawURL, headers, body)

	c.mu.Lock()
	c.lastRequestEnd = time.Now()
	c.mu.Unlock()

	if err != nil {
		if isConnectionReset(err) {
			c.setForbidden(ResetBackoff)
			return nil, errors.Join(ErrForbidden, err)
		}

		return nil, err
	}

	if resp.StatusCode == http.StatusForbidden {
		c.setForbidden(ForbiddenBackoff)
		return nil, ErrForbidden
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{Status: resp.StatusCode}
	}

	// A successful exchange clears any forbidden window.
	c.mu.Lock()
	c.forbiddenUntil = time.Time{}
	c.mu.Unlock()

	return resp, nil
}

// doWithDNSRetry issues the request, retrying name-resolution failures while
// still holding the request slot. Other errors are returned immediately.
func (c *Client) doWithDNSRetry(
	ctx context.Context, method, rawURL string, headers http.Header, body []byte,
) (*Response, error) {
	var resp *Response

	b := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(time.Second),
		backoff.WithMaxInterval(30*time.Second),
		backoff.WithMaxElapsedTime(0),
	), ctx)

	err := backoff.Retry(func() error {
		var err error

		resp, err = c.do(ctx, method, rawURL, headers, body)
		if err != nil {
			var dnsErr *net.DNSError
			if errors.As(err, &dnsErr) {
				c.logger.Warn("Name resolution failed, retrying",
					zap.String("url", rawURL),
					zap.Error(err))
				return err
			}

			return backoff.Permanent(err)
		}

		return nil
	}, b)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return nil, permanent.Unwrap()
		}

		return nil, err
	}

	return resp, nil
}

func (c *Client) do(
	ctx context.Context, method, rawURL string, headers http.Header, body []byte,
) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, err
	}

	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: res.StatusCode,
		Header:     res.Header,
		Body:       data,
	}, nil
}

func (c *Client) setForbidden(window time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.forbiddenUntil = time.Now().Add(window)
	c.logger.Warn("Platform API forbidden",
		zap.Time("until", c.forbiddenUntil))
}

func isConnectionReset(err error) bool {
	return errors.Is(err, syscall.ECONNRESET)
}
