package nvd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/x1thexxx-lgtm/r0tools/pkg/config"
	"github.com/x1thexxx-lgtm/r0tools/pkg/logging"
	"github.com/x1thexxx-lgtm/r0tools/pkg/metrics"
	"github.com/x1thexxx-lgtm/r0tools/pkg/record"
)

// Client looks CVEs up in the NVD 2.0 API. It is the only client that
// retries: a 403 is retried after a fixed delay, and requests are held to a
// rolling rate window.
type Client struct {
	url        string
	apiKey     string
	retries    int
	delay      time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logging.Logger
	metrics    *metrics.Collector
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger attaches a logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient builds a client from cfg. RateLimit requests are allowed per
// WindowSeconds; a zero limit disables throttling.
func NewClient(cfg config.NVDConfig, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, &config.MissingError{Key: "nvd.url"}
	}
	c := &Client{
		url:        strings.TrimSpace(cfg.URL),
		apiKey:     cfg.APIKey,
		retries:    cfg.Retries,
		delay:      time.Duration(cfg.DelayMS) * time.Millisecond,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    newLimiter(cfg.RateLimit, time.Duration(cfg.WindowSeconds)*time.Second),
	}
	if c.retries < 1 {
		c.retries = 1
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// newLimiter spaces requests window/limit apart with no burst, so any span of
// one window holds at most limit requests.
func newLimiter(limit int, window time.Duration) *rate.Limiter {
	if limit <= 0 || window <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(window/time.Duration(limit)), 1)
}

// Lookup fetches the NVD record of one CVE. A 403 is retried; once the
// retries are spent, or on any other non-200 status, an empty record is
// returned. Transport failures are returned as errors.
func (c *Client) Lookup(ctx context.Context, cve string) (record.Record, error) {
	cve = strings.ToUpper(strings.TrimSpace(cve))
	params := url.Values{}
	params.Set("cveId", cve)
	endpoint := c.url + "?" + params.Encode()

	for attempt := 1; attempt <= c.retries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		status, body, err := c.get(ctx, endpoint)
		if err != nil {
			return nil, err
		}
		switch status {
		case http.StatusOK:
			var out record.Record
			if err := json.Unmarshal(body, &out); err != nil {
				return nil, fmt.Errorf("decode %s: %w", cve, err)
			}
			return out, nil
		case http.StatusForbidden:
			c.log.Warnf("nvd %s: 403 on attempt %d/%d", cve, attempt, c.retries)
			if attempt == c.retries {
				return record.Record{}, nil
			}
			if err := sleep(ctx, c.delay); err != nil {
				return nil, err
			}
		default:
			c.log.Warnf("nvd %s: status %d", cve, status)
			return record.Record{}, nil
		}
	}
	return record.Record{}, nil
}

func (c *Client) get(ctx context.Context, endpoint string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apiKey", c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveRequest("nvd_cve", 0)
		return 0, nil, fmt.Errorf("nvd request: %w", err)
	}
	defer resp.Body.Close()
	c.metrics.ObserveRequest("nvd_cve", resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("nvd read body: %w", err)
	}
	return resp.StatusCode, body, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
