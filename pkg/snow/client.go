// Package snow reads computers and their applications from the Snow License
// Manager REST API.
package snow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/x1thexxx-lgtm/r0tools/pkg/config"
	"github.com/x1thexxx-lgtm/r0tools/pkg/logging"
	"github.com/x1thexxx-lgtm/r0tools/pkg/metrics"
	"github.com/x1thexxx-lgtm/r0tools/pkg/record"
)

// StatusError reports a page request that did not return 200.
type StatusError struct {
	StatusCode int
	URL        string
	Skip       int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("snow: status %d from %s at $skip=%d", e.StatusCode, e.URL, e.Skip)
}

// Client is a basic-auth Snow License Manager client.
type Client struct {
	baseURL    string
	username   string
	password   string
	customerID string
	httpClient *http.Client
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

// NewClient validates cfg and builds a client.
func NewClient(cfg config.SnowConfig, opts ...Option) (*Client, error) {
	for key, val := range map[string]string{
		"snow.base_url":    cfg.BaseURL,
		"snow.username":    cfg.Username,
		"snow.customer_id": cfg.CustomerID,
	} {
		if err := config.Require(key, val); err != nil {
			return nil, err
		}
	}
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		username:   cfg.Username,
		password:   cfg.Password,
		customerID: cfg.CustomerID,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Computers returns every computer of the customer.
func (c *Client) Computers(ctx context.Context) ([]record.Record, error) {
	return c.pages(ctx, "/api/customers/"+url.PathEscape(c.customerID)+"/computers")
}

// Applications returns the software installed on one computer.
func (c *Client) Applications(ctx context.Context, computerID string) ([]record.Record, error) {
	path := "/api/customers/" + url.PathEscape(c.customerID) + "/computers/" + url.PathEscape(computerID) + "/applications"
	return c.pages(ctx, path)
}

type page struct {
	Meta []struct {
		Name  string      `json:"Name"`
		Value json.Number `json:"Value"`
	} `json:"Meta"`
	Body []map[string]interface{} `json:"Body"`
}

// pages follows the $skip cursor: each page advances it by the PageSize meta
// value and the last page is the one without PageSize.
func (c *Client) pages(ctx context.Context, path string) ([]record.Record, error) {
	endpoint := c.baseURL + path
	var out []record.Record
	skip := 0
	for {
		p, err := c.page(ctx, endpoint, skip)
		if err != nil {
			return out, err
		}
		for _, entry := range p.Body {
			out = append(out, unwrap(entry))
		}
		size, total := 0, ""
		for _, m := range p.Meta {
			switch m.Name {
			case "PageSize":
				n, _ := m.Value.Int64()
				size = int(n)
			case "Count":
				total = m.Value.String()
			}
		}
		if size <= 0 {
			return out, nil
		}
		skip += size
		c.log.Debugf("snow %s: %d of %s returned", path, skip, total)
	}
}

func (c *Client) page(ctx context.Context, endpoint string, skip int) (*page, error) {
	params := url.Values{}
	params.Set("$inlinecount", "allpages")
	params.Set("$skip", strconv.Itoa(skip))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveRequest("snow", 0)
		return nil, fmt.Errorf("snow request: %w", err)
	}
	defer resp.Body.Close()
	c.metrics.ObserveRequest("snow", resp.StatusCode)
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: endpoint, Skip: skip}
	}
	var p page
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("snow decode %s: %w", endpoint, err)
	}
	return &p, nil
}

// unwrap returns the Body object of a list entry, or the entry itself.
func unwrap(entry map[string]interface{}) record.Record {
	if body, ok := entry["Body"].(map[string]interface{}); ok {
		return record.Record(body)
	}
	return record.Record(entry)
}
