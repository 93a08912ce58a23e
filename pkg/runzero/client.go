package runzero

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/x1thexxx-lgtm/r0tools/pkg/logging"
	"github.com/x1thexxx-lgtm/r0tools/pkg/metrics"
	"github.com/x1thexxx-lgtm/r0tools/pkg/record"
)

const (
	apiPrefix        = "/api/v1.0"
	defaultUserAgent = "r0tools/1.0"
	maxErrorBody     = 512
)

// Client talks to the runZero console REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *logging.Logger
	metrics    *metrics.Collector
	userAgent  string

	mu         sync.Mutex
	token      string
	tokenUntil time.Time
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

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient builds a console client authenticating with a bearer token.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    sanitizeBaseURL(baseURL),
		httpClient: &http.Client{},
		userAgent:  defaultUserAgent,
		token:      token,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the sanitized console URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Authenticate exchanges OAuth client credentials for an access token. The
// token is reused until 30 seconds before it expires.
func (c *Client) Authenticate(ctx context.Context, clientID, clientSecret string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && !c.tokenUntil.IsZero() && time.Until(c.tokenUntil) > 30*time.Second {
		return nil
	}
	if clientID == "" || clientSecret == "" {
		return fmt.Errorf("runzero oauth client id and secret required")
	}
	endpoint := c.endpoint("/account/api/token")
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "*/*")
	resp, err := c.do(req, "oauth_token")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError(resp, endpoint)
	}
	var payload struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return &DecodeError{URL: endpoint, Err: err}
	}
	if payload.AccessToken == "" {
		return fmt.Errorf("runzero oauth: 200 response without access_token")
	}
	if !strings.EqualFold(payload.TokenType, "bearer") && payload.TokenType != "" {
		return fmt.Errorf("runzero oauth unexpected token type %q", payload.TokenType)
	}
	if payload.ExpiresIn <= 0 {
		payload.ExpiresIn = 3600
	}
	c.token = payload.AccessToken
	c.tokenUntil = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	return nil
}

func (c *Client) bearer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Client) endpoint(path string) string {
	return c.baseURL + apiPrefix + path
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, params url.Values, body io.Reader) (*http.Request, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("runzero base url not configured")
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.bearer())
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

// do executes req, recording the outcome under name.
func (c *Client) do(req *http.Request, name string) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(name, 0)
		return nil, &ConnectionError{Op: req.Method, URL: redact(req.URL), Err: err}
	}
	c.metrics.ObserveRequest(name, resp.StatusCode)
	c.log.Debugf("%s %s -> %d in %s", req.Method, redact(req.URL), resp.StatusCode, time.Since(start).Round(time.Millisecond))
	return resp, nil
}

// getRecords issues a GET and decodes a JSON array or JSON lines body.
func (c *Client) getRecords(ctx context.Context, name, path string, params url.Values) ([]record.Record, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.endpoint(path), params, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.do(req, name)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp, redact(req.URL))
	}
	records, err := record.Decode(resp.Body)
	if err != nil {
		return nil, &DecodeError{URL: redact(req.URL), Err: err}
	}
	c.log.Debugf("%s returned %d records", name, len(records))
	return records, nil
}

func statusError(resp *http.Response, u string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{StatusCode: resp.StatusCode, URL: u, Body: strings.TrimSpace(string(body))}
}

func redact(u *url.URL) string {
	clean := *u
	clean.RawQuery = ""
	return clean.String()
}

func sanitizeBaseURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	return strings.TrimRight(trimmed, "/")
}
