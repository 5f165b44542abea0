// Package remote is the HTTP client for the nutrinest server
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tildaslashalef/nutrinest/internal/config"
	"github.com/tildaslashalef/nutrinest/internal/loggy"
	"github.com/tildaslashalef/nutrinest/internal/nutrition"
	"github.com/tildaslashalef/nutrinest/internal/outbox"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// ErrPartialPush is returned when the server accepted only part of a batch
var ErrPartialPush = errors.New("server accepted only part of the batch")

// ErrNotConfigured is returned when no server URL is set
var ErrNotConfigured = errors.New("remote server not configured")

// Client handles HTTP communication with the nutrinest server
type Client struct {
	baseURL    string
	deviceName string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *loggy.Logger
}

// NewClient creates a client from the server configuration
func NewClient(cfg *config.ServerConfig, logger *loggy.Logger) *Client {
	var transport http.RoundTripper = &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	if cfg.Token != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}),
			Base:   transport,
		}
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60)
	}
	burst := cfg.BurstLimit
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		deviceName: cfg.DeviceName,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// APIError represents an error response from the API
type APIError struct {
	StatusCode int    `json:"status_code"`
	ErrorCode  string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.ErrorCode == "" {
		return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error %d: %s - %s", e.StatusCode, e.ErrorCode, e.Message)
}

// HTTPStatus returns the response status code
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

type pushRequest struct {
	DeviceName string          `json:"device_name"`
	Records    []outbox.Record `json:"records"`
}

// PushResponse is the server's reply to a batch push
type PushResponse struct {
	Accepted int    `json:"accepted"`
	Message  string `json:"message,omitempty"`
}

// FetchDailySummary fetches the server's summary for date (YYYY-MM-DD)
func (c *Client) FetchDailySummary(ctx context.Context, date string) (*nutrition.DailySummary, error) {
	var summary nutrition.DailySummary
	q := url.Values{"date": {date}}
	if err := c.do(ctx, http.MethodGet, "/api/summary/daily?"+q.Encode(), nil, nil, &summary); err != nil {
		return nil, err
	}
	if summary.Date == "" {
		summary.Date = date
	}
	return &summary, nil
}

// SearchCatalog searches the server food catalog
func (c *Client) SearchCatalog(ctx context.Context, query string) ([]nutrition.CatalogItem, error) {
	var resp struct {
		Items []nutrition.CatalogItem `json:"items"`
	}
	q := url.Values{"q": {query}}
	if err := c.do(ctx, http.MethodGet, "/api/catalog/search?"+q.Encode(), nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// Push sends a batch of pending records. It returns nil only when the server
// accepted every record in the batch.
func (c *Client) Push(ctx context.Context, batch outbox.Batch) error {
	headers := http.Header{}
	headers.Set("Idempotency-Key", batch.Key)

	var resp PushResponse
	body := pushRequest{DeviceName: c.deviceName, Records: batch.Records}
	if err := c.do(ctx, http.MethodPost, "/api/sync/batch", headers, body, &resp); err != nil {
		return err
	}

	if resp.Accepted != len(batch.Records) {
		return fmt.Errorf("%w: %d of %d", ErrPartialPush, resp.Accepted, len(batch.Records))
	}

	c.logger.Debug("Pushed batch", "key", batch.Key, "records", len(batch.Records))
	return nil
}

// Ping checks that the server is reachable and the token is accepted
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, headers http.Header, body, out any) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}

	if err := c.limiter.Wait(ctx); err != nil {
		// Wait fails early when the deadline would pass before a token frees up
		if ctx.Err() != nil {
			return fmt.Errorf("waiting for rate limiter: %w", ctx.Err())
		}
		if _, ok := ctx.Deadline(); ok {
			return fmt.Errorf("waiting for rate limiter: %w: %v", context.DeadlineExceeded, err)
		}
		return fmt.Errorf("waiting for rate limiter: %w", err)
	}

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	for k, v := range headers {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.deviceName != "" {
		req.Header.Set("X-Device-Name", c.deviceName)
	}
	if id := loggy.GetRequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	loggy.FromContext(ctx).Debug("Remote request",
		"method", method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		// the body may carry its own status_code; the response line wins
		apiErr.StatusCode = resp.StatusCode
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
