// Package cmxapi talks to the CMX Core document-store API: paginated search
// and per-document calls.
package cmxapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/leefowlercu/cmxbatch/internal/auth"
	"github.com/leefowlercu/cmxbatch/internal/coordinator"
	"github.com/leefowlercu/cmxbatch/internal/criteria"
	"github.com/leefowlercu/cmxbatch/internal/metrics"
)

const (
	// DefaultPageSize is used when a search does not name a page size.
	DefaultPageSize = 100

	// ProfileHeader carries the configured CMX profile.
	ProfileHeader = "X-CMX-Profile"

	// DefaultTimeout bounds one HTTP exchange.
	DefaultTimeout = 60 * time.Second

	maxErrorBody = 512
)

// Config describes the document store to talk to.
type Config struct {
	BaseURL string
	StoreID string
	Profile string

	// UserAgent is sent with every request when set.
	UserAgent string

	// RateLimit caps requests per second. Zero means unlimited.
	RateLimit float64

	// Policy retries search page requests.
	Policy coordinator.Policy
}

// Invalidator drops a cached credential after the API rejects it.
type Invalidator interface {
	Invalidate()
}

// Client is a CMX Core API client. It is safe for concurrent use.
type Client struct {
	baseURL     string
	storeID     string
	profile     string
	userAgent   string
	policy      coordinator.Policy
	httpClient  *http.Client
	limiter     *rate.Limiter
	invalidator Invalidator
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client. Its transport is expected to add the
// bearer token.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithInvalidator registers the credential cache to clear on 401.
func WithInvalidator(inv Invalidator) Option {
	return func(c *Client) {
		c.invalidator = inv
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Client.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		storeID:    cfg.StoreID,
		profile:    cfg.Profile,
		userAgent:  cfg.UserAgent,
		policy:     cfg.Policy,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(1, int(cfg.RateLimit)))
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// PageRequest asks for one page of search results.
type PageRequest struct {
	Criteria  criteria.Criterion
	PageSize  int
	PageToken string
}

// Page is one page of search results.
type Page struct {
	Documents     []DocumentRecord `json:"documents"`
	NextPageToken string           `json:"nextPageToken,omitempty"`
}

type searchBody struct {
	Criteria  any    `json:"criteria"`
	PageSize  int    `json:"pageSize"`
	PageToken string `json:"pageToken,omitempty"`
}

// SearchPage fetches a single page. It does not retry.
func (c *Client) SearchPage(ctx context.Context, req PageRequest) (Page, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	body, err := json.Marshal(searchBody{
		Criteria:  criteria.Serialize(req.Criteria),
		PageSize:  pageSize,
		PageToken: req.PageToken,
	})
	if err != nil {
		return Page{}, &SearchError{Err: fmt.Errorf("failed to encode search request; %w", err)}
	}

	resp, err := c.do(ctx, "search", http.MethodPost, c.documentsPath("search"), nil, body)
	if err != nil {
		status, retryable := classify(err)
		return Page{}, &SearchError{Status: status, retryable: retryable, Err: err}
	}
	defer resp.Body.Close()

	var page Page
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return Page{}, &SearchError{
			Status:    resp.StatusCode,
			retryable: true,
			Err:       fmt.Errorf("failed to decode search response; %w", err),
		}
	}

	metrics.RecordSearchPage()
	return page, nil
}

// Search returns a lazy stream over every document matching crit.
func (c *Client) Search(crit criteria.Criterion, pageSize int) *Stream {
	return NewStream(c, crit, pageSize, c.policy)
}

// Delete deletes a document. erase requests permanent erasure instead of a
// reversible delete.
func (c *Client) Delete(ctx context.Context, id string, erase bool) error {
	var query url.Values
	if erase {
		query = url.Values{"erase": []string{"true"}}
	}

	resp, err := c.do(ctx, "delete", http.MethodDelete, c.documentsPath(id), query, nil)
	if err != nil {
		return itemError("delete", id, err)
	}
	drain(resp)
	return nil
}

// GetDocument returns the full metadata of a document as sent by the API.
func (c *Client) GetDocument(ctx context.Context, id string) (json.RawMessage, error) {
	resp, err := c.do(ctx, "get", http.MethodGet, c.documentsPath(id), nil, nil)
	if err != nil {
		return nil, itemError("get", id, err)
	}
	defer resp.Body.Close()

	var doc json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, &ItemOperationError{
			Op:         "get",
			DocumentID: id,
			Status:     resp.StatusCode,
			retryable:  true,
			Err:        fmt.Errorf("failed to decode document; %w", err),
		}
	}
	return doc, nil
}

// GetContent opens the binary content of a document. The caller closes it.
func (c *Client) GetContent(ctx context.Context, id string) (io.ReadCloser, error) {
	resp, err := c.do(ctx, "content", http.MethodGet, c.documentsPath(id, "content"), nil, nil)
	if err != nil {
		return nil, itemError("content", id, err)
	}
	return resp.Body, nil
}

// GetRawFile returns the raw file descriptor of a document.
func (c *Client) GetRawFile(ctx context.Context, id string) (RawFile, error) {
	resp, err := c.do(ctx, "file", http.MethodGet, c.documentsPath(id, "file"), nil, nil)
	if err != nil {
		return nil, itemError("file", id, err)
	}
	defer resp.Body.Close()

	var file RawFile
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		return nil, &ItemOperationError{
			Op:         "file",
			DocumentID: id,
			Status:     resp.StatusCode,
			retryable:  true,
			Err:        fmt.Errorf("failed to decode raw file; %w", err),
		}
	}
	return file, nil
}

func (c *Client) documentsPath(elems ...string) string {
	parts := []string{"api", "v3", "stores", url.PathEscape(c.storeID), "documents"}
	for _, e := range elems {
		parts = append(parts, url.PathEscape(e))
	}
	return "/" + strings.Join(parts, "/")
}

// do sends one request. A 401 clears the cached credential and the request is
// sent once more. Non-2xx responses are returned as *apiError.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body []byte) (*http.Response, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("failed to wait for rate limiter; %w", err)
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to build request; %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.profile != "" {
			req.Header.Set(ProfileHeader, c.profile)
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			metrics.RecordAPIRequest(op, 0, time.Since(start))
			return nil, err
		}
		metrics.RecordAPIRequest(op, resp.StatusCode, time.Since(start))

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 && c.invalidator != nil {
			drain(resp)
			c.invalidator.Invalidate()
			c.logger.Debug("access token rejected; retrying with a fresh one", "op", op)
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			drain(resp)
			apiErr := &apiError{status: resp.StatusCode, body: strings.TrimSpace(string(msg))}
			if resp.StatusCode == http.StatusUnauthorized {
				// Rejected even with a fresh token.
				return nil, &auth.AuthError{Status: resp.StatusCode, Err: apiErr}
			}
			return nil, apiErr
		}

		return resp, nil
	}
}

func classify(err error) (status int, retryable bool) {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.status, retryableStatus(apiErr.status)
	}
	return 0, retryableTransport(err)
}

func itemError(op, id string, err error) *ItemOperationError {
	status, retryable := classify(err)
	return &ItemOperationError{Op: op, DocumentID: id, Status: status, retryable: retryable, Err: err}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
