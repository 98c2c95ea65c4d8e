// Package upstream implements the Upstream Client contract: the small set
// of stateless verbs the rest of the proxy uses to talk to the upstream
// SCIM provider, over a pooled *http.Client with bounded retry on
// single-resource operations.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/coreward/scimproxy/scim"
)

// forwardedHeaders is the allow-list of client headers forwarded verbatim to
// the upstream (§4.7). Every other client header is dropped.
var forwardedHeaders = []string{
	"authorization",
	"x-api-key",
	"x-auth-token",
	"bearer",
	"cookie",
	"x-forwarded-for",
	"x-real-ip",
	"user-agent",
}

const defaultUserAgent = "SCIM-Proxy/1.0.0"

// Config configures a Client's connection pool and timeout.
type Config struct {
	BaseURL               string
	Timeout               time.Duration
	MaxConnections        int
	MaxKeepAliveConns     int
	MaxRetries            int
	RetryInitialInterval  time.Duration
}

// Client is a pooled HTTP client implementing the upstream contract for
// SCIM Users and Groups.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	maxRetries int
	retryInit  time.Duration
}

// NewClient builds a Client whose transport is sized from cfg, mirroring the
// upstream_max_connections/max_keepalive_connections/upstream_timeout
// settings of the original proxy's HTTP client.
func NewClient(cfg Config) *Client {
	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 100
	}
	keepAlive := cfg.MaxKeepAliveConns
	if keepAlive <= 0 {
		keepAlive = 20
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 2
	}
	retryInit := cfg.RetryInitialInterval
	if retryInit <= 0 {
		retryInit = 100 * time.Millisecond
	}

	transport := &http.Transport{
		MaxConnsPerHost:     maxConns,
		MaxIdleConnsPerHost: keepAlive,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		timeout:    timeout,
		maxRetries: retries,
		retryInit:  retryInit,
	}
}

// PrepareHeaders builds the header set forwarded to the upstream: the
// allow-listed client headers, a forced Accept, and a default User-Agent if
// the client did not supply one.
func PrepareHeaders(clientHeaders http.Header) http.Header {
	out := make(http.Header)
	for _, name := range forwardedHeaders {
		if v := clientHeaders.Get(name); v != "" {
			out.Set(name, v)
		}
	}
	out.Set("Accept", "application/scim+json")
	if out.Get("User-Agent") == "" {
		out.Set("User-Agent", defaultUserAgent)
	}
	return out
}

// ListUsers fetches one page of Users; the server binds the request headers
// to it to build the backfill controller's PageFetcher. It is never retried: backfill already has
// its own best-effort stop-on-failure semantics (§4.4/§4.10).
func (c *Client) ListUsers(ctx context.Context, headers http.Header, startIndex, count int) ([]scim.Resource, int, error) {
	return c.listResources(ctx, "/Users", headers, startIndex, count)
}

// ListGroups is the Group analogue of ListUsers.
func (c *Client) ListGroups(ctx context.Context, headers http.Header, startIndex, count int) ([]scim.Resource, int, error) {
	return c.listResources(ctx, "/Groups", headers, startIndex, count)
}

func (c *Client) listResources(ctx context.Context, path string, headers http.Header, startIndex, count int) ([]scim.Resource, int, error) {
	query := url.Values{
		"startIndex": {strconv.Itoa(startIndex)},
		"count":      {strconv.Itoa(count)},
	}
	var list scim.ListResponse
	if err := c.do(ctx, http.MethodGet, path, query, headers, nil, &list); err != nil {
		return nil, 0, err
	}
	return list.Resources, list.TotalResults, nil
}

// GetUser fetches a single User by id, retrying transient failures.
func (c *Client) GetUser(ctx context.Context, id string, headers http.Header) (scim.Resource, error) {
	return c.getResource(ctx, "/Users/"+id, headers)
}

func (c *Client) GetGroup(ctx context.Context, id string, headers http.Header) (scim.Resource, error) {
	return c.getResource(ctx, "/Groups/"+id, headers)
}

func (c *Client) getResource(ctx context.Context, path string, headers http.Header) (scim.Resource, error) {
	var resource scim.Resource
	err := c.doWithRetry(ctx, http.MethodGet, path, nil, headers, nil, &resource)
	return resource, err
}

// CreateUser creates a User, retrying transient failures.
func (c *Client) CreateUser(ctx context.Context, body scim.Resource, headers http.Header) (scim.Resource, error) {
	return c.createResource(ctx, "/Users", body, headers)
}

func (c *Client) CreateGroup(ctx context.Context, body scim.Resource, headers http.Header) (scim.Resource, error) {
	return c.createResource(ctx, "/Groups", body, headers)
}

func (c *Client) createResource(ctx context.Context, path string, body scim.Resource, headers http.Header) (scim.Resource, error) {
	var resource scim.Resource
	err := c.doWithRetry(ctx, http.MethodPost, path, nil, headers, body, &resource)
	return resource, err
}

// UpdateUser replaces a User via PUT, retrying transient failures.
func (c *Client) UpdateUser(ctx context.Context, id string, body scim.Resource, headers http.Header) (scim.Resource, error) {
	return c.updateResource(ctx, "/Users/"+id, body, headers)
}

func (c *Client) UpdateGroup(ctx context.Context, id string, body scim.Resource, headers http.Header) (scim.Resource, error) {
	return c.updateResource(ctx, "/Groups/"+id, body, headers)
}

func (c *Client) updateResource(ctx context.Context, path string, body scim.Resource, headers http.Header) (scim.Resource, error) {
	var resource scim.Resource
	err := c.doWithRetry(ctx, http.MethodPut, path, nil, headers, body, &resource)
	return resource, err
}

// PatchUser sends the adapter's rewritten PATCH body, retrying transient
// failures.
func (c *Client) PatchUser(ctx context.Context, id string, patch scim.PatchOp, headers http.Header) (scim.Resource, error) {
	return c.patchResource(ctx, "/Users/"+id, patch, headers)
}

func (c *Client) PatchGroup(ctx context.Context, id string, patch scim.PatchOp, headers http.Header) (scim.Resource, error) {
	return c.patchResource(ctx, "/Groups/"+id, patch, headers)
}

func (c *Client) patchResource(ctx context.Context, path string, patch scim.PatchOp, headers http.Header) (scim.Resource, error) {
	var resource scim.Resource
	err := c.doWithRetry(ctx, "PATCH", path, nil, headers, patch, &resource)
	return resource, err
}

// DeleteUser deletes a User, retrying transient failures.
func (c *Client) DeleteUser(ctx context.Context, id string, headers http.Header) error {
	return c.doWithRetry(ctx, http.MethodDelete, "/Users/"+id, nil, headers, nil, nil)
}

func (c *Client) DeleteGroup(ctx context.Context, id string, headers http.Header) error {
	return c.doWithRetry(ctx, http.MethodDelete, "/Groups/"+id, nil, headers, nil, nil)
}

// doWithRetry wraps do with a bounded exponential backoff for transient
// transport failures only, capped at the remaining request deadline — the
// resilience the single-resource verbs get that the backfill loop (§4.4)
// deliberately does not.
func (c *Client) doWithRetry(ctx context.Context, method, path string, query url.Values, headers http.Header, body, out any) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.retryInit
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.maxRetries)), ctx)

	return backoff.Retry(func() error {
		err := c.do(ctx, method, path, query, headers, body, out)
		if err == nil {
			return nil
		}
		if upErr, ok := err.(*Error); ok && upErr.Transient {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, headers http.Header, body, out any) error {
	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return statusError(0, fmt.Sprintf("encoding request body: %s", err))
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return statusError(0, fmt.Sprintf("building request: %s", err))
	}

	prepared := PrepareHeaders(headers)
	req.Header = prepared
	if body != nil {
		req.Header.Set("Content-Type", "application/scim+json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The caller's own cancellation or deadline is final; this attempt's
		// timeout is transient like any other transport failure.
		if parent.Err() != nil {
			return statusError(0, "request canceled or deadline exceeded")
		}
		return transientError(classifyTransportError(err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return transientError(fmt.Sprintf("reading response body: %s", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, string(respBody))
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return statusError(resp.StatusCode, fmt.Sprintf("decoding response body: %s", err))
	}
	return nil
}

// classifyTransportError extracts a readable message; callers already know
// this path is transient (it ran before any status line was read).
func classifyTransportError(err error) string {
	var netErr net.Error
	if ok := asNetError(err, &netErr); ok {
		return netErr.Error()
	}
	return err.Error()
}

func asNetError(err error, target *net.Error) bool {
	for err != nil {
		if ne, ok := err.(net.Error); ok {
			*target = ne
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
