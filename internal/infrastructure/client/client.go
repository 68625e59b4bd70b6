// Package client is the HTTP client of the Query API. One Client serves a
// page as its selection store and its content fetcher.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzhttp"

	"querygrid/internal/core/apperror"
	"querygrid/internal/domain/query"
	"querygrid/internal/grid/params"
	"querygrid/internal/grid/render"
	"querygrid/internal/grid/selection"
	"querygrid/internal/infrastructure/http/v1/dto"
	"querygrid/internal/infrastructure/http/v1/middleware"
	"querygrid/pkg/logger"
)

var (
	_ selection.Store = (*Client)(nil)
	_ render.Fetcher  = (*Client)(nil)
)

// Config holds client configuration.
type Config struct {
	// BaseURL is the server root, e.g. "http://localhost:8080".
	BaseURL string
	// Token is sent as a bearer token when set.
	Token   string
	Timeout time.Duration

	// HTTPClient overrides the default client; Timeout is then ignored.
	HTTPClient *http.Client
	Logger     *logger.Logger
}

// Client calls /api/v1 endpoints. Failed round-trips, including non-2xx
// answers, are reported as transport errors and never retried.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *logger.Logger
}

// New creates a client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, apperror.NewConfiguration("client base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, apperror.NewConfiguration("invalid client base URL").WithCause(err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = render.DefaultTimeout
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: gzhttp.Transport(http.DefaultTransport),
		}
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/") + "/api/v1",
		token:   cfg.Token,
		http:    httpClient,
		log:     log.WithComponent(logger.ComponentQueryClient),
	}, nil
}

// --- Selection store ---

func (c *Client) GetSelected(ctx context.Context, key string) ([]string, error) {
	var resp dto.SelectedResponse
	if err := c.post(ctx, "getSelected", "/query/getSelected", dto.SelectionRequest{Key: key}, &resp); err != nil {
		return nil, err
	}
	return resp.Selected, nil
}

func (c *Client) SetSelected(ctx context.Context, key string, ids []string, checked bool) (int, error) {
	var resp dto.CountResponse
	err := c.post(ctx, "setSelected", "/query/setSelected", dto.SelectionRequest{Key: key, IDs: ids, Checked: checked}, &resp)
	return resp.Count, err
}

func (c *Client) ClearSelected(ctx context.Context, key string) (int, error) {
	var resp dto.CountResponse
	err := c.post(ctx, "clearSelected", "/query/clearSelected", dto.SelectionRequest{Key: key}, &resp)
	return resp.Count, err
}

func (c *Client) SelectAll(ctx context.Context, key string, req query.Request) (int, error) {
	var resp dto.CountResponse
	err := c.post(ctx, "selectAll", "/query/selectAll", dto.SelectionRequest{Key: key, Query: &req}, &resp)
	return resp.Count, err
}

// --- Rows and content ---

// SelectRows fetches one page of rows as data.
func (c *Client) SelectRows(ctx context.Context, req query.Request) (query.Result, error) {
	var result query.Result
	err := c.post(ctx, "selectRows", "/query/selectRows", req, &result)
	return result, err
}

// FetchContent posts a region's parameters to the content endpoint.
func (c *Client) FetchContent(ctx context.Context, req render.ContentRequest) (render.Content, error) {
	var content render.Content
	body := dto.RenderRequest{
		Region:     req.Region,
		SchemaName: req.SchemaName,
		QueryName:  req.QueryName,
		Params:     params.Encode(req.Pairs),
	}
	err := c.do(ctx, "fetchContent", http.MethodPost, "/grid/render", body, &content, middleware.HeaderRegion, req.Region)
	return content, err
}

// --- Views ---

func (c *Client) GetQueryViews(ctx context.Context, schema, queryName string) (query.ViewsResponse, error) {
	q := url.Values{"schemaName": {schema}, "queryName": {queryName}}
	var resp query.ViewsResponse
	err := c.do(ctx, "getQueryViews", http.MethodGet, "/query/views?"+q.Encode(), nil, &resp)
	return resp, err
}

func (c *Client) SaveQueryViews(ctx context.Context, schema, queryName string, views []query.ViewDef, shared bool) error {
	body := dto.SaveViewsRequest{SchemaName: schema, QueryName: queryName, Shared: shared, Views: views}
	return c.post(ctx, "saveQueryViews", "/query/views", body, nil)
}

func (c *Client) DeleteQueryView(ctx context.Context, schema, queryName, name string, shared bool) error {
	q := url.Values{
		"schemaName": {schema},
		"queryName":  {queryName},
		"viewName":   {name},
		"shared":     {strconv.FormatBool(shared)},
	}
	return c.do(ctx, "deleteQueryView", http.MethodDelete, "/query/views?"+q.Encode(), nil, nil)
}

// --- Transport ---

func (c *Client) post(ctx context.Context, op, path string, body, out any) error {
	return c.do(ctx, op, http.MethodPost, path, body, out)
}

// do performs one round-trip. headers are key/value pairs.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any, headers ...string) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return apperror.NewTransport(op, err)
	}
	defer resp.Body.Close()

	c.log.WithContext(ctx).Debugw("query api call",
		"op", op,
		"status", resp.StatusCode,
		"latency_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperror.NewTransport(op, remoteError(resp)).
			WithDetail("status", resp.StatusCode)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperror.NewTransport(op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// remoteError rebuilds the server's error body, falling back to the status
// line when the body is not an error document.
func remoteError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var body dto.ErrorResponse
	if err := json.Unmarshal(raw, &body); err == nil && body.Code != "" {
		return &apperror.AppError{
			Code:       body.Code,
			Message:    body.Message,
			Details:    body.Details,
			HTTPStatus: resp.StatusCode,
		}
	}
	return errors.New(resp.Status)
}
