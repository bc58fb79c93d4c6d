// Package catalog is a typed client for the remote book catalog REST service.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aluiziolira/go-book-catalog/config"
	"github.com/aluiziolira/go-book-catalog/models"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const maxResponseBytes = 4 << 20

// Client issues catalog requests. It holds no catalog state and never retries.
type Client struct {
	baseURL   string
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
	Metrics   *Metrics
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client, e.g. to install a mock transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithMetrics replaces the metrics bundle. A nil bundle disables metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.Metrics = m
	}
}

// NewClient builds a client configured from cfg.
func NewClient(cfg *config.Config, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}

	c := &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   cfg.Timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		limiter:   limiter,
		userAgent: cfg.UserAgent,
		Metrics:   NewMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type listResponse struct {
	Data        []models.Record `json:"data"`
	TotalCounts int             `json:"total_counts"`
	TotalPages  int             `json:"total_pages"`
	Page        int             `json:"page"`
	PageSize    int             `json:"page_size"`
}

// ListRecords fetches one page. pageIndex is zero-based; the wire is one-based.
func (c *Client) ListRecords(ctx context.Context, filter models.Filter, pageIndex, pageSize int) (models.Page, error) {
	if pageIndex < 0 {
		return models.Page{}, fmt.Errorf("page index cannot be negative")
	}
	if pageSize <= 0 {
		return models.Page{}, fmt.Errorf("page size must be positive")
	}

	query := url.Values{}
	query.Set("page", strconv.Itoa(pageIndex+1))
	query.Set("page_size", strconv.Itoa(pageSize))
	query.Set("title", filter.Title)
	query.Set("author", filter.Author)

	var resp listResponse
	if err := c.do(ctx, "list", http.MethodGet, collection("/books?"+query.Encode()), nil, &resp); err != nil {
		return models.Page{}, err
	}

	page := models.Page{
		Items:      resp.Data,
		PageIndex:  pageIndex,
		PageSize:   pageSize,
		TotalCount: resp.TotalCounts,
	}
	if resp.Page > 0 {
		page.PageIndex = resp.Page - 1
	}
	if resp.PageSize > 0 {
		page.PageSize = resp.PageSize
	}
	if page.Items == nil {
		page.Items = []models.Record{}
	}
	if len(page.Items) > page.PageSize {
		slog.Debug("catalog returned more items than page size",
			slog.Int("items", len(page.Items)),
			slog.Int("page_size", page.PageSize),
		)
		page.Items = page.Items[:page.PageSize]
	}
	page.TotalPages = models.TotalPagesFor(page.TotalCount, page.PageSize)
	if resp.TotalPages != page.TotalPages {
		slog.Debug("catalog total_pages disagrees with total_counts",
			slog.Int("total_pages", resp.TotalPages),
			slog.Int("computed", page.TotalPages),
		)
	}
	return page, nil
}

// GetRecord fetches a single record.
func (c *Client) GetRecord(ctx context.Context, id int64) (models.Record, error) {
	var rec models.Record
	if err := c.do(ctx, "get", http.MethodGet, record(id), nil, &rec); err != nil {
		return models.Record{}, err
	}
	return rec, nil
}

// CreateRecord creates a record; the server assigns the id and zero sales.
func (c *Client) CreateRecord(ctx context.Context, in models.NewRecord) (models.Record, error) {
	var rec models.Record
	if err := c.do(ctx, "create", http.MethodPost, collection("/books"), in, &rec); err != nil {
		return models.Record{}, err
	}
	return rec, nil
}

// UpdateRecord replaces the record stored under id with fields.
func (c *Client) UpdateRecord(ctx context.Context, id int64, fields models.Record) (models.Record, error) {
	fields.ID = id
	var rec models.Record
	if err := c.do(ctx, "update", http.MethodPut, record(id), fields, &rec); err != nil {
		return models.Record{}, err
	}
	return rec, nil
}

// DeleteRecord removes the record stored under id.
func (c *Client) DeleteRecord(ctx context.Context, id int64) error {
	return c.do(ctx, "delete", http.MethodDelete, record(id), nil, nil)
}

// resource is the target of a request. A 404 on a collection is reported as
// a network failure; on a single record it is a NotFoundError.
type resource struct {
	path   string
	id     int64
	single bool
}

func collection(path string) resource {
	return resource{path: path}
}

func record(id int64) resource {
	return resource{path: "/books/" + strconv.FormatInt(id, 10), id: id, single: true}
}

// do performs one request. When out is non-nil a JSON body is required.
func (c *Client) do(ctx context.Context, op, method string, res resource, body, out any) (err error) {
	path := res.path
	if ctx == nil {
		ctx = context.Background()
	}
	requestID := uuid.NewString()
	start := time.Now()
	status := 0

	c.Metrics.IncRequest(op)
	defer func() {
		elapsed := time.Since(start)
		c.Metrics.ObserveDuration(op, elapsed)
		attrs := []any{
			slog.String("op", op),
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.String("request_id", requestID),
			slog.Duration("duration", elapsed),
		}
		if err != nil {
			category := errorTypeLabel(err)
			c.Metrics.IncError(op, category)
			slog.Debug("catalog request failed", append(attrs, slog.String("category", category), slog.Any("error", err))...)
			return
		}
		slog.Debug("catalog request", attrs...)
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return NetworkError{Op: op, Err: err}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return NetworkError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	if err := classifyStatus(op, res, resp.StatusCode, data); err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return NetworkError{Op: op, Err: errors.New("empty response body")}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return NetworkError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func classifyStatus(op string, res resource, statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	switch statusCode {
	case http.StatusNotFound:
		if res.single {
			return NotFoundError{ID: res.id, Err: fmt.Errorf("http status %d", statusCode)}
		}
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		return ValidationError{Status: statusCode, Message: errorMessage(body)}
	}
	return NetworkError{Op: op, Err: fmt.Errorf("http status %d", statusCode)}
}

// errorMessage pulls a human-readable message out of an error body.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, msg := range []string{payload.Message, payload.Error, payload.Detail} {
			if msg != "" {
				return msg
			}
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
