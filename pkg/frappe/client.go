// Package frappe is a client for the Frappe/ERPNext REST API: document
// CRUD under /api/resource and whitelisted methods under /api/method.
// Requests are single-shot; failures are returned as *Error.
package frappe

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/harun/erptools/internal/observability"
	"github.com/harun/erptools/internal/tracing"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Config configures a Client
type Config struct {
	BaseURL        string
	APIKey         string
	APISecret      string
	Timeout        time.Duration
	TLSSkipVerify  bool
	DefaultCompany string // overrides Global Defaults when set
	UserAgent      string
}

// Client talks to one platform site
type Client struct {
	httpClient     *http.Client
	baseURL        *url.URL
	headers        map[string]string
	defaultCompany string
}

// NewClient creates a platform client
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL scheme %q", base.Scheme)
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("api key and secret are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "erptools"
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify,
		},
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	c := &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		baseURL: base,
		headers: map[string]string{
			"Authorization": fmt.Sprintf("token %s:%s", cfg.APIKey, cfg.APISecret),
			"Accept":        "application/json",
			"Content-Type":  "application/json",
			"User-Agent":    cfg.UserAgent,
		},
		defaultCompany: cfg.DefaultCompany,
	}

	return c, nil
}

// Insert creates a document and returns it as saved by the platform
func (c *Client) Insert(ctx context.Context, doctype string, doc Doc) (Doc, error) {
	body := make(Doc, len(doc)+1)
	for k, v := range doc {
		body[k] = v
	}
	body["doctype"] = doctype

	var out struct {
		Data Doc `json:"data"`
	}
	if err := c.do(ctx, "insert", http.MethodPost, resourcePath(doctype), nil, body, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Get fetches a document by name
func (c *Client) Get(ctx context.Context, doctype, name string) (Doc, error) {
	var out struct {
		Data Doc `json:"data"`
	}
	if err := c.do(ctx, "get", http.MethodGet, resourcePath(doctype, name), nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// List queries documents of a type
func (c *Client) List(ctx context.Context, doctype string, opts ListOptions) ([]Doc, error) {
	query := url.Values{}
	if len(opts.Filters) > 0 {
		filters, err := json.Marshal(opts.Filters)
		if err != nil {
			return nil, fmt.Errorf("encoding filters: %w", err)
		}
		query.Set("filters", string(filters))
	}
	if len(opts.Fields) > 0 {
		fields, err := json.Marshal(opts.Fields)
		if err != nil {
			return nil, fmt.Errorf("encoding fields: %w", err)
		}
		query.Set("fields", string(fields))
	}
	if opts.OrderBy != "" {
		query.Set("order_by", opts.OrderBy)
	}
	query.Set("limit_page_length", strconv.Itoa(opts.Limit))
	if opts.Offset > 0 {
		query.Set("limit_start", strconv.Itoa(opts.Offset))
	}

	var out struct {
		Data []Doc `json:"data"`
	}
	if err := c.do(ctx, "list", http.MethodGet, resourcePath(doctype), query, nil, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		out.Data = []Doc{}
	}
	return out.Data, nil
}

// Count returns the number of documents matching filters
func (c *Client) Count(ctx context.Context, doctype string, filters []Filter) (int, error) {
	query := url.Values{"doctype": {doctype}}
	if len(filters) > 0 {
		encoded, err := json.Marshal(filters)
		if err != nil {
			return 0, fmt.Errorf("encoding filters: %w", err)
		}
		query.Set("filters", string(encoded))
	}

	var out struct {
		Message json.Number `json:"message"`
	}
	if err := c.do(ctx, "count", http.MethodGet, methodPath("frappe.client.get_count"), query, nil, &out); err != nil {
		return 0, err
	}
	n, err := out.Message.Int64()
	if err != nil {
		return 0, fmt.Errorf("unexpected count %q: %w", out.Message, err)
	}
	return int(n), nil
}

// Submit submits a saved draft document
func (c *Client) Submit(ctx context.Context, doc Doc) (Doc, error) {
	var out struct {
		Message Doc `json:"message"`
	}
	if err := c.do(ctx, "submit", http.MethodPost, methodPath("frappe.client.submit"), nil, map[string]interface{}{"doc": doc}, &out); err != nil {
		return nil, err
	}
	return out.Message, nil
}

// Call invokes a whitelisted server method and returns its "message" value
func (c *Client) Call(ctx context.Context, method string, params map[string]interface{}) (interface{}, error) {
	if params == nil {
		params = map[string]interface{}{}
	}
	var out struct {
		Message interface{} `json:"message"`
	}
	if err := c.do(ctx, "call", http.MethodPost, methodPath(method), nil, params, &out); err != nil {
		return nil, err
	}
	return out.Message, nil
}

// RunReport runs a query report with the given filters
func (c *Client) RunReport(ctx context.Context, reportName string, filters map[string]interface{}) (*Report, error) {
	body := map[string]interface{}{
		"report_name": reportName,
		"filters":     filters,
	}
	var out struct {
		Message *Report `json:"message"`
	}
	if err := c.do(ctx, "report", http.MethodPost, methodPath("frappe.desk.query_report.run"), nil, body, &out); err != nil {
		return nil, err
	}
	if out.Message == nil {
		return &Report{Columns: []interface{}{}, Result: []interface{}{}}, nil
	}
	return out.Message, nil
}

// DefaultCompany returns the configured company, falling back to Global Defaults
func (c *Client) DefaultCompany(ctx context.Context) (string, error) {
	if c.defaultCompany != "" {
		return c.defaultCompany, nil
	}

	query := url.Values{
		"doctype": {"Global Defaults"},
		"field":   {"default_company"},
	}
	var out struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, "get_value", http.MethodGet, methodPath("frappe.client.get_single_value"), query, nil, &out); err != nil {
		return "", err
	}
	if out.Message == "" {
		return "", fmt.Errorf("no default company configured on the platform")
	}
	return out.Message, nil
}

// Ping returns the API user the credentials authenticate as
func (c *Client) Ping(ctx context.Context) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, "ping", http.MethodGet, methodPath("frappe.auth.get_logged_user"), nil, nil, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body interface{}, out interface{}) error {
	ctx, span := tracing.StartSpan(ctx, "erptools/frappe", "platform."+op,
		attribute.String("http.method", method),
		attribute.String("platform.path", path),
	)
	defer span.End()

	u, err := c.buildURL(path, query)
	if err != nil {
		return fmt.Errorf("building URL: %w", err)
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return fmt.Errorf("creating HTTP request: %w", err)
	}
	c.setHeaders(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	logger := tracing.LoggerFromContext(ctx, log.Logger)

	if err != nil {
		observability.RecordPlatformRequest(op, 0, duration)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Str("method", method).Str("path", path).Dur("duration", duration).Msg("Platform request failed")
		return fmt.Errorf("platform request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	observability.RecordPlatformRequest(op, resp.StatusCode, duration)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", duration).
		Msg("Platform request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		perr := parseError(resp.StatusCode, data)
		span.SetStatus(codes.Error, perr.Error())
		return perr
	}

	if out == nil {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decoding platform response: %w", err)
	}
	return nil
}

func (c *Client) buildURL(path string, query url.Values) (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(c.baseURL.String(), "/") + path)
	if err != nil {
		return nil, err
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u, nil
}

func (c *Client) setHeaders(req *http.Request) {
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
}

func resourcePath(doctype string, name ...string) string {
	p := "/api/resource/" + url.PathEscape(doctype)
	if len(name) > 0 {
		p += "/" + url.PathEscape(name[0])
	}
	return p
}

func methodPath(method string) string {
	return "/api/method/" + method
}
