package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Client defines the HTTP client interface
type Client interface {
	Get(ctx context.Context, url string, opts ...RequestOption) (*Response, error)
	PostJSON(ctx context.Context, url string, payload interface{}, opts ...RequestOption) (*Response, error)
	Close() error
}

// HTTPClient implements the Client interface. It performs exactly one attempt
// per call; retry decisions belong to the caller.
type HTTPClient struct {
	client *http.Client
	config Config
	logger *zap.Logger
}

// Config holds HTTP client configuration
type Config struct {
	Timeout             time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	MaxBodyBytes        int64
	UserAgent           string
}

// Response represents an HTTP response
type Response struct {
	StatusCode    int
	Status        string
	Headers       http.Header
	Body          []byte
	ContentLength int64
	TTFB          time.Duration
	TotalTime     time.Duration
	Method        string
	URL           string
}

// IsSuccess reports a 2xx status
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Err returns a StatusError for non-2xx responses
func (r *Response) Err() error {
	if r.IsSuccess() {
		return nil
	}
	return &StatusError{
		StatusCode: r.StatusCode,
		Method:     r.Method,
		URL:        r.URL,
		Body:       snippet(r.Body, 256),
		RetryAfter: r.Headers.Get("Retry-After"),
	}
}

// DecodeJSON unmarshals the body into v
func (r *Response) DecodeJSON(v interface{}) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", r.URL, err)
	}
	return nil
}

// StatusError is a non-2xx response. The message carries "status NNN" so the
// generic error classifiers in pkg/utils recognize it.
type StatusError struct {
	StatusCode int
	Method     string
	URL        string
	Body       string
	RetryAfter string
}

// Error implements the error interface
func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// RequestOption allows customization of individual requests
type RequestOption func(*requestConfig)

type requestConfig struct {
	headers map[string]string
	timeout time.Duration
}

// WithHeader adds a header to the request
func WithHeader(key, value string) RequestOption {
	return func(cfg *requestConfig) {
		if cfg.headers == nil {
			cfg.headers = make(map[string]string)
		}
		cfg.headers[key] = value
	}
}

// WithBearerToken sets the Authorization header when token is not empty
func WithBearerToken(token string) RequestOption {
	if token == "" {
		return func(*requestConfig) {}
	}
	return WithHeader("Authorization", "Bearer "+token)
}

// WithTimeout sets a custom timeout for the request
func WithTimeout(timeout time.Duration) RequestOption {
	return func(cfg *requestConfig) {
		cfg.timeout = timeout
	}
}

// NewHTTPClient creates a new HTTP client
func NewHTTPClient(config Config, logger *zap.Logger) *HTTPClient {
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 100
	}
	if config.MaxIdleConnsPerHost == 0 {
		config.MaxIdleConnsPerHost = 10
	}
	if config.IdleConnTimeout == 0 {
		config.IdleConnTimeout = 90 * time.Second
	}
	if config.MaxBodyBytes == 0 {
		config.MaxBodyBytes = 512 << 20
	}
	if config.UserAgent == "" {
		config.UserAgent = "media-pipeline-go/1.0"
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,
	}

	logger.Debug("HTTP client initialized",
		zap.Duration("timeout", config.Timeout),
		zap.Int("max_idle_conns", config.MaxIdleConns))

	return &HTTPClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
		},
		config: config,
		logger: logger,
	}
}

// Get performs a GET request
func (c *HTTPClient) Get(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return c.doRequest(ctx, http.MethodGet, url, nil, "", opts...)
}

// PostJSON marshals payload and POSTs it
func (c *HTTPClient) PostJSON(ctx context.Context, url string, payload interface{}, opts ...RequestOption) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	return c.doRequest(ctx, http.MethodPost, url, body, "application/json", opts...)
}

// doRequest performs a single HTTP request and buffers the response body
func (c *HTTPClient) doRequest(ctx context.Context, method, url string, body []byte, contentType string, opts ...RequestOption) (*Response, error) {
	reqConfig := &requestConfig{}
	for _, opt := range opts {
		opt(reqConfig)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", contentType)
	}
	for key, value := range reqConfig.headers {
		req.Header.Set(key, value)
	}

	// Override timeout if specified in options
	client := c.client
	if reqConfig.timeout > 0 {
		client = &http.Client{
			Transport: c.client.Transport,
			Timeout:   reqConfig.timeout,
		}
	}

	requestStart := time.Now()
	resp, err := client.Do(req)
	ttfb := time.Since(requestStart)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	response := &Response{
		StatusCode:    resp.StatusCode,
		Status:        resp.Status,
		Headers:       resp.Header,
		Body:          data,
		ContentLength: resp.ContentLength,
		TTFB:          ttfb,
		TotalTime:     time.Since(requestStart),
		Method:        method,
		URL:           url,
	}

	c.logger.Debug("Request completed",
		zap.String("method", method),
		zap.String("url", url),
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("ttfb", ttfb),
		zap.Duration("total_time", response.TotalTime))

	return response, nil
}

// Close closes the HTTP client and its underlying transport
func (c *HTTPClient) Close() error {
	c.logger.Debug("Closing HTTP client")

	if transport, ok := c.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}

	return nil
}

func snippet(body []byte, max int) string {
	s := string(bytes.TrimSpace(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
