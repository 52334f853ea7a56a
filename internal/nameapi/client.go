// Package nameapi is the HTTP client for the remote name service: the name
// generation endpoint and the paginated name ranking endpoint.
package nameapi

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
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/NamePlay/internal/models"
)

// Constants for the remote service
const (
	// DefaultBaseURL is used when no base URL is configured.
	DefaultBaseURL = "http://localhost:8080"
	// DefaultTimeout bounds a whole request.
	DefaultTimeout = 15 * time.Second
	// GeneratePath is the name generation endpoint.
	GeneratePath = "/api/chat/generate"
	// NamesPath is the ranking endpoint.
	NamesPath = "/api/names"
	// SortByCountDesc orders the ranking by descending count.
	SortByCountDesc = "count,desc"
	// maxBodyBytes caps how much of a response body is read.
	maxBodyBytes = 1 << 20
)

var (
	// ErrTransport covers unreachable hosts, timeouts and non-2xx statuses.
	ErrTransport = errors.New("transport failure")
	// ErrMalformedResponse covers bodies that are not the expected JSON shape.
	ErrMalformedResponse = errors.New("malformed response")
)

// StatusError reports a non-2xx response. It matches ErrTransport with errors.Is.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("name service returned status %d", e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return ErrTransport
}

// Opts holds configuration options for the client.
type Opts struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Option defines a configuration option for the client.
type Option func(*Opts)

// WithBaseURL sets the scheme and host of the name service.
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client talks to the remote name service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client. The base URL must be absolute.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL for name service: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	slog.Debug("nameapi.NewClient: client configured", "base_url", cfg.BaseURL, "timeout", cfg.Timeout)
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
	}, nil
}

// BaseURL returns the configured service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Generate posts the answer record and returns the raw generation payload.
func (c *Client) Generate(ctx context.Context, req models.GenerationRequest) (*models.GenerationResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling generation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+GeneratePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating generation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	var out models.GenerationResponse
	if err := c.do(httpReq, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListNames fetches one page of the name ranking.
func (c *Client) ListNames(ctx context.Context, page, size int, sort string) (*models.NamesResponse, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	if sort != "" {
		q.Set("sort", sort)
	}
	// url.Values encodes the comma in "count,desc"; the ranking service expects it literal.
	rawQuery := strings.ReplaceAll(q.Encode(), "%2C", ",")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+NamesPath+"?"+rawQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("creating names request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	var out models.NamesResponse
	if err := c.do(httpReq, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	log := slog.With("method", req.Method, "path", req.URL.Path)

	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn("nameapi.Client: request failed", "error", err)
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		log.Warn("nameapi.Client: failed to read response body", "status", resp.StatusCode, "error", err)
		return fmt.Errorf("%w: reading body: %v", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn("nameapi.Client: unexpected status", "status", resp.StatusCode)
		return &StatusError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}
	if err := json.Unmarshal(data, out); err != nil {
		log.Warn("nameapi.Client: failed to decode response", "status", resp.StatusCode, "error", err)
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	log.Debug("nameapi.Client: request succeeded", "status", resp.StatusCode)
	return nil
}
