// Package httpclient is the transport adapter for the dashboard REST backend.
// It owns session credentials, anti-forgery tokens and response classification,
// and reports authentication loss as an event instead of acting on it.
package httpclient

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

	"go.uber.org/zap"

	"github.com/and161185/c3ds-console/internal/errs"
)

// Anti-forgery token conventions of the backend.
const (
	CSRFCookie = "csrftoken"
	CSRFHeader = "X-CSRFToken"
)

// DefaultMaxBody caps the size of a response body.
const DefaultMaxBody = 64 << 20

// ErrBodyTooLarge is returned when a response body exceeds the size cap.
var ErrBodyTooLarge = errors.New("response body too large")

// Request describes one call relative to the API prefix.
type Request struct {
	Method string
	Path   string     // e.g. "/devices/public/"; trailing slashes are preserved
	Query  url.Values // nil or empty means no query string
	Body   any        // JSON-encoded when non-nil
	Accept string     // defaults to application/json
}

// Response is a successful (2xx/3xx) response with the body fully read.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Client is a thin wrapper over the backend HTTP API.
type Client struct {
	baseURL    *url.URL
	prefix     string
	http       *http.Client
	jar        *Jar
	log        *zap.Logger
	strictCSRF bool
	maxBody    int64
	events     chan Event
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used by the client and its transport.
func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = l } }

// WithJar replaces the default in-memory cookie jar.
func WithJar(j *Jar) Option { return func(c *Client) { c.jar = j } }

// WithStrictCSRF makes unsafe requests without a token fail locally.
func WithStrictCSRF(strict bool) Option { return func(c *Client) { c.strictCSRF = strict } }

// WithMaxBody sets the response size cap, DefaultMaxBody by default.
func WithMaxBody(n int64) Option { return func(c *Client) { c.maxBody = n } }

// WithPrefix sets the API path prefix, "/api/v1" by default.
func WithPrefix(p string) Option {
	return func(c *Client) { c.prefix = "/" + strings.Trim(p, "/") }
}

// New creates an API client for rawURL with the given request timeout.
func New(rawURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("base url must include scheme and host")
	}
	parsed.Path = strings.TrimSuffix(parsed.Path, "/")

	c := &Client{
		baseURL: parsed,
		prefix:  "/api/v1",
		maxBody: DefaultMaxBody,
		log:     zap.NewNop(),
		events:  make(chan Event, 16),
	}
	for _, o := range opts {
		o(c)
	}
	if c.jar == nil {
		if c.jar, err = NewJar(nil, c.log); err != nil {
			return nil, err
		}
	}
	if err := c.jar.Restore(parsed); err != nil {
		c.log.Warn("restore session cookies", zap.Error(err))
	}
	c.http = &http.Client{
		Timeout:   timeout,
		Jar:       c.jar,
		Transport: LoggingTransport(http.DefaultTransport, c.log),
	}
	return c, nil
}

// BaseURL returns the configured backend URL without trailing slash.
func (c *Client) BaseURL() string { return c.baseURL.String() }

// Events delivers transport events. It is meant for exactly one listener.
func (c *Client) Events() <-chan Event { return c.events }

// Jar exposes the session cookie jar.
func (c *Client) Jar() *Jar { return c.jar }

// CSRFToken returns the anti-forgery token currently held in the jar.
func (c *Client) CSRFToken() string {
	for _, ck := range c.jar.Cookies(c.baseURL) {
		if ck.Name == CSRFCookie {
			return ck.Value
		}
	}
	return ""
}

// Do sends r and returns the response or a classified error.
func (c *Client) Do(ctx context.Context, r Request) (*Response, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if r.Body != nil {
		b, err := json.Marshal(r.Body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, r.Path, err)
		}
		body = bytes.NewReader(b)
	}

	u := c.resolve(r.Path)
	if len(r.Query) > 0 {
		u.RawQuery = r.Query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	accept := r.Accept
	if accept == "" {
		accept = "application/json"
	}
	req.Header.Set("Accept", accept)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if unsafeMethod(method) {
		if err := c.decorateUnsafe(req); err != nil {
			return nil, err
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s %s: %v", errs.ErrNetwork, method, r.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s %s: %v", errs.ErrNetwork, method, r.Path, err)
	}
	if int64(len(data)) > c.maxBody {
		return nil, fmt.Errorf("%w: %s %s exceeds %d bytes", ErrBodyTooLarge, method, r.Path, c.maxBody)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.emit(Event{Kind: EventUnauthorized, Method: method, Path: r.Path})
	}
	if resp.StatusCode >= 400 {
		return nil, errs.Parse(resp.StatusCode, data)
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// JSON sends a request with in as body and decodes the response into out.
// Either may be nil.
func (c *Client) JSON(ctx context.Context, method, path string, query url.Values, in, out any) error {
	resp, err := c.Do(ctx, Request{Method: method, Path: path, Query: query, Body: in})
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) resolve(p string) *url.URL {
	u := *c.baseURL
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	u.Path = c.baseURL.Path + c.prefix + p
	u.RawQuery = ""
	return &u
}

func (c *Client) decorateUnsafe(req *http.Request) error {
	req.Header.Set("Referer", c.baseURL.String()+"/")
	if tok := c.CSRFToken(); tok != "" {
		req.Header.Set(CSRFHeader, tok)
		return nil
	}
	if c.strictCSRF {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, errs.ErrMissingCSRF)
	}
	c.log.Warn("unsafe request without anti-forgery token",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
	)
	return nil
}

func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		// a pending unauthorized event already forces the same outcome
	}
}

func unsafeMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	}
	return true
}
