package rwportal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/google/uuid"
)

const (
	DefaultRequestTimeout = 20 * time.Second
	MinRequestTimeout     = 15 * time.Second
	MaxRequestTimeout     = 30 * time.Second

	HeaderRequestID = "X-Request-ID"

	maxResponseBytes = 10 << 20
)

// Client calls the RW API. A client bound to a session sends its bearer
// token and drops the session when the API answers 401.
type Client struct {
	baseURL    *url.URL
	http       *http.Client
	logger     Logger
	metrics    *Metrics
	attempts   uint
	retryDelay time.Duration
	debug      bool

	session SessionBinding
	token   string
}

type ClientOption func(*Client) *Client

// Request describes one API call.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	JSON        any
	Body        []byte
	ContentType string
	Accept      string
}

// Response is a fully read API response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// FilePart is a file field in a multipart request.
type FilePart struct {
	Field       string
	Filename    string
	ContentType string
	Data        []byte
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, goerrors.New("invalid api base url: "+baseURL, goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	c := &Client{
		baseURL:    u,
		http:       &http.Client{Timeout: DefaultRequestTimeout},
		logger:     defLogger{},
		attempts:   2,
		retryDelay: 200 * time.Millisecond,
	}

	for _, opt := range opts {
		c = opt(c)
	}
	return c, nil
}

// NewClientFromConfig builds a client from the portal configuration.
func NewClientFromConfig(cfg Config, opts ...ClientOption) (*Client, error) {
	base := []ClientOption{
		WithTimeout(cfg.GetRequestTimeout()),
		WithRetryAttempts(cfg.GetRetryAttempts()),
	}
	return NewClient(cfg.GetAPIBaseURL(), append(base, opts...)...)
}

// ClampTimeout keeps a request timeout inside the supported window.
func ClampTimeout(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return DefaultRequestTimeout
	case d < MinRequestTimeout:
		return MinRequestTimeout
	case d > MaxRequestTimeout:
		return MaxRequestTimeout
	default:
		return d
	}
}

func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) *Client {
		if h != nil {
			c.http = h
		}
		return c
	}
}

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) *Client {
		hc := *c.http
		hc.Timeout = ClampTimeout(d)
		c.http = &hc
		return c
	}
}

func WithRetryAttempts(n int) ClientOption {
	return func(c *Client) *Client {
		if n < 1 {
			n = 1
		}
		c.attempts = uint(n)
		return c
	}
}

func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) *Client {
		c.retryDelay = d
		return c
	}
}

func WithClientLogger(l Logger) ClientOption {
	return func(c *Client) *Client {
		if l != nil {
			c.logger = l
		}
		return c
	}
}

func WithClientMetrics(m *Metrics) ClientOption {
	return func(c *Client) *Client {
		c.metrics = m
		return c
	}
}

// WithDebug logs request payloads, passwords masked.
func WithDebug(debug bool) ClientOption {
	return func(c *Client) *Client {
		c.debug = debug
		return c
	}
}

// WithSession returns a copy of the client bound to s.
func (c *Client) WithSession(s SessionBinding) *Client {
	cp := *c
	cp.session = s
	cp.token = ""
	return &cp
}

// WithToken returns a copy of the client that sends token without a
// session behind it. A 401 is reported but invalidates nothing.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.session = nil
	cp.token = token
	return &cp
}

func (c *Client) bearer() string {
	if c.session != nil {
		return c.session.Token()
	}
	return c.token
}

// Do sends r. Idempotent requests are retried when the API cannot be
// reached, nothing else is.
func (c *Client) Do(ctx context.Context, r Request) (*Response, error) {
	if r.Method == "" {
		r.Method = http.MethodGet
	}

	body, contentType, err := c.encodeBody(r)
	if err != nil {
		return nil, err
	}

	attempts := uint(1)
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		attempts = c.attempts
	}

	var resp *Response
	err = retry.Do(
		func() error {
			out, err := c.roundTrip(ctx, r, body, contentType)
			if err != nil {
				return err
			}
			resp = out
			return nil
		},
		retry.Attempts(attempts),
		retry.Delay(c.retryDelay),
		retry.MaxDelay(2*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			return IsNetworkError(err) && ctx.Err() == nil
		}),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("api request failed, retrying", "attempt", n+1, "path", r.Path, "error", err)
		}),
	)
	if err != nil {
		if KindOf(err) == KindUnknown {
			return nil, NewNetworkError(err)
		}
		return nil, err
	}
	return resp, nil
}

// GetJSON issues a GET and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	resp, err := c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
	if err != nil {
		return err
	}
	return DecodeJSON(resp, out)
}

// SendJSON issues a mutation with a JSON body and decodes the reply into out.
func (c *Client) SendJSON(ctx context.Context, method, path string, payload, out any) error {
	resp, err := c.Do(ctx, Request{Method: method, Path: path, JSON: payload})
	if err != nil {
		return err
	}
	return DecodeJSON(resp, out)
}

// SendMultipart issues a mutation with a multipart/form-data body.
func (c *Client) SendMultipart(ctx context.Context, method, path string, fields map[string]string, files []FilePart, out any) error {
	body, contentType, err := encodeMultipart(fields, files)
	if err != nil {
		return err
	}
	resp, err := c.Do(ctx, Request{Method: method, Path: path, Body: body, ContentType: contentType})
	if err != nil {
		return err
	}
	return DecodeJSON(resp, out)
}

// Download fetches a binary resource, for example a spreadsheet export.
func (c *Client) Download(ctx context.Context, path string, accept string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Accept: accept})
}

// Ping checks the API answers at all. Any HTTP status counts as reachable.
func (c *Client) Ping(ctx context.Context, path string) error {
	_, err := c.Do(ctx, Request{Method: http.MethodGet, Path: path})
	if err != nil && IsNetworkError(err) {
		return err
	}
	return nil
}

// DecodeJSON decodes an API response body into out.
func DecodeJSON(resp *Response, out any) error {
	if out == nil || resp == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, MsgServer).
			WithCode(http.StatusBadGateway).
			WithTextCode(TextCodeServer)
	}
	return nil
}

func (c *Client) encodeBody(r Request) ([]byte, string, error) {
	if r.JSON == nil {
		return r.Body, r.ContentType, nil
	}

	body, err := json.Marshal(r.JSON)
	if err != nil {
		return nil, "", goerrors.Wrap(err, goerrors.CategoryBadInput, "unable to encode request body").
			WithCode(goerrors.CodeBadRequest)
	}

	if c.debug {
		c.logger.Debug("api request payload", "method", r.Method, "path", r.Path, "payload", print.MaybePrettyJSON(redact(body)))
	}
	return body, "application/json", nil
}

func (c *Client) roundTrip(ctx context.Context, r Request, body []byte, contentType string) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, c.resolve(r.Path, r.Query), reader)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "unable to build api request").
			WithCode(goerrors.CodeInternal)
	}

	req.Header.Set("Accept", "application/json")
	if r.Accept != "" {
		req.Header.Set("Accept", r.Accept)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token := c.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	requestID := uuid.NewString()
	req.Header.Set(HeaderRequestID, requestID)

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		c.metrics.observeAPI(r.Method, r.Path, KindNetwork.String(), time.Since(start))
		c.logger.Error("api unreachable", "method", r.Method, "path", r.Path, "request_id", requestID, "error", err)
		return nil, NewNetworkError(err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		c.metrics.observeAPI(r.Method, r.Path, KindNetwork.String(), time.Since(start))
		return nil, NewNetworkError(err)
	}

	resp := &Response{Status: res.StatusCode, Header: res.Header, Body: data}
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		c.metrics.observeAPI(r.Method, r.Path, "ok", time.Since(start))
		return resp, nil
	}

	apiErr := ErrorFromResponse(res.StatusCode, data)
	c.metrics.observeAPI(r.Method, r.Path, KindOf(apiErr).String(), time.Since(start))

	switch res.StatusCode {
	case http.StatusUnauthorized:
		if c.session != nil && c.session.Invalidate() {
			c.logger.Info("api rejected session token, session cleared", "path", r.Path, "request_id", requestID)
		}
	case http.StatusForbidden:
		c.logger.Info("api refused action", "method", r.Method, "path", r.Path, "request_id", requestID)
	default:
		c.logger.Debug("api error response", "method", r.Method, "path", r.Path, "status", res.StatusCode, "message", apiErr.Message)
	}

	return resp, apiErr
}

// URL returns the absolute API URL for path.
func (c *Client) URL(path string) string {
	return c.resolve(path, nil)
}

func (c *Client) resolve(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	u.RawPath = ""
	u.RawQuery = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func encodeMultipart(fields map[string]string, files []FilePart) ([]byte, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", goerrors.Wrap(err, goerrors.CategoryInternal, "unable to encode form").
				WithCode(goerrors.CodeInternal)
		}
	}

	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, quoteEscaper.Replace(f.Field), quoteEscaper.Replace(f.Filename)))
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", goerrors.Wrap(err, goerrors.CategoryInternal, "unable to encode form").
				WithCode(goerrors.CodeInternal)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", goerrors.Wrap(err, goerrors.CategoryInternal, "unable to encode form").
				WithCode(goerrors.CodeInternal)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", goerrors.Wrap(err, goerrors.CategoryInternal, "unable to encode form").
			WithCode(goerrors.CodeInternal)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

var secretKeys = map[string]bool{"password": true, "confirm_password": true, "token": true, "access_token": true}

// redact masks secret fields in a JSON object before it is logged.
func redact(body []byte) any {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return "<non-object payload>"
	}
	for k := range payload {
		if secretKeys[strings.ToLower(k)] {
			payload[k] = "****"
		}
	}
	return payload
}
