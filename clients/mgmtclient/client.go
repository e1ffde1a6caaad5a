// Package mgmtclient talks to a cloud management REST API that runs work as
// asynchronous operations.
//
// A mutating request is accepted with a request id, returned either in a
// response header or in the JSON body. The id is then polled at
// GET /operations/{handle} until the operation's status document reports a
// terminal state.
//
//	client, err := mgmtclient.New("https://management.example.com",
//		mgmtclient.WithCredentials(primaryToken, secondaryToken))
//	handle, err := client.StartOperation(ctx, mgmtclient.Request{
//		Method: http.MethodPut,
//		Path:   "/sites/web-1/deploy",
//		Body:   map[string]any{"package": "web-1.4.2.zip"},
//	})
//	status, err := client.OperationStatus(ctx, handle)
package mgmtclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/go-resty/resty/v2"

	"github.com/nomis52/cloudops/operation"
	"github.com/nomis52/cloudops/statusmap"
)

const (
	DefaultHandleHeader   = "x-ms-request-id"
	DefaultOperationsPath = "/operations/{handle}"
	DefaultTimeout        = 30 * time.Second
	DefaultRetryCount     = 2
	DefaultRetryWait      = 500 * time.Millisecond
)

// handleFields are the body fields consulted when the handle header is missing.
var handleFields = []string{"id", "operationId", "requestId"}

// Request describes the call that starts an operation.
type Request struct {
	Method string
	Path   string
	// Body is encoded as JSON when non-nil.
	Body    any
	Headers map[string]string
}

// APIError is returned for a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("management API returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("management API returned %d", e.StatusCode)
}

// Client is a management API client. It is safe for concurrent use.
type Client struct {
	rc             *resty.Client
	logger         *slog.Logger
	handleHeader   string
	operationsPath string
	documentPath   string
	mapper         *statusmap.Mapper

	mu          sync.Mutex
	credentials []string
	current     int
}

// Option configures a Client.
type Option func(*Client)

// WithCredentials sets the bearer tokens. A 401 or 403 response fails over to
// the next token, round robin, on the following retry.
func WithCredentials(tokens ...string) Option {
	return func(c *Client) {
		c.credentials = append([]string(nil), tokens...)
	}
}

// WithRetry sets how often a request is retried after an authorization failure
// or, for GET only, a transport error, and the initial wait between attempts.
func WithRetry(count int, wait time.Duration) Option {
	return func(c *Client) {
		c.rc.SetRetryCount(count).SetRetryWaitTime(wait)
		if wait > c.rc.RetryMaxWaitTime {
			c.rc.SetRetryMaxWaitTime(wait)
		}
	}
}

// WithTimeout bounds each HTTP attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.rc.SetTimeout(d)
	}
}

// WithLogger sets a custom logger for the client
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHandleHeader changes the response header carrying the operation handle.
func WithHandleHeader(name string) Option {
	return func(c *Client) {
		c.handleHeader = name
	}
}

// WithOperationsPath changes the status endpoint. It must contain {handle}.
func WithOperationsPath(path string) Option {
	return func(c *Client) {
		c.operationsPath = path
	}
}

// WithDocumentPath selects a nested object of the status response, in gabs
// dotted notation, as the document handed to the status mapper.
func WithDocumentPath(path string) Option {
	return func(c *Client) {
		c.documentPath = path
	}
}

// WithStatusMapper replaces the default status field mapping.
func WithStatusMapper(m *statusmap.Mapper) Option {
	return func(c *Client) {
		c.mapper = m
	}
}

// WithHTTPClient replaces the underlying transport, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.rc = resty.NewWithClient(hc).
			SetTimeout(c.rc.GetClient().Timeout).
			SetRetryCount(c.rc.RetryCount).
			SetRetryWaitTime(c.rc.RetryWaitTime)
	}
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("base URL is required")
	}

	c := &Client{
		rc: resty.New().
			SetTimeout(DefaultTimeout).
			SetRetryCount(DefaultRetryCount).
			SetRetryWaitTime(DefaultRetryWait),
		logger:         slog.Default(),
		handleHeader:   DefaultHandleHeader,
		operationsPath: DefaultOperationsPath,
		mapper:         statusmap.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if !strings.Contains(c.operationsPath, "{handle}") {
		return nil, fmt.Errorf("operations path %q must contain {handle}", c.operationsPath)
	}

	c.logger = c.logger.With("component", "mgmtclient")
	c.rc.SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetLogger(restyLogger{c.logger}).
		SetHeader("Accept", "application/json").
		OnBeforeRequest(c.authorize).
		AddRetryCondition(c.shouldRetry)

	return c, nil
}

// authorize runs before every attempt, including retries.
func (c *Client) authorize(_ *resty.Client, r *resty.Request) error {
	if token := c.credential(); token != "" {
		r.SetAuthToken(token)
	}
	return nil
}

func (c *Client) credential() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.credentials) == 0 {
		return ""
	}
	return c.credentials[c.current]
}

func (c *Client) failover() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.credentials) > 1 {
		c.current = (c.current + 1) % len(c.credentials)
	}
}

// shouldRetry resends on a rejected credential, and on a transport error only
// for GET. A state-changing request may have reached the server before the
// connection dropped, so it is never resent after a transport error.
func (c *Client) shouldRetry(resp *resty.Response, err error) bool {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}
		return resp != nil && resp.Request != nil && resp.Request.Method == http.MethodGet
	}
	if resp == nil {
		return false
	}
	switch resp.StatusCode() {
	case http.StatusUnauthorized, http.StatusForbidden:
		c.logger.Warn("authorization rejected, failing over credential",
			"status", resp.StatusCode(),
			"url", resp.Request.URL)
		c.failover()
		return true
	}
	return false
}

// StartOperation sends req and returns the handle of the operation it started.
func (c *Client) StartOperation(ctx context.Context, req Request) (operation.Handle, error) {
	r := c.rc.R().SetContext(ctx).SetHeaders(req.Headers)
	if req.Body != nil {
		r.SetHeader("Content-Type", "application/json").SetBody(req.Body)
	}

	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	resp, err := r.Execute(method, req.Path)
	if err != nil {
		return "", c.transportError(ctx, method, req.Path, err)
	}
	if resp.IsError() {
		return "", apiError(resp)
	}

	if h := strings.TrimSpace(resp.Header().Get(c.handleHeader)); h != "" {
		return operation.Handle(h), nil
	}

	if len(resp.Body()) > 0 {
		parsed, err := gabs.ParseJSON(resp.Body())
		if err != nil {
			return "", fmt.Errorf("decoding %s %s response: %w", method, req.Path, err)
		}
		for _, field := range handleFields {
			if h, ok := parsed.Path(field).Data().(string); ok && h != "" {
				return operation.Handle(h), nil
			}
		}
	}

	return "", fmt.Errorf("%s %s: no %s header or id field in response", method, req.Path, c.handleHeader)
}

// Invoker adapts StartOperation for a fixed request.
func (c *Client) Invoker(req Request) operation.Invoker {
	return operation.InvokerFunc(func(ctx context.Context) (operation.Handle, error) {
		return c.StartOperation(ctx, req)
	})
}

// OperationStatus fetches and maps the status of an operation. It has no
// side effects on the remote operation.
func (c *Client) OperationStatus(ctx context.Context, handle operation.Handle) (operation.Status, error) {
	doc, err := c.OperationDocument(ctx, handle)
	if err != nil {
		return 0, err
	}
	return c.mapper.Map(doc)
}

// OperationDocument returns the decoded status document of an operation.
func (c *Client) OperationDocument(ctx context.Context, handle operation.Handle) (map[string]any, error) {
	if handle == "" {
		return nil, operation.ErrEmptyHandle
	}

	resp, err := c.rc.R().
		SetContext(ctx).
		SetPathParam("handle", string(handle)).
		Get(c.operationsPath)
	if err != nil {
		return nil, c.transportError(ctx, http.MethodGet, c.operationsPath, err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}

	parsed, err := gabs.ParseJSON(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("decoding status of operation %s: %w", handle, err)
	}
	if c.documentPath != "" {
		if !parsed.ExistsP(c.documentPath) {
			return nil, fmt.Errorf("status of operation %s has no %q object", handle, c.documentPath)
		}
		parsed = parsed.Path(c.documentPath)
	}

	doc, ok := parsed.Data().(map[string]any)
	if !ok {
		return nil, fmt.Errorf("status of operation %s is not a JSON object", handle)
	}
	return doc, nil
}

func (c *Client) transportError(ctx context.Context, method, path string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s %s: %w", method, path, ctxErr)
	}
	return fmt.Errorf("%w: %s %s: %v", operation.ErrConnectivity, method, path, err)
}

func apiError(resp *resty.Response) error {
	e := &APIError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	if parsed, err := gabs.ParseJSON(resp.Body()); err == nil {
		for _, path := range []string{"error.message", "message", "error"} {
			if msg, ok := parsed.Path(path).Data().(string); ok {
				e.Message = msg
				break
			}
		}
	}
	return e
}

// restyLogger routes resty's internal messages to slog.
type restyLogger struct {
	logger *slog.Logger
}

func (l restyLogger) Errorf(format string, v ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l restyLogger) Warnf(format string, v ...any) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l restyLogger) Debugf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
