// Package gateway sends one named GraphQL operation over HTTP and returns
// its decoded data or a typed failure. Failures are never retried.
package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/unkn0wn-root/entcache"
)

const (
	HeaderRequestID = "X-Request-Id"
	defaultTimeout  = 30 * time.Second
	maxErrorBody    = 4 << 10
)

// Invalidator marks named list queries stale. entcache.Store satisfies it.
type Invalidator interface {
	InvalidateQueries(ctx context.Context, names ...string) error
}

// Request is one operation call.
type Request struct {
	Operation string
	Document  string
	Variables map[string]any
	// Refetch names list queries to mark stale once the call succeeds.
	Refetch []string
}

// Result is the decoded "data" object of a successful response.
type Result struct {
	RequestID string
	Data      map[string]any
}

// Payload returns the object under a root field, or nil when the server
// answered null for it.
func (r Result) Payload(field string) map[string]any {
	p, _ := r.Data[field].(map[string]any)
	return p
}

type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration // 0 => 30s

	HTTPClient  *http.Client // nil => a client with Timeout
	Invalidator Invalidator  // nil => refetch lists are ignored
	Logger      entcache.Logger
}

type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	inval    Invalidator
	log      entcache.Logger
}

func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, ErrEndpointRequired
	}
	hc := cfg.HTTPClient
	if hc == nil {
		to := cfg.Timeout
		if to <= 0 {
			to = defaultTimeout
		}
		hc = &http.Client{Timeout: to}
	}
	log := cfg.Logger
	if log == nil {
		log = entcache.NopLogger{}
	}
	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		http:     hc,
		inval:    cfg.Invalidator,
		log:      log,
	}, nil
}

type wireRequest struct {
	OperationName string         `json:"operationName"`
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
}

type wireError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

type wireResponse struct {
	Data   map[string]any `json:"data"`
	Errors []wireError    `json:"errors"`
}

// Send performs req. On success the refetch list is invalidated before
// Send returns; an invalidation failure is logged, not returned, since the
// server already applied the operation.
func (c *Client) Send(ctx context.Context, req Request) (Result, error) {
	if req.Operation == "" {
		return Result{}, ErrOperationRequired
	}
	if _, err := checkDocument(req.Document, req.Operation); err != nil {
		return Result{}, err
	}

	// variables are encoded now; later edits by the caller cannot leak in
	body, err := json.Marshal(wireRequest{
		OperationName: req.Operation,
		Query:         req.Document,
		Variables:     req.Variables,
	})
	if err != nil {
		return Result{}, fmt.Errorf("gateway: %s: encode variables: %w", req.Operation, err)
	}

	rid := uuid.NewString()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, &NetworkError{Operation: req.Operation, RequestID: rid, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(HeaderRequestID, rid)
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.log.Warn("operation failed", entcache.Fields{"op": req.Operation, "request_id": rid, "err": err})
		return Result{}, &NetworkError{Operation: req.Operation, RequestID: rid, Err: err}
	}
	defer resp.Body.Close()

	res, err := c.decode(req.Operation, rid, resp)
	if err != nil {
		c.log.Warn("operation rejected", entcache.Fields{"op": req.Operation, "request_id": rid, "err": err})
		return Result{}, err
	}
	c.log.Debug("operation done", entcache.Fields{
		"op":         req.Operation,
		"request_id": rid,
		"status":     resp.StatusCode,
		"took":       time.Since(start).String(),
	})

	if len(req.Refetch) > 0 && c.inval != nil {
		if err := c.inval.InvalidateQueries(ctx, req.Refetch...); err != nil {
			c.log.Error("refetch invalidation failed", entcache.Fields{"op": req.Operation, "queries": req.Refetch, "err": err})
		}
	}
	return res, nil
}

func (c *Client) decode(op, rid string, resp *http.Response) (Result, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, &NetworkError{Operation: op, RequestID: rid, Err: err}
	}

	var wr wireResponse
	decErr := json.Unmarshal(raw, &wr)

	if len(wr.Errors) > 0 {
		return Result{}, serverError(op, rid, resp.StatusCode, wr.Errors[0])
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, &ServerError{
			Operation: op,
			RequestID: rid,
			Status:    resp.StatusCode,
			Code:      httpCode(resp.StatusCode),
			Message:   bodySnippet(raw, resp.Status),
		}
	}
	if decErr != nil {
		return Result{}, &NetworkError{Operation: op, RequestID: rid, Err: fmt.Errorf("decode response: %w", decErr)}
	}
	return Result{RequestID: rid, Data: wr.Data}, nil
}

func serverError(op, rid string, status int, e wireError) *ServerError {
	code, _ := e.Extensions["code"].(string)
	if code == "" {
		code = "graphql_error"
	}
	return &ServerError{Operation: op, RequestID: rid, Status: status, Code: code, Message: e.Message}
}

func httpCode(status int) string {
	t := strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	if t == "" {
		return fmt.Sprintf("http_%d", status)
	}
	return t
}

func bodySnippet(raw []byte, fallback string) string {
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return fallback
	}
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody]
	}
	return s
}
