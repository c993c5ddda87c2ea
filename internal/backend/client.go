// Package backend is a typed client for the support desk REST API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/ruriclub/supportdesk/pkg/logger"
	"github.com/ruriclub/supportdesk/pkg/metrics"
)

const maxResponseBytes = 4 << 20

// TokenSource supplies the bearer token for the current session, or "".
type TokenSource func() string

// Client talks to the support desk backend.
type Client struct {
	baseURL string
	http    *http.Client
	token   TokenSource
	logger  *logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds every request. Zero leaves requests unbounded.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithTokenSource attaches a bearer token to every request.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.token = ts }
}

// New creates a backend client rooted at baseURL.
func New(baseURL string, log *logger.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		logger:  log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do issues one request and decodes a 2xx JSON body into out. op names the
// endpoint in logs, spans and metrics.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) (err error) {
	start := time.Now()
	ctx, span := otel.Tracer("supportdesk/backend").Start(ctx, op)
	span.SetAttributes(attribute.String("http.method", method), attribute.String("http.route", path))
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = classify(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.logger.Warn("backend call failed",
				zap.String("op", op),
				zap.String("outcome", outcome),
				zap.Error(err),
			)
		}
		metrics.RecordBackendCall(op, outcome, time.Since(start).Seconds())
		span.End()
	}()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if token := c.token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &BackendError{Op: op, Status: resp.StatusCode, Message: errorMessage(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &BackendError{Op: op, Status: resp.StatusCode, Message: "malformed response", Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	return nil
}

func malformed(op string, status int, reason string) error {
	return &BackendError{Op: op, Status: status, Message: reason, Err: ErrMalformedResponse}
}

func errorMessage(data []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		return body.Error
	}
	text := strings.TrimSpace(string(data))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

func classify(err error) string {
	switch {
	case IsNotFound(err):
		return "not_found"
	case IsRetryable(err):
		var netErr *NetworkError
		if errors.As(err, &netErr) {
			return "network"
		}
		return "backend"
	default:
		return "error"
	}
}
