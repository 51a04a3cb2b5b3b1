package gateway

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/patrongate/patrongate/pkg/logger"
)

const (
	defaultCallTimeout    = 1 * time.Second
	backoffMaxElapsedTime = 3 * time.Second
	maxResponseBytes      = 8 << 20
)

// HTTPClient is the production Client. It is constructed once at process
// start and injected into the composition engine; the underlying transport
// pool is the only resource shared across concurrent requests.
type HTTPClient struct {
	client      *http.Client
	callTimeout time.Duration
	logger      logger.Logger
}

var _ Client = (*HTTPClient)(nil)

type HTTPClientOption func(*HTTPClient)

// WithCallTimeout overrides the per-call connect/read timeout.
func WithCallTimeout(d time.Duration) HTTPClientOption {
	return func(c *HTTPClient) {
		c.callTimeout = d
	}
}

func WithLogger(l logger.Logger) HTTPClientOption {
	return func(c *HTTPClient) {
		c.logger = l
	}
}

// NewHTTPClient builds a pooled backend client. Transient transport
// failures are retried with exponential backoff; HTTP error statuses are
// never retried here, they are policy decisions for the caller.
func NewHTTPClient(opts ...HTTPClientOption) *HTTPClient {
	retryable := retryablehttp.NewClient()
	retryable.RetryMax = 0 // retries are handled by the backoff policy below
	retryable.Logger = nil

	c := &HTTPClient{
		client:      retryable.StandardClient(),
		callTimeout: defaultCallTimeout,
		logger:      logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute performs one backend call and normalizes the outcome into an
// Envelope. A transport error (connection refused, timeout, unreadable
// body) is returned as err; any parsed response, error status included,
// comes back as an Envelope.
func (c *HTTPClient) Execute(ctx context.Context, method, path string, conn *ConnectionContext, body []byte) (*Envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	var env *Envelope

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = backoffMaxElapsedTime

	err := backoff.Retry(func() error {
		var attemptErr error
		env, attemptErr = c.execute(ctx, method, path, conn, body)
		return attemptErr
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		c.logger.Warn("backend call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("tenant", conn.TenantID),
			zap.Error(err))
		return nil, err
	}

	return env, nil
}

func (c *HTTPClient) execute(ctx context.Context, method, path string, conn *ConnectionContext, body []byte) (*Envelope, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, conn.GatewayURL+path, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json, text/plain")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(TenantHeader, conn.TenantID)
	if conn.AuthToken != "" {
		req.Header.Set(AuthTokenHeader, conn.AuthToken)
	}
	if conn.ForwardedFor != "" {
		req.Header.Set(ForwardedForHeader, conn.ForwardedFor)
	}
	if conn.RequestID != "" {
		req.Header.Set(RequestIDHeader, conn.RequestID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}

	return &Envelope{
		StatusCode: resp.StatusCode,
		Body:       payload,
		SourcePath: path,
	}, nil
}
