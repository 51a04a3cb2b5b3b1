// Package gateway is the single abstraction through which patrongate talks
// to backend services. Every backend call goes through a Client carrying an
// immutable per-request ConnectionContext.
package gateway

import (
	"context"

	"github.com/tidwall/gjson"
)

// Header names attached to every backend call.
const (
	TenantHeader       = "X-Gate-Tenant"
	AuthTokenHeader    = "X-Gate-Token"
	ForwardedForHeader = "X-Forwarded-For"
	RequestIDHeader    = "X-Request-Id"
)

// ConnectionContext is the immutable per-request bundle passed to every
// fetch. It is built once per inbound request and never mutated.
type ConnectionContext struct {
	GatewayURL   string
	TenantID     string
	AuthToken    string
	ForwardedFor string
	RequestID    string
}

// WithTenant returns a copy addressing a different tenant. Used when a
// workflow must perform a cross-tenant lookup mid-flow.
func (c *ConnectionContext) WithTenant(tenantID string) *ConnectionContext {
	clone := *c
	clone.TenantID = tenantID
	return &clone
}

// Envelope is the normalized result of one backend call. Body is the raw
// response payload; it is nil when the backend returned no body.
type Envelope struct {
	StatusCode int
	Body       []byte
	SourcePath string
}

// OK reports whether the backend answered with a 2xx status.
func (e *Envelope) OK() bool {
	return e.StatusCode >= 200 && e.StatusCode < 300
}

// Get extracts a value from the body by gjson path expression.
func (e *Envelope) Get(path string) gjson.Result {
	return gjson.GetBytes(e.Body, path)
}

// TotalRecords reads the declared total-count field from the body. Returns
// -1 when the field is absent, so callers can distinguish "no count" from
// an actual zero.
func (e *Envelope) TotalRecords(field string) int64 {
	r := gjson.GetBytes(e.Body, field)
	if !r.Exists() {
		return -1
	}
	return r.Int()
}

// Client executes one backend call. Implementations must be safe for
// concurrent use; the pooled HTTP client is shared across requests.
type Client interface {
	Execute(ctx context.Context, method, path string, conn *ConnectionContext, body []byte) (*Envelope, error)
}
