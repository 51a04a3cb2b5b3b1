package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConn(url string) *ConnectionContext {
	return &ConnectionContext{
		GatewayURL:   url,
		TenantID:     "diku",
		AuthToken:    "token-abc",
		ForwardedFor: "203.0.113.9",
	}
}

func TestHTTPClientAttachesHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = w.Write([]byte(`{"users":[],"totalRecords":0}`))
	}))
	defer srv.Close()

	client := NewHTTPClient()
	env, err := client.Execute(context.Background(), http.MethodGet, "/users", testConn(srv.URL), nil)
	require.NoError(t, err)
	require.True(t, env.OK())
	require.Equal(t, "diku", got.Get(TenantHeader))
	require.Equal(t, "token-abc", got.Get(AuthTokenHeader))
	require.Equal(t, "203.0.113.9", got.Get(ForwardedForHeader))
}

func TestHTTPClientReturnsErrorStatusAsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("User not found"))
	}))
	defer srv.Close()

	client := NewHTTPClient()
	env, err := client.Execute(context.Background(), http.MethodGet, "/users/abc", testConn(srv.URL), nil)
	require.NoError(t, err)
	require.False(t, env.OK())
	require.Equal(t, http.StatusNotFound, env.StatusCode)
	require.Equal(t, "User not found", string(env.Body))
	require.Equal(t, "/users/abc", env.SourcePath)
}

func TestHTTPClientTimeoutIsTransportError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client := NewHTTPClient(WithCallTimeout(50 * time.Millisecond))
	_, err := client.Execute(context.Background(), http.MethodGet, "/slow", testConn(srv.URL), nil)
	require.Error(t, err)
}

func TestEnvelopeTotalRecords(t *testing.T) {
	env := &Envelope{Body: []byte(`{"users":[{"id":"u1"}],"totalRecords":1}`)}
	require.EqualValues(t, 1, env.TotalRecords("totalRecords"))

	missing := &Envelope{Body: []byte(`{"users":[]}`)}
	require.EqualValues(t, -1, missing.TotalRecords("totalRecords"))
}

func TestConnectionContextWithTenant(t *testing.T) {
	conn := testConn("http://gateway")
	other := conn.WithTenant("alma")
	require.Equal(t, "diku", conn.TenantID)
	require.Equal(t, "alma", other.TenantID)
	require.Equal(t, conn.AuthToken, other.AuthToken)
}
