package graph

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/patrongate/patrongate/internal/mocks"
	"github.com/patrongate/patrongate/pkg/gateway"
	serverErrors "github.com/patrongate/patrongate/pkg/server/errors"
)

var conn = &gateway.ConnectionContext{GatewayURL: "http://gateway", TenantID: "diku"}

func envelope(status int, body, path string) *gateway.Envelope {
	return &gateway.Envelope{StatusCode: status, Body: []byte(body), SourcePath: path}
}

func TestRunSingleRootTask(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	client.EXPECT().
		Execute(gomock.Any(), http.MethodGet, "/users?query=id==u1", conn, gomock.Nil()).
		Return(envelope(200, `{"users":[{"id":"u1"}],"totalRecords":1}`, "/users?query=id==u1"), nil)

	engine := NewEngine(client)
	results, err := engine.Run(context.Background(), conn, []*Task{{
		ID:           "user",
		PathTemplate: "/users?query=id==u1",
		Policy:       Policy{Cardinality: ExactlyOne, StopDependents: true, TotalField: "totalRecords"},
	}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, Completed, results["user"].State)
	require.False(t, results["user"].Failed())
}

func TestRunSubstitutesPlaceholdersFromDependency(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	client.EXPECT().
		Execute(gomock.Any(), http.MethodGet, "/users?query=id==u1", conn, gomock.Nil()).
		Return(envelope(200, `{"users":[{"id":"u1","patronGroup":"g9"}],"totalRecords":1}`, "/users"), nil)
	client.EXPECT().
		Execute(gomock.Any(), http.MethodGet, "/groups/g9", conn, gomock.Nil()).
		Return(envelope(200, `{"id":"g9","group":"Staff"}`, "/groups/g9"), nil)

	engine := NewEngine(client)
	results, err := engine.Run(context.Background(), conn, []*Task{
		{
			ID:           "user",
			PathTemplate: "/users?query=id==u1",
			Policy:       Policy{Cardinality: ExactlyOne, StopDependents: true, TotalField: "totalRecords"},
		},
		{
			ID:           "patronGroup",
			PathTemplate: "/groups/{users.0.patronGroup}",
			DependsOn:    "user",
			Policy:       Policy{Cardinality: OptionalMany},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "Staff", results["patronGroup"].Envelope.Get("group").String())
}

func TestRunSkipsDependentsOfStoppingFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	// Only the root fetch is ever issued; zero calls for the dependent.
	client.EXPECT().
		Execute(gomock.Any(), http.MethodGet, "/users?query=id==missing", conn, gomock.Nil()).
		Times(1).
		Return(envelope(200, `{"users":[],"totalRecords":0}`, "/users?query=id==missing"), nil)

	engine := NewEngine(client)
	_, err := engine.Run(context.Background(), conn, []*Task{
		{
			ID:           "user",
			PathTemplate: "/users?query=id==missing",
			Policy:       Policy{Cardinality: ExactlyOne, StopDependents: true, TotalField: "totalRecords"},
		},
		{
			ID:           "credentials",
			PathTemplate: "/authn/credentials/{users.0.id}",
			DependsOn:    "user",
			Policy:       Policy{Cardinality: OptionalMany},
		},
	})
	require.Error(t, err)
	var encoded *serverErrors.EncodedError
	require.ErrorAs(t, err, &encoded)
	require.Equal(t, http.StatusNotFound, encoded.HTTPStatus())
}

func TestRunFirstFailureWinsAcrossIndependentBranches(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	release := make(chan struct{})
	client.EXPECT().
		Execute(gomock.Any(), http.MethodGet, "/perms/users", conn, gomock.Nil()).
		Return(envelope(403, `Access denied`, "/perms/users"), nil)
	client.EXPECT().
		Execute(gomock.Any(), http.MethodGet, "/authn/credentials", conn, gomock.Nil()).
		DoAndReturn(func(context.Context, string, string, *gateway.ConnectionContext, []byte) (*gateway.Envelope, error) {
			<-release
			return envelope(502, `bad gateway`, "/authn/credentials"), nil
		})

	engine := NewEngine(client)
	resultCh := make(chan error, 1)
	go func() {
		_, err := engine.Run(context.Background(), conn, []*Task{
			{ID: "permissions", PathTemplate: "/perms/users", Policy: Policy{Cardinality: OptionalMany}},
			{ID: "credentials", PathTemplate: "/authn/credentials", Policy: Policy{Cardinality: OptionalMany}},
		})
		resultCh <- err
	}()

	// Let the 403 land first, then release the second branch.
	time.Sleep(20 * time.Millisecond)
	close(release)

	err := <-resultCh
	var encoded *serverErrors.EncodedError
	require.ErrorAs(t, err, &encoded)
	require.Equal(t, http.StatusForbidden, encoded.HTTPStatus())
}

func TestRunLetsInFlightTasksDrain(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	var drained atomic.Bool
	client.EXPECT().
		Execute(gomock.Any(), http.MethodGet, "/fail", conn, gomock.Nil()).
		Return(nil, errors.New("connection refused"))
	client.EXPECT().
		Execute(gomock.Any(), http.MethodGet, "/slow", conn, gomock.Nil()).
		DoAndReturn(func(ctx context.Context, _, _ string, _ *gateway.ConnectionContext, _ []byte) (*gateway.Envelope, error) {
			time.Sleep(30 * time.Millisecond)
			drained.Store(ctx.Err() == nil)
			return envelope(200, `{}`, "/slow"), nil
		})

	engine := NewEngine(client)
	_, err := engine.Run(context.Background(), conn, []*Task{
		{ID: "fail", PathTemplate: "/fail", Policy: Policy{Cardinality: OptionalMany}},
		{ID: "slow", PathTemplate: "/slow", Policy: Policy{Cardinality: OptionalMany}},
	})
	require.Error(t, err)
	require.True(t, drained.Load(), "in-flight fetch should drain, not be cancelled")
}

func TestRunTransportErrorMapsTo500(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	client.EXPECT().
		Execute(gomock.Any(), http.MethodGet, "/users", conn, gomock.Nil()).
		Return(nil, errors.New("dial tcp: timeout"))

	engine := NewEngine(client)
	_, err := engine.Run(context.Background(), conn, []*Task{
		{ID: "user", PathTemplate: "/users", Policy: Policy{Cardinality: OptionalMany}},
	})
	var encoded *serverErrors.EncodedError
	require.ErrorAs(t, err, &encoded)
	require.Equal(t, http.StatusInternalServerError, encoded.HTTPStatus())
	require.Equal(t, serverErrors.CodeTransportError, encoded.Code())
}

func TestRunMissingPlaceholderValue(t *testing.T) {
	t.Run("optional_dependent_is_skipped", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		client := mocks.NewMockClient(ctrl)

		client.EXPECT().
			Execute(gomock.Any(), http.MethodGet, "/users?query=id==u2", conn, gomock.Nil()).
			Return(envelope(200, `{"users":[{"id":"u2"}],"totalRecords":1}`, "/users"), nil)

		engine := NewEngine(client)
		results, err := engine.Run(context.Background(), conn, []*Task{
			{
				ID:           "user",
				PathTemplate: "/users?query=id==u2",
				Policy:       Policy{Cardinality: ExactlyOne, StopDependents: true, TotalField: "totalRecords"},
			},
			{
				// The user has no patronGroup reference, so there is
				// nothing to fetch.
				ID:           "patronGroup",
				PathTemplate: "/groups/{users.0.patronGroup}",
				DependsOn:    "user",
				Policy:       Policy{Cardinality: OptionalMany},
			},
		})
		require.NoError(t, err)
		require.Equal(t, Skipped, results["patronGroup"].State)
	})

	t.Run("required_dependent_is_not_found", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		client := mocks.NewMockClient(ctrl)

		client.EXPECT().
			Execute(gomock.Any(), http.MethodGet, "/users?query=id==u2", conn, gomock.Nil()).
			Return(envelope(200, `{"users":[{"id":"u2"}],"totalRecords":1}`, "/users"), nil)

		engine := NewEngine(client)
		_, err := engine.Run(context.Background(), conn, []*Task{
			{
				ID:           "user",
				PathTemplate: "/users?query=id==u2",
				Policy:       Policy{Cardinality: ExactlyOne, StopDependents: true, TotalField: "totalRecords"},
			},
			{
				ID:           "patronGroup",
				PathTemplate: "/groups/{users.0.patronGroup}",
				DependsOn:    "user",
				Policy:       Policy{Cardinality: ExactlyOne, TotalField: ""},
			},
		})
		var encoded *serverErrors.EncodedError
		require.ErrorAs(t, err, &encoded)
		require.Equal(t, http.StatusNotFound, encoded.HTTPStatus())
	})
}

func TestRunValidatesGraphShape(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	engine := NewEngine(client)

	t.Run("unknown_dependency", func(t *testing.T) {
		_, err := engine.Run(context.Background(), conn, []*Task{
			{ID: "a", PathTemplate: "/a", DependsOn: "nope"},
		})
		require.Error(t, err)
	})

	t.Run("duplicate_id", func(t *testing.T) {
		_, err := engine.Run(context.Background(), conn, []*Task{
			{ID: "a", PathTemplate: "/a"},
			{ID: "a", PathTemplate: "/a2"},
		})
		require.Error(t, err)
	})

	t.Run("cycle", func(t *testing.T) {
		_, err := engine.Run(context.Background(), conn, []*Task{
			{ID: "a", PathTemplate: "/a", DependsOn: "b"},
			{ID: "b", PathTemplate: "/b", DependsOn: "a"},
		})
		require.Error(t, err)
	})
}
