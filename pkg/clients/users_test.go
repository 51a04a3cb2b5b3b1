package clients

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/patrongate/patrongate/internal/mocks"
	serverErrors "github.com/patrongate/patrongate/pkg/server/errors"
)

func TestUsersFindByID(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().
		Execute(gomock.Any(), http.MethodGet, "/users/u1", conn, gomock.Nil()).
		Return(env(200, `{"id":"u1","username":"jdoe"}`, "/users/u1"), nil)

	user, err := NewUsers(client).FindByID(context.Background(), conn, "u1")
	require.NoError(t, err)
	require.Equal(t, "jdoe", user["username"])
}

func TestUsersFindByIDNotFoundPassesThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().
		Execute(gomock.Any(), http.MethodGet, "/users/nope", conn, gomock.Nil()).
		Return(env(404, `User not found`, "/users/nope"), nil)

	_, err := NewUsers(client).FindByID(context.Background(), conn, "nope")
	var encoded *serverErrors.EncodedError
	require.ErrorAs(t, err, &encoded)
	require.Equal(t, http.StatusNotFound, encoded.HTTPStatus())
}

func TestUsersFindOneByQuery(t *testing.T) {
	t.Run("exactly_one_succeeds", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		client := mocks.NewMockClient(ctrl)
		client.EXPECT().
			Execute(gomock.Any(), http.MethodGet, gomock.Any(), conn, gomock.Nil()).
			Return(env(200, `{"users":[{"id":"u1"}],"totalRecords":1}`, "/users"), nil)

		user, err := NewUsers(client).FindOneByQuery(context.Background(), conn, `username=="jdoe"`)
		require.NoError(t, err)
		require.Equal(t, "u1", user["id"])
	})

	t.Run("zero_is_not_found", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		client := mocks.NewMockClient(ctrl)
		client.EXPECT().
			Execute(gomock.Any(), http.MethodGet, gomock.Any(), conn, gomock.Nil()).
			Return(env(200, `{"users":[],"totalRecords":0}`, "/users"), nil)

		_, err := NewUsers(client).FindOneByQuery(context.Background(), conn, `username=="ghost"`)
		var encoded *serverErrors.EncodedError
		require.ErrorAs(t, err, &encoded)
		require.Equal(t, http.StatusNotFound, encoded.HTTPStatus())
	})

	t.Run("several_is_multiple_results", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		client := mocks.NewMockClient(ctrl)
		client.EXPECT().
			Execute(gomock.Any(), http.MethodGet, gomock.Any(), conn, gomock.Nil()).
			Return(env(200, `{"users":[{"id":"u1"},{"id":"u2"}],"totalRecords":2}`, "/users"), nil)

		_, err := NewUsers(client).FindOneByQuery(context.Background(), conn, `personal.email=="x@y.z"`)
		var encoded *serverErrors.EncodedError
		require.ErrorAs(t, err, &encoded)
		require.Equal(t, http.StatusBadRequest, encoded.HTTPStatus())
	})
}

func TestCountsTreatMissingTotalAsZero(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().
		Execute(gomock.Any(), http.MethodGet, gomock.Any(), conn, gomock.Nil()).
		Return(env(200, `{}`, "/manualblocks"), nil)

	total, err := NewCounts(client).Blocks(context.Background(), conn, "u1")
	require.NoError(t, err)
	require.Zero(t, total)
}
