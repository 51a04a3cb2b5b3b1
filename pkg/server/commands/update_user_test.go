package commands

import (
	"context"
	"net/http"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/patrongate/patrongate/internal/mocks"
	serverErrors "github.com/patrongate/patrongate/pkg/server/errors"
)

func TestUpdateUser(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	conn := testConn()

	client.EXPECT().
		Execute(gomock.Any(), http.MethodPut, "/users/u1", conn, gomock.Any()).
		Return(testEnv(204, ``, "/users/u1"), nil)

	err := NewUpdateUserCommand(client).
		Execute(context.Background(), conn, &UpdateUserParams{
			ID:   "u1",
			User: map[string]any{"id": "u1", "username": "alice"},
		})
	require.NoError(t, err)
}

func TestUpdateUserIDMismatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	err := NewUpdateUserCommand(client).
		Execute(context.Background(), testConn(), &UpdateUserParams{
			ID:   "u1",
			User: map[string]any{"id": "u2"},
		})
	var encoded *serverErrors.EncodedError
	require.ErrorAs(t, err, &encoded)
	require.Equal(t, http.StatusUnprocessableEntity, encoded.HTTPStatus())
}

func TestChangePassword(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	conn := testConn()
	conn.AuthToken = unverifiedToken(jwt.MapClaims{"user_id": "u1"})

	client.EXPECT().
		Execute(gomock.Any(), http.MethodGet, "/users/u1", conn, nil).
		Return(testEnv(200, `{"id":"u1","username":"alice"}`, "/users/u1"), nil)
	client.EXPECT().
		Execute(gomock.Any(), http.MethodPost, "/authn/update", conn, gomock.Any()).
		Return(testEnv(204, ``, ""), nil)

	err := NewChangePasswordCommand(client).
		Execute(context.Background(), conn, &ChangePasswordParams{
			OldPassword: "old",
			NewPassword: "new",
		})
	require.NoError(t, err)
}

func TestChangePasswordRejectedByStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	conn := testConn()
	conn.AuthToken = unverifiedToken(jwt.MapClaims{"user_id": "u1"})

	client.EXPECT().
		Execute(gomock.Any(), http.MethodGet, "/users/u1", conn, nil).
		Return(testEnv(200, `{"id":"u1","username":"alice"}`, "/users/u1"), nil)
	client.EXPECT().
		Execute(gomock.Any(), http.MethodPost, "/authn/update", conn, gomock.Any()).
		Return(testEnv(400, `password mismatch`, "/authn/update"), nil)

	err := NewChangePasswordCommand(client).
		Execute(context.Background(), conn, &ChangePasswordParams{
			OldPassword: "wrong",
			NewPassword: "new",
		})
	var encoded *serverErrors.EncodedError
	require.ErrorAs(t, err, &encoded)
	require.Equal(t, http.StatusBadRequest, encoded.HTTPStatus())
}

func TestDeleteCredentials(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	conn := testConn()

	client.EXPECT().
		Execute(gomock.Any(), http.MethodGet, "/authn/credentials-existence?userId=u1", conn, nil).
		Return(testEnv(200, `{"credentialsExist":true}`, ""), nil)
	client.EXPECT().
		Execute(gomock.Any(), http.MethodDelete, "/authn/credentials?userId=u1", conn, nil).
		Return(testEnv(204, ``, ""), nil)

	err := NewDeleteCredentialsCommand(client).
		Execute(context.Background(), conn, &DeleteCredentialsParams{UserID: "u1"})
	require.NoError(t, err)
}

func TestDeleteCredentialsAbsent(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	conn := testConn()

	// Nothing stored; the delete must never be issued.
	client.EXPECT().
		Execute(gomock.Any(), http.MethodGet, "/authn/credentials-existence?userId=u1", conn, nil).
		Return(testEnv(200, `{"credentialsExist":false}`, ""), nil)

	err := NewDeleteCredentialsCommand(client).
		Execute(context.Background(), conn, &DeleteCredentialsParams{UserID: "u1"})
	var encoded *serverErrors.EncodedError
	require.ErrorAs(t, err, &encoded)
	require.Equal(t, http.StatusNotFound, encoded.HTTPStatus())
}
