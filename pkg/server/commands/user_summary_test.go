package commands

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/patrongate/patrongate/internal/mocks"
	serverErrors "github.com/patrongate/patrongate/pkg/server/errors"
)

func TestUserSummaryCountsEveryBranch(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	conn := testConn()

	client.EXPECT().
		Execute(gomock.Any(), http.MethodGet, pathContains("/circulation/loans"), conn, nil).
		Return(testEnv(200, `{"loans":[],"totalRecords":3}`, ""), nil)
	client.EXPECT().
		Execute(gomock.Any(), http.MethodGet, pathContains("/circulation/requests"), conn, nil).
		Return(testEnv(200, `{"requests":[],"totalRecords":1}`, ""), nil)
	client.EXPECT().
		Execute(gomock.Any(), http.MethodGet, pathContains("/accounts"), conn, nil).
		Return(testEnv(200, `{"accounts":[],"totalRecords":2}`, ""), nil)
	client.EXPECT().
		Execute(gomock.Any(), http.MethodGet, pathContains("/manualblocks"), conn, nil).
		Return(testEnv(200, `{"manualblocks":[],"totalRecords":0}`, ""), nil)
	client.EXPECT().
		Execute(gomock.Any(), http.MethodGet, pathContains("/proxiesfor"), conn, nil).
		Return(testEnv(200, `{"proxiesFor":[],"totalRecords":4}`, ""), nil)

	summary, err := NewUserSummaryQuery(client).
		Execute(context.Background(), conn, &UserSummaryParams{UserID: "u1"})
	require.NoError(t, err)
	require.Equal(t, &UserSummary{
		UserID:       "u1",
		OpenLoans:    3,
		OpenRequests: 1,
		OpenFees:     2,
		Blocks:       0,
		Proxies:      4,
	}, summary)
}

func TestUserSummaryAggregatesWorstStatus(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	conn := testConn()

	// Two branches fail with different statuses; the combined error must
	// carry the numerically higher one and both messages.
	client.EXPECT().
		Execute(gomock.Any(), http.MethodGet, pathContains("/circulation/loans"), conn, nil).
		Return(testEnv(404, `loans missing`, "/circulation/loans"), nil)
	client.EXPECT().
		Execute(gomock.Any(), http.MethodGet, pathContains("/circulation/requests"), conn, nil).
		Return(testEnv(200, `{"totalRecords":0}`, ""), nil)
	client.EXPECT().
		Execute(gomock.Any(), http.MethodGet, pathContains("/accounts"), conn, nil).
		Return(testEnv(200, `{"totalRecords":0}`, ""), nil)
	client.EXPECT().
		Execute(gomock.Any(), http.MethodGet, pathContains("/manualblocks"), conn, nil).
		Return(testEnv(403, `blocks denied`, "/manualblocks"), nil)
	client.EXPECT().
		Execute(gomock.Any(), http.MethodGet, pathContains("/proxiesfor"), conn, nil).
		Return(testEnv(200, `{"totalRecords":0}`, ""), nil)

	_, err := NewUserSummaryQuery(client).
		Execute(context.Background(), conn, &UserSummaryParams{UserID: "u1"})
	var encoded *serverErrors.EncodedError
	require.ErrorAs(t, err, &encoded)
	require.Equal(t, http.StatusNotFound, encoded.HTTPStatus())
	require.Equal(t, "loans missing,blocks denied", encoded.Error())
}
