package clients

import (
	"context"
	"fmt"
	"net/http"

	"github.com/patrongate/patrongate/pkg/gateway"
)

// Counts reads the open-item tallies shown on a patron summary. Each
// count is one backend list call with limit=0; only the declared total is
// used.
type Counts struct {
	client gateway.Client
}

func NewCounts(client gateway.Client) *Counts {
	return &Counts{client: client}
}

func (c *Counts) count(ctx context.Context, conn *gateway.ConnectionContext, path, cql string) (int64, error) {
	env, err := call(ctx, c.client, http.MethodGet, cqlQuery(path, cql, 0), conn, nil)
	if err != nil {
		return 0, err
	}
	if err := expectOK(env); err != nil {
		return 0, err
	}
	total := env.TotalRecords("totalRecords")
	if total < 0 {
		total = 0
	}
	return total, nil
}

// OpenLoans counts the user's open loans.
func (c *Counts) OpenLoans(ctx context.Context, conn *gateway.ConnectionContext, userID string) (int64, error) {
	return c.count(ctx, conn, "/circulation/loans", fmt.Sprintf("(userId==%q and status.name==Open)", userID))
}

// OpenRequests counts the user's open circulation requests.
func (c *Counts) OpenRequests(ctx context.Context, conn *gateway.ConnectionContext, userID string) (int64, error) {
	return c.count(ctx, conn, "/circulation/requests", fmt.Sprintf("(requesterId==%q and status==(\"Open - Awaiting pickup\" or \"Open - Not yet filled\" or \"Open - In transit\"))", userID))
}

// OpenFees counts the user's open fee/fine accounts.
func (c *Counts) OpenFees(ctx context.Context, conn *gateway.ConnectionContext, userID string) (int64, error) {
	return c.count(ctx, conn, "/accounts", fmt.Sprintf("(userId==%q and status.name==Open)", userID))
}

// Blocks counts the user's manual blocks.
func (c *Counts) Blocks(ctx context.Context, conn *gateway.ConnectionContext, userID string) (int64, error) {
	return c.count(ctx, conn, "/manualblocks", fmt.Sprintf("userId==%q", userID))
}

// Proxies counts the proxy relationships naming the user as proxy.
func (c *Counts) Proxies(ctx context.Context, conn *gateway.ConnectionContext, userID string) (int64, error) {
	return c.count(ctx, conn, "/proxiesfor", fmt.Sprintf("proxyUserId==%q", userID))
}
