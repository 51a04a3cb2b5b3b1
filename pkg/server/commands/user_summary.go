package commands

import (
	"context"

	"github.com/patrongate/patrongate/internal/fanout"
	"github.com/patrongate/patrongate/pkg/clients"
	"github.com/patrongate/patrongate/pkg/gateway"
	"github.com/patrongate/patrongate/pkg/logger"
)

// UserSummary is the tally view of one user's open business.
type UserSummary struct {
	UserID       string `json:"userId"`
	OpenLoans    int64  `json:"openLoans"`
	OpenRequests int64  `json:"openRequests"`
	OpenFees     int64  `json:"openFees"`
	Blocks       int64  `json:"blocks"`
	Proxies      int64  `json:"proxies"`
}

type UserSummaryParams struct {
	UserID string
}

// UserSummaryQuery fans out to the circulation, fee and block backends
// and folds the counts into one summary. The branches are independent;
// every failure is collected and the combined error carries the worst
// status with all messages.
type UserSummaryQuery struct {
	counts *clients.Counts
	logger logger.Logger
}

type UserSummaryQueryOption func(*UserSummaryQuery)

func WithUserSummaryQueryLogger(l logger.Logger) UserSummaryQueryOption {
	return func(q *UserSummaryQuery) {
		q.logger = l
	}
}

func NewUserSummaryQuery(client gateway.Client, opts ...UserSummaryQueryOption) *UserSummaryQuery {
	q := &UserSummaryQuery{
		counts: clients.NewCounts(client),
		logger: logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

const (
	summaryLoans    = "openLoans"
	summaryRequests = "openRequests"
	summaryFees     = "openFees"
	summaryBlocks   = "blocks"
	summaryProxies  = "proxies"
)

func (q *UserSummaryQuery) Execute(ctx context.Context, conn *gateway.ConnectionContext, params *UserSummaryParams) (*UserSummary, error) {
	userID := params.UserID

	counts, err := fanout.JoinAll(ctx, []fanout.Task[int64]{
		{Name: summaryLoans, Run: func(taskCtx context.Context) (int64, error) {
			return q.counts.OpenLoans(taskCtx, conn, userID)
		}},
		{Name: summaryRequests, Run: func(taskCtx context.Context) (int64, error) {
			return q.counts.OpenRequests(taskCtx, conn, userID)
		}},
		{Name: summaryFees, Run: func(taskCtx context.Context) (int64, error) {
			return q.counts.OpenFees(taskCtx, conn, userID)
		}},
		{Name: summaryBlocks, Run: func(taskCtx context.Context) (int64, error) {
			return q.counts.Blocks(taskCtx, conn, userID)
		}},
		{Name: summaryProxies, Run: func(taskCtx context.Context) (int64, error) {
			return q.counts.Proxies(taskCtx, conn, userID)
		}},
	})
	if err != nil {
		return nil, err
	}

	return &UserSummary{
		UserID:       userID,
		OpenLoans:    counts[summaryLoans],
		OpenRequests: counts[summaryRequests],
		OpenFees:     counts[summaryFees],
		Blocks:       counts[summaryBlocks],
		Proxies:      counts[summaryProxies],
	}, nil
}
