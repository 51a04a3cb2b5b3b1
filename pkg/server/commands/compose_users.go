package commands

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/patrongate/patrongate/internal/fanout"
	"github.com/patrongate/patrongate/internal/join"
	"github.com/patrongate/patrongate/pkg/clients"
	"github.com/patrongate/patrongate/pkg/fieldpath"
	"github.com/patrongate/patrongate/pkg/gateway"
	"github.com/patrongate/patrongate/pkg/logger"
	serverErrors "github.com/patrongate/patrongate/pkg/server/errors"
)

// DefaultListLimit bounds the left-hand collection when the caller does
// not pass a limit.
const DefaultListLimit = 10

// includeJoin describes how one include attaches to a list of users: the
// batched fetch for the right-hand collection and the join that
// distributes it.
type includeJoin struct {
	path func(predicate string, limit int) string
	key  string
	spec join.Spec
}

var includeJoins = map[string]includeJoin{
	IncludeGroups: {
		path: func(p string, n int) string {
			return fmt.Sprintf("/groups?query=%s&limit=%d", url.QueryEscape(p), n)
		},
		key: "user.patronGroup",
		spec: join.Spec{
			LeftKeyPath:          "user.patronGroup",
			RightCollectionField: "usergroups",
			RightKeyField:        "id",
			DestinationPath:      "patronGroup",
		},
	},
	IncludeCredentials: {
		path: func(p string, n int) string {
			return fmt.Sprintf("/authn/credentials?query=%s&limit=%d", url.QueryEscape(p), n)
		},
		key: "user.id",
		spec: join.Spec{
			LeftKeyPath:          "user.id",
			RightCollectionField: "credentials",
			RightKeyField:        "userId",
			DestinationPath:      "credentials",
		},
	},
	IncludePermissions: {
		path: func(p string, n int) string {
			return fmt.Sprintf("/perms/users?query=%s&limit=%d", url.QueryEscape(p), n)
		},
		key: "user.id",
		spec: join.Spec{
			LeftKeyPath:          "user.id",
			RightCollectionField: "permissionUsers",
			RightKeyField:        "userId",
			DestinationPath:      "permissions",
		},
	},
	IncludeProxiesFor: {
		path: func(p string, n int) string {
			return fmt.Sprintf("/proxiesfor?query=%s&limit=%d", url.QueryEscape(p), n)
		},
		key: "user.id",
		spec: join.Spec{
			LeftKeyPath:          "user.id",
			RightCollectionField: "proxiesFor",
			RightKeyField:        "proxyUserId",
			DestinationPath:      "proxiesFor",
			Multi:                true,
		},
	},
	IncludeServicePoints: {
		path: func(p string, n int) string {
			return fmt.Sprintf("/service-points-users?query=%s&limit=%d", url.QueryEscape(p), n)
		},
		key: "user.id",
		spec: join.Spec{
			LeftKeyPath:          "user.id",
			RightCollectionField: "servicePointsUsers",
			RightKeyField:        "userId",
			DestinationPath:      "servicePointsUser",
		},
	},
}

// RightFieldFor exposes the join key predicates use for one include.
func RightFieldFor(include string) string {
	switch include {
	case IncludeGroups:
		return "id"
	case IncludeProxiesFor:
		return "proxyUserId"
	default:
		return "userId"
	}
}

// CompositeUsers is a page of composed user records.
type CompositeUsers struct {
	CompositeUsers []map[string]any `json:"compositeUsers"`
	TotalRecords   int64            `json:"totalRecords"`
}

type ComposeUsersParams struct {
	Query string
	Limit int

	// Includes is the requested expansion. Nil means everything.
	Includes []string
}

// ComposeUsersQuery composes a page of users: one left-hand collection
// fetch, then one batched right-hand fetch per include, each keyed over
// the whole page so the backend round trips stay constant no matter how
// many users the page holds.
type ComposeUsersQuery struct {
	client gateway.Client
	logger logger.Logger
}

type ComposeUsersQueryOption func(*ComposeUsersQuery)

func WithComposeUsersQueryLogger(l logger.Logger) ComposeUsersQueryOption {
	return func(q *ComposeUsersQuery) {
		q.logger = l
	}
}

func NewComposeUsersQuery(client gateway.Client, opts ...ComposeUsersQueryOption) *ComposeUsersQuery {
	q := &ComposeUsersQuery{
		client: client,
		logger: logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *ComposeUsersQuery) Execute(ctx context.Context, conn *gateway.ConnectionContext, params *ComposeUsersParams) (*CompositeUsers, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	users, total, err := q.fetchLeft(ctx, conn, params.Query, limit)
	if err != nil {
		return nil, err
	}

	// Wrap every user so joins attach siblings next to it instead of
	// inside it.
	wrappers := make([]map[string]any, len(users))
	for i, u := range users {
		wrappers[i] = map[string]any{"user": u}
	}

	includes := params.Includes
	if includes == nil {
		includes = AllIncludes
	}

	if len(wrappers) > 0 {
		if err := q.applyIncludes(ctx, conn, wrappers, includes); err != nil {
			return nil, err
		}
	}

	composed := make([]map[string]any, len(wrappers))
	copy(composed, wrappers)
	return &CompositeUsers{CompositeUsers: composed, TotalRecords: total}, nil
}

func (q *ComposeUsersQuery) fetchLeft(ctx context.Context, conn *gateway.ConnectionContext, query string, limit int) ([]map[string]any, int64, error) {
	path := clients.QueryPath(query, limit)
	env, err := q.client.Execute(ctx, http.MethodGet, path, conn, nil)
	if err != nil {
		return nil, 0, serverErrors.Transport(err, path)
	}
	if !env.OK() {
		return nil, 0, serverErrors.Upstream(env.StatusCode, string(env.Body), path)
	}
	obj := decodeObject(env.Body)
	if obj == nil {
		return nil, 0, serverErrors.Transport(fmt.Errorf("parse %s response", path), path)
	}
	raw, _ := obj["users"].([]any)
	users := make([]map[string]any, 0, len(raw))
	for _, el := range raw {
		if m, ok := el.(map[string]any); ok {
			users = append(users, m)
		}
	}
	total, _ := obj["totalRecords"].(float64)
	return users, int64(total), nil
}

// applyIncludes fetches every right-hand collection concurrently, then
// applies the joins one by one. The joins mutate the shared wrappers, so
// only the fetches run in parallel.
func (q *ComposeUsersQuery) applyIncludes(ctx context.Context, conn *gateway.ConnectionContext, wrappers []map[string]any, includes []string) error {
	tasks := make([]fanout.Task[*gateway.Envelope], 0, len(includes))
	for _, include := range includes {
		ij, ok := includeJoins[include]
		if !ok {
			return serverErrors.UnprocessableInput("include.unknown", include)
		}
		predicate := join.Predicate(wrappers, ij.key, RightFieldFor(include))
		if predicate == "" {
			continue
		}
		path := ij.path(predicate, len(wrappers))
		tasks = append(tasks, fanout.Task[*gateway.Envelope]{
			Name: include,
			Run: func(taskCtx context.Context) (*gateway.Envelope, error) {
				env, err := q.client.Execute(taskCtx, http.MethodGet, path, conn, nil)
				if err != nil {
					return nil, serverErrors.Transport(err, path)
				}
				if !env.OK() {
					return nil, serverErrors.Upstream(env.StatusCode, string(env.Body), path)
				}
				return env, nil
			},
		})
	}

	envelopes, err := fanout.JoinAll(ctx, tasks)
	if err != nil {
		return err
	}

	for _, include := range includes {
		env, ok := envelopes[include]
		if !ok {
			continue
		}
		unmatched, err := join.Apply(wrappers, env, includeJoins[include].spec)
		if err != nil {
			return serverErrors.Internal("", err)
		}
		if unmatched > 0 {
			q.logger.Debug("composition join left records unmatched",
				zap.String("include", include),
				zap.Int("unmatched", unmatched))
		}
	}

	if envelopes[IncludeServicePoints] != nil {
		if err := q.expandServicePoints(ctx, conn, wrappers); err != nil {
			return err
		}
	}
	return nil
}

// expandServicePoints resolves the service-point id lists attached by the
// service-points-user join with one batched lookup across the page.
func (q *ComposeUsersQuery) expandServicePoints(ctx context.Context, conn *gateway.ConnectionContext, wrappers []map[string]any) error {
	seen := make(map[string]struct{})
	var ids []string
	for _, w := range wrappers {
		raw, ok := fieldpath.Get(w, "servicePointsUser.servicePointsIds")
		if !ok {
			continue
		}
		list, ok := raw.([]any)
		if !ok {
			continue
		}
		for _, el := range list {
			id, _ := el.(string)
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Strings(ids)

	terms := make([]string, len(ids))
	for i, id := range ids {
		terms[i] = fmt.Sprintf("id==%q", id)
	}
	path := fmt.Sprintf("/service-points?query=%s&limit=%d", url.QueryEscape(strings.Join(terms, " or ")), len(ids))
	env, err := q.client.Execute(ctx, http.MethodGet, path, conn, nil)
	if err != nil {
		return serverErrors.Transport(err, path)
	}
	if !env.OK() {
		return serverErrors.Upstream(env.StatusCode, string(env.Body), path)
	}

	points, _ := fieldAsSlice(env.Body, "servicepoints")
	byID := make(map[string]map[string]any, len(points))
	for _, el := range points {
		m, ok := el.(map[string]any)
		if !ok {
			continue
		}
		if id, _ := m["id"].(string); id != "" {
			byID[id] = m
		}
	}

	for _, w := range wrappers {
		raw, ok := fieldpath.Get(w, "servicePointsUser.servicePointsIds")
		if !ok {
			continue
		}
		list, ok := raw.([]any)
		if !ok {
			continue
		}
		var attached []any
		for _, el := range list {
			id, _ := el.(string)
			if p, found := byID[id]; found {
				attached = append(attached, any(p))
			}
		}
		if attached != nil {
			fieldpath.Set(w, "servicePointsUser.servicePoints", attached)
		}
	}
	return nil
}
