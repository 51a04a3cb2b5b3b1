// Package commands holds the business-logic command objects the server
// dispatches to. Each command owns one operation end to end: it builds
// the backend fetch plan, runs it, and assembles the response.
package commands

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/patrongate/patrongate/internal/graph"
	"github.com/patrongate/patrongate/pkg/clients"
	"github.com/patrongate/patrongate/pkg/gateway"
	"github.com/patrongate/patrongate/pkg/logger"
	serverErrors "github.com/patrongate/patrongate/pkg/server/errors"
)

// Task ids inside a composite-user fetch graph.
const (
	taskUser              = "user"
	taskPatronGroup       = "patronGroup"
	taskCredentials       = "credentials"
	taskPermissions       = "permissions"
	taskProxiesFor        = "proxiesFor"
	taskServicePointsUser = "servicePointsUser"
	taskServicePoints     = "servicePoints"
)

// servicePointsPath expands the service-point ids recorded on the
// caller's service-points-user record into one batched lookup. ok=false
// when the record carries no ids.
func servicePointsPath(dep *graph.Result) (string, bool) {
	if dep == nil || dep.Envelope == nil {
		return "", false
	}
	ids := dep.Envelope.Get("servicePointsUsers.0.servicePointsIds").Array()
	if len(ids) == 0 {
		return "", false
	}
	terms := make([]string, 0, len(ids))
	for _, id := range ids {
		terms = append(terms, fmt.Sprintf("id==%q", id.String()))
	}
	cql := strings.Join(terms, " or ")
	return fmt.Sprintf("/service-points?query=%s&limit=%d", url.QueryEscape(cql), len(ids)), true
}

// CompositeUser is the aggregated view of one user assembled from up to
// six backend fetches.
type CompositeUser struct {
	User              map[string]any `json:"user"`
	PatronGroup       map[string]any `json:"patronGroup,omitempty"`
	Credentials       map[string]any `json:"credentials,omitempty"`
	Permissions       map[string]any `json:"permissions,omitempty"`
	ProxiesFor        []any          `json:"proxiesFor,omitempty"`
	ServicePointsUser map[string]any `json:"servicePointsUser,omitempty"`
}

// ComposeUserParams selects the root user. Exactly one of ID, Query or
// Self applies; ID wins over Query, Self resolves the id from the
// caller's token first.
type ComposeUserParams struct {
	ID    string
	Query string
	Self  bool

	// Includes is the requested expansion. Nil means everything.
	Includes []string
}

// ComposeUserQuery fetches one user plus its requested includes as a
// single dependency graph.
type ComposeUserQuery struct {
	client gateway.Client
	logger logger.Logger
}

type ComposeUserQueryOption func(*ComposeUserQuery)

func WithComposeUserQueryLogger(l logger.Logger) ComposeUserQueryOption {
	return func(q *ComposeUserQuery) {
		q.logger = l
	}
}

func NewComposeUserQuery(client gateway.Client, opts ...ComposeUserQueryOption) *ComposeUserQuery {
	q := &ComposeUserQuery{
		client: client,
		logger: logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *ComposeUserQuery) Execute(ctx context.Context, conn *gateway.ConnectionContext, params *ComposeUserParams) (*CompositeUser, error) {
	root, idExpr, groupExpr, err := q.rootTask(conn, params)
	if err != nil {
		return nil, err
	}

	includes := params.Includes
	if includes == nil {
		includes = AllIncludes
	}

	tasks := []*graph.Task{root}
	for _, include := range includes {
		tasks = append(tasks, includeTasks(include, idExpr, groupExpr)...)
	}

	engine := graph.NewEngine(q.client, graph.WithLogger(q.logger))
	results, err := engine.Run(ctx, conn, tasks)
	if err != nil {
		return nil, err
	}
	return assembleCompositeUser(results, idExpr == "id"), nil
}

// rootTask picks the root fetch and the expressions that address the
// user id and patron group inside its response body. A direct lookup
// returns the bare record, a query lookup returns a wrapped collection.
func (q *ComposeUserQuery) rootTask(conn *gateway.ConnectionContext, params *ComposeUserParams) (*graph.Task, string, string, error) {
	id := params.ID
	if params.Self {
		tokenID, err := userIDFromToken(conn.AuthToken)
		if err != nil {
			return nil, "", "", err
		}
		id = tokenID
	}

	if id != "" {
		return &graph.Task{
			ID:           taskUser,
			PathTemplate: "/users/" + url.PathEscape(id),
			Policy:       graph.Policy{StopDependents: true},
		}, "id", "patronGroup", nil
	}

	return &graph.Task{
		ID:           taskUser,
		PathTemplate: clients.QueryPath(params.Query, 2),
		Policy: graph.Policy{
			Cardinality:    graph.ExactlyOne,
			StopDependents: true,
			TotalField:     "totalRecords",
		},
	}, "users.0.id", "users.0.patronGroup", nil
}

// userIDFromToken reads the user id claim from the caller's token. The
// gateway already verified the signature; only the payload matters here.
func userIDFromToken(token string) (string, error) {
	if token == "" {
		return "", serverErrors.UnprocessableInput("token.absent", "no auth token on request")
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return "", serverErrors.UnprocessableInput("token.invalid", err.Error())
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", serverErrors.UnprocessableInput("token.invalid", "unexpected claims shape")
	}
	id, _ := claims["user_id"].(string)
	if id == "" {
		return "", serverErrors.UnprocessableInput("token.invalid", "token carries no user id")
	}
	return id, nil
}

// assembleCompositeUser lifts the raw envelopes into the response shape.
// Skipped and empty slots stay absent.
func assembleCompositeUser(results map[string]*graph.Result, directRoot bool) *CompositeUser {
	composite := &CompositeUser{}

	if root := results[taskUser]; root != nil && root.Envelope != nil {
		if directRoot {
			composite.User = decodeObject(root.Envelope.Body)
		} else if users, ok := fieldAsSlice(root.Envelope.Body, "users"); ok && len(users) > 0 {
			composite.User, _ = users[0].(map[string]any)
		}
	}

	composite.PatronGroup = firstObject(results[taskPatronGroup], "")
	composite.Credentials = firstObject(results[taskCredentials], "credentials")
	composite.Permissions = firstObject(results[taskPermissions], "permissionUsers")
	if r := results[taskProxiesFor]; completed(r) {
		if proxies, ok := fieldAsSlice(r.Envelope.Body, "proxiesFor"); ok {
			composite.ProxiesFor = proxies
		}
	}

	composite.ServicePointsUser = firstObject(results[taskServicePointsUser], "servicePointsUsers")
	if composite.ServicePointsUser != nil {
		if r := results[taskServicePoints]; completed(r) {
			if points, ok := fieldAsSlice(r.Envelope.Body, "servicepoints"); ok {
				composite.ServicePointsUser["servicePoints"] = points
			}
		}
	}

	return composite
}

func completed(r *graph.Result) bool {
	return r != nil && r.State == graph.Completed && r.Envelope != nil && r.Envelope.OK()
}

// firstObject returns the first record of the named collection, or the
// whole body when field is empty.
func firstObject(r *graph.Result, field string) map[string]any {
	if !completed(r) {
		return nil
	}
	if field == "" {
		return decodeObject(r.Envelope.Body)
	}
	records, ok := fieldAsSlice(r.Envelope.Body, field)
	if !ok || len(records) == 0 {
		return nil
	}
	obj, _ := records[0].(map[string]any)
	return obj
}
