package clients

import (
	"context"
	"fmt"
	"net/http"

	"github.com/patrongate/patrongate/pkg/gateway"
	serverErrors "github.com/patrongate/patrongate/pkg/server/errors"
)

const (
	usersPath = "/users"
)

// Users talks to the user store.
type Users struct {
	client gateway.Client
}

func NewUsers(client gateway.Client) *Users {
	return &Users{client: client}
}

// FindByID fetches one user record. A backend 404 surfaces as NotFound.
func (u *Users) FindByID(ctx context.Context, conn *gateway.ConnectionContext, id string) (map[string]any, error) {
	env, err := call(ctx, u.client, http.MethodGet, usersPath+"/"+id, conn, nil)
	if err != nil {
		return nil, err
	}
	var user map[string]any
	if err := decode(env, &user); err != nil {
		return nil, err
	}
	return user, nil
}

// FindOneByQuery fetches by CQL query and enforces exactly-one semantics.
func (u *Users) FindOneByQuery(ctx context.Context, conn *gateway.ConnectionContext, cql string) (map[string]any, error) {
	path := cqlQuery(usersPath, cql, 2)
	env, err := call(ctx, u.client, http.MethodGet, path, conn, nil)
	if err != nil {
		return nil, err
	}
	var body struct {
		Users        []map[string]any `json:"users"`
		TotalRecords int64            `json:"totalRecords"`
	}
	if err := decode(env, &body); err != nil {
		return nil, err
	}
	switch {
	case body.TotalRecords < 1:
		return nil, serverErrors.NotFound(path)
	case body.TotalRecords > 1:
		return nil, serverErrors.MultipleResults(path)
	}
	return body.Users[0], nil
}

// Update overwrites a user record.
func (u *Users) Update(ctx context.Context, conn *gateway.ConnectionContext, id string, user map[string]any) error {
	env, err := call(ctx, u.client, http.MethodPut, usersPath+"/"+id, conn, marshalBody(user))
	if err != nil {
		return err
	}
	return expectOK(env)
}

// QueryPath exposes the list endpoint for the composition engine, which
// builds its own fetch tasks.
func QueryPath(cql string, limit int) string {
	if cql == "" {
		return fmt.Sprintf("%s?limit=%d", usersPath, limit)
	}
	return cqlQuery(usersPath, cql, limit)
}
