// Package clients holds thin typed wrappers over the gateway client, one
// per backend service. They carry no composition logic; cardinality and
// failure policy live in the callers.
package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/patrongate/patrongate/pkg/gateway"
	serverErrors "github.com/patrongate/patrongate/pkg/server/errors"
)

// call executes one backend request and normalizes transport failures.
func call(ctx context.Context, client gateway.Client, method, path string, conn *gateway.ConnectionContext, body []byte) (*gateway.Envelope, error) {
	env, err := client.Execute(ctx, method, path, conn, body)
	if err != nil {
		return nil, serverErrors.Transport(err, path)
	}
	return env, nil
}

// expectOK converts a backend error status into an encoded error.
func expectOK(env *gateway.Envelope) error {
	if env.OK() {
		return nil
	}
	return serverErrors.Upstream(env.StatusCode, string(env.Body), env.SourcePath)
}

// decode unmarshals a 2xx envelope body.
func decode(env *gateway.Envelope, target any) error {
	if err := expectOK(env); err != nil {
		return err
	}
	if err := json.Unmarshal(env.Body, target); err != nil {
		return serverErrors.Transport(fmt.Errorf("parse %s response: %w", env.SourcePath, err), env.SourcePath)
	}
	return nil
}

// cqlQuery builds "path?query=<cql>&limit=n" with proper escaping.
func cqlQuery(path, cql string, limit int) string {
	return fmt.Sprintf("%s?query=%s&limit=%d", path, url.QueryEscape(cql), limit)
}

// marshalBody panics only on programmer error (unmarshalable values).
func marshalBody(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
