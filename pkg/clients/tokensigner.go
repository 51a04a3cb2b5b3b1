package clients

import (
	"context"
	"net/http"

	"github.com/patrongate/patrongate/pkg/gateway"
)

const (
	signTokenPath = "/token/sign"

	// legacySignTokenPath is the pre-expiry signing endpoint still served
	// by older gateway deployments.
	legacySignTokenPath = "/token"
)

// TokenSigner obtains scoped, short-lived credentials from the signing
// service.
type TokenSigner struct {
	client gateway.Client
}

func NewTokenSigner(client gateway.Client) *TokenSigner {
	return &TokenSigner{client: client}
}

// Sign signs the given claims. When the primary endpoint reports not
// found, the legacy endpoint is tried exactly once; any other error from
// either endpoint is fatal.
func (s *TokenSigner) Sign(ctx context.Context, conn *gateway.ConnectionContext, claims map[string]any) (string, error) {
	payload := marshalBody(map[string]any{"payload": claims})

	env, err := call(ctx, s.client, http.MethodPost, signTokenPath, conn, payload)
	if err != nil {
		return "", err
	}
	if env.StatusCode == http.StatusNotFound {
		env, err = call(ctx, s.client, http.MethodPost, legacySignTokenPath, conn, payload)
		if err != nil {
			return "", err
		}
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := decode(env, &body); err != nil {
		return "", err
	}
	return body.Token, nil
}
