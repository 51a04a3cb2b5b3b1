package commands

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/patrongate/patrongate/pkg/gateway"
)

func testConn() *gateway.ConnectionContext {
	return &gateway.ConnectionContext{GatewayURL: "http://gateway", TenantID: "diku"}
}

func testEnv(status int, body, path string) *gateway.Envelope {
	return &gateway.Envelope{StatusCode: status, Body: []byte(body), SourcePath: path}
}

// pathContains matches any Execute path carrying the given fragment.
type pathContains string

func (p pathContains) Matches(x any) bool {
	s, ok := x.(string)
	return ok && strings.Contains(s, string(p))
}

func (p pathContains) String() string {
	return fmt.Sprintf("path contains %q", string(p))
}

// unverifiedToken builds a signed token whose payload the commands read
// without verification.
func unverifiedToken(claims jwt.MapClaims) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		panic(err)
	}
	return token
}
