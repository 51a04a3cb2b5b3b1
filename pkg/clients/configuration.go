package clients

import (
	"context"
	"fmt"
	"net/http"

	"github.com/patrongate/patrongate/pkg/gateway"
)

const configurationPath = "/configurations/entries"

// Configuration reads key/value entries from the configuration store.
type Configuration struct {
	client gateway.Client
}

func NewConfiguration(client gateway.Client) *Configuration {
	return &Configuration{client: client}
}

// Lookup returns the enabled entries of one module+config pair as a
// code→value map. Missing entries are not an error; callers decide which
// codes are required.
func (c *Configuration) Lookup(ctx context.Context, conn *gateway.ConnectionContext, module, configName string) (map[string]string, error) {
	cql := fmt.Sprintf("module==%q and configName==%q and enabled==true", module, configName)
	env, err := call(ctx, c.client, http.MethodGet, cqlQuery(configurationPath, cql, 100), conn, nil)
	if err != nil {
		return nil, err
	}
	var body struct {
		Configs []struct {
			Code  string `json:"code"`
			Value string `json:"value"`
		} `json:"configs"`
	}
	if err := decode(env, &body); err != nil {
		return nil, err
	}
	values := make(map[string]string, len(body.Configs))
	for _, entry := range body.Configs {
		values[entry.Code] = entry.Value
	}
	return values, nil
}
