package run

import (
	"github.com/spf13/cobra"

	"github.com/patrongate/patrongate/cmd/util"
	serverconfig "github.com/patrongate/patrongate/pkg/server/config"
)

// bindRunFlags binds the cobra cmd flags to the equivalent config value
// being managed by viper. This bridges the config between cobra flags and
// viper flags.
func bindRunFlags(command *cobra.Command) {
	defaultConfig := serverconfig.DefaultConfig()
	flags := command.Flags()

	flags.String("listen-addr", defaultConfig.ListenAddr, "the host:port address to serve the HTTP API on")
	util.MustBindPFlag("listen-addr", flags.Lookup("listen-addr"))
	util.MustBindEnv("listen-addr", "PATRONGATE_LISTEN_ADDR")

	flags.String("gateway-url", defaultConfig.GatewayURL, "the base URL of the platform gateway backend calls go through")
	util.MustBindPFlag("gateway-url", flags.Lookup("gateway-url"))
	util.MustBindEnv("gateway-url", "PATRONGATE_GATEWAY_URL")

	flags.Duration("backend-timeout", defaultConfig.BackendTimeout, "the timeout applied to one backend call")
	util.MustBindPFlag("backend-timeout", flags.Lookup("backend-timeout"))
	util.MustBindEnv("backend-timeout", "PATRONGATE_BACKEND_TIMEOUT")

	flags.Duration("request-timeout", defaultConfig.RequestTimeout, "the end-to-end timeout applied to one inbound request")
	util.MustBindPFlag("request-timeout", flags.Lookup("request-timeout"))
	util.MustBindEnv("request-timeout", "PATRONGATE_REQUEST_TIMEOUT")

	flags.Duration("shutdown-grace", defaultConfig.ShutdownGrace, "how long in-flight requests get to finish on shutdown")
	util.MustBindPFlag("shutdown-grace", flags.Lookup("shutdown-grace"))
	util.MustBindEnv("shutdown-grace", "PATRONGATE_SHUTDOWN_GRACE")

	flags.Int("list-limit", defaultConfig.ListLimit, "the page size applied when a list request carries no limit")
	util.MustBindPFlag("list-limit", flags.Lookup("list-limit"))
	util.MustBindEnv("list-limit", "PATRONGATE_LIST_LIMIT")

	flags.Int("max-list-limit", defaultConfig.MaxListLimit, "the maximum page size a list request may ask for")
	util.MustBindPFlag("max-list-limit", flags.Lookup("max-list-limit"))
	util.MustBindEnv("max-list-limit", "PATRONGATE_MAX_LIST_LIMIT")

	flags.String("authn-method", defaultConfig.Authn.Method, "the authentication method to enforce on the API (e.g. 'none', 'preshared')")
	util.MustBindPFlag("authn.method", flags.Lookup("authn-method"))
	util.MustBindEnv("authn.method", "PATRONGATE_AUTHN_METHOD")

	flags.StringSlice("authn-preshared-keys", defaultConfig.Authn.Keys, "the preshared keys accepted when the authn method is 'preshared'")
	util.MustBindPFlag("authn.keys", flags.Lookup("authn-preshared-keys"))
	util.MustBindEnv("authn.keys", "PATRONGATE_AUTHN_PRESHARED_KEYS")

	flags.String("log-format", defaultConfig.Log.Format, "the log format to output logs in ('text' or 'json')")
	util.MustBindPFlag("log.format", flags.Lookup("log-format"))
	util.MustBindEnv("log.format", "PATRONGATE_LOG_FORMAT")

	flags.String("log-level", defaultConfig.Log.Level, "the log level to use ('debug', 'info', 'warn', 'error', 'fatal')")
	util.MustBindPFlag("log.level", flags.Lookup("log-level"))
	util.MustBindEnv("log.level", "PATRONGATE_LOG_LEVEL")

	flags.Bool("metrics-enabled", defaultConfig.Metrics.Enabled, "enable/disable the Prometheus metrics endpoint")
	util.MustBindPFlag("metrics.enabled", flags.Lookup("metrics-enabled"))
	util.MustBindEnv("metrics.enabled", "PATRONGATE_METRICS_ENABLED")

	flags.String("metrics-addr", defaultConfig.Metrics.Addr, "the host:port address to serve the Prometheus metrics endpoint on")
	util.MustBindPFlag("metrics.addr", flags.Lookup("metrics-addr"))
	util.MustBindEnv("metrics.addr", "PATRONGATE_METRICS_ADDR")

	flags.StringSlice("cors-allowed-origins", defaultConfig.CORS.AllowedOrigins, "the origins allowed by CORS")
	util.MustBindPFlag("cors.allowedorigins", flags.Lookup("cors-allowed-origins"))
	util.MustBindEnv("cors.allowedorigins", "PATRONGATE_CORS_ALLOWED_ORIGINS")

	flags.StringSlice("cors-allowed-headers", defaultConfig.CORS.AllowedHeaders, "the headers allowed by CORS")
	util.MustBindPFlag("cors.allowedheaders", flags.Lookup("cors-allowed-headers"))
	util.MustBindEnv("cors.allowedheaders", "PATRONGATE_CORS_ALLOWED_HEADERS")
}
