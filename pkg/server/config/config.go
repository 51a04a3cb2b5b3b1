// Package config contains all knobs and defaults used to configure
// patrongate when running as a standalone server.
package config

import (
	"fmt"
	"net/url"
	"time"
)

const (
	DefaultListenAddr        = "0.0.0.0:8081"
	DefaultMetricsAddr       = "0.0.0.0:2112"
	DefaultBackendTimeout    = 1 * time.Second
	DefaultRequestTimeout    = 30 * time.Second
	DefaultShutdownGrace     = 5 * time.Second
	DefaultListLimit         = 10
	DefaultMaxListLimit      = 100
	DefaultLogFormat         = "text"
	DefaultLogLevel          = "info"
	DefaultAuthnMethod       = "none"
	DefaultMetricsEnabled    = false
	DefaultCORSAllowedOrigin = "*"
)

// AuthnConfig defines which authentication method the HTTP front end
// enforces (e.g. 'none', 'preshared').
type AuthnConfig struct {
	Method string

	// Keys are the accepted preshared keys when Method is 'preshared'.
	Keys []string
}

// LogConfig defines settings for the server logger.
type LogConfig struct {
	// Format is either 'text' or 'json'.
	Format string

	// Level is one of 'debug', 'info', 'warn', 'error', 'fatal'.
	Level string
}

// MetricsConfig defines settings for the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
	Addr    string
}

// CORSConfig defines cross-origin settings for the HTTP front end.
type CORSConfig struct {
	AllowedOrigins []string
	AllowedHeaders []string
}

// Config is the complete configuration of a patrongate server.
type Config struct {
	// ListenAddr is the address the HTTP front end binds.
	ListenAddr string `mapstructure:"listen-addr"`

	// GatewayURL is the base URL of the platform gateway every backend
	// call goes through.
	GatewayURL string `mapstructure:"gateway-url"`

	// BackendTimeout bounds one backend call.
	BackendTimeout time.Duration `mapstructure:"backend-timeout"`

	// RequestTimeout bounds one inbound request end to end.
	RequestTimeout time.Duration `mapstructure:"request-timeout"`

	// ShutdownGrace is how long in-flight requests get to finish on
	// shutdown.
	ShutdownGrace time.Duration `mapstructure:"shutdown-grace"`

	// ListLimit is the page size applied when a list request carries no
	// limit; MaxListLimit caps what a request may ask for.
	ListLimit    int `mapstructure:"list-limit"`
	MaxListLimit int `mapstructure:"max-list-limit"`

	Authn   AuthnConfig
	Log     LogConfig
	Metrics MetricsConfig
	CORS    CORSConfig
}

// DefaultConfig returns the config with all defaults applied. The
// gateway URL has no default; it must be set explicitly.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:     DefaultListenAddr,
		BackendTimeout: DefaultBackendTimeout,
		RequestTimeout: DefaultRequestTimeout,
		ShutdownGrace:  DefaultShutdownGrace,
		ListLimit:      DefaultListLimit,
		MaxListLimit:   DefaultMaxListLimit,
		Authn:          AuthnConfig{Method: DefaultAuthnMethod},
		Log:            LogConfig{Format: DefaultLogFormat, Level: DefaultLogLevel},
		Metrics:        MetricsConfig{Enabled: DefaultMetricsEnabled, Addr: DefaultMetricsAddr},
		CORS:           CORSConfig{AllowedOrigins: []string{DefaultCORSAllowedOrigin}, AllowedHeaders: []string{"*"}},
	}
}

// Verify checks that the config is in a valid state for serving.
func (c *Config) Verify() error {
	if c.GatewayURL == "" {
		return fmt.Errorf("config 'gateway-url' is required")
	}
	u, err := url.Parse(c.GatewayURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config 'gateway-url' must be an absolute URL, got %q", c.GatewayURL)
	}

	switch c.Authn.Method {
	case "none":
	case "preshared":
		if len(c.Authn.Keys) == 0 {
			return fmt.Errorf("authn method 'preshared' requires at least one key")
		}
		for _, key := range c.Authn.Keys {
			if key == "" {
				return fmt.Errorf("authn preshared keys must not be empty")
			}
		}
	default:
		return fmt.Errorf("unsupported authn method %q", c.Authn.Method)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log format %q", c.Log.Format)
	}

	if c.BackendTimeout <= 0 {
		return fmt.Errorf("config 'backend-timeout' must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("config 'request-timeout' must be positive")
	}
	if c.ListLimit <= 0 || c.MaxListLimit < c.ListLimit {
		return fmt.Errorf("config list limits must satisfy 0 < list-limit <= max-list-limit")
	}
	return nil
}
