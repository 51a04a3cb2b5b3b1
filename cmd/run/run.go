// Package run contains the command to run a patrongate server.
package run

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/patrongate/patrongate/internal/build"
	"github.com/patrongate/patrongate/internal/server/httpapi"
	"github.com/patrongate/patrongate/pkg/gateway"
	"github.com/patrongate/patrongate/pkg/logger"
	"github.com/patrongate/patrongate/pkg/server"
	serverconfig "github.com/patrongate/patrongate/pkg/server/config"
)

func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the patrongate server",
		Long:  "Run the patrongate server.",
		Run:   run,
		Args:  cobra.NoArgs,
	}
	bindRunFlags(cmd)
	return cmd
}

// ReadConfig returns the server configuration based on the values
// provided in 'config.yaml', the environment and the flags. If no
// configuration file is present, the default values are returned.
func ReadConfig() (*serverconfig.Config, error) {
	config := serverconfig.DefaultConfig()

	viper.SetTypeByDefaultValue(true)
	err := viper.ReadInConfig()
	if err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("failed to load server config: %w", err)
		}
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal server config: %w", err)
	}
	return config, nil
}

func run(_ *cobra.Command, _ []string) {
	config, err := ReadConfig()
	if err != nil {
		panic(err)
	}
	if err := config.Verify(); err != nil {
		panic(err)
	}

	l := logger.MustNewLogger(config.Log.Format, config.Log.Level)
	serverCtx := &ServerContext{Logger: l}
	if err := serverCtx.Run(context.Background(), config); err != nil {
		panic(err)
	}
}

type ServerContext struct {
	Logger logger.Logger
}

// Run starts the HTTP front end and, when enabled, the metrics listener,
// and blocks until a shutdown signal arrives.
func (s *ServerContext) Run(ctx context.Context, config *serverconfig.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := gateway.NewHTTPClient(
		gateway.WithCallTimeout(config.BackendTimeout),
		gateway.WithLogger(s.Logger),
	)
	srv := server.New(client,
		server.WithLogger(s.Logger),
		server.WithListLimits(config.ListLimit, config.MaxListLimit),
	)

	handler := httpapi.NewHandler(srv, config, s.Logger)
	handler = cors.New(cors.Options{
		AllowedOrigins: config.CORS.AllowedOrigins,
		AllowedHeaders: config.CORS.AllowedHeaders,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	}).Handler(handler)
	handler = http.TimeoutHandler(handler, config.RequestTimeout, "request timed out")

	apiServer := &http.Server{
		Addr:    config.ListenAddr,
		Handler: handler,
	}

	var metricsServer *http.Server
	if config.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: config.Metrics.Addr, Handler: metricsMux}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		s.Logger.Info(fmt.Sprintf("🚀 starting %s", build.ProjectName),
			zap.String("version", build.Version),
			zap.String("addr", config.ListenAddr),
			zap.String("gateway", config.GatewayURL))
		if err := apiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if metricsServer != nil {
		group.Go(func() error {
			s.Logger.Info("metrics endpoint listening", zap.String("addr", config.Metrics.Addr))
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		s.Logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownGrace)
		defer cancel()
		var errs []error
		errs = append(errs, apiServer.Shutdown(shutdownCtx))
		if metricsServer != nil {
			errs = append(errs, metricsServer.Shutdown(shutdownCtx))
		}
		return errors.Join(errs...)
	})

	return group.Wait()
}
