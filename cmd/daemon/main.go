package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/genricoloni/playerwatch/internal/config"
	"github.com/genricoloni/playerwatch/internal/domain"
	"github.com/genricoloni/playerwatch/internal/engine"
	"github.com/genricoloni/playerwatch/internal/monitor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// coreOptions is the graph shared by the daemon and its tests; the monitor is provided separately
var coreOptions = fx.Options(
	fx.Provide(
		newLogger,
		fx.Annotate(config.NewAppConfig, fx.As(new(domain.Config))),
		engine.NewEngine,
	),
	fx.Invoke(registerHooks),
)

// AppOptions is the full production graph.
// The viper instance can be swapped with fx.Replace.
var AppOptions = fx.Options(
	fx.Provide(config.NewViper),
	coreOptions,
	fx.Provide(newMonitor),
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := config.NewViper()

	cmd := &cobra.Command{
		Use:          "playerwatch",
		Short:        "Watch MPRIS media players on the session bus",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ReadConfigFile(v); err != nil {
				return fmt.Errorf("read config: %w", err)
			}
			return run(v)
		},
	}

	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		panic(err)
	}
	return cmd
}

func run(v *viper.Viper) error {
	app := fx.New(
		AppOptions,
		fx.Replace(v),

		// Logger configuration
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	// Handle graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Start the application
	if err := app.Start(ctx); err != nil {
		return err
	}

	// Wait for interrupt signal
	<-ctx.Done()

	// Stop the application gracefully
	return app.Stop(context.Background())
}

// newLogger creates a new zap logger instance
func newLogger(v *viper.Viper) (*zap.Logger, error) {
	if v.GetBool(config.KeyDebug) {
		return zap.NewDevelopment()
	}
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return logger, nil
}

// newMonitor connects to the session bus
func newMonitor(logger *zap.Logger, cfg domain.Config) (domain.Monitor, error) {
	w, err := monitor.Connect(logger, cfg)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// registerHooks sets up application lifecycle hooks.
// Hooks stop in reverse order: metrics, engine, then the monitor.
func registerHooks(lc fx.Lifecycle, logger *zap.Logger, cfg domain.Config, mon domain.Monitor, eng *engine.Engine) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Playerwatch Daemon Started")
			return mon.Watch(ctx)
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down")
			err := mon.Stop(ctx)
			// Sync fails on stderr/stdout for some terminals, nothing to act on
			_ = logger.Sync()
			return err
		},
	})

	lc.Append(fx.Hook{
		OnStart: eng.Start,
		OnStop:  eng.Stop,
	})

	if addr := cfg.GetMetricsAddr(); addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           metricsHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				ln, err := net.Listen("tcp", addr)
				if err != nil {
					return fmt.Errorf("metrics listener: %w", err)
				}
				logger.Info("Serving metrics", zap.String("addr", ln.Addr().String()))
				go func() {
					if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("Metrics server failed", zap.Error(err))
					}
				}()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return srv.Shutdown(ctx)
			},
		})
	}
}

func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
