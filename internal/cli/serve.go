package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tansive/chatbridge/internal/bridge/analysis"
	"github.com/tansive/chatbridge/internal/bridge/config"
	"github.com/tansive/chatbridge/internal/bridge/eventbus"
	"github.com/tansive/chatbridge/internal/bridge/observability"
	"github.com/tansive/chatbridge/internal/bridge/provider/remote"
	"github.com/tansive/chatbridge/internal/bridge/server"
	"github.com/tansive/chatbridge/internal/bridge/session"
	"github.com/tansive/chatbridge/internal/common/logtrace"
)

func loadConfig() (*config.ConfigParam, error) {
	if err := config.LoadConfig(configFile); err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}
	c := config.Config()
	logtrace.InitLogger(c.LogLevel)
	if traceRoutes {
		logtrace.SetTraceEnabled(true)
	}
	return c, nil
}

func newDriver(c *config.ConfigParam) (*remote.Driver, error) {
	return remote.New(remote.Config{
		URL:               c.Driver.URL,
		APIKey:            c.Driver.APIKey,
		VersionConstraint: c.Driver.VersionConstraint,
		RequestTimeout:    c.Driver.GetRequestTimeout(),
	})
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c, err := loadConfig()
	if err != nil {
		return err
	}
	slog := log.With().Str("state", "init").Logger()
	slog.Info().Str("config_file", configFile).Str("driver_url", c.Driver.URL).Msg("configuration loaded")

	driver, err := newDriver(c)
	if err != nil {
		return fmt.Errorf("creating driver: %w", err)
	}

	// the driver may start after us; serve anyway and report readiness once it answers
	var driverReady atomic.Bool
	var driverVersion string
	if v, err := driver.Probe(slog.WithContext(ctx)); err != nil {
		slog.Warn().Err(err).Msg("automation driver not available")
		if errors.Is(err, remote.ErrIncompatibleDriver) {
			return err
		}
	} else {
		driverVersion = v.String()
		driverReady.Store(true)
		slog.Info().Str("driver_version", driverVersion).Msg("automation driver connected")
	}

	metrics := observability.NewMetrics(c.MetricsNamespace)
	coordinator := session.NewCoordinator(
		session.NewStore(metrics),
		eventbus.New(),
		driver,
		analysis.NewClient(c.Analysis.URL, c.Analysis.GetRequestTimeout()),
		metrics,
		session.Options{
			QRTimeout:    c.Pairing.GetQRTimeout(),
			PairingGrace: c.Pairing.GetPairingGrace(),
			Location:     c.ChatFormat.Location(),
		},
	)
	coordinator.StartJanitor(ctx, c.Pairing.GetJanitorInterval())

	s, err := server.CreateNewServer(coordinator, metrics, server.Options{
		HandleCORS:     c.HandleCORS,
		RequestTimeout: c.GetRequestTimeout(),
		DriverVersion:  driverVersion,
		Ready: func(ctx context.Context) error {
			if driverReady.Load() {
				return nil
			}
			if _, err := driver.Check(ctx); err != nil {
				return err
			}
			driverReady.Store(true)
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	s.MountHandlers()

	srv := &http.Server{
		Addr:              c.ListenAddr(),
		Handler:           s.Router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info().Str("addr", srv.Addr).Msg("server started")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		coordinator.Shutdown(ctx)
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		slog.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case <-ctx.Done():
	}

	// Give outstanding requests 5 seconds to complete and initiate the shutdown.
	shutdownCtx, cancelShutdown := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error().Err(err).Msg("could not stop server gracefully")
		if err := srv.Close(); err != nil {
			slog.Error().Err(err).Msg("could not stop server")
		}
	}
	coordinator.Shutdown(shutdownCtx)
	slog.Info().Msg("server stopped")
	return nil
}
