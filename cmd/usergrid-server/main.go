// Command usergrid-server serves the user grid API.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"usergrid/internal/adapters/users"
	"usergrid/internal/config"
	"usergrid/internal/core"
	"usergrid/internal/logging"
	"usergrid/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogEncoding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, nil); err != nil {
		logger.Error("server exited", zap.Error(err))
		os.Exit(1)
	}
}

// run wires storage, service, handler and server and blocks until ctx is
// cancelled. A nil ln listens on cfg.HTTPAddr.
func run(ctx context.Context, cfg config.Config, logger *zap.Logger, ln net.Listener) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	engine := core.NewDefaultRulesEngine()
	store, err := core.OpenPersistentStore(ctx, cfg.Storage, engine)
	if err != nil {
		return errors.Wrap(err, "open store")
	}
	defer func() {
		if err := core.CloseStore(store); err != nil {
			logger.Warn("close store", zap.Error(err))
		}
	}()
	logger.Info("store opened", zap.String("driver", cfg.Storage.Driver))

	svc := core.NewService(store,
		core.WithLogger(logger.Sugar()),
		core.WithMetricsRecorder(core.NewPrometheusMetricsRecorder(reg)),
	)

	if cfg.SeedFile != "" {
		seed, err := core.LoadSeedFile(cfg.SeedFile)
		if err != nil {
			return errors.Wrap(err, "load seed file")
		}
		n, err := svc.Seed(ctx, seed)
		if err != nil {
			return errors.Wrap(err, "apply seed")
		}
		logger.Info("seed applied", zap.String("file", cfg.SeedFile), zap.Int("created", n))
	}

	handler := users.NewHandler(svc, logger, users.NewMetrics(reg))
	srv := server.New(cfg, handler, logger, server.WithGatherer(reg))
	if ln == nil {
		return srv.Run(ctx)
	}
	return srv.Serve(ctx, ln)
}
