package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/credentials"

	"github.com/GriffinCanCode/skytrace/internal/infrastructure/config"
	"github.com/GriffinCanCode/skytrace/internal/infrastructure/logging"
	"github.com/GriffinCanCode/skytrace/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/skytrace/internal/server"
	"github.com/GriffinCanCode/skytrace/internal/tracer"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "skytrace: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "YAML or TOML config file (environment variables still apply)")
	caFile := flag.String("ca", "", "CA certificate for a TLS collector connection")
	dev := flag.Bool("dev", false, "Development logging")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(reg)

	opts := []tracer.Option{
		tracer.WithLogger(logger.Logger),
		tracer.WithMetrics(metrics),
	}
	if *caFile != "" {
		ca := *caFile
		opts = append(opts, tracer.WithCredentials(func() (credentials.TransportCredentials, error) {
			return credentials.NewClientTLSFromFile(ca, "")
		}))
	}
	t, err := tracer.New(cfg, opts...)
	if err != nil {
		return err
	}

	admin := server.New(cfg, server.Deps{
		Status:   t,
		Gatherer: reg,
		Metrics:  metrics,
		Logger:   logger.Logger,
		Version:  version,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, gctx := errgroup.WithContext(ctx)
	group.Go(admin.Run)
	group.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Reporter.ShutdownTimeout)
		defer cancel()
		return errors.Join(admin.Shutdown(shutdownCtx), t.Close(shutdownCtx))
	})
	return group.Wait()
}
