package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/kazazor/DefiLlama-Adapters/internal/api"
	"github.com/kazazor/DefiLlama-Adapters/internal/app"
	"github.com/kazazor/DefiLlama-Adapters/internal/config"
	"github.com/kazazor/DefiLlama-Adapters/internal/realtime"
	"github.com/kazazor/DefiLlama-Adapters/internal/scheduler"
	"github.com/kazazor/DefiLlama-Adapters/internal/tvl"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging)
	logger.Info().Str("version", "0.1.0").Str("config", configPath).Msg("Starting Blindex TVL server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := app.New(cfg, reg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer a.Close()

	store := tvl.NewSnapshotStore()

	apiHeads := make(map[string]api.HeadSource, len(a.Clients))
	schedHeads := make(map[string]scheduler.HeadSource, len(a.Clients))
	for name, c := range a.Clients {
		apiHeads[name] = c
		schedHeads[name] = c
	}

	if cfg.Scheduler.Enabled {
		sched, err := scheduler.NewTVLScheduler(a.Adapter, schedHeads, store, cfg.Scheduler.Interval, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create scheduler")
		}
		sched.SetMetrics(a.Metrics)
		if cfg.Realtime.Enabled {
			sched.SetPublisher(realtime.NewPublisher(realtime.PublishConfig{
				APIURL:        cfg.Realtime.APIURL,
				APIKey:        cfg.Realtime.APIKey,
				ChannelPrefix: cfg.Realtime.ChannelPrefix,
			}, logger))
		}
		if err := sched.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Failed to start scheduler")
		}
		defer sched.Stop()
	}

	apiServer := api.NewAPIServer(a.Adapter, api.Options{
		Store:         store,
		Heads:         apiHeads,
		Metrics:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		MaxConcurrent: cfg.Server.MaxConcurrent,
	}, logger)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	if err := apiServer.Start(ctx, addr); err != nil {
		logger.Fatal().Err(err).Msg("API server failed")
	}
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05.000"}
		logger = zerolog.New(output).Level(level).With().Timestamp().Caller().Logger()
	} else {
		logger = zerolog.New(os.Stdout).Level(level).With().Timestamp().Caller().Logger()
	}
	return logger
}
