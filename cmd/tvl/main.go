package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/kazazor/DefiLlama-Adapters/internal/app"
	"github.com/kazazor/DefiLlama-Adapters/internal/config"
	"github.com/kazazor/DefiLlama-Adapters/internal/tvl"
)

func main() {
	var (
		configPath string
		chain      string
		block      uint64
		all        bool
	)
	flag.StringVar(&configPath, "config", "", "Path to configuration file (defaults only when empty)")
	flag.StringVar(&chain, "chain", "rsk", "Chain to compute")
	flag.Uint64Var(&block, "block", 0, "Block height for -chain (0 = latest)")
	flag.BoolVar(&all, "all", false, "Sum every configured chain; only -chain is pinned to -block, the others read their latest block")
	flag.Parse()

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.Default()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// stdout carries the result.
	logger := setupLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, nil, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer a.Close()

	var balances tvl.Balances
	if all {
		balances, err = a.Adapter.CombinedTVL()(ctx, time.Now().UTC(), 0, combinedBlocks(chain, block))
	} else {
		var height *big.Int
		if block > 0 {
			height = new(big.Int).SetUint64(block)
		}
		balances, err = a.Adapter.TVL(ctx, chain, height)
	}
	if err != nil {
		logger.Error().Err(err).Msg("TVL computation failed")
		a.Close()
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(balances); err != nil {
		logger.Fatal().Err(err).Msg("Failed to encode result")
	}
}

// combinedBlocks pins chain to block when block is set; every other chain is
// read at its latest block.
func combinedBlocks(chain string, block uint64) map[string]uint64 {
	chainBlocks := make(map[string]uint64)
	if block > 0 {
		chainBlocks[strings.ToLower(chain)] = block
	}
	return chainBlocks
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}
		return zerolog.New(output).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}
