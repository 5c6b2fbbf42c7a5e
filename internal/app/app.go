// Package app wires the chain registry, RPC clients and TVL adapter together.
package app

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/kazazor/DefiLlama-Adapters/internal/chains"
	"github.com/kazazor/DefiLlama-Adapters/internal/config"
	"github.com/kazazor/DefiLlama-Adapters/internal/metrics"
	"github.com/kazazor/DefiLlama-Adapters/internal/rpc"
	"github.com/kazazor/DefiLlama-Adapters/internal/tvl"
	"github.com/kazazor/DefiLlama-Adapters/internal/uniswapv2"
)

// Dialer opens an RPC client for a chain.
type Dialer func(chain chains.ChainConfig) (*rpc.Client, error)

type App struct {
	Registry *chains.Registry
	Adapter  *tvl.Adapter
	Clients  map[string]*rpc.Client
	Metrics  *metrics.Metrics

	logger zerolog.Logger
}

// New builds the application from cfg. reg may be nil to disable metrics.
func New(cfg *config.Config, reg prometheus.Registerer, logger zerolog.Logger) (*App, error) {
	dial := func(chain chains.ChainConfig) (*rpc.Client, error) {
		return rpc.NewClient(chain.RPCEndpoint, chain.ChainID, chain.Name, cfg.RPC.Timeout, logger)
	}
	return NewWithDialer(cfg, reg, dial, logger)
}

func NewWithDialer(cfg *config.Config, reg prometheus.Registerer, dial Dialer, logger zerolog.Logger) (*App, error) {
	registry, err := chains.Load(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load chain registry: %w", err)
	}

	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
	}

	a := &App{
		Registry: registry,
		Clients:  make(map[string]*rpc.Client),
		Metrics:  m,
		logger:   logger,
	}

	backends := make(map[string]tvl.Backend)
	for _, name := range registry.Names() {
		chain, err := registry.Chain(name)
		if err != nil {
			a.Close()
			return nil, err
		}
		if chain.RPCEndpoint == "" {
			logger.Warn().Str("chain", name).Msg("No RPC endpoint configured, chain disabled")
			continue
		}

		client, err := dial(chain)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("chain %s: %w", name, err)
		}
		client.SetMetrics(m)
		a.Clients[name] = client

		backends[name] = tvl.Backend{
			Reader:   client,
			Reserves: uniswapv2.NewReserveAggregator(client, logger),
		}
	}

	adapter, err := tvl.NewAdapter(registry, backends, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	adapter.SetMetrics(m)
	a.Adapter = adapter

	return a, nil
}

func (a *App) Close() {
	for _, c := range a.Clients {
		c.Close()
	}
}
