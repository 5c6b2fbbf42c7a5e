package tvl

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/kazazor/DefiLlama-Adapters/internal/chains"
	"github.com/kazazor/DefiLlama-Adapters/internal/metrics"
)

const (
	Methodology = "(1) AMM LP pairs - All the liquidity pools from the Factory address are used to find the LP pairs. " +
		"(2) Collateral - All the collateral being used to support the stable coins - Bitcoin, Ethereum & BDX"

	// MisrepresentedTokens is set because some tokens are priced as the asset they wrap.
	MisrepresentedTokens = true
)

var ErrNoBackend = errors.New("no backend for chain")

// ContractReader reads contract state at a block; a nil block means latest.
type ContractReader interface {
	CallUint(ctx context.Context, target common.Address, method string, block *big.Int, args ...interface{}) (*big.Int, error)
	CallAddress(ctx context.Context, target common.Address, method string, block *big.Int, args ...interface{}) (common.Address, error)
	BalanceOf(ctx context.Context, token, owner common.Address, block *big.Int) (*big.Int, error)
	Decimals(ctx context.Context, token common.Address) (uint8, error)
}

// ReserveSource sums raw pair reserves per token for a factory.
type ReserveSource interface {
	Reserves(ctx context.Context, factory common.Address, block *big.Int, offset uint64) (map[common.Address]*big.Int, error)
}

// Backend is the on-chain access for one chain.
type Backend struct {
	Reader   ContractReader
	Reserves ReserveSource
}

// TVLFunc computes the TVL of one or more chains. chainBlocks holds the block
// height to use per chain; a chain without an entry is read at its latest block.
type TVLFunc func(ctx context.Context, timestamp time.Time, ethBlock uint64, chainBlocks map[string]uint64) (Balances, error)

// Adapter computes the protocol's TVL.
type Adapter struct {
	registry *chains.Registry
	mapper   *chains.Mapper
	backends map[string]Backend
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

func NewAdapter(registry *chains.Registry, backends map[string]Backend, logger zerolog.Logger) (*Adapter, error) {
	bs := make(map[string]Backend, len(backends))
	for name, b := range backends {
		cfg, err := registry.Chain(name)
		if err != nil {
			return nil, err
		}
		if b.Reader == nil || b.Reserves == nil {
			return nil, fmt.Errorf("chain %s: incomplete backend", cfg.Name)
		}
		bs[cfg.Name] = b
	}

	return &Adapter{
		registry: registry,
		mapper:   chains.NewMapper(registry),
		backends: bs,
		logger:   logger.With().Str("component", "tvl").Logger(),
	}, nil
}

func (a *Adapter) SetMetrics(m *metrics.Metrics) {
	a.metrics = m
}

// Chains returns the registered chains that have a backend.
func (a *Adapter) Chains() []string {
	var names []string
	for _, name := range a.registry.Names() {
		if _, ok := a.backends[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

// TVL computes the balances locked on chain at block. Any failed call aborts
// the whole computation.
func (a *Adapter) TVL(ctx context.Context, chain string, block *big.Int) (Balances, error) {
	// Resolve first so metric labels only ever carry registered chain names.
	cfg, _, err := a.lookup(chain)
	if err != nil {
		return nil, fmt.Errorf("tvl of %s: %w", chain, err)
	}
	chain = cfg.Name

	start := time.Now()
	balances, err := a.tvl(ctx, chain, block)
	a.metrics.TVLComputed(chain, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("tvl of %s: %w", chain, err)
	}

	a.logger.Info().
		Str("chain", chain).
		Str("block", blockString(block)).
		Int("assets", len(balances)).
		Dur("duration", time.Since(start)).
		Msg("Computed TVL")
	return balances, nil
}

func (a *Adapter) tvl(ctx context.Context, chain string, block *big.Int) (Balances, error) {
	var all []Balances

	amm, err := a.AMMBalances(ctx, chain, block)
	if err != nil {
		return nil, err
	}
	all = append(all, amm)

	assets, err := a.StableAssets(ctx, chain, block)
	if err != nil {
		return nil, err
	}
	for _, asset := range assets {
		collateral, err := a.CollateralBalances(ctx, chain, block, asset)
		if err != nil {
			return nil, err
		}
		all = append(all, collateral)
	}

	total := SumBalances(all...)
	a.logBalances(chain, "total", total)
	return total, nil
}

// ChainTVLs returns one TVLFunc per chain with a backend.
func (a *Adapter) ChainTVLs() map[string]TVLFunc {
	fns := make(map[string]TVLFunc)
	for _, name := range a.Chains() {
		fns[name] = a.chainTVL(name)
	}
	return fns
}

// CombinedTVL sums the TVL of every chain with a backend.
func (a *Adapter) CombinedTVL() TVLFunc {
	var fns []TVLFunc
	for _, name := range a.Chains() {
		fns = append(fns, a.chainTVL(name))
	}
	return SumChainTVLs(fns...)
}

func (a *Adapter) chainTVL(chain string) TVLFunc {
	return func(ctx context.Context, timestamp time.Time, ethBlock uint64, chainBlocks map[string]uint64) (Balances, error) {
		block := BlockFor(chain, chainBlocks)
		if block == nil {
			a.logger.Debug().Str("chain", chain).Msg("No block height given, reading latest state")
		}
		return a.TVL(ctx, chain, block)
	}
}

// SumChainTVLs runs each function in turn and sums their balances.
func SumChainTVLs(fns ...TVLFunc) TVLFunc {
	return func(ctx context.Context, timestamp time.Time, ethBlock uint64, chainBlocks map[string]uint64) (Balances, error) {
		results := make([]Balances, 0, len(fns))
		for _, fn := range fns {
			b, err := fn(ctx, timestamp, ethBlock, chainBlocks)
			if err != nil {
				return nil, err
			}
			results = append(results, b)
		}
		return SumBalances(results...), nil
	}
}

// BlockFor returns the height for chain from chainBlocks, or nil for latest.
func BlockFor(chain string, chainBlocks map[string]uint64) *big.Int {
	h, ok := chainBlocks[chain]
	if !ok {
		return nil
	}
	return new(big.Int).SetUint64(h)
}

func (a *Adapter) lookup(chain string) (chains.ChainConfig, Backend, error) {
	cfg, err := a.registry.Chain(chain)
	if err != nil {
		return chains.ChainConfig{}, Backend{}, err
	}
	b, ok := a.backends[cfg.Name]
	if !ok {
		return chains.ChainConfig{}, Backend{}, fmt.Errorf("%w: %s", ErrNoBackend, cfg.Name)
	}
	return cfg, b, nil
}

func (a *Adapter) logBalances(chain, source string, b Balances) {
	if e := a.logger.Debug(); e.Enabled() {
		d := zerolog.Dict()
		for _, id := range b.IDs() {
			d.Str(id, b[id].String())
		}
		e.Str("chain", chain).Str("source", source).Dict("balances", d).Msg("Balances")
	}
}

func blockString(block *big.Int) string {
	if block == nil {
		return "latest"
	}
	return block.String()
}

func count(n *big.Int, what string) (uint64, error) {
	if n.Sign() < 0 || !n.IsUint64() {
		return 0, fmt.Errorf("%s %s out of range", what, n)
	}
	return n.Uint64(), nil
}
