package uniswapv2

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// Reader is the subset of the RPC client the aggregator needs.
type Reader interface {
	Call(ctx context.Context, target common.Address, method string, block *big.Int, args ...interface{}) ([]interface{}, error)
	CallUint(ctx context.Context, target common.Address, method string, block *big.Int, args ...interface{}) (*big.Int, error)
	CallAddress(ctx context.Context, target common.Address, method string, block *big.Int, args ...interface{}) (common.Address, error)
}

// Pair is one factory pair with its reserves at a block.
type Pair struct {
	Address  common.Address
	Token0   common.Address
	Token1   common.Address
	Reserve0 *big.Int
	Reserve1 *big.Int
}

// ReserveAggregator sums pair reserves per token across a factory.
type ReserveAggregator struct {
	reader Reader
	logger zerolog.Logger
}

func NewReserveAggregator(reader Reader, logger zerolog.Logger) *ReserveAggregator {
	return &ReserveAggregator{
		reader: reader,
		logger: logger.With().Str("component", "uniswap-v2-reserves").Logger(),
	}
}

// PairCount returns allPairsLength of the factory.
func (a *ReserveAggregator) PairCount(ctx context.Context, factory common.Address, block *big.Int) (uint64, error) {
	n, err := a.reader.CallUint(ctx, factory, "allPairsLength", block)
	if err != nil {
		return 0, fmt.Errorf("failed to get pair count of factory %s: %w", factory.Hex(), err)
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("factory %s: pair count %s overflows", factory.Hex(), n)
	}
	return n.Uint64(), nil
}

// Pair loads the pair at index together with its tokens and reserves.
func (a *ReserveAggregator) Pair(ctx context.Context, factory common.Address, index uint64, block *big.Int) (Pair, error) {
	addr, err := a.reader.CallAddress(ctx, factory, "allPairs", block, new(big.Int).SetUint64(index))
	if err != nil {
		return Pair{}, fmt.Errorf("failed to get pair %d of factory %s: %w", index, factory.Hex(), err)
	}

	token0, err := a.reader.CallAddress(ctx, addr, "token0", block)
	if err != nil {
		return Pair{}, fmt.Errorf("failed to get token0 of pair %s: %w", addr.Hex(), err)
	}
	token1, err := a.reader.CallAddress(ctx, addr, "token1", block)
	if err != nil {
		return Pair{}, fmt.Errorf("failed to get token1 of pair %s: %w", addr.Hex(), err)
	}

	out, err := a.reader.Call(ctx, addr, "getReserves", block)
	if err != nil {
		return Pair{}, fmt.Errorf("failed to get reserves of pair %s: %w", addr.Hex(), err)
	}
	if len(out) < 2 {
		return Pair{}, fmt.Errorf("pair %s: getReserves returned %d values", addr.Hex(), len(out))
	}
	reserve0, ok0 := out[0].(*big.Int)
	reserve1, ok1 := out[1].(*big.Int)
	if !ok0 || !ok1 || reserve0 == nil || reserve1 == nil {
		return Pair{}, fmt.Errorf("pair %s: unexpected reserve types %T, %T", addr.Hex(), out[0], out[1])
	}

	return Pair{
		Address:  addr,
		Token0:   token0,
		Token1:   token1,
		Reserve0: reserve0,
		Reserve1: reserve1,
	}, nil
}

// Reserves returns the raw reserve held per token across every pair of the
// factory from index offset onwards. Pairs are read one at a time.
func (a *ReserveAggregator) Reserves(ctx context.Context, factory common.Address, block *big.Int, offset uint64) (map[common.Address]*big.Int, error) {
	count, err := a.PairCount(ctx, factory, block)
	if err != nil {
		return nil, err
	}

	totals := make(map[common.Address]*big.Int)
	add := func(token common.Address, amount *big.Int) {
		if cur, ok := totals[token]; ok {
			cur.Add(cur, amount)
			return
		}
		totals[token] = new(big.Int).Set(amount)
	}

	for i := offset; i < count; i++ {
		pair, err := a.Pair(ctx, factory, i, block)
		if err != nil {
			return nil, err
		}
		add(pair.Token0, pair.Reserve0)
		add(pair.Token1, pair.Reserve1)

		a.logger.Debug().
			Str("pair", pair.Address.Hex()).
			Str("token0", pair.Token0.Hex()).
			Str("token1", pair.Token1.Hex()).
			Str("reserve0", pair.Reserve0.String()).
			Str("reserve1", pair.Reserve1.String()).
			Msg("Pair reserves")
	}

	a.logger.Debug().
		Str("factory", factory.Hex()).
		Uint64("pairs", count).
		Int("tokens", len(totals)).
		Msg("Aggregated factory reserves")

	return totals, nil
}
