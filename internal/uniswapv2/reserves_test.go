package uniswapv2

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger { return zerolog.Nop() }

type fakePair struct {
	token0, token1     common.Address
	reserve0, reserve1 int64
}

type fakeReader struct {
	factory common.Address
	pairs   []common.Address
	state   map[common.Address]fakePair
	failOn  string
	calls   int
}

func (f *fakeReader) Call(ctx context.Context, target common.Address, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	f.calls++
	if method == f.failOn {
		return nil, errors.New("node unavailable")
	}
	if method != "getReserves" {
		return nil, fmt.Errorf("unexpected method %s", method)
	}
	p := f.state[target]
	return []interface{}{big.NewInt(p.reserve0), big.NewInt(p.reserve1), uint32(0)}, nil
}

func (f *fakeReader) CallUint(ctx context.Context, target common.Address, method string, block *big.Int, args ...interface{}) (*big.Int, error) {
	f.calls++
	if method == f.failOn {
		return nil, errors.New("node unavailable")
	}
	if target != f.factory || method != "allPairsLength" {
		return nil, fmt.Errorf("unexpected call %s", method)
	}
	return big.NewInt(int64(len(f.pairs))), nil
}

func (f *fakeReader) CallAddress(ctx context.Context, target common.Address, method string, block *big.Int, args ...interface{}) (common.Address, error) {
	f.calls++
	if method == f.failOn {
		return common.Address{}, errors.New("node unavailable")
	}
	switch method {
	case "allPairs":
		return f.pairs[args[0].(*big.Int).Uint64()], nil
	case "token0":
		return f.state[target].token0, nil
	case "token1":
		return f.state[target].token1, nil
	}
	return common.Address{}, fmt.Errorf("unexpected method %s", method)
}

var (
	factory = common.HexToAddress("0xf000000000000000000000000000000000000000")
	pairA   = common.HexToAddress("0xa000000000000000000000000000000000000000")
	pairB   = common.HexToAddress("0xb000000000000000000000000000000000000000")
	tokenX  = common.HexToAddress("0x0000000000000000000000000000000000000001")
	tokenY  = common.HexToAddress("0x0000000000000000000000000000000000000002")
	tokenZ  = common.HexToAddress("0x0000000000000000000000000000000000000003")
)

func newFakeReader() *fakeReader {
	return &fakeReader{
		factory: factory,
		pairs:   []common.Address{pairA, pairB},
		state: map[common.Address]fakePair{
			pairA: {token0: tokenX, token1: tokenY, reserve0: 100, reserve1: 200},
			pairB: {token0: tokenY, token1: tokenZ, reserve0: 50, reserve1: 7},
		},
	}
}

func TestReserves(t *testing.T) {
	t.Run("sums reserves per token", func(t *testing.T) {
		agg := NewReserveAggregator(newFakeReader(), testLogger())

		totals, err := agg.Reserves(context.Background(), factory, big.NewInt(10), 0)
		require.NoError(t, err)

		require.Len(t, totals, 3)
		assert.Equal(t, int64(100), totals[tokenX].Int64())
		assert.Equal(t, int64(250), totals[tokenY].Int64())
		assert.Equal(t, int64(7), totals[tokenZ].Int64())
	})

	t.Run("offset skips leading pairs", func(t *testing.T) {
		agg := NewReserveAggregator(newFakeReader(), testLogger())

		totals, err := agg.Reserves(context.Background(), factory, nil, 1)
		require.NoError(t, err)

		assert.NotContains(t, totals, tokenX)
		assert.Equal(t, int64(50), totals[tokenY].Int64())
	})

	t.Run("empty factory", func(t *testing.T) {
		reader := newFakeReader()
		reader.pairs = nil
		agg := NewReserveAggregator(reader, testLogger())

		totals, err := agg.Reserves(context.Background(), factory, nil, 0)
		require.NoError(t, err)
		assert.Empty(t, totals)
	})

	t.Run("failure aborts", func(t *testing.T) {
		reader := newFakeReader()
		reader.failOn = "getReserves"
		agg := NewReserveAggregator(reader, testLogger())

		totals, err := agg.Reserves(context.Background(), factory, nil, 0)
		require.Error(t, err)
		assert.Nil(t, totals)
		assert.Contains(t, err.Error(), pairA.Hex())
	})
}

func TestReservesDoNotAliasPairValues(t *testing.T) {
	reader := newFakeReader()
	agg := NewReserveAggregator(reader, testLogger())

	pair, err := agg.Pair(context.Background(), factory, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, pairA, pair.Address)
	assert.Equal(t, tokenX, pair.Token0)
	assert.Equal(t, tokenY, pair.Token1)

	totals, err := agg.Reserves(context.Background(), factory, nil, 0)
	require.NoError(t, err)
	totals[tokenY].SetInt64(0)

	again, err := agg.Reserves(context.Background(), factory, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(250), again[tokenY].Int64())
}
