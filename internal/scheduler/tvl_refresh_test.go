package scheduler

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazazor/DefiLlama-Adapters/internal/tvl"
)

type fixedHead struct {
	block uint64
	err   error
}

func (h fixedHead) LatestBlockNumber(context.Context) (uint64, error) { return h.block, h.err }

type fakeComputer struct {
	blocks map[string]*big.Int
	err    error
}

func (c *fakeComputer) TVL(ctx context.Context, chain string, block *big.Int) (tvl.Balances, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.blocks[chain] = block
	return tvl.Balances{"rootstock": decimal.NewFromInt(2)}, nil
}

type recordingPublisher struct {
	snaps []tvl.Snapshot
	err   error
}

func (p *recordingPublisher) PublishSnapshot(ctx context.Context, snap tvl.Snapshot) error {
	p.snaps = append(p.snaps, snap)
	return p.err
}

func newTestScheduler(t *testing.T, computer Computer, heads map[string]HeadSource) (*TVLScheduler, *tvl.SnapshotStore) {
	t.Helper()
	store := tvl.NewSnapshotStore()
	s, err := NewTVLScheduler(computer, heads, store, time.Minute, zerolog.Nop())
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return s, store
}

func TestRefresh(t *testing.T) {
	computer := &fakeComputer{blocks: make(map[string]*big.Int)}
	s, store := newTestScheduler(t, computer, map[string]HeadSource{"rsk": fixedHead{block: 4_100_000}})
	pub := &recordingPublisher{}
	s.SetPublisher(pub)

	snap, err := s.Refresh(context.Background(), "rsk")
	require.NoError(t, err)

	assert.Equal(t, uint64(4_100_000), snap.Block)
	assert.Equal(t, int64(4_100_000), computer.blocks["rsk"].Int64())

	stored, ok := store.Latest("rsk")
	require.True(t, ok)
	assert.Equal(t, snap, stored)

	require.Len(t, pub.snaps, 1)
	assert.Equal(t, "rsk", pub.snaps[0].Chain)
}

func TestRefreshFailures(t *testing.T) {
	t.Run("head failure", func(t *testing.T) {
		computer := &fakeComputer{blocks: make(map[string]*big.Int)}
		s, store := newTestScheduler(t, computer, map[string]HeadSource{"rsk": fixedHead{err: errors.New("down")}})

		_, err := s.Refresh(context.Background(), "rsk")
		assert.Error(t, err)
		assert.Empty(t, store.All())
	})

	t.Run("tvl failure keeps previous snapshot", func(t *testing.T) {
		computer := &fakeComputer{blocks: make(map[string]*big.Int)}
		s, store := newTestScheduler(t, computer, map[string]HeadSource{"rsk": fixedHead{block: 5}})

		_, err := s.Refresh(context.Background(), "rsk")
		require.NoError(t, err)

		computer.err = errors.New("rpc unavailable")
		s.RefreshAll(context.Background())

		snap, ok := store.Latest("rsk")
		require.True(t, ok)
		assert.Equal(t, uint64(5), snap.Block)
	})

	t.Run("publish failure is not fatal", func(t *testing.T) {
		computer := &fakeComputer{blocks: make(map[string]*big.Int)}
		s, store := newTestScheduler(t, computer, map[string]HeadSource{"rsk": fixedHead{block: 7}})
		s.SetPublisher(&recordingPublisher{err: errors.New("centrifugo down")})

		_, err := s.Refresh(context.Background(), "rsk")
		require.NoError(t, err)
		_, ok := store.Latest("rsk")
		assert.True(t, ok)
	})

	t.Run("unknown chain", func(t *testing.T) {
		s, _ := newTestScheduler(t, &fakeComputer{blocks: make(map[string]*big.Int)}, nil)
		_, err := s.Refresh(context.Background(), "rsk")
		assert.Error(t, err)
	})
}

func TestRefreshAll(t *testing.T) {
	computer := &fakeComputer{blocks: make(map[string]*big.Int)}
	s, store := newTestScheduler(t, computer, map[string]HeadSource{
		"rsk":      fixedHead{block: 1},
		"ethereum": fixedHead{block: 2},
	})

	s.RefreshAll(context.Background())
	assert.Len(t, store.All(), 2)
}

type countingComputer struct {
	calls atomic.Int32
	peak  atomic.Int32
	busy  atomic.Int32
}

func (c *countingComputer) TVL(ctx context.Context, chain string, block *big.Int) (tvl.Balances, error) {
	n := c.busy.Add(1)
	defer c.busy.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	c.calls.Add(1)
	time.Sleep(20 * time.Millisecond)
	return tvl.Balances{}, nil
}

func TestStartRefreshesImmediatelyThroughTheJob(t *testing.T) {
	computer := &countingComputer{}
	store := tvl.NewSnapshotStore()
	s, err := NewTVLScheduler(computer, map[string]HeadSource{"rsk": fixedHead{block: 3}}, store, 10*time.Millisecond, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return computer.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Len(t, s.scheduler.Jobs(), 1)
	s.Stop()

	assert.Equal(t, int32(1), computer.peak.Load(), "refreshes never overlap")
	_, ok := store.Latest("rsk")
	assert.True(t, ok)
}

func TestStartRunsFirstRefreshBeforeInterval(t *testing.T) {
	computer := &countingComputer{}
	s, err := NewTVLScheduler(computer, map[string]HeadSource{"rsk": fixedHead{block: 3}}, tvl.NewSnapshotStore(), time.Hour, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	require.Eventually(t, func() bool { return computer.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
}
