package scheduler

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"

	"github.com/kazazor/DefiLlama-Adapters/internal/metrics"
	"github.com/kazazor/DefiLlama-Adapters/internal/tvl"
)

const defaultInterval = 5 * time.Minute

// HeadSource reports a chain's latest block.
type HeadSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

type Computer interface {
	TVL(ctx context.Context, chain string, block *big.Int) (tvl.Balances, error)
}

type Publisher interface {
	PublishSnapshot(ctx context.Context, snap tvl.Snapshot) error
}

// TVLScheduler periodically computes the TVL of every chain at its head
// block and keeps the result in a snapshot store.
type TVLScheduler struct {
	computer  Computer
	heads     map[string]HeadSource
	store     *tvl.SnapshotStore
	publisher Publisher
	metrics   *metrics.Metrics
	interval  time.Duration
	scheduler gocron.Scheduler
	logger    zerolog.Logger
	now       func() time.Time
}

func NewTVLScheduler(computer Computer, heads map[string]HeadSource, store *tvl.SnapshotStore, interval time.Duration, logger zerolog.Logger) (*TVLScheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = defaultInterval
	}

	return &TVLScheduler{
		computer:  computer,
		heads:     heads,
		store:     store,
		interval:  interval,
		scheduler: s,
		logger:    logger.With().Str("component", "tvl-scheduler").Logger(),
		now:       time.Now,
	}, nil
}

// SetPublisher pushes every new snapshot to publisher.
func (s *TVLScheduler) SetPublisher(p Publisher) {
	s.publisher = p
}

func (s *TVLScheduler) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

func (s *TVLScheduler) Start(ctx context.Context) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.RefreshAll, ctx),
		gocron.WithName("refresh-tvl"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return err
	}

	s.logger.Info().Dur("interval", s.interval).Msg("TVL scheduler started")
	s.scheduler.Start()
	return nil
}

func (s *TVLScheduler) Stop() {
	s.logger.Info().Msg("Stopping TVL scheduler")
	if err := s.scheduler.Shutdown(); err != nil {
		s.logger.Error().Err(err).Msg("Error shutting down scheduler")
	}
}

// RefreshAll refreshes every chain one after another. A failing chain is
// logged and leaves its previous snapshot in place.
func (s *TVLScheduler) RefreshAll(ctx context.Context) {
	start := time.Now()
	ok := 0
	for chain := range s.heads {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.Refresh(ctx, chain); err != nil {
			s.logger.Error().Err(err).Str("chain", chain).Msg("Failed to refresh TVL")
			continue
		}
		ok++
	}

	s.logger.Info().
		Int("success", ok).
		Int("failed", len(s.heads)-ok).
		Dur("duration", time.Since(start)).
		Msg("TVL refresh completed")
}

// Refresh computes one chain's TVL at its current head.
func (s *TVLScheduler) Refresh(ctx context.Context, chain string) (tvl.Snapshot, error) {
	head, ok := s.heads[chain]
	if !ok {
		return tvl.Snapshot{}, fmt.Errorf("no head source for chain %s", chain)
	}

	block, err := head.LatestBlockNumber(ctx)
	if err != nil {
		return tvl.Snapshot{}, err
	}

	balances, err := s.computer.TVL(ctx, chain, new(big.Int).SetUint64(block))
	if err != nil {
		return tvl.Snapshot{}, err
	}

	snap := tvl.Snapshot{
		Chain:     chain,
		Block:     block,
		Timestamp: s.now().UTC(),
		Balances:  balances,
	}
	if !s.store.Put(snap) {
		s.logger.Debug().Str("chain", chain).Uint64("block", block).Msg("Newer snapshot already stored")
		return snap, nil
	}
	s.metrics.Snapshot(chain, block, len(balances))

	if s.publisher != nil {
		if err := s.publisher.PublishSnapshot(ctx, snap); err != nil {
			s.logger.Warn().Err(err).Str("chain", chain).Msg("Failed to publish TVL snapshot")
		}
	}
	return snap, nil
}
