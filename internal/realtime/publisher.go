package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/centrifugal/gocent/v3"
	"github.com/rs/zerolog"

	"github.com/kazazor/DefiLlama-Adapters/internal/tvl"
)

const defaultChannelPrefix = "tvl"

type centrifugo interface {
	Publish(ctx context.Context, channel string, data []byte, opts ...gocent.PublishOption) (gocent.PublishResult, error)
}

// Publisher pushes TVL snapshots to Centrifugo, one channel per chain.
type Publisher struct {
	gc     centrifugo
	prefix string
	logger zerolog.Logger
}

type PublishConfig struct {
	APIURL        string
	APIKey        string
	ChannelPrefix string
}

func NewPublisher(config PublishConfig, logger zerolog.Logger) *Publisher {
	return newPublisher(gocent.New(gocent.Config{
		Addr: config.APIURL,
		Key:  config.APIKey,
	}), config.ChannelPrefix, logger)
}

func newPublisher(gc centrifugo, prefix string, logger zerolog.Logger) *Publisher {
	if prefix == "" {
		prefix = defaultChannelPrefix
	}
	return &Publisher{
		gc:     gc,
		prefix: prefix,
		logger: logger.With().Str("component", "realtime-publisher").Logger(),
	}
}

// Channel returns the channel a chain's snapshots are published on.
func (p *Publisher) Channel(chain string) string {
	return fmt.Sprintf("%s:%s", p.prefix, strings.ToLower(chain))
}

func (p *Publisher) PublishSnapshot(ctx context.Context, snap tvl.Snapshot) error {
	payload := map[string]any{
		"type":     "tvl.update",
		"chain":    snap.Chain,
		"block":    snap.Block,
		"ts":       snap.Timestamp.Unix(),
		"balances": snap.Balances,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	channel := p.Channel(snap.Chain)
	if _, err := p.gc.Publish(ctx, channel, payloadBytes); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}

	p.logger.Debug().
		Str("channel", channel).
		Uint64("block", snap.Block).
		Int("assets", len(snap.Balances)).
		Msg("Published TVL snapshot")
	return nil
}
