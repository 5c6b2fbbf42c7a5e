package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/centrifugal/gocent/v3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazazor/DefiLlama-Adapters/internal/tvl"
)

type published struct {
	channel string
	data    []byte
}

type fakeCentrifugo struct {
	calls []published
	err   error
}

func (f *fakeCentrifugo) Publish(ctx context.Context, channel string, data []byte, opts ...gocent.PublishOption) (gocent.PublishResult, error) {
	f.calls = append(f.calls, published{channel: channel, data: data})
	return gocent.PublishResult{}, f.err
}

func TestPublishSnapshot(t *testing.T) {
	gc := &fakeCentrifugo{}
	p := newPublisher(gc, "", zerolog.Nop())

	snap := tvl.Snapshot{
		Chain:     "RSK",
		Block:     4_200_000,
		Timestamp: time.Unix(1_700_000_000, 0).UTC(),
		Balances:  tvl.Balances{"rootstock": decimal.RequireFromString("1.5")},
	}
	require.NoError(t, p.PublishSnapshot(context.Background(), snap))
	require.Len(t, gc.calls, 1)
	assert.Equal(t, "tvl:rsk", gc.calls[0].channel)

	var payload struct {
		Type     string            `json:"type"`
		Chain    string            `json:"chain"`
		Block    uint64            `json:"block"`
		TS       int64             `json:"ts"`
		Balances map[string]string `json:"balances"`
	}
	require.NoError(t, json.Unmarshal(gc.calls[0].data, &payload))
	assert.Equal(t, "tvl.update", payload.Type)
	assert.Equal(t, uint64(4_200_000), payload.Block)
	assert.Equal(t, int64(1_700_000_000), payload.TS)
	assert.Equal(t, "1.5", payload.Balances["rootstock"])
}

func TestPublishSnapshotError(t *testing.T) {
	gc := &fakeCentrifugo{err: errors.New("unauthorized")}
	p := newPublisher(gc, "defi", zerolog.Nop())

	err := p.PublishSnapshot(context.Background(), tvl.Snapshot{Chain: "rsk"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "defi:rsk")
}
